// Package clock provides an injectable notion of time and randomness so the
// game loop, grace-period timers, and host-failover picks can be exercised
// deterministically in tests without real wall-clock delays.
package clock

import (
	"math/rand/v2"
	"time"
)

// Clock abstracts wall-clock time and sleeping. Production code uses
// Real; tests use a Fake that advances on demand.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Rand abstracts the randomness used for color assignment and
// host-failover selection.
type Rand interface {
	IntN(n int) int
}

type realClock struct{}

// Real is the production Clock backed by the operating system.
var Real Clock = realClock{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type realRand struct{}

// RealRand is the production Rand backed by math/rand/v2's default source.
var RealRand Rand = realRand{}

func (realRand) IntN(n int) int { return rand.IntN(n) }
