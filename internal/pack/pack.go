// Package pack loads quiz pack files consumed by the Game Runner
// (spec.md §3 "Pack", §4.E). The on-disk format is the JSON shape
// described in spec.md §6, ported from the original Rust
// models/game.rs Pack/Question/Answer structs.
package pack

import (
	"encoding/json"
	"fmt"
	"os"
)

// Answer is one multiple-choice option for a Question.
type Answer struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Question is one round of a Pack.
type Question struct {
	Text          string   `json:"text"`
	Answers       []Answer `json:"answers"`
	CorrectAnswer int      `json:"correct_answer"`
	DurationSec   int      `json:"duration_sec"`
}

// Pack is a finite ordered sequence of Questions.
type Pack struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// Load reads and decodes a pack file from disk. Resource IO and decode
// failures are reported as a single wrapped error, which the Command
// Dispatcher's startGame handler turns into an errorResponse (spec.md
// §4.D.2, §7 "Resource IO").
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}
	var p Pack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pack file: %w", err)
	}
	if len(p.Questions) == 0 {
		return nil, fmt.Errorf("pack %q has no questions", path)
	}
	for i, q := range p.Questions {
		if len(q.Answers) == 0 {
			return nil, fmt.Errorf("pack %q question %d has no answers", path, i)
		}
	}
	return &p, nil
}
