package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kirillsirotkin/quizlobby/internal/clock"
	"github.com/kirillsirotkin/quizlobby/internal/logging"
	"github.com/kirillsirotkin/quizlobby/internal/messenger"
	"github.com/kirillsirotkin/quizlobby/internal/metrics"
	"github.com/kirillsirotkin/quizlobby/internal/pack"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
)

// GameRunner drives one pack for one room (spec.md §4.E). The driver
// steps questions on a fixed cadence; ingest consumes submitted answers
// concurrently. Both close over the same answers map, which is why
// writeAnswer's snapshot-at-emit semantics (§8 B3) fall directly out of
// "the last write before the driver reads wins": ingest holds the map
// lock only for the duration of a single assignment.
type GameRunner struct {
	reg *registry.Registry
	msg *messenger.Messenger
	clk clock.Clock

	questionGapSec int
	timerTickSec   int
}

// NewGameRunner builds a GameRunner. clk is injected so tests can run
// the driver loop without real wall-clock delays (spec.md §9).
func NewGameRunner(reg *registry.Registry, msg *messenger.Messenger, clk clock.Clock, questionGapSec, timerTickSec int) *GameRunner {
	return &GameRunner{reg: reg, msg: msg, clk: clk, questionGapSec: questionGapSec, timerTickSec: timerTickSec}
}

// answerBoard is the shared, mutex-protected answers/scores state for one
// game. It is private to one GameRunner invocation — never reachable from
// the Registry — so ingest and the driver can share it without going
// through Registry locks.
type answerBoard struct {
	mu      sync.Mutex
	answers map[string]int
	scores  map[string]int
}

// Run registers the room's inbound-answer channel, spawns ingest, and
// runs the driver loop to completion, removing the Games entry on exit
// in every case (pack exhausted, or ingest channel closed).
func (g *GameRunner) Run(ctx context.Context, roomID string, p *pack.Pack, roster []registry.User) {
	ctx, span := tracer.Start(ctx, "game.run")
	defer span.End()

	inbound := make(chan registry.Answer, 32)
	g.reg.Games.Insert(roomID, inbound)
	metrics.ActiveGames.Inc()
	defer func() {
		g.reg.Games.RemoveByID(roomID)
		metrics.ActiveGames.Dec()
	}()

	board := &answerBoard{answers: make(map[string]int), scores: make(map[string]int)}
	for _, u := range roster {
		board.answers[u.ID] = -1
		board.scores[u.ID] = 0
	}

	done := make(chan struct{})
	ingestEnded := make(chan struct{})
	go func() {
		g.ingest(ctx, inbound, board, done)
		close(ingestEnded)
	}()
	defer close(done)

	g.drive(ctx, roomID, p, roster, board, ingestEnded)
}

func (g *GameRunner) ingest(ctx context.Context, inbound chan registry.Answer, board *answerBoard, done chan struct{}) {
	for {
		select {
		case a, ok := <-inbound:
			if !ok {
				return
			}
			board.mu.Lock()
			if _, tracked := board.answers[a.UserID]; tracked {
				board.answers[a.UserID] = a.Value
			}
			board.mu.Unlock()
		case <-done:
			return
		}
	}
}

func (g *GameRunner) drive(ctx context.Context, roomID string, p *pack.Pack, roster []registry.User, board *answerBoard, ingestEnded <-chan struct{}) {
	for _, q := range p.Questions {
		// A closed ingest ends the game at the next question boundary.
		select {
		case <-ingestEnded:
			logging.Info(ctx, "game ingest ended", zap.String("room_id", roomID))
			return
		default:
		}
		g.msg.BroadcastRoomAll(messenger.VariantQuestionResponse, messenger.QuestionResponse{Question: q.Text}, roster)
		g.clk.Sleep(time.Duration(g.questionGapSec) * time.Second)

		wireAnswers := make([]messenger.WireAnswer, len(q.Answers))
		for i, a := range q.Answers {
			wireAnswers[i] = messenger.WireAnswer{Number: a.Number, Text: a.Text}
		}
		g.msg.BroadcastRoomAll(messenger.VariantAnswersResponse, messenger.AnswersResponse{Answers: wireAnswers, Timer: q.DurationSec}, roster)

		for t := q.DurationSec; t >= 0; t-- {
			g.msg.BroadcastRoomAll(messenger.VariantTimerResponse, messenger.TimerResponse{Timer: t}, roster)
			if t > 0 {
				g.clk.Sleep(time.Duration(g.timerTickSec) * time.Second)
			}
		}

		// Snapshot-at-emit: whatever is in board.answers right now is
		// final for this question. The board is reset to -1 in the same
		// critical section, so any writeAnswer landing after this read
		// is, by construction, recorded against the next question
		// (spec.md §8 B3).
		board.mu.Lock()
		snapshot := make(map[string]int, len(board.answers))
		for id, v := range board.answers {
			snapshot[id] = v
			board.answers[id] = -1
		}
		board.mu.Unlock()
		g.msg.BroadcastRoomAll(messenger.VariantCorrectAnswerResponse, messenger.CorrectAnswerResponse{Answers: snapshot, CorrectAnswer: q.CorrectAnswer}, roster)

		board.mu.Lock()
		for id, submitted := range snapshot {
			if submitted == q.CorrectAnswer {
				board.scores[id] += 100
			}
		}
		scoresCopy := make(map[string]int, len(board.scores))
		for id, v := range board.scores {
			scoresCopy[id] = v
		}
		board.mu.Unlock()
		g.msg.BroadcastRoomAll(messenger.VariantScoresResponse, messenger.ScoresResponse{Scores: scoresCopy}, roster)

		g.clk.Sleep(time.Duration(g.questionGapSec) * time.Second)
	}

	logging.Info(ctx, "game finished", zap.String("room_id", roomID))
}
