package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kirillsirotkin/quizlobby/internal/clock"
	"github.com/kirillsirotkin/quizlobby/internal/messenger"
	"github.com/kirillsirotkin/quizlobby/internal/pack"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
)

func drainVariant(t *testing.T, ch chan []byte, want string) messenger.Envelope {
	t.Helper()
	select {
	case frame := <-ch:
		var env messenger.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Response != want {
			t.Fatalf("expected %s, got %s", want, env.Response)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return messenger.Envelope{}
}

// S3: one-question game end to end, using a zero-delay fake clock so the
// scenario runs in bounded wall time (spec.md §9).
func TestGameRunner_OneQuestionGame(t *testing.T) {
	reg := registry.New()
	msg := messenger.New(reg)
	chA := make(chan []byte, 16)
	chB := make(chan []byte, 16)
	reg.Connections.Insert("A", chA)
	reg.Connections.Insert("B", chB)
	roster := []registry.User{{ID: "A"}, {ID: "B"}}

	fc := clock.NewFake(time.Now())
	runner := NewGameRunner(reg, msg, fc, 0, 0)

	p := &pack.Pack{Name: "p", Questions: []pack.Question{
		{Text: "q1", Answers: []pack.Answer{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}}, CorrectAnswer: 1, DurationSec: 0},
	}}

	done := make(chan struct{})
	go func() {
		runner.Run(context.Background(), "r1", p, roster)
		close(done)
	}()

	drainVariant(t, chA, messenger.VariantQuestionResponse)
	drainVariant(t, chB, messenger.VariantQuestionResponse)
	drainVariant(t, chA, messenger.VariantAnswersResponse)
	drainVariant(t, chB, messenger.VariantAnswersResponse)
	drainVariant(t, chA, messenger.VariantTimerResponse)
	drainVariant(t, chB, messenger.VariantTimerResponse)

	ch, ok := reg.Games.GetByID("r1")
	if !ok {
		t.Fatal("expected game entry while runner is active")
	}
	ch <- registry.Answer{UserID: "A", Value: 1}
	ch <- registry.Answer{UserID: "B", Value: 2}

	correctA := drainVariant(t, chA, messenger.VariantCorrectAnswerResponse)
	var correctPayload messenger.CorrectAnswerResponse
	b, _ := json.Marshal(correctA.Data)
	json.Unmarshal(b, &correctPayload)
	if correctPayload.Answers["A"] != 1 || correctPayload.Answers["B"] != 2 {
		t.Fatalf("unexpected answers snapshot: %+v", correctPayload.Answers)
	}
	drainVariant(t, chB, messenger.VariantCorrectAnswerResponse)

	scoresA := drainVariant(t, chA, messenger.VariantScoresResponse)
	var scoresPayload messenger.ScoresResponse
	b, _ = json.Marshal(scoresA.Data)
	json.Unmarshal(b, &scoresPayload)
	if scoresPayload.Scores["A"] != 100 || scoresPayload.Scores["B"] != 0 {
		t.Fatalf("unexpected scores: %+v", scoresPayload.Scores)
	}
	drainVariant(t, chB, messenger.VariantScoresResponse)

	<-done
	if reg.Games.ContainsKey("r1") {
		t.Fatal("expected game entry removed once the pack is exhausted")
	}
}
