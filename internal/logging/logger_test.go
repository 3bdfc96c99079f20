package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDailyFileWriter_CreatesDateNamedFile(t *testing.T) {
	dir := t.TempDir()
	w := newDailyFileWriter(dir)

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	expected := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".log")
	data, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("expected log file at %s: %v", expected, err)
	}
	if string(data) != "hello\n" {
		t.Errorf("unexpected file contents: %q", data)
	}
}

func TestLineEncoder_Format(t *testing.T) {
	enc := newLineEncoder()
	entry := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2026, 1, 1, 13, 5, 9, 0, time.UTC),
		Message: "room created",
	}
	buf, err := enc.EncodeEntry(entry, []zapcore.Field{zap.String("room_id", "abc")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := buf.String()
	if got != "13:05:09 INFO - room created room_id=abc\n" {
		t.Errorf("unexpected line: %q", got)
	}
}

func TestLineEncoder_NoFields(t *testing.T) {
	enc := newLineEncoder()
	entry := zapcore.Entry{
		Level:   zapcore.WarnLevel,
		Time:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Message: "heartbeat",
	}
	buf, err := enc.EncodeEntry(entry, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := buf.String(); got != "00:00:00 WARN - heartbeat\n" {
		t.Errorf("unexpected line: %q", got)
	}
}

func TestInitialize_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := Initialize(dir, false); err != nil {
		t.Fatalf("second initialize should be a no-op: %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("expected non-nil logger")
	}
}
