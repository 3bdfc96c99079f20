package pack

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func TestLoad_ValidPack(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.json", `{
		"name": "p",
		"questions": [
			{"text": "q1", "answers": [{"number":1,"text":"a"},{"number":2,"text":"b"}], "correct_answer": 1, "duration_sec": 2}
		]
	}`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "p" || len(p.Questions) != 1 {
		t.Fatalf("unexpected pack: %+v", p)
	}
	if p.Questions[0].CorrectAnswer != 1 || p.Questions[0].DurationSec != 2 {
		t.Errorf("unexpected question fields: %+v", p.Questions[0])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{not valid json`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoad_NoQuestions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.json", `{"name":"p","questions":[]}`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for pack with no questions")
	}
}

func TestLoad_QuestionWithNoAnswers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "noanswers.json", `{"name":"p","questions":[{"text":"q","answers":[],"correct_answer":1,"duration_sec":1}]}`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for question with no answers")
	}
}
