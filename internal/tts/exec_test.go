package tts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecSynthWritesRequest(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "request.json")
	script := filepath.Join(dir, "speak.sh")
	body := "#!/bin/sh\ncat > \"" + out + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	synth, err := NewExecSynth(script)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	events, errs := synth.Speak(context.Background(), Utterance{ID: "u1", Text: "hola", Locale: "es-ES", Rate: 1, Pitch: 1})

	var kinds []EventKind
	for evt := range events {
		kinds = append(kinds, evt.Kind)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != EventStarted || kinds[1] != EventEnded {
		t.Fatalf("unexpected events %v", kinds)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var req execRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Text != "hola" || req.Locale != "es-ES" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestExecSynthReportsFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "speak.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'no voice' >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	synth, err := NewExecSynth(script)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	events, errs := synth.Speak(context.Background(), Utterance{ID: "u1", Text: "hola"})
	for range events {
	}
	err = <-errs
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "no voice") {
		t.Fatalf("expected stderr in error, got %s", got)
	}
}

func TestExecSynthEmptyCommand(t *testing.T) {
	if _, err := NewExecSynth("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

