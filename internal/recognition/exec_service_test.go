package recognition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	path := filepath.Join(t.TempDir(), "dictate.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecServiceStreamsEvents(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `#!/bin/sh
echo "$@" > "`+argsFile+`"
echo '{"result_index":0,"results":[{"transcript":"hola","final":false}]}'
echo '{"result_index":0,"results":[{"transcript":"hola amigo","final":true}]}'
echo '{"error":"no-speech"}'
`)
	svc, err := NewExecService("sh "+script, newLogger())
	if err != nil {
		t.Fatalf("new exec service: %v", err)
	}
	m := NewManager(svc, newLogger())
	t.Cleanup(m.Close)

	updates := make(chan TranscriptState, 4)
	m.OnTranscript(func(ts TranscriptState) { updates <- ts })
	if err := m.Start(context.Background(), "es-ES"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if ts := waitTranscript(t, updates); ts.LiveText != "hola" {
		t.Fatalf("unexpected first transcript %+v", ts)
	}
	if ts := waitTranscript(t, updates); ts.LiveText != "hola amigo" || !ts.IsFinal {
		t.Fatalf("unexpected second transcript %+v", ts)
	}
	eventually(t, func() bool { return !m.Listening() })
	if !strings.Contains(m.Err(), "no-speech") {
		t.Fatalf("expected no-speech error, got %q", m.Err())
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.TrimSpace(string(args)); got != "--language es-ES --continuous --interim" {
		t.Fatalf("unexpected arguments %q", got)
	}
}

func TestExecServiceMissingBinary(t *testing.T) {
	svc, err := NewExecService("definitely-not-a-dictation-binary", newLogger())
	if err != nil {
		t.Fatalf("new exec service: %v", err)
	}
	m := NewManager(svc, newLogger())
	if err := m.Start(context.Background(), "en-US"); !errors.Is(err, ErrUnsupportedCapability) {
		t.Fatalf("expected ErrUnsupportedCapability, got %v", err)
	}
}

func TestExecServiceEmptyCommand(t *testing.T) {
	if _, err := NewExecService("   ", newLogger()); err == nil {
		t.Fatal("expected empty command to fail")
	}
}
