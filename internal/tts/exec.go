package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text   string  `json:"text"`
	Locale string  `json:"locale"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
}

// NewExecSynth speaks through a local command. The utterance is written as
// JSON to its stdin; playback ends when the command exits.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Speak(ctx context.Context, u Utterance) (<-chan Event, <-chan error) {
	events := make(chan Event, 2)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)

		// one utterance plays at a time
		e.mu.Lock()
		defer e.mu.Unlock()

		data, err := json.Marshal(execRequest{Text: u.Text, Locale: u.Locale, Rate: u.Rate, Pitch: u.Pitch})
		if err != nil {
			errs <- err
			return
		}

		cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
		cmd.Stdin = bytes.NewReader(data)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Start(); err != nil {
			errs <- fmt.Errorf("start tts command: %w", err)
			return
		}
		events <- Event{UtteranceID: u.ID, Kind: EventStarted, At: time.Now().UTC()}

		if err := cmd.Wait(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			errs <- fmt.Errorf("tts command: %w", err)
			return
		}
		events <- Event{UtteranceID: u.ID, Kind: EventEnded, At: time.Now().UTC()}
	}()
	return events, errs
}
