package recognition

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
)

// ExecService runs a local dictation command per session. The command gets
// --language, --continuous and --interim appended and writes one JSON event
// per line on stdout.
type ExecService struct {
	cmd    []string
	logger *slog.Logger
}

type execLine struct {
	ResultIndex int `json:"result_index"`
	Results     []struct {
		Transcript string `json:"transcript"`
		Final      bool   `json:"final"`
	} `json:"results"`
	Error string `json:"error"`
}

func NewExecService(command string, logger *slog.Logger) (*ExecService, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognition command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognition command is empty")
	}
	return &ExecService{cmd: args, logger: logger.With(slog.String("component", "recognition-exec"))}, nil
}

func (s *ExecService) Open(_ context.Context, opts Options) (Session, error) {
	args := append([]string{}, s.cmd[1:]...)
	args = append(args, "--language", opts.Language)
	if opts.Continuous {
		args = append(args, "--continuous")
	}
	if opts.InterimResults {
		args = append(args, "--interim")
	}

	// The session outlives the request that opened it.
	ctx, cancel := context.WithCancel(context.Background())
	command := exec.CommandContext(ctx, s.cmd[0], args...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCapability, err)
		}
		return nil, fmt.Errorf("start recognition command: %w", err)
	}

	sess := &execSession{
		id:      uuid.NewString(),
		cancel:  cancel,
		results: make(chan Event, 16),
		errs:    make(chan error, 4),
		done:    make(chan struct{}),
	}
	go sess.read(ctx, command, stdout, &stderr, s.logger)
	return sess, nil
}

type execSession struct {
	id      string
	cancel  context.CancelFunc
	results chan Event
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func (s *execSession) ID() string            { return s.id }
func (s *execSession) Results() <-chan Event { return s.results }
func (s *execSession) Errors() <-chan error  { return s.errs }

func (s *execSession) read(ctx context.Context, command *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer, logger *slog.Logger) {
	defer close(s.done)
	defer close(s.errs)
	defer close(s.results)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var parsed execLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			logger.Warn("failed to decode recognition output", slogError(err))
			continue
		}
		if parsed.Error != "" {
			s.errs <- &RuntimeError{Reason: parsed.Error}
			continue
		}
		evt := Event{ResultIndex: parsed.ResultIndex, Results: make([]Segment, 0, len(parsed.Results))}
		for _, r := range parsed.Results {
			evt.Results = append(evt.Results, Segment{Transcript: r.Transcript, Final: r.Final})
		}
		s.results <- evt
	}

	if err := command.Wait(); err != nil && ctx.Err() == nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		s.errs <- &RuntimeError{Reason: reason}
	}
}

func (s *execSession) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
