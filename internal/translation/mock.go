package translation

import (
	"context"
	"sync"
)

// Call records one request received by MockTranslator.
type Call struct {
	Text   string
	Source string
	Target string
}

// MockTranslator answers from a fixed table and falls back to tagging the
// input with the target locale.
type MockTranslator struct {
	mu      sync.Mutex
	table   map[string]string
	calls   []Call
	failErr error
}

func NewMockTranslator() *MockTranslator {
	return &MockTranslator{table: make(map[string]string)}
}

// Set maps text to its translation for every language pair.
func (m *MockTranslator) Set(text, translated string) {
	m.mu.Lock()
	m.table[text] = translated
	m.mu.Unlock()
}

// FailWith makes subsequent requests fail with err; nil restores success.
func (m *MockTranslator) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MockTranslator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MockTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Text: text, Source: source, Target: target})
	if m.failErr != nil {
		return "", m.failErr
	}
	if out, ok := m.table[text]; ok {
		return out, nil
	}
	return "[" + target + "] " + text, nil
}
