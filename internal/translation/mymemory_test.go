package translation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMyMemoryTranslate(t *testing.T) {
	var gotQuery, gotPair, gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		gotPair = r.URL.Query().Get("langpair")
		gotRaw = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"responseData":{"translatedText":"hola","match":1},"responseStatus":200}`)
	}))
	t.Cleanup(srv.Close)

	client := NewMyMemoryClient(srv.URL, "", time.Second, newLogger())
	out, err := client.Translate(context.Background(), "hello", "en-US", "es-ES")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "hola" {
		t.Fatalf("expected hola, got %q", out)
	}
	if gotQuery != "hello" || gotPair != "en-US|es-ES" {
		t.Fatalf("unexpected query q=%q langpair=%q", gotQuery, gotPair)
	}
	if !strings.Contains(gotRaw, "langpair=en-US%7Ces-ES") {
		t.Fatalf("expected encoded langpair in %q", gotRaw)
	}
	if strings.Contains(gotRaw, "de=") {
		t.Fatalf("unexpected de parameter in %q", gotRaw)
	}
}

func TestMyMemorySendsEmail(t *testing.T) {
	var gotEmail string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEmail = r.URL.Query().Get("de")
		_, _ = io.WriteString(w, `{"responseData":{"translatedText":"bonjour"}}`)
	}))
	t.Cleanup(srv.Close)

	client := NewMyMemoryClient(srv.URL, "ops@example.com", time.Second, newLogger())
	if _, err := client.Translate(context.Background(), "hello", "en-US", "fr-FR"); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if gotEmail != "ops@example.com" {
		t.Fatalf("expected email parameter, got %q", gotEmail)
	}
}

func TestMyMemoryRejectsUnexpectedShapes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "missing response data", status: http.StatusOK, body: `{"responseStatus":200}`},
		{name: "missing translated text", status: http.StatusOK, body: `{"responseData":{}}`},
		{name: "translated text not a string", status: http.StatusOK, body: `{"responseData":{"translatedText":42}}`},
		{name: "not json", status: http.StatusOK, body: `<html>quota exceeded</html>`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"responseData":{"translatedText":"hola"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			client := NewMyMemoryClient(srv.URL, "", time.Second, newLogger())
			out, err := client.Translate(context.Background(), "hello", "en-US", "es-ES")
			if !errors.Is(err, ErrTranslationRequestFailed) {
				t.Fatalf("expected ErrTranslationRequestFailed, got %v", err)
			}
			if out != "" {
				t.Fatalf("expected empty text on failure, got %q", out)
			}
		})
	}
}

func TestMyMemoryUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewMyMemoryClient(url, "", 500*time.Millisecond, newLogger())
	if _, err := client.Translate(context.Background(), "hello", "en-US", "es-ES"); !errors.Is(err, ErrTranslationRequestFailed) {
		t.Fatalf("expected ErrTranslationRequestFailed, got %v", err)
	}
}
