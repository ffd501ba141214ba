package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/bus/bustest"
	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/loqalabs/loqa-interpret/internal/coordinator"
	"github.com/loqalabs/loqa-interpret/internal/devices"
	"github.com/loqalabs/loqa-interpret/internal/languages"
	"github.com/loqalabs/loqa-interpret/internal/protocol"
	"github.com/loqalabs/loqa-interpret/internal/recognition"
	"github.com/loqalabs/loqa-interpret/internal/recorder"
	"github.com/loqalabs/loqa-interpret/internal/schedule"
	"github.com/loqalabs/loqa-interpret/internal/translation"
)

type apiFixture struct {
	srv        *httptest.Server
	svc        *recognition.MockService
	device     *recorder.MockDevice
	translator *translation.MockTranslator
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newAPIFixture(t *testing.T, svc recognition.Service) *apiFixture {
	t.Helper()
	logger := newLogger()
	f := &apiFixture{
		device:     recorder.NewMockDevice(),
		translator: translation.NewMockTranslator(),
	}
	if mock, ok := svc.(*recognition.MockService); ok {
		f.svc = mock
	}
	sched := schedule.NewManual()
	orchestrator := translation.NewOrchestrator(context.Background(), translation.Options{
		SourceLanguage: "en-US",
		TargetLanguage: "es-ES",
		AutoTranslate:  true,
		Debounce:       time.Second,
	}, f.translator, nil, sched, logger)
	coord, err := coordinator.New(context.Background(), coordinator.Options{SourceLanguage: "en-US", TargetLanguage: "es-ES"},
		recognition.NewManager(svc, logger),
		recorder.NewManager(f.device, 0, logger),
		orchestrator, sched, logger)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coord.Close)

	mux := http.NewServeMux()
	newAPI(coord, nil, logger).register(mux)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAPILanguages(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())
	resp := f.do(t, http.MethodGet, "/v1/languages", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var got []languages.Language
	decodeBody(t, resp, &got)
	if len(got) != len(languages.All()) {
		t.Fatalf("expected %d languages, got %d", len(languages.All()), len(got))
	}
}

func TestAPIListenLifecycle(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())

	resp := f.do(t, http.MethodPost, "/v1/listen/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d", resp.StatusCode)
	}
	var st coordinator.State
	decodeBody(t, resp, &st)
	if !st.Listening {
		t.Fatal("expected listening state")
	}
	if f.svc.Last().Options().Language != "en-US" {
		t.Fatal("expected session in source language")
	}

	resp = f.do(t, http.MethodPost, "/v1/listen/stop", "")
	decodeBody(t, resp, &st)
	if st.Listening {
		t.Fatal("expected idle after stop")
	}
}

func TestAPIListenUnsupported(t *testing.T) {
	f := newAPIFixture(t, nil)
	resp := f.do(t, http.MethodPost, "/v1/listen/start", "")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestAPISetLanguages(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())

	resp := f.do(t, http.MethodPut, "/v1/languages/source", `{"language":"fr-FR"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("source status %d", resp.StatusCode)
	}
	var st coordinator.State
	decodeBody(t, resp, &st)
	if st.SourceLanguage != "fr-FR" {
		t.Fatalf("expected fr-FR source, got %s", st.SourceLanguage)
	}

	resp = f.do(t, http.MethodPut, "/v1/languages/target", `{"language":"xx-XX"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported target, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPut, "/v1/languages/target", `{"lang":"de-DE"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestAPIAutoTranslate(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())

	resp := f.do(t, http.MethodPut, "/v1/auto-translate", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without enabled, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPut, "/v1/auto-translate", `{"enabled":false}`)
	var st coordinator.State
	decodeBody(t, resp, &st)
	if st.AutoTranslate {
		t.Fatal("expected auto translate disabled")
	}
}

func TestAPITranslate(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())
	f.translator.Set("hello", "hola")

	resp := f.do(t, http.MethodPost, "/v1/translate", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("translate status %d", resp.StatusCode)
	}
	var out translateResponse
	decodeBody(t, resp, &out)
	if out.TranslatedText != "hola" {
		t.Fatalf("expected hola, got %q", out.TranslatedText)
	}

	f.translator.FailWith(errors.New("quota exceeded"))
	resp = f.do(t, http.MethodPost, "/v1/translate", `{"text":"goodbye"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 on failure, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/v1/state", "")
	var st coordinator.State
	decodeBody(t, resp, &st)
	if st.Translation.TranslatedText != "hola" {
		t.Fatalf("expected prior translation kept, got %q", st.Translation.TranslatedText)
	}
	if st.Translation.InputText != "goodbye" {
		t.Fatalf("expected input text recorded, got %q", st.Translation.InputText)
	}
}

func TestAPIConcurrentTranslateRequests(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("phrase %d", i)
			resp, err := http.Post(f.srv.URL+"/v1/translate", "application/json", strings.NewReader(`{"text":"`+text+`"}`))
			if err != nil {
				t.Errorf("post %q: %v", text, err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("translate %q status %d", text, resp.StatusCode)
				return
			}
			var out translateResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Errorf("decode %q: %v", text, err)
				return
			}
			if want := "[es-ES] " + text; out.TranslatedText != want {
				t.Errorf("expected %q, got %q", want, out.TranslatedText)
			}
		}(i)
	}
	wg.Wait()

	if calls := f.translator.Calls(); len(calls) != n {
		t.Fatalf("expected %d service calls, got %d", n, len(calls))
	}
}

func TestAPIRecording(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())

	resp := f.do(t, http.MethodPost, "/v1/record/stop", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 when idle, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/v1/record/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d", resp.StatusCode)
	}
	f.device.Push([]byte("ab"), []byte("cd"))

	resp = f.do(t, http.MethodPost, "/v1/record/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d", resp.StatusCode)
	}
	var clip clipResponse
	decodeBody(t, resp, &clip)
	if string(clip.Data) != "abcd" || clip.MIMEType != recorder.ClipMIMEType || clip.Chunks != 2 {
		t.Fatalf("unexpected clip %+v", clip)
	}
}

func TestAPIRecordingDenied(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())
	f.device.Deny(errors.New("permission denied"))

	resp := f.do(t, http.MethodPost, "/v1/record/start", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body errorResponse
	decodeBody(t, resp, &body)
	if !strings.Contains(body.Error, "permission denied") {
		t.Fatalf("expected device reason, got %q", body.Error)
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())
	resp := f.do(t, http.MethodGet, "/v1/listen/start", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAPIDevicesWithoutDirectory(t *testing.T) {
	f := newAPIFixture(t, recognition.NewMockService())
	resp := f.do(t, http.MethodGet, "/v1/devices", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var got []json.RawMessage
	decodeBody(t, resp, &got)
	if len(got) != 0 {
		t.Fatalf("expected empty device list, got %d", len(got))
	}
}

func TestAPICapabilitiesFollowDirectory(t *testing.T) {
	client := bustest.Connect(t)
	dir, err := devices.NewDirectory(context.Background(), config.NodeConfig{
		ID:                "interpret-api",
		Role:              "interpreter",
		HeartbeatInterval: 50,
		HeartbeatTimeout:  500,
		Capabilities:      []config.NodeCapability{{Name: devices.CapabilityTranslation}},
	}, client, newLogger())
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	t.Cleanup(dir.Close)

	mux := http.NewServeMux()
	newAPI(nil, dir, newLogger()).register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	capabilities := func() map[string]bool {
		resp, err := http.Get(srv.URL + "/v1/capabilities")
		if err != nil {
			t.Fatalf("get capabilities: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]bool
		decodeBody(t, resp, &out)
		return out
	}

	got := capabilities()
	if !got[devices.CapabilityTranslation] || got[devices.CapabilityDictation] {
		t.Fatalf("unexpected capabilities before announce %v", got)
	}

	if err := client.PublishJSON(protocol.SubjectDeviceAnnounce, protocol.DeviceAnnounce{
		NodeID:       "mic-1",
		Role:         "edge",
		Capabilities: []protocol.DeviceCapability{{Name: devices.CapabilityDictation}},
	}); err != nil {
		t.Fatalf("publish announce: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !capabilities()[devices.CapabilityDictation] {
		if time.Now().After(deadline) {
			t.Fatal("dictation never reported available")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
