package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/loqalabs/loqa-interpret/internal/coordinator"
	"github.com/loqalabs/loqa-interpret/internal/devices"
	"github.com/loqalabs/loqa-interpret/internal/languages"
	"github.com/loqalabs/loqa-interpret/internal/recognition"
	"github.com/loqalabs/loqa-interpret/internal/recorder"
	"github.com/loqalabs/loqa-interpret/internal/translation"
)

const maxRequestBody = 64 << 10

type api struct {
	coordinator *coordinator.Coordinator
	directory   *devices.Directory
	logger      *slog.Logger
}

type languageRequest struct {
	Language string `json:"language"`
}

type autoTranslateRequest struct {
	Enabled *bool `json:"enabled"`
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

type clipResponse struct {
	recorder.Clip
	Data []byte `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newAPI(c *coordinator.Coordinator, directory *devices.Directory, logger *slog.Logger) *api {
	return &api{coordinator: c, directory: directory, logger: logger.With(slog.String("component", "api"))}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/state", a.handleState)
	mux.HandleFunc("GET /v1/languages", a.handleLanguages)
	mux.HandleFunc("GET /v1/devices", a.handleDevices)
	mux.HandleFunc("GET /v1/capabilities", a.handleCapabilities)
	mux.HandleFunc("POST /v1/listen/start", a.handleListenStart)
	mux.HandleFunc("POST /v1/listen/stop", a.handleListenStop)
	mux.HandleFunc("POST /v1/listen/reset", a.handleListenReset)
	mux.HandleFunc("POST /v1/record/start", a.handleRecordStart)
	mux.HandleFunc("POST /v1/record/stop", a.handleRecordStop)
	mux.HandleFunc("PUT /v1/languages/source", a.handleSourceLanguage)
	mux.HandleFunc("PUT /v1/languages/target", a.handleTargetLanguage)
	mux.HandleFunc("PUT /v1/auto-translate", a.handleAutoTranslate)
	mux.HandleFunc("POST /v1/translate", a.handleTranslate)
}

func (a *api) handleState(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, languages.All())
}

func (a *api) handleDevices(w http.ResponseWriter, r *http.Request) {
	if a.directory == nil {
		a.writeJSON(w, http.StatusOK, []devices.Device{})
		return
	}
	var filter func(devices.Device) bool
	if name := r.URL.Query().Get("capability"); name != "" {
		filter = devices.WithCapability(name)
	}
	a.writeJSON(w, http.StatusOK, a.directory.List(filter))
}

// handleCapabilities reports, per capability, whether a healthy edge device
// currently offers it.
func (a *api) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]bool, len(devices.Capabilities))
	for _, name := range devices.Capabilities {
		out[name] = a.directory != nil && a.directory.Available(name)
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *api) handleListenStart(w http.ResponseWriter, r *http.Request) {
	if err := a.coordinator.StartListening(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleListenStop(w http.ResponseWriter, _ *http.Request) {
	a.coordinator.StopListening()
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleListenReset(w http.ResponseWriter, _ *http.Request) {
	a.coordinator.ResetTranscript()
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if err := a.coordinator.StartRecording(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	clip, err := a.coordinator.StopRecording(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if clip == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Header.Get("Accept") == recorder.ClipMIMEType {
		w.Header().Set("Content-Type", clip.MIMEType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(clip.Data)
		return
	}
	a.writeJSON(w, http.StatusOK, clipResponse{Clip: *clip, Data: clip.Data})
}

func (a *api) handleSourceLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.coordinator.SetSourceLanguage(req.Language); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleTargetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.coordinator.SetTargetLanguage(req.Language); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleAutoTranslate(w http.ResponseWriter, r *http.Request) {
	var req autoTranslateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "enabled is required"})
		return
	}
	a.coordinator.SetAutoTranslate(*req.Enabled)
	a.writeJSON(w, http.StatusOK, a.coordinator.Snapshot())
}

func (a *api) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !a.decode(w, r, &req) {
		return
	}
	out, err := a.coordinator.TranslateInput(r.Context(), req.Text)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, translateResponse{TranslatedText: out})
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coordinator.ErrUnsupportedLanguage):
		status = http.StatusBadRequest
	case errors.Is(err, recognition.ErrUnsupportedCapability):
		status = http.StatusNotImplemented
	case errors.Is(err, recorder.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, translation.ErrTranslationRequestFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", slogError(err))
	}
	a.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", slogError(err))
	}
}
