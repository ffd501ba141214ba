package protocol

import "time"

// AudioFrame represents audio data streamed from edge capture devices.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// AudioControl asks a capture device to start or stop streaming frames.
type AudioControl struct {
	DeviceID    string    `json:"device_id"`
	SessionID   string    `json:"session_id"`
	Action      string    `json:"action"`
	TimesliceMS int       `json:"timeslice_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ControlReply is the device or service answer to a start request.
type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RecordedClip is published once per finished recording session.
type RecordedClip struct {
	ClipID    string    `json:"clip_id"`
	DeviceID  string    `json:"device_id"`
	MIMEType  string    `json:"mime_type"`
	Chunks    int       `json:"chunks"`
	Data      []byte    `json:"data"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
}

// DictationControl opens or closes a continuous dictation session.
type DictationControl struct {
	SessionID      string    `json:"session_id"`
	Action         string    `json:"action"`
	Language       string    `json:"language,omitempty"`
	Continuous     bool      `json:"continuous"`
	InterimResults bool      `json:"interim_results"`
	Timestamp      time.Time `json:"timestamp"`
}

// DictationSegment is one recognized fragment.
type DictationSegment struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

// DictationResult carries the cumulative result list of a session; only
// entries from ResultIndex onward changed in this event.
type DictationResult struct {
	SessionID   string             `json:"session_id"`
	ResultIndex int                `json:"result_index"`
	Results     []DictationSegment `json:"results"`
}

// DictationError reports a dictation service failure.
type DictationError struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Transcript represents the live transcript broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// TranslationResult is published whenever a translation is applied.
type TranslationResult struct {
	Sequence       uint64    `json:"sequence"`
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	Manual         bool      `json:"manual"`
	Timestamp      time.Time `json:"timestamp"`
}

// TTSRequest asks a playback device to speak text.
type TTSRequest struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
	Target    string  `json:"target"`
	TraceID   string  `json:"trace_id,omitempty"`
}

// TTSStatus reports playback lifecycle for a TTSRequest.
type TTSStatus struct {
	SessionID string    `json:"session_id"`
	Target    string    `json:"target"`
	Started   bool      `json:"started"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceCapability is one feature an edge device offers.
type DeviceCapability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DeviceAnnounce is published by a node when it joins the bus.
type DeviceAnnounce struct {
	NodeID       string             `json:"node_id"`
	Role         string             `json:"role"`
	Capabilities []DeviceCapability `json:"capabilities"`
	Timestamp    time.Time          `json:"timestamp"`
}

// DeviceHeartbeat keeps a node marked healthy in the device directory.
type DeviceHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix      = "audio.frame"
	SubjectAudioControl          = "audio.control"
	SubjectRecorderClip          = "recorder.clip"
	SubjectDictationControl      = "dictation.control"
	SubjectDictationResultPrefix = "dictation.result"
	SubjectDictationErrorPrefix  = "dictation.error"
	SubjectTranscriptPartial     = "stt.text.partial"
	SubjectTranscriptFinal       = "stt.text.final"
	SubjectTranslation           = "interpret.translation"
	SubjectState                 = "interpret.state"
	SubjectTTSRequest            = "tts.request"
	SubjectTTSStatusPrefix       = "tts.status"
	SubjectDeviceAnnounce        = "ctrl.device.announce"
	SubjectDeviceHeartbeatPrefix = "ctrl.device.heartbeat"
)

const (
	ActionStart = "start"
	ActionStop  = "stop"
)
