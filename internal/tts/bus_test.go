package tts_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/bus/bustest"
	"github.com/loqalabs/loqa-interpret/internal/protocol"
	"github.com/loqalabs/loqa-interpret/internal/tts"
	"github.com/nats-io/nats.go"
)

func TestBusSynthFollowsStatus(t *testing.T) {
	client := bustest.Connect(t)
	conn := client.Conn()

	requests := make(chan protocol.TTSRequest, 1)
	sub, err := conn.Subscribe(protocol.SubjectTTSRequest, func(msg *nats.Msg) {
		var req protocol.TTSRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		requests <- req
		subject := protocol.SubjectTTSStatusPrefix + "." + req.SessionID
		for _, st := range []protocol.TTSStatus{
			{SessionID: req.SessionID, Started: true},
			{SessionID: req.SessionID, Completed: true},
		} {
			data, _ := json.Marshal(st)
			_ = conn.Publish(subject, data)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	synth := tts.NewBusSynth(client, "speaker-1", bustest.Logger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, errs := synth.Speak(ctx, tts.Utterance{ID: "utt-1", Text: "hola", Locale: "es-ES", Rate: 1, Pitch: 1})
	var kinds []tts.EventKind
	for evt := range events {
		kinds = append(kinds, evt.Kind)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != tts.EventStarted || kinds[1] != tts.EventEnded {
		t.Fatalf("unexpected events %v", kinds)
	}

	req := <-requests
	if req.Text != "hola" || req.Voice != "es-ES" || req.Target != "speaker-1" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestBusSynthTimesOutWithoutPlayer(t *testing.T) {
	client := bustest.Connect(t)
	synth := tts.NewBusSynth(client, "", bustest.Logger())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	events, errs := synth.Speak(ctx, tts.Utterance{ID: "utt-2", Text: "hola"})
	for range events {
	}
	if err := <-errs; err == nil {
		t.Fatal("expected timeout error")
	}
}
