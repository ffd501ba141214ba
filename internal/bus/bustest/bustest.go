// Package bustest starts an embedded NATS server and connected client for
// package tests.
package bustest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/loqalabs/loqa-interpret/internal/natsserver"
)

func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Connect returns a client attached to a fresh embedded server. Both are torn
// down when the test ends.
func Connect(t *testing.T) *bus.Client {
	t.Helper()
	log := Logger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
