package natsserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps a NATS server instance for zero-dependency deployment.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start creates and starts an embedded core NATS server without JetStream.
// A port of -1 picks a random port. It returns nil when the bus is external.
func Start(cfg config.BusConfig, log *slog.Logger) (*EmbeddedServer, error) {
	if !cfg.Embedded {
		return nil, nil
	}

	opts := &server.Options{
		Host:   "0.0.0.0",
		Port:   cfg.Port,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}

	log.Info("embedded NATS server started",
		slog.String("url", ns.ClientURL()))

	return &EmbeddedServer{
		ns:  ns,
		log: log,
	}, nil
}

// ClientURL returns the URL clients should dial.
func (e *EmbeddedServer) ClientURL() string {
	if e == nil || e.ns == nil {
		return ""
	}
	return e.ns.ClientURL()
}

// Shutdown gracefully shuts down the embedded NATS server.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
