package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with JSON helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("loqa-interpret"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{
		conn: conn,
		log:  log,
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	return c.conn.Publish(subject, data)
}

// RequestJSON sends req on subject and decodes the reply into resp.
func (c *Client) RequestJSON(ctx context.Context, subject string, req, resp any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) Logger() *slog.Logger {
	return c.log
}
