// Package devices tracks the edge devices that serve dictation, capture and
// playback over the bus.
package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/loqalabs/loqa-interpret/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	CapabilityDictation   = "dictation"
	CapabilityCapture     = "capture"
	CapabilityPlayback    = "playback"
	CapabilityTranslation = "translation"
)

type Capability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Device struct {
	ID           string       `json:"id"`
	Role         string       `json:"role"`
	Capabilities []Capability `json:"capabilities"`
	LastSeen     time.Time    `json:"last_seen"`
	Healthy      bool         `json:"healthy"`
}

// HasCapability reports whether the device advertises name.
func (d Device) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Directory keeps the set of devices seen on the bus. This runtime announces
// itself too, so other nodes can find the interpreter.
type Directory struct {
	cfg     config.NodeConfig
	log     *slog.Logger
	bus     *bus.Client
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	subs    []*nats.Subscription
	mu      sync.RWMutex
	devices map[string]*Device
}

func NewDirectory(ctx context.Context, cfg config.NodeConfig, busClient *bus.Client, log *slog.Logger) (*Directory, error) {
	ctx, cancel := context.WithCancel(ctx)
	d := &Directory{
		cfg:     cfg,
		log:     log.With(slog.String("component", "device-directory")),
		bus:     busClient,
		cancel:  cancel,
		devices: make(map[string]*Device),
	}

	if err := d.initMetrics(); err != nil {
		d.log.Warn("failed to initialize metrics", slogError(err))
	}
	if err := d.subscribe(); err != nil {
		cancel()
		return nil, err
	}

	d.wg.Add(2)
	go d.runHeartbeat(ctx)
	go d.monitorHealth(ctx)

	if err := d.announce(); err != nil {
		d.log.Warn("failed to announce node", slogError(err))
	}
	return d, nil
}

func (d *Directory) Close() {
	d.cancel()
	for _, sub := range d.subs {
		_ = sub.Drain()
	}
	d.wg.Wait()
}

// Healthy reports whether this runtime still sees its own heartbeat.
func (d *Directory) Healthy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.devices[d.cfg.ID]
	return ok && dev.Healthy
}

// List returns the known devices matching filter, ordered by ID. A nil filter
// matches every device.
func (d *Directory) List(filter func(Device) bool) []Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Device, 0, len(d.devices))
	for _, dev := range d.devices {
		c := *dev
		c.Capabilities = append([]Capability(nil), dev.Capabilities...)
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Available reports whether a healthy device offers capability.
func (d *Directory) Available(capability string) bool {
	return len(d.List(func(dev Device) bool { return dev.Healthy && dev.HasCapability(capability) })) > 0
}

// Capabilities lists every capability a device can advertise.
var Capabilities = []string{CapabilityDictation, CapabilityCapture, CapabilityPlayback, CapabilityTranslation}

func WithCapability(name string) func(Device) bool {
	return func(dev Device) bool { return dev.HasCapability(name) }
}

func (d *Directory) subscribe() error {
	conn := d.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectDeviceAnnounce, d.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	d.subs = append(d.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectDeviceHeartbeatPrefix+".*", d.handleHeartbeat)
	if err != nil {
		_ = announceSub.Unsubscribe()
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	d.subs = append(d.subs, heartbeatSub)
	return nil
}

func (d *Directory) runHeartbeat(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Duration(d.cfg.HeartbeatInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := d.bus.PublishJSON(protocol.SubjectDeviceHeartbeatPrefix+"."+d.cfg.ID, protocol.DeviceHeartbeat{
				NodeID:    d.cfg.ID,
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				d.log.Warn("failed to publish heartbeat", slogError(err))
			}
		}
	}
}

func (d *Directory) monitorHealth(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.evaluateHealth(now)
		}
	}
}

func (d *Directory) announce() error {
	msg := protocol.DeviceAnnounce{
		NodeID:    d.cfg.ID,
		Role:      d.cfg.Role,
		Timestamp: time.Now().UTC(),
	}
	for _, c := range d.cfg.Capabilities {
		msg.Capabilities = append(msg.Capabilities, protocol.DeviceCapability{Name: c.Name, Attributes: c.Attributes})
	}
	if err := d.bus.PublishJSON(protocol.SubjectDeviceAnnounce, msg); err != nil {
		return err
	}
	d.update(msg.NodeID, msg.Role, msg.Capabilities, msg.Timestamp)
	return nil
}

func (d *Directory) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.DeviceAnnounce
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		d.log.Warn("invalid announce message", slogError(err))
		return
	}
	if announcement.NodeID == "" {
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	d.update(announcement.NodeID, announcement.Role, announcement.Capabilities, announcement.Timestamp)
}

func (d *Directory) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.DeviceHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		d.log.Warn("invalid heartbeat message", slogError(err))
		return
	}
	if hb.NodeID == "" {
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	d.update(hb.NodeID, "", nil, hb.Timestamp)
}

func (d *Directory) update(nodeID, role string, capabilities []protocol.DeviceCapability, seen time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, ok := d.devices[nodeID]
	if !ok {
		dev = &Device{ID: nodeID}
		d.devices[nodeID] = dev
		d.log.Info("device joined", slog.String("device", nodeID), slog.String("role", role))
	}
	if role != "" {
		dev.Role = role
	}
	if len(capabilities) > 0 {
		dev.Capabilities = dev.Capabilities[:0]
		for _, c := range capabilities {
			dev.Capabilities = append(dev.Capabilities, Capability{Name: c.Name, Attributes: c.Attributes})
		}
	}
	dev.LastSeen = seen
	dev.Healthy = true
}

func (d *Directory) evaluateHealth(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	timeout := time.Duration(d.cfg.HeartbeatTimeout) * time.Millisecond
	for _, dev := range d.devices {
		if dev.Healthy && now.Sub(dev.LastSeen) > timeout {
			dev.Healthy = false
			d.log.Warn("device heartbeat lost", slog.String("device", dev.ID))
		}
	}
}

func (d *Directory) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-interpret/devices")
	known, err := meter.Int64ObservableGauge("loqa.devices.known", metric.WithDescription("Number of known edge devices"))
	if err != nil {
		return err
	}
	healthy, err := meter.Int64ObservableGauge("loqa.devices.healthy", metric.WithDescription("Number of edge devices with a recent heartbeat"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		total, up := d.counts()
		obs.ObserveInt64(known, total)
		obs.ObserveInt64(healthy, up)
		return nil
	}, known, healthy)
	return err
}

func (d *Directory) counts() (int64, int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var total, up int64
	for _, dev := range d.devices {
		total++
		if dev.Healthy {
			up++
		}
	}
	return total, up
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
