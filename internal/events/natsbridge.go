package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBridge republishes bus events on NATS so other processes can follow
// task progress. Each event goes to <subject>.<event type>.
type NATSBridge struct {
	conn        *nats.Conn
	subject     string
	unsubscribe func()
}

// NewNATSBridge connects to url and forwards every bus event.
func NewNATSBridge(bus *Bus, url, subject string) (*NATSBridge, error) {
	nc, err := nats.Connect(url, nats.Name("studio"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := &NATSBridge{conn: nc, subject: subject}
	b.unsubscribe = bus.Subscribe(b.forward)
	slog.Info("nats bridge connected", "url", url, "subject", subject)
	return b, nil
}

// Subject returns the NATS subject an event type is published on.
func (b *NATSBridge) Subject(t EventType) string {
	return b.subject + "." + string(t)
}

func (b *NATSBridge) forward(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("nats bridge: marshal event", "error", err, "type", e.Type)
		return
	}
	if err := b.conn.Publish(b.Subject(e.Type), data); err != nil {
		slog.Warn("nats bridge: publish", "error", err, "type", e.Type)
	}
}

// Close unsubscribes from the bus and drains the connection.
func (b *NATSBridge) Close() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	return b.conn.Drain()
}
