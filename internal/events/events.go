// Package events announces presence transitions to external subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vovakirdan/awayrelay/internal/store"
)

const presenceSubjectPrefix = "presence."

// PresenceEvent is the payload published on presence.<username>.
type PresenceEvent struct {
	Username  string               `json:"username"`
	Status    store.PresenceStatus `json:"status"`
	Timestamp int64                `json:"ts"`
}

// Publisher receives presence transitions after they are written to the presence store.
type Publisher interface {
	PresenceChanged(ctx context.Context, username string, status store.PresenceStatus) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) PresenceChanged(context.Context, string, store.PresenceStatus) error { return nil }
func (Nop) Close()                                                          {}

// NATSPublisher publishes presence events on NATS core subjects.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATS connects to url; reconnects are retried forever.
func NewNATS(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("awayrelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// PresenceChanged publishes the transition. Publishing is fire-and-forget.
func (p *NATSPublisher) PresenceChanged(_ context.Context, username string, status store.PresenceStatus) error {
	subject, data, err := encodePresence(username, status, time.Now())
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() {
	_ = p.nc.Drain()
}

func encodePresence(username string, status store.PresenceStatus, at time.Time) (string, []byte, error) {
	data, err := json.Marshal(PresenceEvent{
		Username:  username,
		Status:    status,
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal presence event: %w", err)
	}
	return presenceSubjectPrefix + username, data, nil
}
