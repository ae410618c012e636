// Package events publishes per-turn telemetry. Message content is never included.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"prompt-comparator/internal/models"
)

// TurnEvent describes one completed side turn.
type TurnEvent struct {
	ID        string            `json:"id"`
	Side      models.Side       `json:"side"`
	Provider  models.ProviderID `json:"provider"`
	Model     string            `json:"model"`
	LatencyMs int64             `json:"latencyMs"`
	OK        bool              `json:"ok"`
	Error     string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
}

// NewTurnEvent stamps an event with a fresh ULID and the current time.
func NewTurnEvent(side models.Side, cfg models.SideConfig, latency time.Duration, err error) TurnEvent {
	ev := TurnEvent{
		ID:        ulid.Make().String(),
		Side:      side,
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		LatencyMs: latency.Milliseconds(),
		OK:        err == nil,
		At:        time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Publisher emits turn events. Publish failures are logged by the implementation.
type Publisher interface {
	Publish(ctx context.Context, ev TurnEvent)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, TurnEvent) {}
func (Nop) Close() error                       { return nil }

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher sends events as JSON on one subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// ConnectNATS dials url and returns a publisher for subject.
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("prompt-comparator"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev TurnEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("encode turn event")
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		log.Warn().Err(err).Str("subject", p.subject).Str("event_id", ev.ID).Msg("publish turn event")
	}
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []TurnEvent
}

func (r *Recorder) Publish(_ context.Context, ev TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []TurnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TurnEvent, len(r.events))
	copy(out, r.events)
	return out
}
