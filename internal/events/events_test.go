package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-comparator/internal/models"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
	drained bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNewTurnEvent(t *testing.T) {
	cfg := models.SideConfig{Provider: models.ProviderGoogle, Model: "gemini-2.5-pro", SystemPrompt: "secret prompt"}

	ok := NewTurnEvent(models.SideA, cfg, 1500*time.Millisecond, nil)
	_, err := ulid.Parse(ok.ID)
	require.NoError(t, err)
	assert.True(t, ok.OK)
	assert.EqualValues(t, 1500, ok.LatencyMs)
	assert.Empty(t, ok.Error)

	failed := NewTurnEvent(models.SideB, cfg, time.Second, errors.New("quota exceeded"))
	assert.False(t, failed.OK)
	assert.Equal(t, "quota exceeded", failed.Error)
	assert.NotEqual(t, ok.ID, failed.ID)
}

func TestNATSPublisherEncodesWithoutContent(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{conn: conn, subject: "comparator.turns"}

	ev := NewTurnEvent(models.SideA, models.SideConfig{Provider: models.ProviderOpenAI, Model: "gpt-4o", SystemPrompt: "secret prompt"}, time.Second, nil)
	p.Publish(context.Background(), ev)

	assert.Equal(t, "comparator.turns", conn.subject)
	assert.NotContains(t, string(conn.data), "secret prompt")

	var decoded TurnEvent
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, models.ProviderOpenAI, decoded.Provider)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisherSwallowsErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := &NATSPublisher{conn: conn, subject: "s"}

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), TurnEvent{ID: "x"})
	})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Publish(context.Background(), TurnEvent{ID: "1"})
	r.Publish(context.Background(), TurnEvent{ID: "2"})

	got := r.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[1].ID)
}
