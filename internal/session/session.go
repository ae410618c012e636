// Package session holds one side's conversation and its Idle/Pending state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

var (
	// ErrBusy is returned when a send is attempted while another one is pending.
	ErrBusy = errors.New("a request is already pending for this side")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message must not be empty")
)

// Sender performs one vendor call. *provider.Registry satisfies it.
type Sender interface {
	Send(ctx context.Context, id models.ProviderID, req provider.Request) (models.Message, error)
}

// Turn is the per-send configuration resolved by the caller.
type Turn struct {
	Provider     models.ProviderID
	Model        string
	SystemPrompt string
	Credential   string
	Text         string
}

// Result describes how a send finished.
type Result struct {
	// Reply is the assistant message appended to history: the answer or the error text.
	Reply   models.Message
	Err     error
	Latency time.Duration
	// Discarded is set when the session was cleared while the call was in flight.
	Discarded bool
}

// State is a point-in-time copy of a session.
type State struct {
	History   []models.Message `json:"history"`
	Pending   bool             `json:"pending"`
	LastError string           `json:"lastError,omitempty"`
}

// Session owns one ordered, append-only history.
type Session struct {
	sender Sender

	mu         sync.Mutex
	history    []models.Message
	pending    bool
	lastError  string
	generation uint64
}

// New creates an empty idle session.
func New(sender Sender) *Session {
	return &Session{sender: sender}
}

// Send appends the user turn, calls the provider and appends the reply or an error message.
// It returns ErrBusy without touching history when a send is already pending. Vendor
// failures are reported in Result, never as the returned error.
func (s *Session) Send(ctx context.Context, turn Turn) (Result, error) {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}

	history, gen, err := s.begin(turn.Text)
	if err != nil {
		return Result{}, err
	}
	defer s.finish(gen)

	started := time.Now()
	reply, sendErr := s.sender.Send(ctx, turn.Provider, provider.Request{
		History:      history,
		Prompt:       turn.Text,
		SystemPrompt: turn.SystemPrompt,
		Model:        turn.Model,
		Credential:   turn.Credential,
	})
	result := Result{Err: sendErr, Latency: time.Since(started)}

	if sendErr != nil {
		result.Reply = models.AssistantMessage(ErrorText(sendErr))
	} else {
		reply.Role = models.RoleAssistant
		result.Reply = reply
	}

	result.Discarded = !s.complete(gen, result)
	return result, nil
}

// ErrorText renders a failed turn the way it appears in the transcript.
func ErrorText(err error) string {
	return fmt.Sprintf("Error: %s. Please check your API Key and settings.", err.Error())
}

func (s *Session) begin(text string) ([]models.Message, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return nil, 0, ErrBusy
	}
	prior := cloneHistory(s.history)
	s.history = append(s.history, models.UserMessage(text))
	s.pending = true
	return prior, s.generation, nil
}

// complete appends the reply unless the session was cleared since gen started.
func (s *Session) complete(gen uint64, result Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return false
	}
	s.history = append(s.history, result.Reply)
	if result.Err != nil {
		s.lastError = result.Err.Error()
	} else {
		s.lastError = ""
	}
	return true
}

func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation == gen {
		s.pending = false
	}
}

// Clear empties history and the last error and returns the session to idle.
// A send still in flight is discarded when it completes.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.lastError = ""
	s.pending = false
	s.generation++
}

// Pending reports whether a send is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// History returns a copy of the transcript.
func (s *Session) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneHistory(s.history)
}

// Snapshot returns a consistent copy of the whole session.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := cloneHistory(s.history)
	if history == nil {
		history = []models.Message{}
	}
	return State{
		History:   history,
		Pending:   s.pending,
		LastError: s.lastError,
	}
}

func cloneHistory(in []models.Message) []models.Message {
	if in == nil {
		return nil
	}
	out := make([]models.Message, len(in))
	copy(out, in)
	return out
}
