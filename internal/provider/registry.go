package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"prompt-comparator/internal/models"
)

// ErrUnknownProvider indicates the provider identifier is not one of the supported vendors.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrUnknownModel indicates the requested model is not part of the provider's catalog.
var ErrUnknownModel = errors.New("unknown model")

// ErrCredentialMissing indicates a send or listing was attempted without a credential.
var ErrCredentialMissing = errors.New("API key is missing")

// Request carries everything an adapter needs for one turn.
type Request struct {
	// History holds the prior turns, excluding Prompt.
	History      []models.Message
	Prompt       string
	SystemPrompt string
	Model        string
	Credential   string
}

// Adapter translates the unified schema to one vendor's wire protocol.
type Adapter interface {
	ID() models.ProviderID
	// Send performs exactly one vendor call and returns an assistant message.
	Send(ctx context.Context, req Request) (models.Message, error)
	// ListModels returns the vendor's chat models, already filtered and normalized.
	ListModels(ctx context.Context, credential string) ([]models.ModelDescriptor, error)
}

// Registry maps provider identifiers to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ProviderID]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.ProviderID]Adapter),
	}
}

// Register adds an adapter. Each provider may be registered once.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}
	if !a.ID().Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, a.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.ID()]; exists {
		return fmt.Errorf("provider %q already registered", a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

// Lookup returns the adapter registered for id.
func (r *Registry) Lookup(id models.ProviderID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return a, nil
}

// Send dispatches req to the adapter registered for id.
func (r *Registry) Send(ctx context.Context, id models.ProviderID, req Request) (models.Message, error) {
	a, err := r.Lookup(id)
	if err != nil {
		return models.Message{}, err
	}
	return a.Send(ctx, req)
}
