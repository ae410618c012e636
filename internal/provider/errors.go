package provider

import (
	"fmt"

	"prompt-comparator/internal/models"
)

// ProviderError reports a failed vendor call. Message is the vendor's own
// error text when one was returned.
type ProviderError struct {
	Provider models.ProviderID
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s Error %d", e.Provider.DisplayName(), e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Provider.DisplayName(), e.Err)
	}
	return fmt.Sprintf("%s request failed", e.Provider.DisplayName())
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewStatusError builds a ProviderError for a non-success HTTP status.
// An empty vendor message falls back to "<Provider> Error <status>".
func NewStatusError(id models.ProviderID, status int, vendorMessage string) *ProviderError {
	return &ProviderError{Provider: id, Status: status, Message: vendorMessage}
}

// NewTransportError wraps a failure that happened before any status was received.
func NewTransportError(id models.ProviderID, err error) *ProviderError {
	return &ProviderError{Provider: id, Err: err}
}

// MissingCredential returns the error adapters raise before any I/O when no credential is set.
func MissingCredential(id models.ProviderID) error {
	return fmt.Errorf("%s: %w", id.DisplayName(), ErrCredentialMissing)
}
