package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConversation is returned for ids that were never opened or were already closed.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrConversationClosed is returned when a conversation ends while work for it is in flight.
	ErrConversationClosed = errors.New("conversation closed")
)

// ValidationError reports missing or malformed command parameters. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps an LLM or persistence collaborator failure. Retryable by the caller.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StateError reports an operation against an unknown or torn-down conversation.
type StateError struct {
	ConversationID string
	Err            error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("conversation %q: %v", e.ConversationID, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

func NewProviderError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
