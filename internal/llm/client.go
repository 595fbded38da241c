// Package llm provides completion backend client implementations.
package llm

import "context"

// Client is the interface that all completion backends must implement.
// A backend receives an ordered sequence of role-tagged turns and returns
// the generated text.
type Client interface {
	// Chat sends the message sequence and returns the generated text.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

// Message represents a single role-tagged turn for the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// BackendError wraps a completion backend failure (unreachable host,
// timeout, non-2xx response). Callers use errors.As to distinguish a
// dead backend from recoverable in-loop conditions.
type BackendError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return e.Provider + " backend: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}
