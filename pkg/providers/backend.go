package providers

import (
	"context"
	"fmt"
)

// ChatRequest carries one backend invocation: the full message list for the
// turn, the tool catalog, and whether the caller wants incremental text
// deltas.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
	Stream   bool
}

// EmitFunc receives response fragments as the backend produces them.
// Returning an error aborts the backend call.
type EmitFunc func(Fragment) error

// Backend is a single LLM provider/model endpoint.
type Backend interface {
	// Name identifies the backend in logs, e.g. "anthropic/claude-sonnet-4".
	Name() string

	// Chat sends the request and forwards response fragments to emit in
	// production order. A non-nil return means the attempt failed; fragments
	// already emitted stand as delivered.
	Chat(ctx context.Context, req ChatRequest, emit EmitFunc) error
}

// AuthError marks a backend failure caused by rejected credentials. The
// pool logs it at elevated severity as a user-actionable signal but falls
// back the same way as for any other error.
type AuthError struct {
	Backend string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Backend, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
