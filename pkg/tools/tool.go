// Package tools defines the tool contract and the registry that validates
// and dispatches model-issued tool calls.
package tools

import (
	"context"
)

// Tool is a capability the model can invoke by name. Schema returns a JSON
// Schema (draft-07 style map) describing the expected arguments; the
// registry validates calls against it before Execute runs.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Delegator marks tools that spawn or collect delegated work. Tool sets
// handed to delegated workers must exclude any tool reporting true, which
// keeps delegation depth at one.
type Delegator interface {
	Delegates() bool
}

// Result is the outcome of one tool call, keyed back to the call that
// produced it. Failures travel as IsError results, never as panics or
// dispatch errors, so the model always sees something to react to.
type Result struct {
	ToolCallID string
	Content    string
	IsError    bool
}
