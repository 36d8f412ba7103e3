// Package subagent delegates self-contained tasks to isolated background
// agent loops. The model spawns a job, keeps talking, and collects the
// outcome later through a second tool call.
package subagent

import (
	"github.com/Athemis/squidbot/pkg/providers"
)

// Profile is a named sub-agent configuration.
type Profile struct {
	Name         string
	SystemPrompt string
	// Tools restricts the worker to a subset of the parent's tools by
	// name. Empty means every non-delegating parent tool.
	Tools []string
	// Pool, when set, overrides the default backend pool for workers
	// built from this profile.
	Pool *providers.Pool
}

// Outcome is the settled result of one background job.
type Outcome struct {
	Result string
	Err    error
}
