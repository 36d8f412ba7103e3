package subagent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Athemis/squidbot/pkg/agent"
)

// collectSink buffers the worker's final reply. Workers never stream: their
// output is invisible until collected.
type collectSink struct {
	text string
}

func (s *collectSink) Streaming() bool { return false }

func (s *collectSink) Deliver(_ context.Context, text string, d agent.Delivery) error {
	if d.Final {
		s.text = text
	}
	return nil
}

// SpawnTool starts a background worker and returns its job id without
// waiting for completion.
type SpawnTool struct {
	Factory *Factory
	Jobs    *JobStore
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Delegate a self-contained task to a background worker. Returns a job id " +
		"immediately; use the collect tool to retrieve the result later."
}

// Delegates marks spawn as a delegating tool, which bars it from worker
// tool sets.
func (t *SpawnTool) Delegates() bool { return true }

func (t *SpawnTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Complete, self-contained description of the task",
			},
			"profile": map[string]any{
				"type":        "string",
				"description": "Optional worker profile name",
			},
			"tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional tool allow-list for the worker",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(_ context.Context, args map[string]any) (string, error) {
	task, _ := args["task"].(string)
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task description is required")
	}

	profile, _ := args["profile"].(string)
	if profile != "" && !t.Factory.HasProfile(profile) {
		return "", fmt.Errorf("unknown profile: %s", profile)
	}

	var allowed []string
	if raw, ok := args["tools"].([]any); ok {
		for _, v := range raw {
			if name, ok := v.(string); ok {
				allowed = append(allowed, name)
			}
		}
	}

	loop, err := t.Factory.Build(profile, allowed)
	if err != nil {
		return "", err
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}

	t.Jobs.Start(id, func(ctx context.Context) (string, error) {
		sink := &collectSink{}
		reply, err := loop.Run(ctx, agent.Inbound{Channel: "subagent", Content: task}, agent.Options{Sink: sink})
		if err != nil {
			return "", err
		}
		return reply, nil
	})

	return "started job " + id, nil
}

// CollectTool waits for background jobs and reports their outcomes.
type CollectTool struct {
	Jobs *JobStore
}

func (t *CollectTool) Name() string { return "collect" }

func (t *CollectTool) Description() string {
	return "Wait for background jobs and return their results. Pass a comma-separated " +
		"list of job ids, or \"*\" for all running jobs."
}

// Delegates marks collect as a delegating tool, which bars it from worker
// tool sets.
func (t *CollectTool) Delegates() bool { return true }

func (t *CollectTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ids": map[string]any{
				"type":        "string",
				"description": "Comma-separated job ids, or \"*\" for all jobs",
			},
		},
		"required": []string{"ids"},
	}
}

// Execute always returns a success-shaped report: failed jobs show up as
// ERROR lines, missing ids as NOT FOUND lines.
func (t *CollectTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	raw, _ := args["ids"].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("ids is required")
	}

	if raw == "*" {
		outcomes, err := t.Jobs.AwaitAll(ctx)
		if err != nil {
			return "", err
		}
		if len(outcomes) == 0 {
			return "No jobs found.", nil
		}
		return formatReport(sortedIDs(outcomes), outcomes), nil
	}

	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	outcomes, err := t.Jobs.Await(ctx, ids)
	if err != nil {
		return "", err
	}
	return formatReport(ids, outcomes), nil
}

func sortedIDs(outcomes map[string]Outcome) []string {
	ids := make([]string, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func formatReport(ids []string, outcomes map[string]Outcome) string {
	var sb strings.Builder
	for _, id := range ids {
		outcome, ok := outcomes[id]
		switch {
		case !ok:
			fmt.Fprintf(&sb, "[NOT FOUND] %s\n", id)
		case outcome.Err != nil:
			fmt.Fprintf(&sb, "[ERROR] %s: %v\n", id, outcome.Err)
		default:
			fmt.Fprintf(&sb, "[OK] %s:\n%s\n", id, outcome.Result)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
