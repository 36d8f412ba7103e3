package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Athemis/squidbot/pkg/providers"
)

// ErrDuplicateTool is returned when registering a name twice.
var ErrDuplicateTool = fmt.Errorf("tool already registered")

// Registry holds the tool catalog in registration order and dispatches
// calls. Registration happens during startup wiring; dispatch is read-only,
// so no locking is needed.
type Registry struct {
	logger  zerolog.Logger
	order   []string
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:  logger.With().Str("component", "tools").Logger(),
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool to the catalog. The tool's schema is compiled once
// here; an invalid schema or a duplicate name fails registration.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Schema()))
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", name, err)
	}

	r.order = append(r.order, name)
	r.tools[name] = tool
	r.schemas[name] = schema
	r.logger.Debug().Str("tool", name).Msg("Tool registered")
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns the catalog in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns the catalog as backend tool definitions, in
// registration order.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Clone returns a new registry with the same tools. Compiled schemas are
// shared; registrations on the clone do not affect the original.
func (r *Registry) Clone() *Registry {
	clone := NewRegistry(r.logger)
	for _, name := range r.order {
		clone.order = append(clone.order, name)
		clone.tools[name] = r.tools[name]
		clone.schemas[name] = r.schemas[name]
	}
	return clone
}

// Execute runs one tool call and returns its result. Unknown tools,
// schema violations, execution failures, and panics all come back as
// IsError results; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, call providers.ToolCall) Result {
	tool, ok := r.tools[call.Name]
	if !ok {
		return Result{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("unknown tool: %s", call.Name),
			IsError:    true,
		}
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if verdict, err := r.schemas[call.Name].Validate(gojsonschema.NewGoLoader(args)); err != nil {
		return Result{ToolCallID: call.ID, Content: fmt.Sprintf("argument validation failed: %v", err), IsError: true}
	} else if !verdict.Valid() {
		return Result{ToolCallID: call.ID, Content: formatSchemaErrors(call.Name, verdict), IsError: true}
	}

	return r.run(ctx, tool, call, args)
}

// ExecuteAll runs a batch of calls sequentially, in order.
func (r *Registry) ExecuteAll(ctx context.Context, calls []providers.ToolCall) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.Execute(ctx, call))
	}
	return results
}

func (r *Registry) run(ctx context.Context, tool Tool, call providers.ToolCall, args map[string]any) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("tool", call.Name).Any("panic", rec).Msg("Tool panicked")
			res = Result{ToolCallID: call.ID, Content: fmt.Sprintf("tool %s panicked: %v", call.Name, rec), IsError: true}
		}
	}()

	content, err := tool.Execute(ctx, args)
	if err != nil {
		r.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool failed")
		return Result{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	r.logger.Debug().Str("tool", call.Name).Msg("Tool executed")
	return Result{ToolCallID: call.ID, Content: content}
}

func formatSchemaErrors(name string, verdict *gojsonschema.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid arguments for %s:", name)
	for _, desc := range verdict.Errors() {
		fmt.Fprintf(&sb, "\n- %s", desc.String())
	}
	return sb.String()
}
