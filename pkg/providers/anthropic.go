package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend drives one Claude model through the Messages API.
type AnthropicBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// AnthropicConfig holds backend construction parameters.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// NewAnthropicBackend creates a backend for the configured Claude model.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicBackend{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Name returns the provider/model identifier.
func (b *AnthropicBackend) Name() string {
	return "anthropic/" + b.model
}

// Chat sends the conversation to the Messages API and emits the response as
// fragments. The Anthropic path is request/response: the full text arrives
// in one TextChunk (or inside the ToolCallBatch when tools were invoked).
func (b *AnthropicBackend) Chat(ctx context.Context, req ChatRequest, emit EmitFunc) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		Messages:  b.buildMessages(req.Messages),
		MaxTokens: b.maxTokens,
	}

	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = b.buildTools(req.Tools)
	}

	response, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return b.classify(err)
	}

	text := ""
	reasoning := ""
	var calls []ToolCall

	for _, block := range response.Content {
		switch blk := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += blk.Text
		case anthropic.ThinkingBlock:
			reasoning += blk.Thinking
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal([]byte(blk.JSON.Input.Raw()), &args); err != nil {
				return fmt.Errorf("failed to parse tool input for %s: %w", blk.Name, err)
			}
			calls = append(calls, ToolCall{ID: blk.ID, Name: blk.Name, Arguments: args})
		}
	}

	if len(calls) > 0 {
		return emit(ToolCallBatch{Text: text, Reasoning: reasoning, Calls: calls})
	}
	return emit(TextChunk{Text: text})
}

// classify maps credential rejections onto the typed AuthError variant.
func (b *AnthropicBackend) classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 401 || apierr.StatusCode == 403 {
			return &AuthError{Backend: b.Name(), Err: err}
		}
	}
	return err
}

// buildMessages converts the neutral message list to Anthropic blocks.
// System messages are stripped here and carried in the request's System
// field instead.
func (b *AnthropicBackend) buildMessages(messages []Message) []anthropic.MessageParam {
	out := []anthropic.MessageParam{}

	for _, msg := range messages {
		switch {
		case msg.Role == "system":
			continue

		case msg.Role == "tool":
			// Failed executions carry the ERROR prefix; surface them
			// through the API's is_error flag as well.
			isError := strings.HasPrefix(msg.Content, "ERROR: ")
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError),
			))

		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		case msg.Role == "assistant":
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})

		default:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return out
}

// buildTools converts the tool catalog to Anthropic tool parameters.
func (b *AnthropicBackend) buildTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		param := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
		}
		if props, ok := def.Parameters["properties"]; ok {
			param.InputSchema.Properties = props
		}
		if required, ok := def.Parameters["required"].([]string); ok {
			param.InputSchema.Required = required
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &param})
	}

	return tools
}

// systemPrompt returns the content of the first system message, if any.
func systemPrompt(messages []Message) string {
	for _, msg := range messages {
		if msg.Role == "system" {
			return msg.Content
		}
	}
	return ""
}
