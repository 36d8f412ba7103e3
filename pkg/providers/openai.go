package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIBackend drives one model through the Chat Completions API. Any
// OpenAI-compatible endpoint (OpenRouter, local inference servers) works by
// setting BaseURL.
type OpenAIBackend struct {
	client    openai.Client
	provider  string
	model     string
	maxTokens int64
}

// OpenAIConfig holds backend construction parameters.
type OpenAIConfig struct {
	// Provider is the label used in the backend name, "openai" by default.
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// NewOpenAIBackend creates a backend for the configured model.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
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

	return &OpenAIBackend{
		client:    openai.NewClient(opts...),
		provider:  cfg.Provider,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Name returns the provider/model identifier.
func (b *OpenAIBackend) Name() string {
	return b.provider + "/" + b.model
}

// Chat sends the conversation and emits response fragments. With
// req.Stream set, text deltas are forwarded as they arrive; tool calls are
// always emitted as one complete batch at the end of the response.
func (b *OpenAIBackend) Chat(ctx context.Context, req ChatRequest, emit EmitFunc) error {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(b.model),
		Messages:            b.buildMessages(req.Messages),
		MaxCompletionTokens: openai.Int(b.maxTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = b.buildTools(req.Tools)
	}

	if req.Stream {
		return b.chatStream(ctx, params, emit)
	}
	return b.chatOnce(ctx, params, emit)
}

func (b *OpenAIBackend) chatOnce(ctx context.Context, params openai.ChatCompletionNewParams, emit EmitFunc) error {
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return b.classify(err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%s: no choices returned", b.Name())
	}

	msg := resp.Choices[0].Message
	calls, err := convertToolCalls(msg.ToolCalls)
	if err != nil {
		return err
	}

	if len(calls) > 0 {
		return emit(ToolCallBatch{Text: msg.Content, Calls: calls})
	}
	return emit(TextChunk{Text: msg.Content})
}

func (b *OpenAIBackend) chatStream(ctx context.Context, params openai.ChatCompletionNewParams, emit EmitFunc) error {
	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := emit(TextChunk{Text: choice.Delta.Content}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return b.classify(err)
	}
	if len(acc.Choices) == 0 {
		return fmt.Errorf("%s: no choices returned", b.Name())
	}

	msg := acc.Choices[0].Message
	calls, err := convertToolCalls(msg.ToolCalls)
	if err != nil {
		return err
	}
	if len(calls) > 0 {
		return emit(ToolCallBatch{Text: msg.Content, Calls: calls})
	}
	return nil
}

// classify maps credential rejections onto the typed AuthError variant.
func (b *OpenAIBackend) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 401 || apierr.StatusCode == 403 {
			return &AuthError{Backend: b.Name(), Err: err}
		}
	}
	return err
}

func convertToolCalls(raw []openai.ChatCompletionMessageToolCall) ([]ToolCall, error) {
	var calls []ToolCall
	for _, tc := range raw {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return calls, nil
}

// buildMessages converts the neutral message list to chat completion params.
func (b *OpenAIBackend) buildMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := []openai.ChatCompletionMessageParamUnion{}

	for _, msg := range messages {
		switch {
		case msg.Role == "system":
			out = append(out, openai.SystemMessage(msg.Content))

		case msg.Role == "tool":
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))

		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case msg.Role == "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))

		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}

	return out
}

// buildTools converts the tool catalog to chat completion tool params.
func (b *OpenAIBackend) buildTools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		}
	}
	return tools
}
