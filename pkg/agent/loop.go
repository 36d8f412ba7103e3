package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/tools"
)

// Config holds loop construction parameters.
type Config struct {
	Pool         *providers.Pool
	Assembler    Assembler
	Registry     *tools.Registry
	SystemPrompt string
	MaxRounds    int
	Logger       zerolog.Logger
}

// Loop drives one conversation turn at a time. A single Loop is shared by
// every channel; callers serialize their own invocations per channel.
type Loop struct {
	pool         *providers.Pool
	assembler    Assembler
	registry     *tools.Registry
	systemPrompt string
	maxRounds    int
	logger       zerolog.Logger
}

// New creates an agent loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("backend pool is required")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}

	return &Loop{
		pool:         cfg.Pool,
		assembler:    cfg.Assembler,
		registry:     cfg.Registry,
		systemPrompt: cfg.SystemPrompt,
		maxRounds:    cfg.MaxRounds,
		logger:       cfg.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Run executes one turn and returns the final reply text. Backend pool
// failures propagate unchanged; everything else resolves to a reply.
func (l *Loop) Run(ctx context.Context, in Inbound, opts Options) (string, error) {
	pool := l.pool
	if opts.Pool != nil {
		pool = opts.Pool
	}

	registry := l.registry
	if len(opts.ExtraTools) > 0 {
		registry = registry.Clone()
		for _, tool := range opts.ExtraTools {
			if err := registry.Register(tool); err != nil {
				return "", fmt.Errorf("failed to register extra tool: %w", err)
			}
		}
	}

	user := providers.Message{
		Role:    "user",
		Content: in.Content,
		Channel: in.Channel,
		Sender:  in.Sender,
	}

	messages, err := l.assembler.Build(ctx, user, l.systemPrompt)
	if err != nil {
		return "", err
	}

	streaming := opts.Sink != nil && opts.Sink.Streaming()
	defs := registry.Definitions()
	userRecorded := false

	for round := 0; round < l.maxRounds; round++ {
		var text strings.Builder
		var batch *providers.ToolCallBatch

		err := pool.Chat(ctx, providers.ChatRequest{
			Messages: messages,
			Tools:    defs,
			Stream:   streaming,
		}, func(f providers.Fragment) error {
			switch frag := f.(type) {
			case providers.TextChunk:
				text.WriteString(frag.Text)
				if streaming {
					return opts.Sink.Deliver(ctx, frag.Text, Delivery{Channel: in.Channel})
				}
			case providers.ToolCallBatch:
				batch = &frag
			}
			return nil
		})
		if err != nil {
			return "", err
		}

		// Plain text resolves the turn.
		if batch == nil {
			reply := text.String()
			return reply, l.finish(ctx, opts.Sink, in, user, reply, userRecorded, streaming)
		}

		// Tool round. The user message is recorded lazily on the first
		// one so the log ordering is user, assistant(calls), tool
		// results, and eventually the final assistant text.
		if !userRecorded {
			if err := l.assembler.Record(ctx, user); err != nil {
				return "", err
			}
			userRecorded = true
		}

		assistant := providers.Message{
			Role:      "assistant",
			Content:   batch.Text,
			Reasoning: batch.Reasoning,
			ToolCalls: batch.Calls,
		}
		if err := l.assembler.Record(ctx, assistant); err != nil {
			return "", err
		}
		messages = append(messages, assistant)

		l.logger.Debug().Int("round", round).Int("calls", len(batch.Calls)).Msg("Executing tool round")

		for _, res := range registry.ExecuteAll(ctx, batch.Calls) {
			toolMsg := providers.Message{
				Role:       "tool",
				Content:    res.Content,
				ToolCallID: res.ToolCallID,
			}
			if res.IsError {
				toolMsg.Content = "ERROR: " + res.Content
			}
			if err := l.assembler.Record(ctx, toolMsg); err != nil {
				return "", err
			}
			messages = append(messages, toolMsg)
		}
	}

	// The sentinel was never streamed, so deliver it as a whole even to
	// streaming sinks.
	l.logger.Warn().Int("max_rounds", l.maxRounds).Msg("Round limit exhausted, substituting sentinel reply")
	return RoundLimitReply, l.finish(ctx, opts.Sink, in, user, RoundLimitReply, userRecorded, false)
}

// finish persists the completed turn and delivers the reply.
func (l *Loop) finish(ctx context.Context, sink Sink, in Inbound, user providers.Message, reply string, userRecorded, streamed bool) error {
	assistant := providers.Message{Role: "assistant", Content: reply, Channel: in.Channel}

	if userRecorded {
		if err := l.assembler.Record(ctx, assistant); err != nil {
			return err
		}
	} else {
		if err := l.assembler.Persist(ctx, user, assistant); err != nil {
			return err
		}
	}

	if sink == nil {
		return nil
	}
	if streamed {
		// Chunks already went out live; just mark the end of the turn.
		return sink.Deliver(ctx, "", Delivery{Channel: in.Channel, Final: true})
	}
	return sink.Deliver(ctx, reply, Delivery{Channel: in.Channel, Final: true})
}
