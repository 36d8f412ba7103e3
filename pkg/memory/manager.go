// Package memory assembles the message list for each model invocation:
// system prompt enriched with the memory document and skill material, a
// bounded window of recent history, and the incoming user message.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/store"
)

// SkillSource supplies skill material for prompt assembly. Catalog is a
// short summary of every available skill; AlwaysInjected returns the full
// bodies of skills flagged for unconditional injection.
type SkillSource interface {
	Catalog() string
	AlwaysInjected() []string
}

// Config holds assembler construction parameters.
type Config struct {
	Store  store.Store
	Skills SkillSource
	Window int
	Logger zerolog.Logger
}

// Manager builds per-turn message lists and persists completed turns.
type Manager struct {
	store  store.Store
	skills SkillSource
	window int
	logger zerolog.Logger
}

// New creates a context assembler.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = 50
	}

	return &Manager{
		store:  cfg.Store,
		skills: cfg.Skills,
		window: cfg.Window,
		logger: cfg.Logger.With().Str("component", "memory").Logger(),
	}, nil
}

// Build assembles the message list for one invocation: the enriched system
// prompt, then the windowed history, then the incoming user message. The
// incoming message is NOT persisted here; persistence happens through
// Record or Persist once the turn's shape is known.
func (m *Manager) Build(ctx context.Context, user providers.Message, systemPrompt string) ([]providers.Message, error) {
	history, err := m.store.LoadRecent(ctx, m.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{
		Role:    "system",
		Content: m.composeSystem(ctx, systemPrompt),
	})

	for _, msg := range history {
		messages = append(messages, labelHistorical(msg))
	}

	messages = append(messages, user)
	return messages, nil
}

// Record appends a single entry to durable history. The agent loop calls
// it incrementally during tool rounds.
func (m *Manager) Record(ctx context.Context, msg providers.Message) error {
	if err := m.store.Append(ctx, msg); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// Persist appends a completed zero-tool exchange: the user message and the
// assistant reply, exactly two entries.
func (m *Manager) Persist(ctx context.Context, user, reply providers.Message) error {
	if err := m.Record(ctx, user); err != nil {
		return err
	}
	return m.Record(ctx, reply)
}

// composeSystem folds the memory document and skill material into the base
// system prompt. A missing document or skill source just leaves its
// section out.
func (m *Manager) composeSystem(ctx context.Context, base string) string {
	var sb strings.Builder
	sb.WriteString(base)

	doc, err := m.store.LoadMemoryDocument(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to load memory document, continuing without it")
	} else if doc != "" {
		sb.WriteString("\n\n## Memory\n")
		sb.WriteString(doc)
	}

	if m.skills == nil {
		return sb.String()
	}

	if catalog := m.skills.Catalog(); catalog != "" {
		sb.WriteString("\n\n## Available skills\n")
		sb.WriteString(catalog)
	}
	for _, body := range m.skills.AlwaysInjected() {
		sb.WriteString("\n\n")
		sb.WriteString(body)
	}
	return sb.String()
}

// labelHistorical prefixes stored user and assistant messages with their
// origin so the model can tell channels and senders apart. Tool results
// and messages without an origin pass through untouched, as do tool-call
// turns with no text to prefix.
func labelHistorical(msg providers.Message) providers.Message {
	if msg.Role != "user" && msg.Role != "assistant" {
		return msg
	}
	if msg.Channel == "" || msg.Content == "" {
		return msg
	}
	label := msg.Channel
	if msg.Sender != "" {
		label += "/" + msg.Sender
	}
	msg.Content = fmt.Sprintf("[%s] %s", label, msg.Content)
	return msg
}
