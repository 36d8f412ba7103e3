// Package agent runs the per-turn loop: assemble context, invoke the
// backend pool, execute tool-call rounds, and deliver the final reply.
package agent

import (
	"context"

	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/tools"
)

// RoundLimitReply is persisted and delivered when a turn exhausts its
// tool-call rounds without reaching a plain-text reply.
const RoundLimitReply = "I could not finish this request: too many tool rounds. Please try rephrasing or splitting it up."

// Inbound is one incoming user message with its origin.
type Inbound struct {
	Channel string
	Sender  string
	Content string
}

// Delivery carries metadata alongside outbound text.
type Delivery struct {
	Channel    string
	ChatID     string
	Attachment string
	// Final marks the end of the turn. Streaming sinks receive text
	// chunks first and then a Final marker; buffered sinks receive the
	// whole reply in one Final delivery.
	Final bool
}

// Sink receives outbound text. Streaming reports whether the loop should
// forward text fragments as they arrive or buffer until the turn resolves.
type Sink interface {
	Streaming() bool
	Deliver(ctx context.Context, text string, d Delivery) error
}

// Options are per-invocation overrides.
type Options struct {
	// Pool, when set, replaces the loop's default backend pool for this
	// invocation only. Periodic callers use it to run a cheaper tier.
	Pool *providers.Pool
	// ExtraTools are available only for this invocation, on top of the
	// shared registry.
	ExtraTools []tools.Tool
	// Sink receives the reply. A nil sink buffers silently; the reply is
	// still returned from Run.
	Sink Sink
}

// Assembler is the context-assembly contract the loop depends on.
type Assembler interface {
	Build(ctx context.Context, user providers.Message, systemPrompt string) ([]providers.Message, error)
	Record(ctx context.Context, msg providers.Message) error
	Persist(ctx context.Context, user, reply providers.Message) error
}
