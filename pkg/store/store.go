// Package store persists the conversation log and the assistant's memory
// document. The log is append-only: entries are never mutated or deleted,
// and each turn reloads a bounded window of the most recent entries.
package store

import (
	"context"

	"github.com/Athemis/squidbot/pkg/providers"
)

// Store is the durable storage contract consumed by the context assembler
// and the built-in memory tools.
type Store interface {
	// LoadRecent returns at most n of the most recent entries in
	// chronological order.
	LoadRecent(ctx context.Context, n int) ([]providers.Message, error)

	// Append adds one entry to the log.
	Append(ctx context.Context, msg providers.Message) error

	// LoadMemoryDocument returns the persistent free-text memory document,
	// or "" when none has been saved yet.
	LoadMemoryDocument(ctx context.Context) (string, error)

	// SaveMemoryDocument replaces the memory document wholesale. There is
	// no partial patching.
	SaveMemoryDocument(ctx context.Context, text string) error
}

// Searcher is implemented by stores that can search older history beyond
// the context window. Retrieval through it is always an explicit tool
// call, never automatic.
type Searcher interface {
	SearchHistory(ctx context.Context, query string, limit int) ([]providers.Message, error)
}
