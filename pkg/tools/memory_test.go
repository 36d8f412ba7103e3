package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/store"
)

func TestSaveMemoryTool(t *testing.T) {
	t.Run("should overwrite the memory document", func(t *testing.T) {
		s := store.NewMemoryStore()
		ctx := context.Background()
		require.NoError(t, s.SaveMemoryDocument(ctx, "old"))

		tool := &SaveMemoryTool{Store: s}
		_, err := tool.Execute(ctx, map[string]any{"content": "new document"})
		require.NoError(t, err)

		doc, err := s.LoadMemoryDocument(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new document", doc)
	})
}

func TestSearchHistoryTool(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, providers.Message{Role: "user", Content: "plan the Lisbon trip"}))
	require.NoError(t, s.Append(ctx, providers.Message{Role: "assistant", Content: "flights booked"}))

	tool := &SearchHistoryTool{Searcher: s}

	t.Run("should format matches one per line", func(t *testing.T) {
		got, err := tool.Execute(ctx, map[string]any{"query": "lisbon"})
		require.NoError(t, err)
		assert.Contains(t, got, "user: plan the Lisbon trip")
	})

	t.Run("should report when nothing matches", func(t *testing.T) {
		got, err := tool.Execute(ctx, map[string]any{"query": "zurich"})
		require.NoError(t, err)
		assert.Equal(t, "no matching messages found", got)
	})

	t.Run("should require a query", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{"query": "   "})
		assert.Error(t, err)
	})

	t.Run("should honor a numeric limit argument", func(t *testing.T) {
		got, err := tool.Execute(ctx, map[string]any{"query": "o", "limit": float64(1)})
		require.NoError(t, err)
		assert.NotContains(t, got, "\n")
	})
}
