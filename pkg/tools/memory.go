package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Athemis/squidbot/pkg/store"
)

// SaveMemoryTool replaces the persistent memory document. The document is
// overwritten wholesale; the model is expected to send the full revised
// text, not a patch.
type SaveMemoryTool struct {
	Store store.Store
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Replace the persistent memory document with the given text. " +
		"Always send the complete document; the previous version is discarded."
}

func (t *SaveMemoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The full new memory document",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SaveMemoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	if err := t.Store.SaveMemoryDocument(ctx, content); err != nil {
		return "", fmt.Errorf("failed to save memory document: %w", err)
	}
	return "memory document updated", nil
}

// SearchHistoryTool searches conversation history older than the context
// window. Retrieval is explicit: it happens only when the model calls this
// tool, never automatically.
type SearchHistoryTool struct {
	Searcher store.Searcher
}

func (t *SearchHistoryTool) Name() string { return "search_history" }

func (t *SearchHistoryTool) Description() string {
	return "Search past conversation history for messages containing the query."
}

func (t *SearchHistoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Text to search for",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results, 10 by default",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchHistoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	matches, err := t.Searcher.SearchHistory(ctx, query, limit)
	if err != nil {
		return "", fmt.Errorf("history search failed: %w", err)
	}
	if len(matches) == 0 {
		return "no matching messages found", nil
	}

	var sb strings.Builder
	for _, msg := range matches {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", msg.Timestamp.Format("2006-01-02 15:04"), msg.Role, msg.Content)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
