package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Athemis/squidbot/internal/config"
	"github.com/Athemis/squidbot/pkg/store"
	"github.com/Athemis/squidbot/pkg/tools"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestBuildPool(t *testing.T) {
	t.Run("should build backends in configured order", func(t *testing.T) {
		pool, err := buildPool([]config.ProviderConfig{
			{Kind: "anthropic", Model: "claude-sonnet-4-20250514", APIKey: "sk-a"},
			{Kind: "openai", Name: "openrouter", Model: "gpt-4o", APIKey: "sk-b"},
		}, testLogger())
		require.NoError(t, err)

		backends := pool.Backends()
		require.Len(t, backends, 2)
		assert.Equal(t, "anthropic/claude-sonnet-4-20250514", backends[0].Name())
		assert.Equal(t, "openrouter/gpt-4o", backends[1].Name())
	})

	t.Run("should reject an unknown kind", func(t *testing.T) {
		_, err := buildPool([]config.ProviderConfig{{Kind: "mystery", Model: "m"}}, testLogger())
		assert.ErrorContains(t, err, "unknown provider kind")
	})

	t.Run("should fail with no providers", func(t *testing.T) {
		_, err := buildPool(nil, testLogger())
		assert.Error(t, err)
	})
}

func TestBuildRegistry(t *testing.T) {
	t.Run("should register the built-in tool set", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.DefaultConfig()
		cfg.Workspace.Dir = filepath.Join(dir, "workspace")

		historyStore, err := store.NewSQLiteStore(filepath.Join(dir, "history.db"), testLogger())
		require.NoError(t, err)
		defer historyStore.Close()

		registry, err := buildRegistry(cfg, historyStore, testLogger())
		require.NoError(t, err)

		for _, name := range []string{"read_file", "write_file", "list_dir", "web_fetch", "save_memory", "search_history"} {
			_, ok := registry.Get(name)
			assert.True(t, ok, "missing tool %s", name)
		}
	})
}

func TestWireSubagents(t *testing.T) {
	t.Run("should add the spawn and collect tools", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Subagents.Profiles = []config.ProfileConfig{{Name: "researcher"}}

		pool, err := buildPool([]config.ProviderConfig{
			{Kind: "openai", Model: "gpt-4o", APIKey: "sk-test"},
		}, testLogger())
		require.NoError(t, err)

		registry := tools.NewRegistry(testLogger())
		require.NoError(t, wireSubagents(cfg, pool, registry, testLogger()))

		spawn, ok := registry.Get("spawn")
		require.True(t, ok)
		delegator, ok := spawn.(tools.Delegator)
		require.True(t, ok)
		assert.True(t, delegator.Delegates())

		_, ok = registry.Get("collect")
		assert.True(t, ok)
	})
}
