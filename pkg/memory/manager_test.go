package memory

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/store"
)

type fakeSkills struct {
	catalog string
	always  []string
}

func (f *fakeSkills) Catalog() string          { return f.catalog }
func (f *fakeSkills) AlwaysInjected() []string { return f.always }

func newManager(t *testing.T, s store.Store, skills SkillSource, window int) *Manager {
	t.Helper()
	m, err := New(Config{
		Store:  s,
		Skills: skills,
		Window: window,
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	t.Run("should require a store", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestManagerBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("should order system, history, then the incoming message", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Append(ctx, providers.Message{Role: "user", Content: "earlier"}))
		require.NoError(t, s.Append(ctx, providers.Message{Role: "assistant", Content: "reply"}))

		m := newManager(t, s, nil, 10)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "now"}, "You are helpful.")
		require.NoError(t, err)

		require.Len(t, got, 4)
		assert.Equal(t, "system", got[0].Role)
		assert.Equal(t, "earlier", got[1].Content)
		assert.Equal(t, "reply", got[2].Content)
		assert.Equal(t, "now", got[3].Content)
	})

	t.Run("should shrink the window to the available history", func(t *testing.T) {
		s := store.NewMemoryStore()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Append(ctx, providers.Message{Role: "user", Content: fmt.Sprintf("m%d", i)}))
		}

		m := newManager(t, s, nil, 3)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "now"}, "sys")
		require.NoError(t, err)

		require.Len(t, got, 5)
		assert.Equal(t, "m2", got[1].Content)
		assert.Equal(t, "m4", got[3].Content)
	})

	t.Run("should include the memory document in the system prompt", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.SaveMemoryDocument(ctx, "prefers tea over coffee"))

		m := newManager(t, s, nil, 10)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "hi"}, "base")
		require.NoError(t, err)

		assert.Contains(t, got[0].Content, "prefers tea over coffee")
	})

	t.Run("should include the skill catalog and always-injected bodies", func(t *testing.T) {
		s := store.NewMemoryStore()
		skills := &fakeSkills{
			catalog: "- cooking: recipe helper",
			always:  []string{"Always greet the user by name."},
		}

		m := newManager(t, s, skills, 10)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "hi"}, "base")
		require.NoError(t, err)

		assert.Contains(t, got[0].Content, "cooking: recipe helper")
		assert.Contains(t, got[0].Content, "Always greet the user by name.")
	})

	t.Run("should label stored user messages with channel and sender", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Append(ctx, providers.Message{
			Role: "user", Content: "ping", Channel: "telegram", Sender: "alice",
		}))

		m := newManager(t, s, nil, 10)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "now"}, "sys")
		require.NoError(t, err)

		assert.Equal(t, "[telegram/alice] ping", got[1].Content)
	})

	t.Run("should label stored assistant messages with their channel", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Append(ctx, providers.Message{
			Role: "assistant", Content: "pong", Channel: "telegram",
		}))

		m := newManager(t, s, nil, 10)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "now"}, "sys")
		require.NoError(t, err)

		assert.Equal(t, "[telegram] pong", got[1].Content)
	})

	t.Run("should leave tool results and empty tool-call turns unlabeled", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Append(ctx, providers.Message{
			Role: "assistant", Channel: "terminal",
			ToolCalls: []providers.ToolCall{{ID: "tc1", Name: "echo"}},
		}))
		require.NoError(t, s.Append(ctx, providers.Message{
			Role: "tool", Content: "result", ToolCallID: "tc1", Channel: "terminal",
		}))

		m := newManager(t, s, nil, 10)
		got, err := m.Build(ctx, providers.Message{Role: "user", Content: "now"}, "sys")
		require.NoError(t, err)

		assert.Empty(t, got[1].Content)
		assert.Equal(t, "result", got[2].Content)
	})

	t.Run("should not label the incoming message", func(t *testing.T) {
		s := store.NewMemoryStore()
		m := newManager(t, s, nil, 10)

		got, err := m.Build(ctx, providers.Message{
			Role: "user", Content: "now", Channel: "telegram", Sender: "alice",
		}, "sys")
		require.NoError(t, err)
		assert.Equal(t, "now", got[len(got)-1].Content)
	})
}

func TestManagerPersist(t *testing.T) {
	t.Run("should append exactly two entries", func(t *testing.T) {
		s := store.NewMemoryStore()
		m := newManager(t, s, nil, 10)

		err := m.Persist(context.Background(),
			providers.Message{Role: "user", Content: "hi"},
			providers.Message{Role: "assistant", Content: "hello"},
		)
		require.NoError(t, err)

		assert.Equal(t, 2, s.Len())
		all := s.All()
		assert.Equal(t, "user", all[0].Role)
		assert.Equal(t, "assistant", all[1].Role)
	})
}
