package agent

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Athemis/squidbot/pkg/memory"
	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/store"
	"github.com/Athemis/squidbot/pkg/tools"
)

// scriptedBackend replays one fragment list per round, in order.
type scriptedBackend struct {
	rounds [][]providers.Fragment
	err    error
	calls  int
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Chat(_ context.Context, _ providers.ChatRequest, emit providers.EmitFunc) error {
	if b.err != nil {
		return b.err
	}
	round := b.calls
	b.calls++
	if round >= len(b.rounds) {
		round = len(b.rounds) - 1
	}
	for _, f := range b.rounds[round] {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

// echoTool returns "echoed: <text>".
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echo the given text" }

func (echoTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}
}

func (echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	return "echoed: " + args["text"].(string), nil
}

// recordingSink captures deliveries.
type recordingSink struct {
	streaming bool
	chunks    []string
	final     []string
}

func (s *recordingSink) Streaming() bool { return s.streaming }

func (s *recordingSink) Deliver(_ context.Context, text string, d Delivery) error {
	if d.Final {
		s.final = append(s.final, text)
		return nil
	}
	s.chunks = append(s.chunks, text)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

type fixture struct {
	loop  *Loop
	store *store.MemoryStore
}

func newFixture(t *testing.T, backend providers.Backend, maxRounds int, extra ...tools.Tool) *fixture {
	t.Helper()

	pool, err := providers.NewPool(testLogger(), backend)
	require.NoError(t, err)

	s := store.NewMemoryStore()
	asm, err := memory.New(memory.Config{Store: s, Window: 20, Logger: testLogger()})
	require.NoError(t, err)

	registry := tools.NewRegistry(testLogger())
	for _, tool := range extra {
		require.NoError(t, registry.Register(tool))
	}

	loop, err := New(Config{
		Pool:         pool,
		Assembler:    asm,
		Registry:     registry,
		SystemPrompt: "You are a helpful assistant.",
		MaxRounds:    maxRounds,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	return &fixture{loop: loop, store: s}
}

func TestNew(t *testing.T) {
	t.Run("should require pool, assembler and registry", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestLoopRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist exactly two entries for a zero-tool turn", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.TextChunk{Text: "hello there"}},
		}}
		fx := newFixture(t, backend, 5)

		reply, err := fx.loop.Run(ctx, Inbound{Channel: "terminal", Content: "hi"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, "hello there", reply)

		all := fx.store.All()
		require.Len(t, all, 2)
		assert.Equal(t, "user", all[0].Role)
		assert.Equal(t, "hi", all[0].Content)
		assert.Equal(t, "assistant", all[1].Role)
		assert.Equal(t, "hello there", all[1].Content)
	})

	t.Run("should persist a tool round as user, assistant, tool, assistant", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.ToolCallBatch{Calls: []providers.ToolCall{
				{ID: "tc1", Name: "echo", Arguments: map[string]any{"text": "hi"}},
			}}},
			{providers.TextChunk{Text: "done"}},
		}}
		fx := newFixture(t, backend, 5, echoTool{})

		reply, err := fx.loop.Run(ctx, Inbound{Channel: "terminal", Content: "say hi"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, "done", reply)

		all := fx.store.All()
		require.Len(t, all, 4)
		assert.Equal(t, "user", all[0].Role)
		assert.Equal(t, "assistant", all[1].Role)
		require.Len(t, all[1].ToolCalls, 1)
		assert.Equal(t, "tc1", all[1].ToolCalls[0].ID)
		assert.Equal(t, "tool", all[2].Role)
		assert.Equal(t, "tc1", all[2].ToolCallID)
		assert.Equal(t, "echoed: hi", all[2].Content)
		assert.Equal(t, "assistant", all[3].Role)
		assert.Equal(t, "done", all[3].Content)
	})

	t.Run("should substitute the sentinel reply on round exhaustion", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.ToolCallBatch{Calls: []providers.ToolCall{
				{ID: "tc1", Name: "echo", Arguments: map[string]any{"text": "again"}},
			}}},
		}}
		fx := newFixture(t, backend, 2, echoTool{})

		reply, err := fx.loop.Run(ctx, Inbound{Content: "loop forever"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, RoundLimitReply, reply)

		all := fx.store.All()
		last := all[len(all)-1]
		assert.Equal(t, "assistant", last.Role)
		assert.Equal(t, RoundLimitReply, last.Content)
	})

	t.Run("should propagate pool exhaustion unchanged", func(t *testing.T) {
		poolErr := fmt.Errorf("all backends down")
		fx := newFixture(t, &scriptedBackend{err: poolErr}, 5)

		_, err := fx.loop.Run(ctx, Inbound{Content: "hi"}, Options{})
		assert.Same(t, poolErr, err)
		assert.Equal(t, 0, fx.store.Len())
	})

	t.Run("should feed unknown-tool errors back into the conversation", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.ToolCallBatch{Calls: []providers.ToolCall{
				{ID: "tc1", Name: "missing", Arguments: map[string]any{}},
			}}},
			{providers.TextChunk{Text: "sorry, no such tool"}},
		}}
		fx := newFixture(t, backend, 5)

		reply, err := fx.loop.Run(ctx, Inbound{Content: "use a tool"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, "sorry, no such tool", reply)

		all := fx.store.All()
		require.Len(t, all, 4)
		assert.Equal(t, "tool", all[2].Role)
		assert.Contains(t, all[2].Content, "ERROR")
		assert.Contains(t, all[2].Content, "unknown tool")
	})

	t.Run("should stream chunks live to a streaming sink", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.TextChunk{Text: "hel"}, providers.TextChunk{Text: "lo"}},
		}}
		fx := newFixture(t, backend, 5)
		sink := &recordingSink{streaming: true}

		reply, err := fx.loop.Run(ctx, Inbound{Content: "hi"}, Options{Sink: sink})
		require.NoError(t, err)
		assert.Equal(t, "hello", reply)
		assert.Equal(t, []string{"hel", "lo"}, sink.chunks)
		require.Len(t, sink.final, 1)
		assert.Empty(t, sink.final[0])
	})

	t.Run("should buffer the whole reply for a non-streaming sink", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.TextChunk{Text: "hel"}, providers.TextChunk{Text: "lo"}},
		}}
		fx := newFixture(t, backend, 5)
		sink := &recordingSink{streaming: false}

		_, err := fx.loop.Run(ctx, Inbound{Content: "hi"}, Options{Sink: sink})
		require.NoError(t, err)
		assert.Empty(t, sink.chunks)
		assert.Equal(t, []string{"hello"}, sink.final)
	})

	t.Run("should route a single invocation through the pool override", func(t *testing.T) {
		defaultBackend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.TextChunk{Text: "from default"}},
		}}
		fx := newFixture(t, defaultBackend, 5)

		altBackend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.TextChunk{Text: "from override"}},
		}}
		altPool, err := providers.NewPool(testLogger(), altBackend)
		require.NoError(t, err)

		reply, err := fx.loop.Run(ctx, Inbound{Content: "hi"}, Options{Pool: altPool})
		require.NoError(t, err)
		assert.Equal(t, "from override", reply)
		assert.Equal(t, 1, altBackend.calls)
		assert.Equal(t, 0, defaultBackend.calls)
	})

	t.Run("should expose extra tools for a single invocation only", func(t *testing.T) {
		backend := &scriptedBackend{rounds: [][]providers.Fragment{
			{providers.ToolCallBatch{Calls: []providers.ToolCall{
				{ID: "tc1", Name: "echo", Arguments: map[string]any{"text": "extra"}},
			}}},
			{providers.TextChunk{Text: "done"}},
		}}
		fx := newFixture(t, backend, 5)

		reply, err := fx.loop.Run(ctx, Inbound{Content: "hi"}, Options{ExtraTools: []tools.Tool{echoTool{}}})
		require.NoError(t, err)
		assert.Equal(t, "done", reply)

		all := fx.store.All()
		assert.Equal(t, "echoed: extra", all[2].Content)
	})
}
