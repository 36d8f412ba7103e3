package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend replays a fixed fragment sequence or fails.
type scriptedBackend struct {
	name      string
	fragments []Fragment
	err       error
	calls     int
}

func (b *scriptedBackend) Name() string {
	return b.name
}

func (b *scriptedBackend) Chat(_ context.Context, _ ChatRequest, emit EmitFunc) error {
	b.calls++
	for _, f := range b.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return b.err
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func collect(t *testing.T, pool *Pool, req ChatRequest) ([]Fragment, error) {
	t.Helper()
	var got []Fragment
	err := pool.Chat(context.Background(), req, func(f Fragment) error {
		got = append(got, f)
		return nil
	})
	return got, err
}

func TestNewPool(t *testing.T) {
	t.Run("should fail with no backends", func(t *testing.T) {
		_, err := NewPool(testLogger())
		assert.Error(t, err)
	})

	t.Run("should preserve backend order", func(t *testing.T) {
		a := &scriptedBackend{name: "a"}
		b := &scriptedBackend{name: "b"}
		pool, err := NewPool(testLogger(), a, b)
		require.NoError(t, err)

		backends := pool.Backends()
		require.Len(t, backends, 2)
		assert.Equal(t, "a", backends[0].Name())
		assert.Equal(t, "b", backends[1].Name())
	})
}

func TestPoolChat(t *testing.T) {
	t.Run("should return first backend output when it succeeds", func(t *testing.T) {
		first := &scriptedBackend{name: "first", fragments: []Fragment{TextChunk{Text: "hello"}}}
		second := &scriptedBackend{name: "second", fragments: []Fragment{TextChunk{Text: "never"}}}
		pool, err := NewPool(testLogger(), first, second)
		require.NoError(t, err)

		got, err := collect(t, pool, ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, []Fragment{TextChunk{Text: "hello"}}, got)
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 0, second.calls)
	})

	t.Run("should fall back to next backend on failure", func(t *testing.T) {
		failing := &scriptedBackend{name: "failing", err: fmt.Errorf("boom")}
		working := &scriptedBackend{name: "working", fragments: []Fragment{TextChunk{Text: "ok"}}}
		pool, err := NewPool(testLogger(), failing, working)
		require.NoError(t, err)

		got, err := collect(t, pool, ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, []Fragment{TextChunk{Text: "ok"}}, got)
		assert.Equal(t, 1, failing.calls)
		assert.Equal(t, 1, working.calls)
	})

	t.Run("should return last error unmodified when all backends fail", func(t *testing.T) {
		firstErr := fmt.Errorf("first down")
		lastErr := fmt.Errorf("last down")
		pool, err := NewPool(testLogger(),
			&scriptedBackend{name: "one", err: firstErr},
			&scriptedBackend{name: "two", err: lastErr},
		)
		require.NoError(t, err)

		_, err = collect(t, pool, ChatRequest{})
		assert.Same(t, lastErr, err)
	})

	t.Run("should return the failure directly for a single backend", func(t *testing.T) {
		only := fmt.Errorf("down")
		pool, err := NewPool(testLogger(), &scriptedBackend{name: "only", err: only})
		require.NoError(t, err)

		_, err = collect(t, pool, ChatRequest{})
		assert.Same(t, only, err)
	})

	t.Run("should keep partial output from a failed backend", func(t *testing.T) {
		partial := &scriptedBackend{
			name:      "partial",
			fragments: []Fragment{TextChunk{Text: "partial "}},
			err:       fmt.Errorf("mid-stream failure"),
		}
		rescue := &scriptedBackend{name: "rescue", fragments: []Fragment{TextChunk{Text: "complete"}}}
		pool, err := NewPool(testLogger(), partial, rescue)
		require.NoError(t, err)

		got, err := collect(t, pool, ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, []Fragment{
			TextChunk{Text: "partial "},
			TextChunk{Text: "complete"},
		}, got)
	})

	t.Run("should fall back on auth errors like any other error", func(t *testing.T) {
		denied := &scriptedBackend{name: "denied"}
		denied.err = &AuthError{Backend: "denied", Err: fmt.Errorf("401")}
		working := &scriptedBackend{name: "working", fragments: []Fragment{TextChunk{Text: "ok"}}}
		pool, err := NewPool(testLogger(), denied, working)
		require.NoError(t, err)

		got, err := collect(t, pool, ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, []Fragment{TextChunk{Text: "ok"}}, got)
	})
}

func TestAuthError(t *testing.T) {
	t.Run("should unwrap to the underlying error", func(t *testing.T) {
		inner := fmt.Errorf("401 unauthorized")
		err := &AuthError{Backend: "openai/gpt-4o", Err: inner}

		assert.ErrorContains(t, err, "authentication failed")
		assert.True(t, errors.Is(err, inner))
	})
}
