package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspacePath(t *testing.T) {
	root := t.TempDir()

	t.Run("should resolve inside the root", func(t *testing.T) {
		abs, err := workspacePath(root, "notes/today.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "notes", "today.md"), abs)
	})

	t.Run("should reject traversal out of the root", func(t *testing.T) {
		abs, err := workspacePath(root, "../../etc/passwd")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "etc", "passwd"), abs)
	})

	t.Run("should reject an empty path", func(t *testing.T) {
		_, err := workspacePath(root, "  ")
		assert.Error(t, err)
	})
}

func TestFileTools(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	t.Run("should round-trip write and read", func(t *testing.T) {
		write := &WriteFileTool{Root: root}
		read := &ReadFileTool{Root: root}

		_, err := write.Execute(ctx, map[string]any{"path": "notes/plan.md", "content": "buy milk"})
		require.NoError(t, err)

		got, err := read.Execute(ctx, map[string]any{"path": "notes/plan.md"})
		require.NoError(t, err)
		assert.Equal(t, "buy milk", got)
	})

	t.Run("should fail reading a missing file", func(t *testing.T) {
		read := &ReadFileTool{Root: root}
		_, err := read.Execute(ctx, map[string]any{"path": "missing.txt"})
		assert.Error(t, err)
	})

	t.Run("should list directory entries with a trailing slash on dirs", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "listing", "sub"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "listing", "a.txt"), []byte("x"), 0644))

		list := &ListDirTool{Root: root}
		got, err := list.Execute(ctx, map[string]any{"path": "listing"})
		require.NoError(t, err)
		assert.Contains(t, got, "a.txt")
		assert.Contains(t, got, "sub/")
	})

	t.Run("should mark an empty directory", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

		list := &ListDirTool{Root: root}
		got, err := list.Execute(ctx, map[string]any{"path": "empty"})
		require.NoError(t, err)
		assert.Equal(t, "(empty)", got)
	})
}
