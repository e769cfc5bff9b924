package transport_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/psplink/internal/transport"
)

func setupTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("nested content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "deep.txt"), []byte("deep"), 0o644))

	return root
}

func TestLocal_Walk(t *testing.T) {
	t.Parallel()
	root := setupTestTree(t)
	ep := transport.NewLocal()

	relPaths := make(map[string]bool)
	err := ep.Walk(context.Background(), root, func(entry transport.FileEntry) error {
		relPaths[entry.RelPath] = entry.IsDir
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		"file.txt":          false,
		"sub":               true,
		"sub/nested.txt":    false,
		"sub/deep":          true,
		"sub/deep/deep.txt": false,
	}, relPaths)
}

func TestLocal_Stat(t *testing.T) {
	t.Parallel()
	root := setupTestTree(t)
	ep := transport.NewLocal()
	ctx := context.Background()

	entry, err := ep.Stat(ctx, filepath.Join(root, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Size)
	assert.False(t, entry.IsDir)

	entry, err = ep.Stat(ctx, filepath.Join(root, "sub"))
	require.NoError(t, err)
	assert.True(t, entry.IsDir)

	_, err = ep.Stat(ctx, filepath.Join(root, "nonexistent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocal_ReadWrite(t *testing.T) {
	t.Parallel()
	root := setupTestTree(t)
	ep := transport.NewLocal()
	ctx := context.Background()

	r, err := ep.OpenRead(ctx, filepath.Join(root, "sub", "nested.txt"))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(14), r.Size())

	buf := make([]byte, 10)
	n, err := r.ReadAt(ctx, buf, 7)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "content", string(buf[:n]))

	_, err = ep.OpenRead(ctx, filepath.Join(root, "sub"))
	require.Error(t, err)

	dst := filepath.Join(root, "new", "dir", "out.bin")
	w, err := ep.OpenWrite(ctx, dst, true, 8)
	require.NoError(t, err)
	_, err = w.WriteAt(ctx, []byte("5678"), 4)
	require.NoError(t, err)
	_, err = w.WriteAt(ctx, []byte("1234"), 0)
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(got))

	// Reopen without truncation keeps existing bytes.
	w, err = ep.OpenWrite(ctx, dst, false, 0)
	require.NoError(t, err)
	_, err = w.WriteAt(ctx, []byte("AB"), 6)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "123456AB", string(got))

	w, err = ep.OpenWrite(ctx, dst, false, 0)
	require.NoError(t, err)
	require.NoError(t, w.Truncate(ctx, 3))
	require.NoError(t, w.Close())
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "123", string(got))

	require.NoError(t, ep.Remove(ctx, dst))
	assert.NoFileExists(t, dst)
}

func TestReadAll(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	data := bytes.Repeat([]byte("0123456789"), 100)
	path := filepath.Join(root, "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	ctx := context.Background()
	r, err := transport.NewLocal().OpenRead(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	var out bytes.Buffer
	n, err := transport.ReadAll(ctx, r, &out, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
}

func TestLocal_CancelledContext(t *testing.T) {
	t.Parallel()
	root := setupTestTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := transport.NewLocal().OpenRead(context.Background(), filepath.Join(root, "file.txt"))
	require.NoError(t, err)
	defer r.Close()
	_, err = r.ReadAt(ctx, make([]byte, 1), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
