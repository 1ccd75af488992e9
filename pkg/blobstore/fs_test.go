package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestFS(t *testing.T, opts Options) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir(), opts)
	require.NoError(t, err)
	return s
}

func TestPutStatOpenURL(t *testing.T) {
	s := newTestFS(t, Options{PublicURL: "http://example.test/"})
	ctx := context.Background()

	n, err := s.Put(ctx, "chat/c1/tok.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), n)

	info, err := s.Stat("chat/c1/tok.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(len(pngHeader)), info.Size)

	rc, _, err := s.Open("chat/c1/tok.png")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	u, err := s.URL(ctx, "chat/c1/tok.png")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/v1/blobs/chat/c1/tok.png", u)
}

func TestURLMissing(t *testing.T) {
	s := newTestFS(t, Options{})
	_, err := s.URL(context.Background(), "chat/c1/none.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRejectsBadPaths(t *testing.T) {
	s := newTestFS(t, Options{})
	for _, p := range []string{"", "../etc/passwd", "chat/../x", "chat/.staging/x", "a//b"} {
		t.Run(p, func(t *testing.T) {
			_, err := s.Put(context.Background(), p, strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestPutTooLargeLeavesNothing(t *testing.T) {
	s := newTestFS(t, Options{MaxSize: 4})
	_, err := s.Put(context.Background(), "chat/c1/big.bin", strings.NewReader("0123456789"))
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Stat("chat/c1/big.bin")
	assert.ErrorIs(t, err, ErrNotFound)
	entries, err := os.ReadDir(filepath.Join(s.Root(), stagingDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutDiskFull(t *testing.T) {
	s := newTestFS(t, Options{MinFree: 1 << 30})
	s.freeSpace = func(string) (uint64, error) { return 1 << 20, nil }
	_, err := s.Put(context.Background(), "chat/c1/a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrDiskFull)
}

func TestPutCanceled(t *testing.T) {
	s := newTestFS(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Put(ctx, "chat/c1/a.txt", strings.NewReader("x"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPurgeStaging(t *testing.T) {
	s := newTestFS(t, Options{})
	dir := filepath.Join(s.Root(), stagingDir)
	old := filepath.Join(dir, "upload-old")
	fresh := filepath.Join(dir, "upload-fresh")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	cutoff := time.Now().Add(-time.Hour)
	n, err := s.PurgeStaging(cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, old)

	n, err = s.PurgeStaging(cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}
