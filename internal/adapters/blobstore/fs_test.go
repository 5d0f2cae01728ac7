package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/quarantine-scanner/internal/errors"
)

func newStore(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return s
}

func readAll(t *testing.T, s *FS, area, key string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), area, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, "q-bucket", "docs/read me.md", strings.NewReader("hello")))
	assert.Equal(t, "hello", readAll(t, s, "q-bucket", "docs/read me.md"))

	require.NoError(t, s.Put(ctx, "q-bucket", "docs/read me.md", strings.NewReader("v2")))
	assert.Equal(t, "v2", readAll(t, s, "q-bucket", "docs/read me.md"))

	_, err := os.Stat(filepath.Join(s.Root(), "q-bucket", "docs", "read me.md"))
	assert.NoError(t, err)
}

func TestGetMissingIsNotFound(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	_, err := s.Get(context.Background(), "q-bucket", "missing.txt")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCopyAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, "q-bucket", "eicar.txt", strings.NewReader("X5O!P%@AP")))
	require.NoError(t, s.Copy(ctx, "q-bucket", "eicar.txt", "dmz-bucket"))
	// Re-running the copy overwrites without error.
	require.NoError(t, s.Copy(ctx, "q-bucket", "eicar.txt", "dmz-bucket"))

	assert.Equal(t, "X5O!P%@AP", readAll(t, s, "dmz-bucket", "eicar.txt"))

	require.NoError(t, s.Delete(ctx, "q-bucket", "eicar.txt"))
	require.NoError(t, s.Delete(ctx, "q-bucket", "eicar.txt"), "delete of missing key is a no-op")

	ok, err := s.Exists(ctx, "q-bucket", "eicar.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Exists(ctx, "dmz-bucket", "eicar.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCopyMissingSource(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	err := s.Copy(context.Background(), "q-bucket", "nope", "clean")
	assert.True(t, apperrors.IsNotFound(err))

	ok, err := s.Exists(context.Background(), "clean", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidPaths(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	cases := []struct{ area, key string }{
		{"", "a"},
		{".tmp", "a"},
		{"a/b", "k"},
		{"..", "k"},
		{"q", ""},
		{"q", "/etc/passwd"},
		{"q", "../escape"},
		{"q", "a/../../escape"},
	}
	for _, tc := range cases {
		_, err := s.Exists(ctx, tc.area, tc.key)
		assert.Truef(t, apperrors.IsValidation(err), "area=%q key=%q: %v", tc.area, tc.key, err)
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "q", "k", strings.NewReader("x")), context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "q", "k"), context.Canceled)
}

func TestNewFSRequiresRoot(t *testing.T) {
	t.Parallel()
	_, err := NewFS("  ")
	assert.Error(t, err)
}
