package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAppendsWithoutDedup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registered.txt")
	require.NoError(t, os.WriteFile(path, []byte("OLD111\n"), 0o644))

	w, err := OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append("ABC123"))
	require.NoError(t, w.Append("ABC123"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OLD111\nABC123\nABC123\n", string(data), "each append is flushed immediately")
	assert.Equal(t, 2, w.Written())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Append("XYZ789"))
}

func TestOpenWriterCreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "new.txt")
	w, err := OpenWriter(path)
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenWriterUnavailable(t *testing.T) {
	t.Parallel()

	_, err := OpenWriter(filepath.Join(t.TempDir(), "missing-dir", "registered.txt"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registered.txt")
	require.NoError(t, os.WriteFile(path, []byte("XYZ789\n\n  ABC123  \r\nXYZ789\nLAST001"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("XYZ789"))
	assert.True(t, s.Contains("ABC123"))
	assert.True(t, s.Contains("LAST001"))
	assert.False(t, s.Contains("ABC12"))
	assert.Equal(t, []string{"ABC123", "LAST001", "XYZ789"}, s.Plates())
	assert.Equal(t, path, s.Path())
}

func TestLoadUnavailable(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, ErrUnavailable)
}
