package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// StdoutTarget
// ---------------------------------------------------------------------------

func TestStdoutTarget_WritesThrough(t *testing.T) {
	var buf bytes.Buffer

	target := NewStdoutTarget(&buf)

	_, err := target.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, target.Commit())

	assert.Equal(t, "hello", buf.String())

	// Abort after Commit is harmless.
	target.Abort()
}

// ---------------------------------------------------------------------------
// FileTarget
// ---------------------------------------------------------------------------

func TestFileTarget_CommitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	_, err = target.Write([]byte("<root/>"))
	require.NoError(t, err)
	require.NoError(t, target.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<root/>", string(data))
}

func TestFileTarget_AbortLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xml")

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	_, err = target.Write([]byte("partial"))
	require.NoError(t, err)

	target.Abort()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no destination file after abort")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp file left behind")
}

func TestFileTarget_AbortPreservesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	_, err = target.Write([]byte("partial"))
	require.NoError(t, err)

	target.Abort()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestFileTarget_CommitReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	_, err = target.Write([]byte("updated"))
	require.NoError(t, err)
	require.NoError(t, target.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))
}

func TestFileTarget_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "out.xml")

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	_, err = target.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, target.Commit())

	assert.FileExists(t, path)
}

func TestFileTarget_CommitIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	_, err = target.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, target.Commit())
	require.NoError(t, target.Commit())
}

func TestFileTarget_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")

	target, err := NewFileTarget(path)
	require.NoError(t, err)

	defer target.Abort()

	assert.Equal(t, path, target.Path())
}
