package fileops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	assert.Equal(t, "clip", Stem("/data/uploads/clip.mp4"))
	assert.Equal(t, "clip.part", Stem("clip.part.mp4"))
	assert.Equal(t, "noext", Stem("/a/b/noext"))
}

func TestUploadName(t *testing.T) {
	name := UploadName("My Clip.mp4")
	assert.True(t, strings.HasSuffix(name, "-My Clip.mp4"))
	assert.NotContains(t, name, "/")

	// Path components and shell-hostile characters are neutralized.
	name = UploadName("../../etc/passwd")
	assert.Equal(t, filepath.Base(name), name)
	assert.False(t, strings.Contains(name, ".."+string(filepath.Separator)))

	name = UploadName(`weird:"name".mp4`)
	assert.NotContains(t, name, `:`)
	assert.NotContains(t, name, `"`)
}

func TestEnsureDirAndExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	assert.False(t, Exists(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, Exists(dir))

	// Idempotent.
	require.NoError(t, EnsureDir(dir))
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.NoError(t, Remove(path))
	assert.False(t, Exists(path))
}
