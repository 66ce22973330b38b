package xfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "models"), ExpandTilde("~/models"))
	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, "/tmp/x", ExpandTilde("/tmp/x"))
	assert.Equal(t, "~user/x", ExpandTilde("~user/x"))
}

func TestToURL(t *testing.T) {
	got, err := ToURL("mem://localhost/out")
	require.NoError(t, err)
	assert.Equal(t, "mem://localhost/out", got)

	dir := t.TempDir()
	got, err = ToURL(filepath.Join(dir, "bundle"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "bundle")), got)

	assert.True(t, IsURL("file:///tmp"))
	assert.False(t, IsURL("relative/dir"))
}
