package snapfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.snap")
	want := []byte{0xde, 0xad, 0xbe, 0xef, 0x42}
	require.NoError(t, Write(path, want))

	data, cleanup, err := Map(path)
	require.NoError(t, err)
	require.Equal(t, want, data)
	require.NoError(t, cleanup())
	require.NoError(t, cleanup(), "cleanup is idempotent")
}

func TestWrite_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.snap")
	require.NoError(t, Write(path, make([]byte, 4096)))
	require.NoError(t, Write(path, []byte("short")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "short", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
}

func TestMap_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.snap")
	require.NoError(t, Write(path, nil))

	data, cleanup, err := Map(path)
	require.NoError(t, err)
	require.Empty(t, data)
	require.NotNil(t, cleanup)
	require.NoError(t, cleanup())
}

func TestMap_Missing(t *testing.T) {
	_, _, err := Map(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
