package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTreeMirrorsByteIdenticalContent(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "branch")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "seed.bin"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644))

	require.NoError(t, Tree(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "seed.bin"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)

	got, err = os.ReadFile(filepath.Join(dst, "sub", "nested.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("nested"), got)
}

func TestTreeRejectsSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "branch")

	require.NoError(t, os.WriteFile(filepath.Join(src, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")))

	err := Tree(src, dst)
	require.Error(t, err)
}
