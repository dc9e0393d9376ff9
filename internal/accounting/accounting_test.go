package accounting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkSumsLogicalSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 1024), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.bin"), make([]byte, 2048), 0o644))

	info, err := Walk(dir)
	require.NoError(t, err)
	require.EqualValues(t, 3072, info.LogicalSize)
	require.Len(t, info.Files, 2)
}

func TestUniqueSizeNeverNegative(t *testing.T) {
	info := TreeInfo{LogicalSize: 100, SharedSize: 150}
	require.EqualValues(t, 0, info.UniqueSize())
}

func TestHumanSizeFormatsBytes(t *testing.T) {
	require.Contains(t, HumanSize(1<<20), "MB")
}
