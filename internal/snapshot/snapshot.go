// Package snapshot recursively mirrors a directory tree using reflink
// copies per file (C3), the portable fallback to a Btrfs subvolume
// snapshot for filesystems that don't support subvolumes at all.
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/reflink"
	"github.com/joshuapassos/dbranch/internal/utils"
)

// Tree recursively duplicates src into dst. Destination directories are
// created eagerly; regular files are reflink-copied via C2. Symlinks,
// device files, and sockets are out of scope and cause the snapshot to
// fail, naming the offending path.
func Tree(src, dst string) error {
	utils.Debug("snapshotting %s to %s", src, dst)

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "create destination directory "+dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "read directory "+src, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return dbrerr.Wrap(dbrerr.KindFileSystem, "stat "+srcPath, err)
		}

		switch {
		case info.IsDir():
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return dbrerr.Wrap(dbrerr.KindFileSystem, "create directory "+dstPath, err)
			}
			if err := Tree(srcPath, dstPath); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		default:
			return dbrerr.New(dbrerr.KindFileSystem, "unsupported file type at "+srcPath)
		}
	}

	return nil
}

func copyFile(srcPath, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "open source file "+srcPath, err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dstPath)
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "create destination file "+dstPath, err)
	}
	defer dstFile.Close()

	return reflink.Copy(srcFile, dstFile)
}
