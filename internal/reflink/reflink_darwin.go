//go:build darwin

package reflink

import (
	"os"

	"golang.org/x/sys/unix"
)

// copyRange uses the path-based clonefile(2) primitive. The original
// prototype this package is descended from invoked the macOS clone call
// with file descriptors; clonefile only accepts paths, so this takes dest's
// and src's names instead of their descriptors (see spec's open question
// about the macOS reflink signature).
func copyRange(src, dest *os.File, length int64) error {
	srcPath := src.Name()
	destPath := dest.Name()
	// clonefile requires the destination to not exist yet.
	_ = dest.Close()
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := unix.Clonefile(srcPath, destPath, 0); err != nil {
		if err == unix.ENOTSUP || err == unix.EXDEV {
			f, oerr := os.OpenFile(destPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
			if oerr != nil {
				return oerr
			}
			defer f.Close()
			return fallbackCopy(src, f)
		}
		return err
	}
	return nil
}
