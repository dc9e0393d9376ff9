//go:build !linux && !darwin

package reflink

import (
	"os"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
)

// copyRange has no CoW primitive on this platform.
func copyRange(src, dest *os.File, length int64) error {
	return dbrerr.New(dbrerr.KindFileSystem, "reflink copy is not supported on this platform")
}
