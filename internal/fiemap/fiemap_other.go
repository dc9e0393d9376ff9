//go:build !linux

package fiemap

import (
	"os"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
)

// Read is unavailable outside Linux; on this error C5's accounting walk
// records the file's shared bytes as zero and keeps going.
func Read(f *os.File) ([]Extent, error) {
	return nil, dbrerr.New(dbrerr.KindFileSystem, "FIEMAP is not supported on this platform")
}
