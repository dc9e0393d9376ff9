// Package reflink creates a CoW-shared copy of a single file across two
// open descriptors (C2). The underlying primitive is resolved at build
// time via platform-specific files, not dispatched at runtime, since the
// choice of primitive never changes once a binary is built for a target OS.
package reflink

import (
	"io"
	"os"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
)

// Copy duplicates the full contents of src into dest, sharing extents with
// src where the filesystem supports it. dest must already be open
// read-write (created and, if non-empty, truncated by the caller); src
// must be open read-only. After Copy returns nil, reading dest yields
// bytes identical to src.
func Copy(src, dest *os.File) error {
	info, err := src.Stat()
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "stat reflink source", err)
	}
	if info.Size() == 0 {
		return nil
	}
	if err := copyRange(src, dest, info.Size()); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "reflink copy", err)
	}
	return nil
}

// fallbackCopy performs a plain byte-for-byte copy, used by platforms
// whose reflink primitive rejects the call at runtime (e.g. cross-device,
// or a filesystem without CoW support) so a branch can still be created,
// at the cost of losing extent sharing for that file.
func fallbackCopy(src, dest *os.File) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := dest.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := io.Copy(dest, src)
	return err
}
