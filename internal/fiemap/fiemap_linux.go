//go:build linux

package fiemap

import (
	"os"
	"unsafe"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"golang.org/x/sys/unix"
)

// fsIocFiemap is FS_IOC_FIEMAP, i.e. _IOWR('f', 11, struct fiemap) where
// struct fiemap (the header, not the trailing extents array) is 32 bytes.
const fsIocFiemap = 0xC020660B

// kernelExtent mirrors struct fiemap_extent from linux/fiemap.h.
type kernelExtent struct {
	Logical      uint64
	Physical     uint64
	Length       uint64
	reserved64   [2]uint64
	Flags        uint32
	reserved32   [3]uint32
}

// kernelRequest mirrors struct fiemap plus a fixed batchSize extent array,
// matching FiemapRequestFull's "32 is the most Default gives us" layout.
type kernelRequest struct {
	Start         uint64
	Length        uint64
	Flags         uint32
	MappedExtents uint32
	ExtentCount   uint32
	reserved      uint32
	Extents       [batchSize]kernelExtent
}

// Read queries the kernel for f's extent list, batching up to 32 extents
// per ioctl call and terminating on the LAST flag, a short read, or a zero
// read, per the FIEMAP query algorithm.
func Read(f *os.File) ([]Extent, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, dbrerr.Wrap(dbrerr.KindFileSystem, "stat file for fiemap", err)
	}
	size := uint64(info.Size())
	if size == 0 {
		return nil, nil
	}

	var extents []Extent
	offset := uint64(0)
	for {
		var req kernelRequest
		req.Start = offset
		req.Length = size - offset
		req.ExtentCount = batchSize

		if err := ioctlFiemap(f.Fd(), &req); err != nil {
			return nil, dbrerr.Wrap(dbrerr.KindFileSystem, "FIEMAP ioctl failed", err)
		}

		if req.MappedExtents == 0 {
			break
		}

		foundLast := false
		for i := uint32(0); i < req.MappedExtents; i++ {
			ke := req.Extents[i]
			e := Extent{
				Logical:  ke.Logical,
				Physical: ke.Physical,
				Length:   ke.Length,
				Flags:    Flag(ke.Flags),
			}
			extents = append(extents, e)
			offset = ke.Logical + ke.Length
			if e.Last() {
				foundLast = true
				break
			}
		}

		if foundLast || req.MappedExtents < batchSize {
			break
		}
	}

	return extents, nil
}

func ioctlFiemap(fd uintptr, req *kernelRequest) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(fsIocFiemap), uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		return errno
	}
	return nil
}
