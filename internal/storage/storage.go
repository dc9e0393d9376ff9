// Package storage implements the Btrfs image lifecycle (C4): reserving a
// sparse backing file, attaching it to a loop device, formatting and
// mounting it as Btrfs, and creating/deleting/snapshotting subvolumes on
// top of it. Every external command that needs root goes through
// internal/sudoexec.
package storage

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/sudoexec"
	"github.com/joshuapassos/dbranch/internal/utils"
)

// State is the provisioner's view of a project filesystem's lifecycle.
type State string

const (
	StateAbsent                State = "Absent"
	StateReserved              State = "Reserved"
	StateMounted               State = "Mounted"
	StateUnmountedOrphanedLoop State = "Unmounted-OrphanedLoop"
	StateDestroyed             State = "Destroyed"
)

// DefaultSize is the default sparse image size, 1 TiB, per spec §4.4.
const DefaultSize uint64 = 1 << 40

// Provisioner manages one project's backing image and mount point.
type Provisioner struct {
	ImagePath  string
	MountPoint string
	Size       uint64
	runner     sudoexec.Runner
	privilege  func(ctx context.Context) error
}

func New(imagePath, mountPoint string, size uint64) *Provisioner {
	if size == 0 {
		size = DefaultSize
	}
	return &Provisioner{
		ImagePath:  imagePath,
		MountPoint: mountPoint,
		Size:       size,
		runner:     sudoexec.ExecRunner{},
		privilege:  sudoexec.EnsurePrivilege,
	}
}

// WithRunner overrides the command runner, for tests.
func (p *Provisioner) WithRunner(r sudoexec.Runner) *Provisioner {
	p.runner = r
	return p
}

// WithPrivilegeCheck overrides the privilege-escalation step, for tests
// that must not shell out to the real sudo binary.
func (p *Provisioner) WithPrivilegeCheck(check func(ctx context.Context) error) *Provisioner {
	p.privilege = check
	return p
}

// Reserve creates the image's parent directory (non-failure if it already
// exists) and the sparse backing file at the configured size.
// Absent -> Reserved.
func (p *Provisioner) Reserve() error {
	utils.Debug("reserving %d bytes for image %s", p.Size, p.ImagePath)

	parent := parentDir(p.ImagePath)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "create project directory "+parent, err)
	}

	f, err := os.OpenFile(p.ImagePath, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "create image file "+p.ImagePath, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(p.Size)); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "reserve image size", err)
	}

	utils.Info("reserved %d bytes at %s", p.Size, p.ImagePath)
	return nil
}

// Mount attaches the image to a free loop device, formats it as Btrfs,
// ensures the mount point exists, mounts it, and creates the main
// subvolume and its data directory. Reserved -> Mounted.
func (p *Provisioner) Mount(ctx context.Context) error {
	if err := p.privilege(ctx); err != nil {
		return err
	}

	stdout, stderr, err := sudoexec.Sudo(ctx, p.runner, "losetup", "-f", "--show", p.ImagePath)
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindDiskMount, "create loop device: "+stderr, err)
	}
	loopDevice := strings.TrimSpace(stdout)
	utils.Info("loop device created: %s", loopDevice)

	if _, stderr, err := sudoexec.Sudo(ctx, p.runner, "mkfs.btrfs", "-f", loopDevice); err != nil {
		return dbrerr.Wrap(dbrerr.KindBtrfs, "format loop device as btrfs: "+stderr, err)
	}

	if _, stderr, err := sudoexec.Sudo(ctx, p.runner, "mkdir", "-p", p.MountPoint); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "create mount point: "+stderr, err)
	}

	if _, stderr, err := sudoexec.Sudo(ctx, p.runner, "mount", loopDevice, p.MountPoint); err != nil {
		return dbrerr.Wrap(dbrerr.KindDiskMount, "mount loop device: "+stderr, err)
	}

	if err := p.SubvolumeCreate(ctx, "main"); err != nil {
		return err
	}
	mainData := p.MountPoint + "/main/data"
	if _, stderr, err := sudoexec.Sudo(ctx, p.runner, "mkdir", "-p", mainData); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "create main data directory: "+stderr, err)
	}

	utils.Info("mounted %s at %s", loopDevice, p.MountPoint)
	return nil
}

// loopListPattern matches one `losetup` listing row: NAME SIZELIMIT OFFSET
// AUTOCLEAR RO BACK-FILE DIO LOG-SEC.
var loopListPattern = regexp.MustCompile(`^(\S+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\S+)\s+(\d+)\s+(\d+)$`)

// findDeviceByPath scans losetup listing output for the device whose
// back-file column ends with targetPath. Unrecognized rows are skipped;
// a caller that finds no match falls back to detaching all devices.
func findDeviceByPath(listing, targetPath string) string {
	lines := strings.Split(listing, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		matches := loopListPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		device := matches[1]
		backFile := strings.TrimSpace(strings.TrimSuffix(matches[6], "(deleted)"))
		if strings.HasSuffix(backFile, targetPath) {
			return device
		}
	}
	return ""
}

// Unmount lazily unmounts the mount point, tolerating "not mounted", then
// detaches the specific loop device backing this project's image (falling
// back to detaching all loop devices if none matches). The image file and
// its reserved space are left in place; Destroy removes them.
// Mounted -> Unmounted.
func (p *Provisioner) Unmount(ctx context.Context, strict bool) error {
	if err := p.privilege(ctx); err != nil {
		return err
	}

	umountArgs := []string{"umount"}
	if !strict {
		umountArgs = append(umountArgs, "-l")
	}
	umountArgs = append(umountArgs, p.MountPoint)
	_, stderr, err := sudoexec.Sudo(ctx, p.runner, umountArgs[0], umountArgs[1:]...)
	if err != nil {
		if strings.Contains(stderr, "not mounted") {
			utils.Debug("disk already unmounted, continuing")
		} else {
			return dbrerr.Wrap(dbrerr.KindDiskMount, "unmount: "+stderr, err)
		}
	}

	stdout, stderr, err := sudoexec.Sudo(ctx, p.runner, "losetup")
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindDiskMount, "list loop devices: "+stderr, err)
	}

	device := findDeviceByPath(stdout, p.ImagePath)
	target := device
	if target == "" {
		target = "--all"
	}
	if _, stderr, err := sudoexec.Sudo(ctx, p.runner, "losetup", "-d", target); err != nil {
		if strict {
			return dbrerr.Wrap(dbrerr.KindDiskMount, "detach loop device: "+stderr, err)
		}
		utils.Warning("failed to detach loop device %s: %s", target, stderr)
	}

	return nil
}

// Destroy truncates the image file to zero length and unlinks it.
// Reserved|Unmounted -> Destroyed.
func (p *Provisioner) Destroy() error {
	f, err := os.OpenFile(p.ImagePath, os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dbrerr.Wrap(dbrerr.KindFileSystem, "open image for destroy", err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return dbrerr.Wrap(dbrerr.KindFileSystem, "truncate image", err)
	}
	f.Close()
	if err := os.Remove(p.ImagePath); err != nil && !os.IsNotExist(err) {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "remove image file", err)
	}
	return nil
}

// SubvolumePath returns the on-disk path for a branch's subvolume
// (or, on a non-Btrfs host, its reflink tree-snapshot directory).
func (p *Provisioner) SubvolumePath(name string) string {
	return p.MountPoint + "/" + name
}

// SubvolumeCreate creates a Btrfs subvolume. "Subvolume already exists" is
// a hard error; callers that need idempotence should probe with
// SubvolumeExists first.
func (p *Provisioner) SubvolumeCreate(ctx context.Context, name string) error {
	_, stderr, err := sudoexec.Sudo(ctx, p.runner, "btrfs", "subvolume", "create", p.SubvolumePath(name))
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindBtrfs, fmt.Sprintf("create subvolume %s: %s", name, stderr), err)
	}
	return nil
}

// SubvolumeSnapshot creates a new subvolume at dst that is a CoW snapshot
// of the subvolume at src.
func (p *Provisioner) SubvolumeSnapshot(ctx context.Context, src, dst string) error {
	_, stderr, err := sudoexec.Sudo(ctx, p.runner, "btrfs", "subvolume", "snapshot",
		p.SubvolumePath(src), p.SubvolumePath(dst))
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindBtrfs, fmt.Sprintf("snapshot %s to %s: %s", src, dst, stderr), err)
	}
	return nil
}

// SubvolumeDelete deletes the named subvolume, tolerating a missing path.
func (p *Provisioner) SubvolumeDelete(ctx context.Context, name string) error {
	if !p.SubvolumeExists(name) {
		return nil
	}
	_, stderr, err := sudoexec.Sudo(ctx, p.runner, "btrfs", "subvolume", "delete", p.SubvolumePath(name))
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindBtrfs, fmt.Sprintf("delete subvolume %s: %s", name, stderr), err)
	}
	return nil
}

// SubvolumeExists probes for the subvolume directory on disk.
func (p *Provisioner) SubvolumeExists(name string) bool {
	_, err := os.Stat(p.SubvolumePath(name))
	return err == nil
}

// CheckBtrfs verifies the host `btrfs` tool is installed and runnable.
func (p *Provisioner) CheckBtrfs(ctx context.Context) error {
	_, stderr, err := p.runner.Run(ctx, "btrfs", "version")
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindBtrfs, "btrfs version: "+stderr, err)
	}
	return nil
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
