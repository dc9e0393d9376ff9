// Package sudoexec escalates privilege for the handful of host commands
// C4's storage provisioner needs root for (losetup, mkfs.btrfs, mount,
// umount). It checks for cached sudo credentials first and only prompts
// the operator once, over the inherited terminal, when none are cached.
package sudoexec

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/utils"
)

// Runner executes a privileged command and returns its stdout and stderr
// as separate strings. It exists as an interface so internal/storage's tests can supply
// a fake instead of actually shelling out to sudo/losetup/mkfs.btrfs.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner is the real Runner, invoking host binaries through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// EnsurePrivilege checks for cached sudo credentials (`sudo -n echo`) and,
// failing that, prompts the operator once via the inherited terminal
// (`sudo -v`), validating before returning. Subsequent sudo invocations in
// the same process are assumed valid.
func EnsurePrivilege(ctx context.Context) error {
	check := exec.CommandContext(ctx, "sudo", "-n", "echo", "sudo check")
	if err := check.Run(); err == nil {
		utils.Debug("sudo privileges already cached")
		return nil
	}

	utils.Log("🔐 To continue, enter your sudo password: ")
	validate := exec.CommandContext(ctx, "sudo", "-v")
	validate.Stdin = os.Stdin
	validate.Stdout = os.Stdout
	validate.Stderr = os.Stderr
	if err := validate.Run(); err != nil {
		return dbrerr.Wrap(dbrerr.KindAuth, "sudo password validation failed", err)
	}
	utils.Info("sudo password validated")
	return nil
}

// Sudo runs name with args under sudo, via r.
func Sudo(ctx context.Context, r Runner, name string, args ...string) (string, string, error) {
	full := append([]string{name}, args...)
	return r.Run(ctx, "sudo", full...)
}
