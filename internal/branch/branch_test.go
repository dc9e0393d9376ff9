package branch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshuapassos/dbranch/internal/config"
	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/docker"
	"github.com/joshuapassos/dbranch/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime is a minimal containerRuntime double that records calls
// instead of talking to a Docker daemon.
type fakeRuntime struct {
	running map[string]bool
	created []docker.ContainerSpec
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{running: map[string]bool{}}
}

func (f *fakeRuntime) Create(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.created = append(f.created, spec)
	f.running[spec.Name()] = true
	return "fake-id", nil
}

func (f *fakeRuntime) Stop(ctx context.Context, name string) error {
	f.running[name] = false
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, name string) error {
	delete(f.running, name)
	return nil
}

func (f *fakeRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	return f.running[name], nil
}

// fakeSudoRunner never shells out; it satisfies sudoexec.Runner for tests
// that exercise the provisioner through the manager.
type fakeSudoRunner struct{}

func (fakeSudoRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if name == "losetup" && len(args) > 0 && args[0] == "-f" {
		return "/dev/loop8\n", "", nil
	}
	return "", "", nil
}

// noBtrfsRunner simulates a host with no `btrfs` tool installed, so
// CheckBtrfs fails and callers fall back to the reflink tree snapshot.
type noBtrfsRunner struct{}

func (noBtrfsRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if name == "btrfs" && len(args) > 0 && args[0] == "version" {
		return "", "btrfs: command not found", errors.New("exec: \"btrfs\": executable file not found in $PATH")
	}
	return "", "", nil
}

func newTestManager(t *testing.T) (*Manager, *fakeRuntime) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store, err := config.Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)

	rt := newFakeRuntime()
	m := New(store, t.TempDir(), nil)
	m.docker = rt
	m.newProvisioner = func(doc config.Document, imagePath string) *storage.Provisioner {
		return storage.New(imagePath, doc.MountPoint, 1<<20).
			WithRunner(fakeSudoRunner{}).
			WithPrivilegeCheck(func(ctx context.Context) error { return nil })
	}
	return m, rt
}

func TestInitRegistersMainBranch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	doc := m.store.Snapshot()
	assert.Equal(t, "demo", doc.Name)
	main, ok := doc.FindBranch("main")
	require.True(t, ok)
	assert.True(t, main.IsMain)
}

func TestInitRejectsAlreadyInitialized(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	err := m.Init(context.Background(), "demo", 7000)
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindProjectAlreadyExists))
}

func TestCreateBranchAllocatesPortAndStartsContainer(t *testing.T) {
	m, rt := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	doc := m.store.Snapshot()
	b, ok := doc.FindBranch("feature-x")
	require.True(t, ok)
	assert.GreaterOrEqual(t, b.Port, doc.PortMin)
	assert.True(t, rt.running["demo_feature-x"])
}

func TestCreateRejectsDuplicateBranch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))
	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	err := m.Create(context.Background(), "feature-x", "")
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindBranchAlreadyExists))
}

func TestDeleteRefusesMainBranch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	err := m.Delete(context.Background(), "main")
	require.Error(t, err)
}

func TestDeleteRemovesBranchAndContainer(t *testing.T) {
	m, rt := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))
	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	require.NoError(t, m.Delete(context.Background(), "feature-x"))

	_, found := m.store.Snapshot().FindBranch("feature-x")
	assert.False(t, found)
	_, stillRunning := rt.running["demo_feature-x"]
	assert.False(t, stillRunning)
}

func TestUseSwitchesActiveBranchAndMainIsAlias(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))
	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	require.NoError(t, m.Use("feature-x"))
	assert.Equal(t, "feature-x", m.store.Snapshot().ActiveBranchName())

	require.NoError(t, m.Use("main"))
	assert.Nil(t, m.store.Snapshot().ActiveBranch)
}

func TestUseRejectsUnknownBranch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	err := m.Use("ghost")
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindBranchNotFound))
}

func TestStatusReportsEveryBranch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))
	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	rows, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDeleteProjectClearsDocument(t *testing.T) {
	m, rt := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))
	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	require.NoError(t, m.DeleteProject(context.Background(), false))

	doc := m.store.Snapshot()
	assert.Equal(t, "", doc.Name)
	assert.Empty(t, doc.Branches)
	assert.Empty(t, rt.running)
}

func TestInitRejectsInvalidProjectName(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Init(context.Background(), "Bad_Name!", 7000)
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindValidation))
}

func TestCreateRejectsInvalidBranchName(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	err := m.Create(context.Background(), "../etc", "")
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindValidation))
}

func TestDeleteRejectsInvalidBranchName(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background(), "demo", 7000))

	err := m.Delete(context.Background(), "bad/name")
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindValidation))
}

// TestCreateFallsBackToTreeSnapshotWhenBtrfsUnavailable exercises C3's
// portable path directly: with CheckBtrfs failing, Create must reflink-copy
// the source branch's directory tree instead of shelling out to `btrfs
// subvolume snapshot`.
func TestCreateFallsBackToTreeSnapshotWhenBtrfsUnavailable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := config.Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)

	mountPoint := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mountPoint, "main", "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mountPoint, "main", "marker.txt"), []byte("hello"), 0o644))

	require.NoError(t, store.Mutate(func(d *config.Document) error {
		d.Name = "demo"
		d.MountPoint = mountPoint
		d.ProxyPort = 7000
		d.AddBranch(config.Branch{Name: "main", Port: 7000, IsMain: true, CreatedAt: time.Now()})
		return nil
	}))

	rt := newFakeRuntime()
	m := New(store, t.TempDir(), nil)
	m.docker = rt
	m.newProvisioner = func(doc config.Document, imagePath string) *storage.Provisioner {
		return storage.New(imagePath, doc.MountPoint, 1<<20).
			WithRunner(noBtrfsRunner{}).
			WithPrivilegeCheck(func(ctx context.Context) error { return nil })
	}

	require.NoError(t, m.Create(context.Background(), "feature-x", ""))

	copied, err := os.ReadFile(filepath.Join(mountPoint, "feature-x", "marker.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(copied))
}

// TestDeleteFallsBackToTreeRemovalWhenBtrfsUnavailable mirrors the create
// fallback: with no btrfs tool, Delete must remove the branch's directory
// tree directly rather than call `btrfs subvolume delete`.
func TestDeleteFallsBackToTreeRemovalWhenBtrfsUnavailable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := config.Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)

	mountPoint := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mountPoint, "feature-x"), 0o755))

	require.NoError(t, store.Mutate(func(d *config.Document) error {
		d.Name = "demo"
		d.MountPoint = mountPoint
		d.ProxyPort = 7000
		d.AddBranch(config.Branch{Name: "main", Port: 7000, IsMain: true, CreatedAt: time.Now()})
		d.AddBranch(config.Branch{Name: "feature-x", Port: 7001, IsMain: false, CreatedAt: time.Now()})
		return nil
	}))

	rt := newFakeRuntime()
	m := New(store, t.TempDir(), nil)
	m.docker = rt
	m.newProvisioner = func(doc config.Document, imagePath string) *storage.Provisioner {
		return storage.New(imagePath, doc.MountPoint, 1<<20).
			WithRunner(noBtrfsRunner{}).
			WithPrivilegeCheck(func(ctx context.Context) error { return nil })
	}

	require.NoError(t, m.Delete(context.Background(), "feature-x"))

	_, err = os.Stat(filepath.Join(mountPoint, "feature-x"))
	assert.True(t, os.IsNotExist(err))
}
