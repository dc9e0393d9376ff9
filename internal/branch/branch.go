// Package branch implements the branch lifecycle manager (C8): it
// composes the storage provisioner (C4), tree snapshotter (C3), container
// orchestrator (C6), and config store (C7) into the CLI-facing verbs
// described in spec §6 — init, create, delete, use, stop, resume, status,
// delete-project.
package branch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/joshuapassos/dbranch/internal/accounting"
	"github.com/joshuapassos/dbranch/internal/config"
	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/docker"
	"github.com/joshuapassos/dbranch/internal/snapshot"
	"github.com/joshuapassos/dbranch/internal/storage"
	"github.com/joshuapassos/dbranch/internal/utils"
)

// imageFileName is the backing file's name under the project root, per
// spec §6's filesystem layout (<project_root>/btrfs.img).
const imageFileName = "btrfs.img"

// containerRuntime is the slice of *docker.Orchestrator that the lifecycle
// manager depends on, narrowed to an interface so tests can substitute a
// fake instead of a live Docker daemon.
type containerRuntime interface {
	Create(ctx context.Context, spec docker.ContainerSpec) (string, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	IsRunning(ctx context.Context, name string) (bool, error)
}

// Manager wires C3/C4/C6/C7 together behind the verbs the CLI calls.
type Manager struct {
	store       *config.Store
	projectRoot string
	docker      containerRuntime

	// newProvisioner is a seam so tests can inject a Provisioner backed by
	// a fake sudoexec.Runner instead of shelling out to real root tools.
	newProvisioner func(doc config.Document, imagePath string) *storage.Provisioner
}

// New builds a Manager. projectRoot holds the backing image file,
// independent of the document's MountPoint (where that image ends up
// mounted once provisioned).
func New(store *config.Store, projectRoot string, orch *docker.Orchestrator) *Manager {
	return &Manager{
		store:       store,
		projectRoot: projectRoot,
		docker:      orch,
		newProvisioner: func(doc config.Document, imagePath string) *storage.Provisioner {
			return storage.New(imagePath, doc.MountPoint, storage.DefaultSize)
		},
	}
}

func (m *Manager) imagePath() string {
	return filepath.Join(m.projectRoot, imageFileName)
}

func (m *Manager) provisioner() *storage.Provisioner {
	doc := m.store.Snapshot()
	return m.newProvisioner(doc, m.imagePath())
}

// Init provisions a brand new project: reserves and mounts the Btrfs
// image, records the project name and ports in the config document, and
// registers "main" as the first (is_main) branch. Per spec §9's failure
// semantics, a mount/format failure aborts before any document mutation.
func (m *Manager) Init(ctx context.Context, name string, proxyPort int) error {
	if err := validateBranchName(name); err != nil {
		return err
	}

	doc := m.store.Snapshot()
	if doc.Name != "" {
		return dbrerr.New(dbrerr.KindProjectAlreadyExists, "project "+doc.Name+" is already initialized")
	}

	p := m.provisioner()
	if err := p.Reserve(); err != nil {
		return err
	}
	if err := p.Mount(ctx); err != nil {
		return err
	}

	now := stamp()
	return m.store.Mutate(func(d *config.Document) error {
		d.Name = name
		if proxyPort != 0 {
			d.ProxyPort = proxyPort
		}
		d.CreatedAt = now
		d.AddBranch(config.Branch{Name: "main", Port: d.ProxyPort, IsMain: true, CreatedAt: now})
		return nil
	})
}

// InitPostgres starts only the main branch's container on an already
// provisioned project, per spec §6's init-postgres verb.
func (m *Manager) InitPostgres(ctx context.Context) error {
	doc := m.store.Snapshot()
	if doc.Name == "" {
		return dbrerr.New(dbrerr.KindProjectNotFound, "no project initialized")
	}
	main, ok := doc.FindBranch("main")
	if !ok {
		return dbrerr.New(dbrerr.KindBranchNotFound, "main branch missing from config")
	}
	return m.startContainer(ctx, doc, main)
}

// Create snapshots source (defaulting to "main") into a new branch
// subvolume, allocates it a port, and starts its container. A storage
// failure aborts before the document is mutated; the branch is not
// recorded unless the subvolume snapshot succeeded.
func (m *Manager) Create(ctx context.Context, name, source string) error {
	if err := validateBranchName(name); err != nil {
		return err
	}
	if source == "" {
		source = "main"
	}
	if err := validateBranchName(source); err != nil {
		return err
	}

	doc := m.store.Snapshot()
	if doc.Name == "" {
		return dbrerr.New(dbrerr.KindProjectNotFound, "no project initialized")
	}
	if _, exists := doc.FindBranch(name); exists {
		return dbrerr.New(dbrerr.KindBranchAlreadyExists, "branch "+name+" already exists")
	}
	if _, ok := doc.FindBranch(source); !ok {
		return dbrerr.New(dbrerr.KindBranchNotFound, "source branch "+source+" not found")
	}

	port, err := config.GetValidPort(doc.PortMin, doc.PortMax)
	if err != nil {
		return err
	}

	p := m.provisioner()
	if err := p.CheckBtrfs(ctx); err != nil {
		utils.Warning("btrfs unavailable (%v), falling back to reflink tree snapshot for %s -> %s", err, source, name)
		if err := snapshot.Tree(p.SubvolumePath(source), p.SubvolumePath(name)); err != nil {
			return err
		}
	} else if err := p.SubvolumeSnapshot(ctx, source, name); err != nil {
		return err
	}

	created := config.Branch{Name: name, Port: port, IsMain: false, CreatedAt: stamp()}
	if err := m.store.Mutate(func(d *config.Document) error {
		d.AddBranch(created)
		return nil
	}); err != nil {
		return err
	}

	doc = m.store.Snapshot()
	return m.startContainer(ctx, doc, created)
}

// Delete stops and removes a branch's container, deletes its subvolume,
// and drops it from the document. Per spec §9, a container stop or remove
// failure is logged and does not block subvolume/document cleanup; a
// failure to delete the subvolume (or tree-snapshot directory) is returned
// and leaves the branch in the document.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := validateBranchName(name); err != nil {
		return err
	}

	doc := m.store.Snapshot()
	branch, ok := doc.FindBranch(name)
	if !ok {
		return dbrerr.New(dbrerr.KindBranchNotFound, "branch "+name+" not found")
	}
	if branch.IsMain {
		return dbrerr.New(dbrerr.KindInternal, "the main branch cannot be deleted")
	}

	containerName := doc.Name + "_" + name
	if err := m.docker.Stop(ctx, containerName); err != nil {
		utils.Warning("stop container %s during delete: %v", containerName, err)
	}
	if err := m.docker.Remove(ctx, containerName); err != nil {
		utils.Warning("remove container %s during delete: %v", containerName, err)
	}

	p := m.provisioner()
	if err := p.CheckBtrfs(ctx); err != nil {
		utils.Warning("btrfs unavailable (%v), removing tree snapshot for %s", err, name)
		if rmErr := os.RemoveAll(p.SubvolumePath(name)); rmErr != nil {
			return dbrerr.Wrap(dbrerr.KindFileSystem, "remove branch directory "+name, rmErr)
		}
	} else if err := p.SubvolumeDelete(ctx, name); err != nil {
		return err
	}

	if doc.ActiveBranch != nil && *doc.ActiveBranch == name {
		if err := m.store.Mutate(func(d *config.Document) error {
			d.RemoveBranch(name)
			return d.SetActiveBranch("main")
		}); err != nil {
			return err
		}
		return nil
	}

	return m.store.Mutate(func(d *config.Document) error {
		d.RemoveBranch(name)
		return nil
	})
}

// DeleteProject tears down every branch container, unmounts and destroys
// the Btrfs image, and clears the document back to an uninitialized
// state. Each step is independently best-effort, per spec §9: a missing
// container, already-unmounted disk, or already-removed image file is
// not an error.
func (m *Manager) DeleteProject(ctx context.Context, strict bool) error {
	doc := m.store.Snapshot()
	for _, b := range doc.Branches {
		containerName := doc.Name + "_" + b.Name
		if err := m.docker.Stop(ctx, containerName); err != nil {
			utils.Warning("stop container %s during delete-project: %v", containerName, err)
		}
		if err := m.docker.Remove(ctx, containerName); err != nil {
			utils.Warning("remove container %s during delete-project: %v", containerName, err)
		}
	}

	p := m.provisioner()
	if err := p.Unmount(ctx, strict); err != nil {
		if strict {
			return err
		}
		utils.Warning("unmount during delete-project: %v", err)
	}
	if err := p.Destroy(); err != nil {
		return err
	}

	return m.store.Mutate(func(d *config.Document) error {
		*d = config.Document{
			Approach:   d.Approach,
			ProxyPort:  d.ProxyPort,
			APIPort:    d.APIPort,
			PortMin:    d.PortMin,
			PortMax:    d.PortMax,
			MountPoint: d.MountPoint,
			Branches:   []config.Branch{},
		}
		return nil
	})
}

// Use sets the active branch, observed by the proxy on the NEXT new
// connection only, per spec §3's invariant.
func (m *Manager) Use(name string) error {
	doc := m.store.Snapshot()
	if name != "main" {
		if _, ok := doc.FindBranch(name); !ok {
			return dbrerr.New(dbrerr.KindBranchNotFound, "branch "+name+" not found")
		}
	}
	return m.store.Mutate(func(d *config.Document) error {
		return d.SetActiveBranch(name)
	})
}

// Stop stops every branch's container, leaving the Btrfs mount intact so
// Resume can bring them back without reprovisioning.
func (m *Manager) Stop(ctx context.Context) error {
	doc := m.store.Snapshot()
	for _, b := range doc.Branches {
		containerName := doc.Name + "_" + b.Name
		if err := m.docker.Stop(ctx, containerName); err != nil {
			utils.Warning("stop container %s: %v", containerName, err)
		}
	}
	return nil
}

// Resume restarts every branch's container against its existing data
// directory. Containers that are already running are left alone; a
// stopped one is removed and recreated under the same name.
func (m *Manager) Resume(ctx context.Context) error {
	doc := m.store.Snapshot()
	for _, b := range doc.Branches {
		containerName := doc.Name + "_" + b.Name
		running, err := m.docker.IsRunning(ctx, containerName)
		if err != nil {
			return err
		}
		if running {
			continue
		}
		if err := m.docker.Remove(ctx, containerName); err != nil {
			return err
		}
		if err := m.startContainer(ctx, doc, b); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) startContainer(ctx context.Context, doc config.Document, b config.Branch) error {
	dataDir := filepath.Join(doc.MountPoint, b.Name, "data")
	spec := docker.ContainerSpec{
		ProjectName: doc.Name,
		BranchName:  b.Name,
		HostPort:    b.Port,
		DataDir:     dataDir,
		User:        doc.PostgresConfig.User,
		Password:    doc.PostgresConfig.Password,
		Database:    doc.PostgresConfig.Database,
	}
	_, err := m.docker.Create(ctx, spec)
	return err
}

// BranchStatus is one row of the status report.
type BranchStatus struct {
	Name        string
	Port        int
	IsMain      bool
	IsActive    bool
	Running     bool
	LogicalSize uint64
	UniqueSize  uint64
	Age         time.Duration
}

// Status reports, per branch, its port, running state, and extent
// accounting, per spec §6's status verb.
func (m *Manager) Status(ctx context.Context) ([]BranchStatus, error) {
	doc := m.store.Snapshot()
	if doc.Name == "" {
		return nil, dbrerr.New(dbrerr.KindProjectNotFound, "no project initialized")
	}

	active := doc.ActiveBranchName()
	p := m.provisioner()

	rows := make([]BranchStatus, 0, len(doc.Branches))
	for _, b := range doc.Branches {
		containerName := doc.Name + "_" + b.Name
		running, err := m.docker.IsRunning(ctx, containerName)
		if err != nil {
			utils.Warning("check running state for %s: %v", containerName, err)
		}

		tree, err := accounting.Walk(p.MountPoint + "/" + b.Name)
		if err != nil {
			utils.Warning("account extents for %s: %v", b.Name, err)
		}

		rows = append(rows, BranchStatus{
			Name:        b.Name,
			Port:        b.Port,
			IsMain:      b.IsMain,
			IsActive:    b.Name == active,
			Running:     running,
			LogicalSize: tree.LogicalSize,
			UniqueSize:  tree.UniqueSize(),
			Age:         time.Since(b.CreatedAt),
		})
	}
	return rows, nil
}

// stamp is a seam so tests can inject a fixed "now"; production code just
// wraps time.Now.
var stamp = time.Now
