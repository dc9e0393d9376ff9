// Package docker presents a narrow container-runtime surface to C8's
// branch lifecycle manager: ensure-network, create, stop, remove,
// is-running. It is grounded on the teacher's own Docker client
// initialization and start/stop plumbing, generalized from Supabase's
// multi-service stack down to dbranch's single postgres:17-alpine image
// per branch.
package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/containerd/errdefs"
	"github.com/docker/cli/cli/command"
	dockerFlags "github.com/docker/cli/cli/flags"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/utils"
)

const (
	Image        = "postgres:17-alpine"
	NetworkName  = "dbranch-network"
	pgDataInside = "/var/lib/postgresql/data"
	pgDataEnv    = "/var/lib/postgresql/data/pgdata"
	containerUID = "1000:1000"
)

// Orchestrator wraps a Docker API client.
type Orchestrator struct {
	cli *client.Client
}

// New initializes a Docker client from the environment the way the
// teacher's utils.NewDocker does, failing fast if Docker itself is
// unreachable.
func New() (*Orchestrator, error) {
	cli, err := command.NewDockerCli()
	if err != nil {
		return nil, dbrerr.Wrap(dbrerr.KindDocker, "create docker client", err)
	}
	if err := cli.Initialize(&dockerFlags.ClientOptions{}); err != nil {
		return nil, dbrerr.Wrap(dbrerr.KindDocker, "initialize docker client", err)
	}
	dc, ok := cli.Client().(*client.Client)
	if !ok {
		return nil, dbrerr.New(dbrerr.KindDocker, "unexpected docker client type")
	}
	return &Orchestrator{cli: dc}, nil
}

// AssertRunning pings the daemon, per the teacher's AssertDockerIsRunning.
func (o *Orchestrator) AssertRunning(ctx context.Context) error {
	if _, err := o.cli.Ping(ctx); err != nil {
		return dbrerr.Wrap(dbrerr.KindDocker, "docker daemon unreachable (is Docker running?)", err)
	}
	return nil
}

// EnsureNetwork creates the shared user-defined network if it doesn't
// exist yet; "already exists" is tolerated.
func (o *Orchestrator) EnsureNetwork(ctx context.Context, name string) error {
	_, err := o.cli.NetworkCreate(ctx, name, network.CreateOptions{})
	if err == nil || errdefs.IsConflict(err) {
		return nil
	}
	return dbrerr.Wrap(dbrerr.KindDocker, "create network "+name, err)
}

// ContainerSpec describes the postgres container for one branch.
type ContainerSpec struct {
	ProjectName string
	BranchName  string
	HostPort    int
	DataDir     string
	User        string
	Password    string
	Database    string
}

func (s ContainerSpec) Name() string {
	return s.ProjectName + "_" + s.BranchName
}

// Create runs postgres:17-alpine detached, named "<project>_<branch>",
// publishing 5432 on spec.HostPort, on the shared network, as uid:gid
// 1000:1000, mounting spec.DataDir at /var/lib/postgresql/data, with
// restart policy "no" per spec §4.6 (branches never self-resurrect behind
// the lifecycle manager's back), and a pg_isready healthcheck. IsRunning,
// and so `status`, report only whether the container is running, not its
// health state.
func (o *Orchestrator) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	if err := o.EnsureNetwork(ctx, NetworkName); err != nil {
		return "", err
	}
	if err := o.ensureImage(ctx); err != nil {
		return "", err
	}

	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		return "", dbrerr.Wrap(dbrerr.KindInternal, "build port spec", err)
	}

	database := spec.Database
	if database == "" {
		database = "dbranch"
	}

	cfg := &container.Config{
		Image: Image,
		User:  containerUID,
		Env: []string{
			"POSTGRES_USER=" + spec.User,
			"POSTGRES_PASSWORD=" + spec.Password,
			"POSTGRES_DB=" + database,
			"PGDATA=" + pgDataEnv,
		},
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Healthcheck: &container.HealthConfig{
			Test:     []string{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s", spec.User)},
			Interval: healthInterval,
			Timeout:  healthTimeout,
			Retries:  healthRetries,
		},
		Labels: map[string]string{
			projectLabel: spec.ProjectName,
			branchLabel:  spec.BranchName,
		},
	}

	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(NetworkName),
		Binds:       []string{spec.DataDir + ":" + pgDataInside},
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", spec.HostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}

	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			NetworkName: {Aliases: []string{spec.Name()}},
		},
	}

	resp, err := o.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name())
	if err != nil {
		return "", dbrerr.Wrap(dbrerr.KindDocker, "create container "+spec.Name(), err)
	}

	// The host port a just-stopped sibling container held can still be
	// bound for a moment during teardown; retry the start with backoff
	// rather than surface a spurious "port is already allocated".
	startErr := utils.RetryWithBackoff(ctx, "start container "+spec.Name(), func() error {
		return o.cli.ContainerStart(ctx, resp.ID, container.StartOptions{})
	})
	if startErr != nil {
		return "", dbrerr.Wrap(dbrerr.KindDocker, "start container "+spec.Name(), startErr)
	}

	utils.Info("container %s started on port %d", spec.Name(), spec.HostPort)
	return resp.ID, nil
}

// ensureImage pulls Image if it isn't already present locally, retrying
// the pull with backoff since registry pulls are the other documented
// transient-failure path alongside container start races.
func (o *Orchestrator) ensureImage(ctx context.Context) error {
	if _, _, err := o.cli.ImageInspectWithRaw(ctx, Image); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return dbrerr.Wrap(dbrerr.KindDocker, "inspect image "+Image, err)
	}

	return utils.RetryWithBackoff(ctx, "pull image "+Image, func() error {
		rc, err := o.cli.ImagePull(ctx, Image, image.PullOptions{})
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(io.Discard, rc)
		return err
	})
}

// Stop stops the named container, tolerating "already stopped" / missing.
func (o *Orchestrator) Stop(ctx context.Context, name string) error {
	err := o.cli.ContainerStop(ctx, name, container.StopOptions{})
	if err == nil || errdefs.IsNotFound(err) || errdefs.IsNotModified(err) {
		return nil
	}
	return dbrerr.Wrap(dbrerr.KindDocker, "stop container "+name, err)
}

// Remove removes the named container with its anonymous volumes,
// tolerating "not found".
func (o *Orchestrator) Remove(ctx context.Context, name string) error {
	err := o.cli.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: true, Force: true})
	if err == nil || errdefs.IsNotFound(err) {
		return nil
	}
	return dbrerr.Wrap(dbrerr.KindDocker, "remove container "+name, err)
}

// IsRunning inspects the container and reports whether it is running.
// A missing container reports false, not an error.
func (o *Orchestrator) IsRunning(ctx context.Context, name string) (bool, error) {
	resp, err := o.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, dbrerr.Wrap(dbrerr.KindDocker, "inspect container "+name, err)
	}
	return resp.State != nil && resp.State.Running, nil
}

const (
	projectLabel = "com.dbranch.project"
	branchLabel  = "com.dbranch.branch"

	healthInterval = 10_000_000_000 // 10s, in time.Duration nanoseconds
	healthTimeout  = 5_000_000_000  // 5s
	healthRetries  = 5
)
