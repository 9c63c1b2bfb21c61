// Package sandbox runs generated code inside per-workspace docker containers.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

const workdir = "/workspace"

// dockerAPI is the subset of the docker client the sandbox needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

type Options struct {
	Image          string
	WorkspaceRoot  string
	ExecTimeout    time.Duration
	InstallTimeout time.Duration
	MemoryBytes    int64
	NanoCPUs       int64
	NetworkMode    string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Image:          cfg.Sandbox.Image,
		WorkspaceRoot:  cfg.Sandbox.WorkspaceRoot,
		ExecTimeout:    time.Duration(cfg.Sandbox.ExecTimeoutSec) * time.Second,
		InstallTimeout: time.Duration(cfg.Sandbox.InstallTimeoutSec) * time.Second,
		MemoryBytes:    cfg.Sandbox.MemoryMB * 1024 * 1024,
		NanoCPUs:       int64(cfg.Sandbox.CPUs * 1e9),
		NetworkMode:    cfg.Sandbox.NetworkMode,
	}
}

type workspace struct {
	containerID string
	dir         string
}

// Sandbox provisions workspaces and executes code in them. A workspace is a
// long-lived container with a host directory mounted at /workspace.
type Sandbox struct {
	cli  dockerAPI
	opts Options
	log  *zap.Logger

	mu         sync.Mutex
	workspaces map[string]workspace
}

// New connects to the docker daemon from the environment.
func New(cfg *config.Config, log *zap.Logger) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker ping: %w", err)
	}
	return newSandbox(cli, OptionsFromConfig(cfg), log), nil
}

func newSandbox(cli dockerAPI, opts Options, log *zap.Logger) *Sandbox {
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 300 * time.Second
	}
	if opts.InstallTimeout <= 0 {
		opts.InstallTimeout = 60 * time.Second
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = filepath.Join(os.TempDir(), "valis-workspaces")
	}
	return &Sandbox{cli: cli, opts: opts, log: log, workspaces: make(map[string]workspace)}
}

// Create provisions a new workspace and returns its handle.
func (s *Sandbox) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.opts.WorkspaceRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Collaborator("sandbox.create", fmt.Errorf("workspace dir: %w", err))
	}

	containerCfg := &container.Config{
		Image:      s.opts.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: workdir,
		Labels:     map[string]string{"valis.workspace": id},
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeBind, Source: dir, Target: workdir}},
	}
	if s.opts.MemoryBytes > 0 {
		hostCfg.Memory = s.opts.MemoryBytes
	}
	if s.opts.NanoCPUs > 0 {
		hostCfg.NanoCPUs = s.opts.NanoCPUs
	}
	if s.opts.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(s.opts.NetworkMode)
	}

	name := "valis-" + id
	resp, err := s.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if errdefs.IsNotFound(err) {
		if perr := s.pull(ctx); perr != nil {
			_ = os.RemoveAll(dir)
			return "", apperr.Collaborator("sandbox.create", fmt.Errorf("pull image: %w", perr))
		}
		resp, err = s.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", apperr.Collaborator("sandbox.create", fmt.Errorf("create container: %w", err))
	}

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true})
		_ = os.RemoveAll(dir)
		return "", apperr.Collaborator("sandbox.create", fmt.Errorf("start container: %w", err))
	}

	s.mu.Lock()
	s.workspaces[id] = workspace{containerID: resp.ID, dir: dir}
	s.mu.Unlock()

	s.log.Sugar().Infow("workspace created", "workspace_id", id, "container_id", resp.ID)
	return id, nil
}

// Release removes the workspace container and directory. Unknown handles are
// ignored so release can be called more than once.
func (s *Sandbox) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	ws, ok := s.workspaces[id]
	delete(s.workspaces, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	var errs []error
	if err := s.cli.ContainerRemove(ctx, ws.containerID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("remove container: %w", err))
	}
	if err := os.RemoveAll(ws.dir); err != nil {
		errs = append(errs, fmt.Errorf("remove dir: %w", err))
	}
	if len(errs) > 0 {
		return apperr.Collaborator("sandbox.release", errors.Join(errs...))
	}
	s.log.Sugar().Infow("workspace released", "workspace_id", id)
	return nil
}

// Run executes python code in the workspace. A run that exceeds the exec
// timeout returns a result with TimedOut set and an ErrTimeout error.
func (s *Sandbox) Run(ctx context.Context, workspaceID, code string) (model.RunResult, error) {
	return s.exec(ctx, "sandbox.run", workspaceID, []string{"python3", "-c", code}, s.opts.ExecTimeout)
}

// Install pip-installs pkg into the workspace under the install timeout.
func (s *Sandbox) Install(ctx context.Context, workspaceID, pkg string) (model.RunResult, error) {
	return s.exec(ctx, "sandbox.install", workspaceID,
		[]string{"python3", "-m", "pip", "install", "--quiet", "--disable-pip-version-check", pkg},
		s.opts.InstallTimeout)
}

func (s *Sandbox) exec(ctx context.Context, op, workspaceID string, cmd []string, timeout time.Duration) (model.RunResult, error) {
	s.mu.Lock()
	ws, ok := s.workspaces[workspaceID]
	s.mu.Unlock()
	if !ok {
		return model.RunResult{ExitCode: -1}, apperr.NotFound(op, "workspace", workspaceID)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := s.cli.ContainerExecCreate(execCtx, ws.containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return s.failed(op, execCtx, ctx, model.RunResult{ExitCode: -1}, fmt.Errorf("exec create: %w", err))
	}

	attach, err := s.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return s.failed(op, execCtx, ctx, model.RunResult{ExitCode: -1}, fmt.Errorf("exec attach: %w", err))
	}
	defer attach.Close()

	// the hijacked connection ignores ctx, so unblock the copy on deadline
	stop := context.AfterFunc(execCtx, func() { attach.Close() })
	defer stop()

	var stdout, stderr bytes.Buffer
	_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
	res := model.RunResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}
	if copyErr != nil || execCtx.Err() != nil {
		if copyErr == nil {
			copyErr = execCtx.Err()
		}
		return s.failed(op, execCtx, ctx, res, fmt.Errorf("exec read: %w", copyErr))
	}

	inspect, err := s.cli.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return s.failed(op, execCtx, ctx, res, fmt.Errorf("exec inspect: %w", err))
	}
	res.ExitCode = inspect.ExitCode
	return res, nil
}

// failed classifies an exec error: an expired exec deadline (while the
// caller's own context is still alive) is a timeout, anything else a
// collaborator failure.
func (s *Sandbox) failed(op string, execCtx, parent context.Context, res model.RunResult, err error) (model.RunResult, error) {
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		res.TimedOut = true
		s.log.Sugar().Warnw("sandbox exec timed out", "op", op)
		return res, apperr.Wrap(op, fmt.Errorf("%w: %w", apperr.ErrTimeout, err))
	}
	return res, apperr.Collaborator(op, err)
}

func (s *Sandbox) pull(ctx context.Context) error {
	reader, err := s.cli.ImagePull(ctx, s.opts.Image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close removes every live workspace and closes the docker client.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workspaces))
	for id := range s.workspaces {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range ids {
		if err := s.Release(ctx, id); err != nil {
			s.log.Sugar().Warnw("release workspace on close", "workspace_id", id, "err", err)
		}
	}
	return s.cli.Close()
}
