// Package sandbox maps the shared-sandbox model onto the Docker SDK: one
// long-lived container plays the role of the sandbox VM, and docker exec
// sessions play the role of the individual agent OS processes running
// inside it.
package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
)

// MountConfig is a single bind mount for the shared sandbox container.
type MountConfig struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerConfig configures the one shared sandbox container.
type ContainerConfig struct {
	Name   string
	Image  string
	Cmd    []string
	Env    []string
	Mounts []MountConfig
	Memory int64
}

// ExecResult is the outcome of a one-shot command run inside the sandbox.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Error    bool
}

// dockerClient wraps the Docker SDK with exactly the operations the
// sandbox orchestrator needs: one container lifecycle, plus per-agent
// exec sessions inside it.
type dockerClient struct {
	cli    *client.Client
	logger *logger.Logger
}

func newDockerClient(cfg config.DockerConfig, log *logger.Logger) (*dockerClient, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}

	return &dockerClient{cli: cli, logger: log.WithFields(zap.String("component", "sandbox-docker"))}, nil
}

func (d *dockerClient) Close() error {
	return d.cli.Close()
}

func (d *dockerClient) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *dockerClient) pullImage(ctx context.Context, imageName string) error {
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("sandbox: pull image %s: %w", imageName, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// createSandboxContainer creates and starts the one shared sandbox
// container, pulling its image first.
func (d *dockerClient) createSandboxContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	if err := d.pullImage(ctx, cfg.Image); err != nil {
		d.logger.Warn("image pull failed, assuming already present locally", zap.Error(err))
	}

	mounts := make([]mount.Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	containerCfg := &container.Config{
		Image: cfg.Image,
		Cmd:   cfg.Cmd,
		Env:   cfg.Env,
		Tty:   false,
	}
	hostCfg := &container.HostConfig{
		Mounts:     mounts,
		AutoRemove: false,
		Resources:  container.Resources{Memory: cfg.Memory},
	}

	resp, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}

	return resp.ID, nil
}

func (d *dockerClient) pauseContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerPause(ctx, containerID)
}

func (d *dockerClient) unpauseContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerUnpause(ctx, containerID)
}

func (d *dockerClient) stopAndRemoveContainer(ctx context.Context, containerID string) error {
	timeoutSeconds := 10
	_ = d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds})
	return d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// chunkWriter adapts a "chunk arrived" callback to io.Writer so it can sit
// on the receiving end of stdcopy's stdout/stderr demultiplexing.
type chunkWriter struct {
	buf []byte
	on  func(chunk string)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if w.on != nil {
		w.on(string(p))
	}
	return len(p), nil
}

// execOneShot runs command inside the shared container as a one-off
// process (the realization of "one agent OS process"), streaming stdout
// and stderr chunk-wise to the supplied handlers, and returns the final
// exit code plus buffered output. A nil onStdout/onStderr is valid.
func (d *dockerClient) execOneShot(ctx context.Context, containerID string, cmd []string, env []string, onStdout, onStderr func(chunk string)) (ExecResult, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := d.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: exec create: %w", err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: exec attach: %w", err)
	}
	defer attach.Close()

	stdout := &chunkWriter{on: onStdout}
	stderr := &chunkWriter{on: onStderr}
	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil && err != io.EOF {
		return ExecResult{}, fmt.Errorf("sandbox: exec read: %w", err)
	}

	if ctx.Err() != nil {
		return ExecResult{Error: true}, ctx.Err()
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: exec inspect: %w", err)
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   string(stdout.buf),
		Stderr:   string(stderr.buf),
		Error:    inspect.ExitCode != 0,
	}, nil
}

// killProcessByPattern best-effort terminates every process inside the
// shared container whose command line contains pattern, by running
// `pkill -f -- pattern` as a one-shot exec — the closest available analogue
// to per-process kill, since the Docker SDK exposes no "kill this one exec
// session" call. The "--" keeps a pattern that starts with "-" from being
// read as a pkill option.
func (d *dockerClient) killProcessByPattern(ctx context.Context, containerID, pattern string) error {
	res, err := d.execOneShot(ctx, containerID, []string{"pkill", "-f", "--", pattern}, nil, nil, nil)
	if err != nil {
		return err
	}
	// pkill exits 1 when no process matched; that is not an error here.
	if res.ExitCode > 1 {
		return fmt.Errorf("sandbox: pkill -f %q exited %d", pattern, res.ExitCode)
	}
	return nil
}
