// Package engine is the thin adapter over the container engine's remote
// API: image presence, create, start, wait-with-deadline, fetch logs,
// remove, and reap-stale. It assumes nothing about the engine beyond
// the documented Docker-compatible endpoints it calls — the same
// socket-based technique reaches a Podman daemon because Podman serves
// a Docker-compatible API on the same endpoint.
package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/Singleload/Singleload/internal/apperrors"
	"github.com/Singleload/Singleload/internal/model"
)

// APIClient is the narrow subset of the Docker client this driver
// calls, so the Driver is mockable in tests without a live engine.
type APIClient interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (dockertypes.ImageInspect, []byte, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (dockertypes.ImageBuildResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]dockertypes.Container, error)
	Close() error
}

// Driver wraps a live container engine client.
type Driver struct {
	api APIClient
	log zerolog.Logger
}

// NewWithClient wraps an already-constructed APIClient, used by tests to
// inject a mock without touching a live engine.
func NewWithClient(api APIClient, log zerolog.Logger) *Driver {
	return &Driver{api: api, log: log}
}

// New connects to the engine at socketHost (e.g.
// "unix:///run/user/1000/podman/podman.sock") and issues the
// construction-time liveness probe the spec requires: failure here
// surfaces immediately and is never retried.
func New(ctx context.Context, socketHost string, log zerolog.Logger) (*Driver, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(socketHost),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindContainer, "create engine client", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, apperrors.Wrap(apperrors.KindContainer, "engine liveness probe failed", err)
	}

	return &Driver{api: cli, log: log}, nil
}

// Close releases the underlying client connection.
func (d *Driver) Close() error {
	return d.api.Close()
}

// ImageExists reports whether name is present locally. A not-found
// error is translated to (false, nil); any other engine error
// propagates.
func (d *Driver) ImageExists(ctx context.Context, name string) (bool, error) {
	_, _, err := d.api.ImageInspectWithRaw(ctx, name)
	if err == nil {
		return true, nil
	}
	if dockerclient.IsErrNotFound(err) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.KindContainer, "inspect image", err)
}

// BuildImage builds name from containerfileContent unless force is
// false and the image already exists, in which case it is a no-op. The
// build context is a throwaway single-file tar archive containing the
// Containerfile under the literal name "Containerfile".
func (d *Driver) BuildImage(ctx context.Context, containerfileContent []byte, name string, force bool) error {
	if !force {
		exists, err := d.ImageExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	buildContext, err := tarSingleFile("Containerfile", containerfileContent)
	if err != nil {
		return apperrors.Wrap(apperrors.KindContainer, "build context assembly", err)
	}

	resp, err := d.api.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Dockerfile:  "Containerfile",
		Tags:        []string{name},
		PullParent:  true,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindContainer, "start image build", err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return apperrors.Wrap(apperrors.KindContainer, "decode build stream", err)
		}
		if msg.Stream != "" {
			d.log.Debug().Str("build", strings.TrimSpace(msg.Stream)).Msg("image build")
		}
		if msg.Error != nil {
			return apperrors.New(apperrors.KindContainer, "build error: "+msg.Error.Message)
		}
	}

	return nil
}

// Create creates (but does not start) a container from spec.
func (d *Driver) Create(ctx context.Context, spec model.ContainerSpec) (string, error) {
	mounts := make([]container.Mount, 0, len(spec.Mounts)+1)
	for _, m := range spec.Mounts {
		mounts = append(mounts, container.Mount{
			Type:     container.TypeBind,
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
			BindOptions: &container.BindOptions{
				Propagation: container.PropagationRPrivate,
			},
		})
	}

	tmpfsSize := int64(100 * 1024 * 1024)
	mounts = append(mounts, container.Mount{
		Type:   container.TypeTmpfs,
		Target: "/tmp",
		TmpfsOptions: &container.TmpfsOptions{
			SizeBytes: tmpfsSize,
		},
	})

	containerCfg := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		Env:             spec.Env,
		User:            spec.User,
		NetworkDisabled: spec.NetworkDisabled,
	}

	pidsLimit := spec.PidsLimit
	hostCfg := &container.HostConfig{
		AutoRemove:     spec.AutoRemove,
		ReadonlyRootfs: spec.ReadOnlyRootfs,
		CapDrop:        spec.CapDrop,
		SecurityOpt: []string{
			"no-new-privileges",
			"seccomp=" + spec.SeccompProfile,
		},
		Resources: container.Resources{
			Memory:    spec.MemoryBytes,
			CPUShares: spec.CPUShares,
			PidsLimit: &pidsLimit,
		},
		Mounts: mounts,
	}

	resp, err := d.api.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindContainer, "create container", err)
	}
	return resp.ID, nil
}

// Start starts a previously created container.
func (d *Driver) Start(ctx context.Context, id string) error {
	if err := d.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return apperrors.Wrap(apperrors.KindContainer, "start container", err)
	}
	return nil
}

// Wait blocks until the container exits or deadline elapses, enforced
// on the caller's clock rather than the engine's. On expiry it issues a
// best-effort stop and returns a Timeout error; the caller still owns
// cleanup.
func (d *Driver) Wait(ctx context.Context, id string, deadline time.Duration) (int64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	statusCh, errCh := d.api.ContainerWait(waitCtx, id, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		if waitCtx.Err() == context.DeadlineExceeded {
			d.stopBestEffort(id)
			return 0, apperrors.New(apperrors.KindTimeout, "execution timeout exceeded")
		}
		return 0, apperrors.Wrap(apperrors.KindContainer, "container wait failed", err)
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-waitCtx.Done():
		d.stopBestEffort(id)
		return 0, apperrors.New(apperrors.KindTimeout, "execution timeout exceeded")
	}
}

func (d *Driver) stopBestEffort(id string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.api.ContainerStop(stopCtx, id, container.StopOptions{}); err != nil {
		d.log.Warn().Err(err).Str("container", id).Msg("best-effort stop failed")
	}
}

// Logs fetches and demultiplexes a container's combined log stream into
// independent stdout/stderr buffers via stdcopy, achieving the same
// two-stream separation contract the spec's line-prefix description
// names.
func (d *Driver) Logs(ctx context.Context, id string) (stdout, stderr string, err error) {
	reader, err := d.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.KindContainer, "fetch container logs", err)
	}
	defer reader.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil {
		return "", "", apperrors.Wrap(apperrors.KindContainer, "demultiplex container logs", err)
	}

	return strings.TrimRight(outBuf.String(), "\n"), strings.TrimRight(errBuf.String(), "\n"), nil
}

// Remove is best-effort: errors are logged but never propagated.
func (d *Driver) Remove(ctx context.Context, id string) {
	if err := d.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		d.log.Warn().Err(err).Str("container", id).Msg("failed to remove container")
	}
}

// ReapStale lists all containers (including stopped), keeps only those
// whose name begins with "/<prefix>-", and removes any whose creation
// time is more than one hour in the past. Idempotent; safe to run
// concurrently with live requests.
func (d *Driver) ReapStale(ctx context.Context, prefix string) error {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return apperrors.Wrap(apperrors.KindContainer, "list containers for reap", err)
	}

	cutoff := time.Now().Add(-1 * time.Hour).Unix()
	namePrefix := "/" + prefix + "-"

	for _, c := range containers {
		if !hasMatchingName(c.Names, namePrefix) {
			continue
		}
		if c.Created > cutoff {
			continue
		}
		d.Remove(ctx, c.ID)
	}

	return nil
}

func hasMatchingName(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

func tarSingleFile(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
