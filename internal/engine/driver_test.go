package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/rs/zerolog"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/Singleload/Singleload/internal/apperrors"
	"github.com/Singleload/Singleload/internal/model"
)

// fakeClient is a hand-rolled mock implementing the narrow APIClient
// interface, matching process-failed-successfully-recac's internal/docker
// test style.
type fakeClient struct {
	pingErr error

	inspectErr error

	createID  string
	createErr error

	startErr error

	waitStatus int64
	waitErr    error
	waitHang   bool

	stopCalled bool

	logsStdout string
	logsStderr string
	logsErr    error

	removeCalled bool
	removedIDs   []string
	removeErr    error

	listResult []dockertypes.Container
	listErr    error
}

func (f *fakeClient) Ping(ctx context.Context) (dockertypes.Ping, error) {
	return dockertypes.Ping{}, f.pingErr
}

func (f *fakeClient) ImageInspectWithRaw(ctx context.Context, imageID string) (dockertypes.ImageInspect, []byte, error) {
	return dockertypes.ImageInspect{}, nil, f.inspectErr
}

func (f *fakeClient) ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (dockertypes.ImageBuildResponse, error) {
	return dockertypes.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(`{"stream":"done\n"}`))}, nil
}

func (f *fakeClient) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig, platform *specs.Platform, name string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: f.createID}, nil
}

func (f *fakeClient) ContainerStart(ctx context.Context, id string, opts container.StartOptions) error {
	return f.startErr
}

func (f *fakeClient) ContainerWait(ctx context.Context, id string, cond container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	if f.waitHang {
		return statusCh, errCh
	}
	if f.waitErr != nil {
		errCh <- f.waitErr
		return statusCh, errCh
	}
	statusCh <- container.WaitResponse{StatusCode: f.waitStatus}
	return statusCh, errCh
}

func (f *fakeClient) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	f.stopCalled = true
	return nil
}

func (f *fakeClient) ContainerLogs(ctx context.Context, id string, opts container.LogsOptions) (io.ReadCloser, error) {
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return io.NopCloser(strings.NewReader(f.logsStdout + f.logsStderr)), nil
}

func (f *fakeClient) ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error {
	f.removeCalled = true
	f.removedIDs = append(f.removedIDs, id)
	return f.removeErr
}

func (f *fakeClient) ContainerList(ctx context.Context, opts container.ListOptions) ([]dockertypes.Container, error) {
	return f.listResult, f.listErr
}

func (f *fakeClient) Close() error { return nil }

func TestImageExistsTrue(t *testing.T) {
	d := NewWithClient(&fakeClient{}, zerolog.Nop())
	ok, err := d.ImageExists(context.Background(), "image")
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
}

func TestImageExistsFalseOnNotFound(t *testing.T) {
	d := NewWithClient(&fakeClient{inspectErr: notFoundErr{}}, zerolog.Nop())
	ok, err := d.ImageExists(context.Background(), "image")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected image to be reported absent")
	}
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "no such image" }
func (notFoundErr) NotFound()     {}

func TestCreateWrapsEngineError(t *testing.T) {
	d := NewWithClient(&fakeClient{createErr: errors.New("boom")}, zerolog.Nop())
	_, err := d.Create(context.Background(), model.ContainerSpec{Name: "c"})
	if !apperrors.Is(err, apperrors.KindContainer) {
		t.Fatalf("expected KindContainer, got %v", err)
	}
}

func TestWaitReturnsExitCode(t *testing.T) {
	d := NewWithClient(&fakeClient{waitStatus: 7}, zerolog.Nop())
	code, err := d.Wait(context.Background(), "c", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}

func TestWaitTimesOutAndStops(t *testing.T) {
	fc := &fakeClient{waitHang: true}
	d := NewWithClient(fc, zerolog.Nop())

	_, err := d.Wait(context.Background(), "c", 10*time.Millisecond)
	if !apperrors.Is(err, apperrors.KindTimeout) {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
	if !fc.stopCalled {
		t.Error("expected best-effort stop to be issued on timeout")
	}
}

func TestRemoveIsBestEffort(t *testing.T) {
	fc := &fakeClient{removeErr: errors.New("already gone")}
	d := NewWithClient(fc, zerolog.Nop())

	// Must not panic or otherwise propagate; Remove has no return value.
	d.Remove(context.Background(), "c")
	if !fc.removeCalled {
		t.Error("expected ContainerRemove to be called")
	}
}

func TestReapStaleKeepsOnlyMatchingPrefix(t *testing.T) {
	fc := &fakeClient{
		listResult: []dockertypes.Container{
			{ID: "a", Names: []string{"/singleload-abc"}, Created: 0},
			{ID: "b", Names: []string{"/other-container"}, Created: 0},
		},
	}
	d := NewWithClient(fc, zerolog.Nop())

	if err := d.ReapStale(context.Background(), "singleload"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.removedIDs) != 1 || fc.removedIDs[0] != "a" {
		t.Errorf("expected only the matching stale container \"a\" to be removed, removed %v", fc.removedIDs)
	}
}
