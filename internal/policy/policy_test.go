package policy

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Singleload/Singleload/internal/catalog"
	"github.com/Singleload/Singleload/internal/model"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder("singleload")
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBuildProducesNonDebugIsolationInvariants(t *testing.T) {
	b := newTestBuilder(t)

	req := model.ScriptRequest{MemoryMB: 512, CPULimit: 1.0, Debug: false}
	spec := b.Build(catalog.Python, "localhost/singleload-runner:latest", "/tmp/ws", req)

	if !spec.NetworkDisabled {
		t.Error("expected network disabled")
	}
	if !spec.ReadOnlyRootfs {
		t.Error("expected read-only root for non-debug request")
	}
	if len(spec.CapDrop) != 1 || spec.CapDrop[0] != "ALL" {
		t.Errorf("expected cap_drop=[ALL], got %v", spec.CapDrop)
	}
	if !strings.HasPrefix(spec.User, "65532:") {
		t.Errorf("expected user to begin with 65532:, got %q", spec.User)
	}
	if !spec.AutoRemove {
		t.Error("expected auto-remove for non-debug request")
	}
}

func TestBuildDebugRelaxesRetentionAndReadOnly(t *testing.T) {
	b := newTestBuilder(t)

	req := model.ScriptRequest{MemoryMB: 512, CPULimit: 1.0, Debug: true}
	spec := b.Build(catalog.Bash, "image", "/tmp/ws", req)

	if spec.ReadOnlyRootfs {
		t.Error("expected read-only root to be disabled under debug retention")
	}
	if spec.AutoRemove {
		t.Error("expected auto-remove to be disabled under debug retention")
	}
	// Network stays disabled even under debug — isolation invariant I1.
	if !spec.NetworkDisabled {
		t.Error("expected network to remain disabled under debug retention")
	}
}

func TestBuildIsDeterministicExceptName(t *testing.T) {
	b := newTestBuilder(t)
	req := model.ScriptRequest{MemoryMB: 256, CPULimit: 0.5, Debug: false}

	a := b.Build(catalog.Go, "image", "/tmp/ws", req)
	c := b.Build(catalog.Go, "image", "/tmp/ws", req)

	if a.Name == c.Name {
		t.Error("expected distinct random container names across builds")
	}
	a.Name, c.Name = "", ""
	if !reflect.DeepEqual(a, c) {
		t.Error("expected byte-identical specs except container name")
	}
}

func TestBuildMountsWorkspaceReadOnly(t *testing.T) {
	b := newTestBuilder(t)
	req := model.ScriptRequest{MemoryMB: 128, CPULimit: 1.0}
	spec := b.Build(catalog.PHP, "image", "/tmp/ws-abc", req)

	if len(spec.Mounts) != 1 {
		t.Fatalf("expected exactly one mount, got %d", len(spec.Mounts))
	}
	m := spec.Mounts[0]
	if m.ContainerPath != "/workspace" || !m.ReadOnly {
		t.Errorf("expected read-only mount at /workspace, got %+v", m)
	}
}

func TestCPUSharesRounding(t *testing.T) {
	b := newTestBuilder(t)
	req := model.ScriptRequest{MemoryMB: 128, CPULimit: 1.0}
	spec := b.Build(catalog.Python, "image", "/tmp/ws", req)

	if spec.CPUShares != 1024 {
		t.Errorf("CPUShares = %d, want 1024", spec.CPUShares)
	}
}
