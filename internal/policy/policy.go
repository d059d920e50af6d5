// Package policy builds the ContainerSpec that is the entire isolation
// contract for one request: mounts, env, limits, security options, and
// syscall filter. Two identical requests produce byte-identical specs
// except for the random container name.
package policy

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/Singleload/Singleload/internal/apperrors"
	"github.com/Singleload/Singleload/internal/catalog"
	"github.com/Singleload/Singleload/internal/model"
)

// nonRootUser is the fixed non-root uid:gid every container runs as.
const nonRootUser = "65532:65532"

const pidsLimit = 100

const tmpfsSizeMB = 100

// Builder materializes the default seccomp profile once and reuses its
// path for every ContainerSpec it builds.
type Builder struct {
	containerPrefix string
	seccompDir      string
	seccompPath     string
}

// NewBuilder writes the default seccomp profile to a scoped temp
// directory (kept separate from any request's workspace, so the
// workspace's single-file invariant holds) and returns a Builder ready
// to produce specs.
func NewBuilder(containerPrefix string) (*Builder, error) {
	dir, err := os.MkdirTemp("", "singleload-seccomp-*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "create seccomp profile directory", err)
	}

	profile, err := defaultSeccompProfileJSON()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "marshal seccomp profile", err)
	}

	path := filepath.Join(dir, "seccomp.json")
	if err := os.WriteFile(path, profile, 0o444); err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "write seccomp profile", err)
	}

	return &Builder{containerPrefix: containerPrefix, seccompDir: dir, seccompPath: path}, nil
}

// Close removes the builder's seccomp profile directory. Call once at
// process shutdown; the profile is shared across every request's spec.
func (b *Builder) Close() error {
	if b == nil {
		return nil
	}
	return os.RemoveAll(b.seccompDir)
}

// Build produces the ContainerSpec for one validated request. The
// workspace directory is bind-mounted read-only at /workspace; the
// in-container script path feeds the catalog recipe that supplies argv
// and env additions.
func (b *Builder) Build(lang catalog.Language, image, workspaceDir string, req model.ScriptRequest) model.ContainerSpec {
	containerScriptPath := "/workspace/script" + lang.Extension()
	recipe := lang.BuildRecipe(containerScriptPath)

	env := []string{
		"HOME=/tmp",
		"USER=nonroot",
		"PATH=/usr/local/bin:/usr/bin:/bin",
	}
	recipeKeys := make([]string, 0, len(recipe.Env))
	for k := range recipe.Env {
		recipeKeys = append(recipeKeys, k)
	}
	sort.Strings(recipeKeys)
	for _, k := range recipeKeys {
		env = append(env, k+"="+recipe.Env[k])
	}

	readOnlyRoot := !req.Debug
	autoRemove := !req.Debug

	return model.ContainerSpec{
		Name:  b.containerPrefix + "-" + uuid.New().String(),
		Image: image,
		Cmd:   recipe.Argv,
		Env:   env,
		Mounts: []model.Mount{
			{HostPath: workspaceDir, ContainerPath: "/workspace", ReadOnly: true},
		},
		User:            nonRootUser,
		ReadOnlyRootfs:  readOnlyRoot,
		CapDrop:         []string{"ALL"},
		NetworkDisabled: true,
		MemoryBytes:     int64(req.MemoryMB) * 1024 * 1024,
		CPUShares:       int64(req.CPULimit*1024 + 0.5),
		PidsLimit:       pidsLimit,
		SeccompProfile:  b.seccompPath,
		NoNewPrivileges: true,
		AutoRemove:      autoRemove,
	}
}
