// Package executor is the single entry point that orchestrates the
// catalog, validator, policy builder, and engine driver end-to-end for
// one request: owns the scoped workspace, the timeout, output capping,
// and cleanup on every exit path.
package executor

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Singleload/Singleload/internal/apperrors"
	"github.com/Singleload/Singleload/internal/catalog"
	"github.com/Singleload/Singleload/internal/config"
	"github.com/Singleload/Singleload/internal/engine"
	"github.com/Singleload/Singleload/internal/model"
	"github.com/Singleload/Singleload/internal/policy"
	"github.com/Singleload/Singleload/internal/validator"
	"github.com/Singleload/Singleload/internal/workspace"
)

const truncationSuffix = "... [truncated]"

// Executor composes the pipeline. It holds no mutable shared state
// beyond references to the shared driver and policy builder (both safe
// for concurrent use), so Executor.Run is reentrant across goroutines.
type Executor struct {
	driver  *engine.Driver
	builder *policy.Builder
	cfg     config.Config
	log     zerolog.Logger
}

// New constructs an Executor from its already-initialized collaborators.
func New(driver *engine.Driver, builder *policy.Builder, cfg config.Config, log zerolog.Logger) *Executor {
	return &Executor{driver: driver, builder: builder, cfg: cfg, log: log}
}

// Run executes one request end-to-end per spec §4.E steps 1-12,
// returning an ExecutionRecord on every path — including validation,
// precondition, and engine failures, which are reported as
// status="error" records rather than Go errors.
func (e *Executor) Run(ctx context.Context, req model.ScriptRequest) model.ExecutionRecord {
	started := time.Now()

	lang, err := catalog.ParseLanguage(req.Language)
	if err != nil {
		return e.errorRecord(started, err)
	}

	if err := validator.ValidatePath(req.ScriptPath, e.cfg.AllowedScriptExtensions); err != nil {
		return e.errorRecord(started, err)
	}

	content, err := os.ReadFile(req.ScriptPath)
	if err != nil {
		return e.errorRecord(started, apperrors.Wrap(apperrors.KindInvalidInput, "read script", err))
	}

	if err := validator.ValidateContent(content, e.log); err != nil {
		return e.errorRecord(started, err)
	}

	ws, err := workspace.New(e.cfg.WorkspaceDir, lang.Extension(), content)
	if err != nil {
		return e.errorRecord(started, err)
	}
	defer func() {
		if cleanupErr := ws.Cleanup(); cleanupErr != nil {
			e.log.Warn().Err(cleanupErr).Str("workspace", ws.Dir).Msg("workspace cleanup failed")
		}
	}()

	spec := e.builder.Build(lang, e.cfg.BaseImageName, ws.Dir, req)
	e.log.Debug().Str("container", spec.Name).Str("language", lang.String()).Msg("container spec built")

	exists, err := e.driver.ImageExists(ctx, e.cfg.BaseImageName)
	if err != nil {
		return e.errorRecord(started, err)
	}
	if !exists {
		return e.errorRecord(started, apperrors.New(apperrors.KindBaseImageNotFound, "Base image not found: "+e.cfg.BaseImageName))
	}

	containerID, err := e.driver.Create(ctx, spec)
	if err != nil {
		return e.errorRecord(started, err)
	}

	record := e.runContainer(ctx, containerID, req.Timeout, req.Debug, started)

	stdout, stderr, truncated := applyOutputCap(record.stdout, record.stderr, req.MaxOutputKB*1024)
	record.stdout, record.stderr, record.truncated = stdout, stderr, truncated

	if !req.Debug {
		e.driver.Remove(ctx, containerID)
	} else {
		e.log.Info().Str("container", containerID).Msg("container kept for debugging")
	}

	return e.finalRecord(started, record)
}

type runResult struct {
	exitCode  int64
	stdout    string
	stderr    string
	truncated bool
	execErr   error
}

func (e *Executor) runContainer(ctx context.Context, containerID string, timeout time.Duration, debug bool, started time.Time) runResult {
	if err := e.driver.Start(ctx, containerID); err != nil {
		if !debug {
			e.driver.Remove(ctx, containerID)
		}
		return runResult{execErr: err}
	}

	exitCode, err := e.driver.Wait(ctx, containerID, timeout)
	if err != nil {
		if !debug {
			e.driver.Remove(ctx, containerID)
		}
		return runResult{execErr: err}
	}

	stdout, stderr, err := e.driver.Logs(ctx, containerID)
	if err != nil {
		if !debug {
			e.driver.Remove(ctx, containerID)
		}
		return runResult{execErr: err}
	}

	return runResult{exitCode: exitCode, stdout: stdout, stderr: stderr}
}

// finalRecord converts a runResult into the terminal ExecutionRecord,
// choosing status per spec §4.E step 12 / §3 invariant I4.
func (e *Executor) finalRecord(started time.Time, r runResult) model.ExecutionRecord {
	finished := time.Now()
	duration := finished.Sub(started).Milliseconds()

	if r.execErr != nil {
		return model.ExecutionRecord{
			Status:     model.StatusError,
			ExitCode:   1,
			DurationMs: duration,
			Error:      r.execErr.Error(),
			StartedAt:  started,
			FinishedAt: finished,
		}
	}

	status := model.StatusSuccess
	if r.exitCode != 0 {
		status = model.StatusFailure
	}

	return model.ExecutionRecord{
		Status:     status,
		ExitCode:   int(r.exitCode),
		Stdout:     r.stdout,
		Stderr:     r.stderr,
		Truncated:  r.truncated,
		DurationMs: duration,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

func (e *Executor) errorRecord(started time.Time, err error) model.ExecutionRecord {
	finished := time.Now()
	e.log.Error().Err(err).Msg("request failed")
	return model.ExecutionRecord{
		Status:     model.StatusError,
		ExitCode:   1,
		DurationMs: finished.Sub(started).Milliseconds(),
		Error:      err.Error(),
		StartedAt:  started,
		FinishedAt: finished,
	}
}

// applyOutputCap truncates each stream independently to capBytes,
// appending the literal suffix and setting truncated when a stream was
// shortened (spec §4.E step 9 / invariant I5).
func applyOutputCap(stdout, stderr string, capBytes int) (string, string, bool) {
	truncated := false

	cappedOut := stdout
	if len(stdout) > capBytes {
		cappedOut = stdout[:capBytes] + truncationSuffix
		truncated = true
	}

	cappedErr := stderr
	if len(stderr) > capBytes {
		cappedErr = stderr[:capBytes] + truncationSuffix
		truncated = true
	}

	return cappedOut, cappedErr, truncated
}
