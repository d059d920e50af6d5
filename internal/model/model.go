// Package model holds the plain data types shared across Singleload's
// pipeline stages: the inbound request, the resolved container spec,
// and the outbound execution record.
package model

import "time"

// ScriptRequest is the request to execute one script. Language is the
// external tag that the executor decodes with catalog.ParseLanguage;
// the executor checks ScriptPath and the script's bytes through
// internal/validator. The numeric fields are not checked by the
// executor; the CLI checks their bounds before building the request.
type ScriptRequest struct {
	Language    string        `json:"language"`
	ScriptPath  string        `json:"script_path"`
	Timeout     time.Duration `json:"timeout"`
	MemoryMB    int           `json:"memory_mb"`
	CPULimit    float64       `json:"cpu_limit"`
	MaxOutputKB int           `json:"max_output_kb"`
	Debug       bool          `json:"debug"`
}

// Mount is a single bind mount applied to a container, host path to
// in-container path, always read-only in this system.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ContainerSpec is the fully resolved, deterministic-except-for-name
// description of the container the policy builder produces and the
// engine driver creates.
type ContainerSpec struct {
	Name            string
	Image           string
	Cmd             []string
	Env             []string
	Mounts          []Mount
	WorkingDir      string
	User            string
	ReadOnlyRootfs  bool
	CapDrop         []string
	NetworkDisabled bool
	MemoryBytes     int64
	CPUShares       int64
	PidsLimit       int64
	SeccompProfile  string
	NoNewPrivileges bool
	AutoRemove      bool
}

// ExecutionRecord is the single return value of a run: stdout/stderr,
// exit status, and classification of how the run ended.
type ExecutionRecord struct {
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Truncated  bool      `json:"truncated,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Execution status values, closed at the taxonomy level in apperrors but
// surfaced here as the literal strings the record's JSON output carries.
const (
	StatusSuccess = "success"
	StatusFailure = "failed"
	StatusTimeout = "timeout"
	StatusError   = "error"
)
