// Package config loads Singleload's process configuration once at
// startup. There is no global singleton: Load returns an immutable
// Config value that callers thread through explicitly.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/Singleload/Singleload/internal/apperrors"
)

// Config is the fully resolved process configuration: fixed defaults
// overridden by the three recognized environment variables.
type Config struct {
	BaseImageName           string
	PodmanSocket            string
	ContainerPrefix         string
	WorkspaceDir            string
	MaxConcurrentContainers int
	DefaultTimeoutSecs      int
	DefaultMemoryMB         int
	DefaultCPULimit         float64
	DefaultOutputLimitKB    int
	AllowedScriptExtensions []string
	// StrictContentScan is defaulted false and no recognized environment
	// variable sets it in this build. Nothing reads it: internal/validator's
	// suspicious-substring scan is warning-only whatever its value; see
	// SPEC_FULL.md §4.B.
	StrictContentScan bool
}

// Load reads the three recognized environment variables over a set of
// fixed defaults matching the original implementation's Config::default,
// and ensures the workspace directory exists.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SINGLELOAD")
	v.AutomaticEnv()

	uid := os.Getenv("UID")
	if uid == "" {
		uid = "1000"
	}

	v.SetDefault("podman_socket", fmt.Sprintf("unix:///run/user/%s/podman/podman.sock", uid))
	v.SetDefault("base_image", "localhost/singleload-runner:latest")

	cfg := Config{
		BaseImageName:           v.GetString("base_image"),
		PodmanSocket:            v.GetString("podman_socket"),
		ContainerPrefix:         "singleload",
		WorkspaceDir:            "/tmp/singleload",
		MaxConcurrentContainers: 10,
		DefaultTimeoutSecs:      30,
		DefaultMemoryMB:         512,
		DefaultCPULimit:         1.0,
		DefaultOutputLimitKB:    1024,
		AllowedScriptExtensions: []string{".py", ".js", ".php", ".go", ".rs", ".sh", ".cs"},
		StrictContentScan:       false,
	}

	if err := os.MkdirAll(cfg.WorkspaceDir, 0o700); err != nil {
		return Config{}, apperrors.Wrap(apperrors.KindInvalidInput, "create workspace directory", err)
	}

	return cfg, nil
}

// Validate checks the numeric bounds spec.md implies on ScriptRequest
// defaults, matching original_source/src/config.rs's Config::validate.
func (c Config) Validate() error {
	if c.MaxConcurrentContainers <= 0 {
		return apperrors.New(apperrors.KindInvalidInput, "max_concurrent_containers must be greater than 0")
	}
	if c.DefaultTimeoutSecs <= 0 || c.DefaultTimeoutSecs > 3600 {
		return apperrors.New(apperrors.KindInvalidInput, "default_timeout_secs must be between 1 and 3600")
	}
	if c.DefaultMemoryMB < 32 || c.DefaultMemoryMB > 8192 {
		return apperrors.New(apperrors.KindInvalidInput, "default_memory_mb must be between 32 and 8192")
	}
	if c.DefaultCPULimit < 0.1 || c.DefaultCPULimit > 4.0 {
		return apperrors.New(apperrors.KindInvalidInput, "default_cpu_limit must be between 0.1 and 4.0")
	}
	return nil
}
