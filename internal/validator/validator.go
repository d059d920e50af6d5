// Package validator is the fail-closed gatekeeper between an external
// request and the execution pipeline: path shape, size, traversal, and
// content are all checked here before anything touches the container
// engine.
package validator

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Singleload/Singleload/internal/apperrors"
)

const maxFileSizeBytes = 10 * 1024 * 1024

// forbiddenExtensions are rejected even when present in an allow-list,
// since they name native-code loading formats.
var forbiddenExtensions = map[string]bool{
	".so": true, ".dll": true, ".dylib": true, ".ko": true, ".sys": true,
}

// suspiciousSubstrings is the warning-only advisory scan list. Matches
// are logged, never blocking — the container policy is the enforcement
// layer (spec §4.B).
var suspiciousSubstrings = []string{
	"/proc/self/",
	"/sys/kernel/",
	"LD_PRELOAD",
	"LD_LIBRARY_PATH",
	"/etc/passwd",
	"/etc/shadow",
	"chmod +s",
	"setuid",
	"CAP_SYS_ADMIN",
}

// forbiddenMountPrefixes names system directories that must never be
// bind-mounted into a container by the host-mount sanitizer.
var forbiddenMountPrefixes = []string{
	"/proc", "/sys", "/dev", "/etc", "/root", "/boot",
	"/lib", "/lib64", "/usr/lib", "/usr/lib64",
}

// ValidatePath checks path exists, is a regular file, carries an
// allowed extension, is under the size cap, and canonicalizes clean
// (no ".." component, <=10 path components after canonicalization).
func ValidatePath(path string, allowedExtensions []string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.New(apperrors.KindScriptNotFound, "script path does not exist: "+path)
		}
		return apperrors.Wrap(apperrors.KindInvalidInput, "stat script path", err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInvalidInput, "resolve symlink", err)
		}
		target, err := os.Stat(resolved)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInvalidInput, "stat symlink target", err)
		}
		if target.IsDir() {
			return apperrors.New(apperrors.KindInvalidInput, "path must be a file, not a directory")
		}
	} else if info.IsDir() {
		return apperrors.New(apperrors.KindInvalidInput, "path must be a file, not a directory")
	}

	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidInput, "canonicalize path", err)
	}
	canonical = filepath.Clean(canonical)

	resolvedInfo, err := os.Stat(canonical)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidInput, "stat canonical path", err)
	}
	if !resolvedInfo.Mode().IsRegular() {
		return apperrors.New(apperrors.KindInvalidInput, "path must be a regular file")
	}

	// Extension and allow-list checks run against the canonicalized
	// path, not the original: a symlink named with an allowed extension
	// but resolving to a forbidden one must not slip through.
	ext := strings.ToLower(filepath.Ext(canonical))
	if forbiddenExtensions[ext] {
		return apperrors.New(apperrors.KindInvalidInput, "file extension '"+ext+"' is forbidden")
	}
	if !contains(allowedExtensions, ext) {
		return apperrors.New(apperrors.KindInvalidInput, "file extension '"+ext+"' not allowed")
	}

	size, err := fileSize(canonical)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidInput, "stat script size", err)
	}
	if size > maxFileSizeBytes {
		return apperrors.New(apperrors.KindInvalidInput, "file size exceeds maximum allowed size")
	}

	if hasTraversal(canonical) {
		return apperrors.New(apperrors.KindSecurityViolation, "path traversal detected")
	}
	if countComponents(canonical) > 10 {
		return apperrors.New(apperrors.KindSecurityViolation, "path has too many components")
	}

	return nil
}

// ValidateContent rejects null bytes and logs (never blocks) any
// suspicious substring match via the supplied logger.
func ValidateContent(content []byte, log zerolog.Logger) error {
	if bytes.IndexByte(content, 0) != -1 {
		return apperrors.New(apperrors.KindSecurityViolation, "script contains null bytes")
	}

	s := string(content)
	for _, pattern := range suspiciousSubstrings {
		if strings.Contains(s, pattern) {
			log.Warn().Str("pattern", pattern).Msg("suspicious pattern detected in script content")
		}
	}

	return nil
}

// SanitizeMountPath canonicalizes path and rejects any target whose
// canonical form begins with a forbidden system-directory prefix. Used
// by callers wishing to bind-mount an arbitrary host directory; the
// executor itself never calls this for its own scoped workspace.
func SanitizeMountPath(path string) (string, error) {
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInvalidInput, "invalid mount path", err)
	}
	canonical = filepath.Clean(canonical)

	for _, prefix := range forbiddenMountPrefixes {
		if canonical == prefix || strings.HasPrefix(canonical, prefix+string(os.PathSeparator)) {
			return "", apperrors.New(apperrors.KindSecurityViolation, "cannot mount system directory: "+prefix)
		}
	}

	return canonical, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func hasTraversal(path string) bool {
	for _, part := range strings.Split(path, string(os.PathSeparator)) {
		if part == ".." {
			return true
		}
	}
	return false
}

func countComponents(path string) int {
	parts := strings.Split(path, string(os.PathSeparator))
	n := 0
	for _, part := range parts {
		if part != "" {
			n++
		}
	}
	return n
}
