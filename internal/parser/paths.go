package parser

import (
	"path/filepath"
	"strings"
)

// ProjectDirName encodes a working directory into the flattened directory
// name used under the transcript root: slashes become dashes with a single
// leading dash.
func ProjectDirName(workingDir string) string {
	name := strings.ReplaceAll(workingDir, "/", "-")
	return "-" + strings.TrimLeft(name, "-")
}

// WorkingDirFromProjectDir reverses ProjectDirName: leading dashes are
// stripped before decoding so the result is always rooted exactly once. The
// encoding is lossy for paths that contain dashes, so this is a best-effort
// guess used only when the transcript itself carries no cwd.
func WorkingDirFromProjectDir(projectDir string) string {
	stripped := strings.TrimLeft(projectDir, "-")
	return "/" + strings.ReplaceAll(stripped, "-", "/")
}

// ProjectName returns the display name of a working directory.
func ProjectName(workingDir string) string {
	if workingDir == "" {
		return "unknown"
	}
	base := filepath.Base(workingDir)
	if base == "" || base == "/" || base == "." {
		return "unknown"
	}
	return base
}
