// Package pathutil resolves plantsim's on-disk locations and keeps full paths out of
// user-facing messages.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DataDirName is the per-user directory holding config and history.
const DataDirName = ".plantsim"

// DataDir returns ~/.plantsim.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DataDirName), nil
}

// EnsureDataDir creates ~/.plantsim if it doesn't exist and returns its path.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", RedactPath(dir), err)
	}
	return dir, nil
}

// ExpandHome replaces a leading "~" with the user's home directory. Other paths are
// returned cleaned.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		if path == "" {
			return "", nil
		}
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.plantsim/history.db" becomes ".../.plantsim/history.db".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}
