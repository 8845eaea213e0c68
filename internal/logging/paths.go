package logging

import (
	"os"
	"path/filepath"
)

// LogDirEnv overrides the log directory.
const LogDirEnv = "RAGINDEX_LOG_DIR"

// DefaultLogDir returns $RAGINDEX_LOG_DIR, else ~/.ragindex/logs, or a
// temp-dir fallback when the home directory cannot be resolved.
func DefaultLogDir() string {
	if dir := os.Getenv(LogDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragindex", "logs")
	}
	return filepath.Join(home, ".ragindex", "logs")
}

// DefaultLogPath returns the main log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "ragindex.log")
}
