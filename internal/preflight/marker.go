package preflight

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/ragindex/pkg/version"
)

// MarkerFile records the last passing run inside the data directory.
const MarkerFile = ".preflight-passed"

type marker struct {
	PassedAt time.Time `json:"passed_at"`
	Version  string    `json:"version"`
}

func readMarker(dataDir string) (marker, bool) {
	var m marker
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil || json.Unmarshal(data, &m) != nil {
		return marker{}, false
	}
	return m, true
}

// NeedsCheck reports whether the checks have not passed yet with this
// build of ragindex.
func NeedsCheck(dataDir string) bool {
	m, ok := readMarker(dataDir)
	return !ok || m.Version != version.Version
}

// MarkPassed writes the marker, creating dataDir if needed.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := json.Marshal(marker{PassedAt: time.Now().UTC(), Version: version.Version})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0o644)
}

// ClearMarker removes the marker. A missing marker is not an error.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove preflight marker: %w", err)
	}
	return nil
}

// MarkerAge returns the time since the last passing run, or zero without
// a readable marker.
func MarkerAge(dataDir string) time.Duration {
	m, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(m.PassedAt)
}
