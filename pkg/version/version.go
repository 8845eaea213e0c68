// Package version reports which build of ragindex is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release data, injected at build time:
//
//	-ldflags "-X github.com/Aman-CERP/ragindex/pkg/version.Version=v1.2.0"
//
// Commit and Date fall back to the VCS stamp the go tool embeds.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo assembles the BuildInfo of this binary.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyVCS(&info, bi.Settings)
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// applyVCS fills fields that were not injected from the embedded VCS
// settings.
func applyVCS(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String is the one-line form printed by 'ragindex version'.
func (b BuildInfo) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("ragindex %s (commit: %s, built: %s, go: %s)", b.Version, commit, b.Date, b.GoVersion)
}

// String returns GetInfo().String().
func String() string { return GetInfo().String() }

// Short returns the bare version.
func Short() string { return Version }

// UserAgent identifies ragindex in outgoing HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("ragindex/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
