package version

import (
	"fmt"
	"runtime"
)

// Build information. These variables are set at build time via ldflags.
var (
	// Version is the semantic version (e.g., "1.2.3")
	Version = "dev"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

// Info contains all version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	if GitCommit != "unknown" {
		if len(GitCommit) > 7 {
			return fmt.Sprintf("%s (%s)", Version, GitCommit[:7])
		}
		return fmt.Sprintf("%s (%s)", Version, GitCommit)
	}
	return Version
}

// GetBuildInfo returns detailed build information
func GetBuildInfo() string {
	info := Get()
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuilt: %s\nGo: %s\nPlatform: %s",
		info.Version,
		info.GitCommit,
		info.BuildDate,
		info.GoVersion,
		info.Platform,
	)
}
