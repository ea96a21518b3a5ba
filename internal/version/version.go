// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/marketboard/mbsync/internal/version.Version=1.0.0 \
//	                   -X github.com/marketboard/mbsync/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/marketboard/mbsync/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// When Commit is not set, the VCS revision recorded by the Go toolchain is
// used if present.
package version

import "runtime/debug"

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + revision() + ") built " + BuildTime
}

// UserAgent returns the User-Agent sent to the market data provider.
func UserAgent() string {
	return "mbsync/" + Version
}

func revision() string {
	if Commit != "unknown" && Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return Commit
}
