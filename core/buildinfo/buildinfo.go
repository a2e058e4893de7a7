// Package buildinfo carries version data stamped in at link time:
//
//	go build -ldflags "-X github.com/m3rciful/pairbot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/pairbot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/pairbot/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

import "strings"

var (
	Version = "dev"
	Commit  = "local"
	// Date is an RFC3339 timestamp, empty for local builds.
	Date = ""
)

// String renders the build as "version (commit, date)".
func String() string {
	parts := []string{Commit}
	if d := strings.TrimSpace(Date); d != "" {
		parts = append(parts, d)
	}
	return Version + " (" + strings.Join(parts, ", ") + ")"
}
