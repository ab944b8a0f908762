// Package version holds build-time variables injected by ldflags and reported
// by the health endpoint and the startup log line.
package version

// These vars are overwritten at link time:
//
//	-X github.com/d9705996/confera/internal/version.Version=v0.3.0
//	-X github.com/d9705996/confera/internal/version.Commit=abc1234
//	-X github.com/d9705996/confera/internal/version.Date=2026-10-01T00:00:00Z
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
