// Package version carries build metadata injected via -ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	// BuildTime is RFC3339, set at link time.
	BuildTime = ""
)
