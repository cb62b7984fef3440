// Package version holds build metadata injected at link time.
package version

// Version is overridden with -ldflags "-X github.com/aristath/tender/internal/version.Version=..."
var Version = "dev"
