// Package version exposes build metadata injected with ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/appshelf/internal/version.Version=v1.2.0"
package version

import "fmt"

// Version is the release tag of the binary.
var Version = "dev"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns a one-line description suitable for --version output.
func String() string {
	return fmt.Sprintf("appshelf %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
