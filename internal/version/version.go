// Package version carries build metadata.
package version

import "fmt"

// Set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("resolvr %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
