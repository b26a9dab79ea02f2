// Package version carries the build identity stamped in at link time.
package version

import "fmt"

// Overridden with -ldflags "-X" by the release build; a plain
// `go build` produces a dev binary.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the one-line banner form, e.g.
// "1.2.0 (a1b2c3d, built 2026-08-01T10:00:00Z)".
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildTime)
}
