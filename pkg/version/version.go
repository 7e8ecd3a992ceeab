// Package version holds build metadata stamped at link time via -ldflags.
package version

var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)
