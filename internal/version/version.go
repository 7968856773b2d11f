// Package version holds the build-time version string, stamped via
// -ldflags at build time (defaults to "dev" otherwise).
package version

// Version is overridden at build time with -ldflags
// "-X github.com/aristath/sentinel/internal/version.Version=v1.2.3".
var Version = "dev"
