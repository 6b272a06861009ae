// Package buildinfo exposes compile-time metadata of the oksocial binary.
package buildinfo

import "fmt"

// Overridden via -ldflags "-X github.com/yschimke/oksocial/internal/buildinfo.Version=..." in release builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// UserAgent is sent on requests that do not set their own User-Agent.
func UserAgent() string {
	return "oksocial/" + Version
}

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("oksocial %s (commit %s, built %s)", Version, Commit, BuildDate)
}
