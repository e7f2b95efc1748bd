// Package version holds build metadata injected via ldflags.
package version

var (
	// Version is the release version, set on build
	Version string = "unset"
	// BuildTime is the time of the build
	BuildTime string = "unset"
)
