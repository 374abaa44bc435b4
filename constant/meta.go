// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// Livewatch is the canonical application identifier used for filesystem paths and CLI branding.
	Livewatch = "livewatch"

	// Version is the current application semantic version string.
	Version = "0.1.0"
)

// Build Metadata - these are stamped at link time with -ldflags "-X".
var (
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
	Revision = "unknown"
)
