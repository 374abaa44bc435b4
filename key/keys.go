// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Playback Lifecycle - these keys govern attempt pacing and the retry budget of the controller.
const (
	PlayerRetryDelay     = "player.retry_delay"
	PlayerAttemptTimeout = "player.attempt_timeout"
	PlayerMaxRetries     = "player.max_retries"
	PlayerTeardownDelay  = "player.teardown_delay"
)

// Player Construction - these keys are handed to the player factory when a new handle is created.
const (
	PlayerLowLatency   = "player.low_latency"
	PlayerMaxLatency   = "player.max_latency"
	PlayerLogVerbosity = "player.log_verbosity"
	PlayerBinary       = "player.binary"
)

// Freeze Frames - these keys configure the still image captured before teardown.
const (
	SnapshotFormat  = "snapshot.format"
	SnapshotQuality = "snapshot.quality"
	SnapshotTTL     = "snapshot.ttl"
)

// Audio - these keys define the two independent volume controls and the fixed output multiplier.
const (
	VolumeMultiplier = "volume.multiplier"
	VolumeUser       = "volume.user"
	VolumeMaster     = "volume.master"
)

// Quality Selection - these keys define the tier used when no preference has been saved.
const (
	QualityDefault  = "quality.default"
	QualityRemember = "quality.remember"
)

// Metrics Exposition - these keys configure the optional Prometheus endpoint.
const (
	MetricsAddress = "metrics.address"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the command-line behavior.
const (
	CliColored = "cli.colored"
)

// Iconography - these keys select the glyph set used in status output.
const (
	IconsVariant = "icons.variant"
)
