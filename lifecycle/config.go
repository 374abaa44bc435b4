package lifecycle

import (
	"time"

	"github.com/livewatch-cli/livewatch/key"
	"github.com/livewatch-cli/livewatch/util"
	"github.com/spf13/viper"
)

// Config tunes the lifecycle timings and the freeze frame encoding.
type Config struct {
	// RetryDelay is the fixed pause between a failed attempt and the next one.
	RetryDelay time.Duration

	// AttemptTimeout bounds the wait for the first frame. Zero means RetryDelay,
	// or the default retry delay when that is zero too.
	AttemptTimeout time.Duration

	// MaxRetries is how many retries follow the first failed attempt of a session. Negative means unbounded.
	MaxRetries int

	// TeardownDelay is the pause between destroying a handle and creating the next one,
	// so the new player does not grab the surface before the old one released it.
	TeardownDelay time.Duration

	SnapshotFormat  string
	SnapshotQuality int

	// VolumeMultiplier scales the product of the user and master volume.
	VolumeMultiplier float64
}

// DefaultConfig matches the registry defaults.
func DefaultConfig() Config {
	return Config{
		RetryDelay:       3 * time.Second,
		MaxRetries:       5,
		TeardownDelay:    200 * time.Millisecond,
		SnapshotFormat:   "jpeg",
		SnapshotQuality:  80,
		VolumeMultiplier: 1,
	}
}

// ConfigFromViper reads Config from the loaded configuration.
func ConfigFromViper() Config {
	return Config{
		RetryDelay:       viper.GetDuration(key.PlayerRetryDelay),
		AttemptTimeout:   viper.GetDuration(key.PlayerAttemptTimeout),
		MaxRetries:       viper.GetInt(key.PlayerMaxRetries),
		TeardownDelay:    viper.GetDuration(key.PlayerTeardownDelay),
		SnapshotFormat:   viper.GetString(key.SnapshotFormat),
		SnapshotQuality:  viper.GetInt(key.SnapshotQuality),
		VolumeMultiplier: viper.GetFloat64(key.VolumeMultiplier),
	}
}

// attemptTimeout never returns zero; a zero orchestrator timeout disables the deadline.
func (c Config) attemptTimeout() time.Duration {
	switch {
	case c.AttemptTimeout > 0:
		return c.AttemptTimeout
	case c.RetryDelay > 0:
		return c.RetryDelay
	default:
		return DefaultConfig().RetryDelay
	}
}

func (c Config) volume(user, master float64) float64 {
	return util.Clamp(user*master*c.VolumeMultiplier, 0, 1)
}
