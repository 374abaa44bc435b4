// Package where implements a cross-platform resolver for application-specific filesystem paths.
package where

import (
	"os"
	"path/filepath"

	"github.com/livewatch-cli/livewatch/constant"
	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/samber/lo"
)

// EnvConfigPath is the environment variable identifier used to override the default configuration directory.
const EnvConfigPath = "LIVEWATCH_CONFIG_PATH"

// ensureDir guarantees the existence of a directory at the specified path, creating it if necessary.
func ensureDir(path string) string {
	lo.Must0(filesystem.API().MkdirAll(path, os.ModePerm))
	return path
}

// Config resolves the absolute path to the primary application configuration directory.
// The path can be overridden via the LIVEWATCH_CONFIG_PATH environment variable.
func Config() string {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return ensureDir(custom)
	}

	base := lo.Must(os.UserConfigDir())
	return ensureDir(filepath.Join(base, constant.Livewatch))
}

// Cache resolves the absolute path to the application's persistent cache directory.
func Cache() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = filepath.Join(".", "cache")
	}
	return ensureDir(filepath.Join(base, constant.Livewatch))
}

// Logs resolves the absolute path to the directory used for application diagnostic logs.
func Logs() string {
	return ensureDir(filepath.Join(Config(), "logs"))
}

// Snapshots resolves the directory freeze frames are exported to.
func Snapshots() string {
	return ensureDir(filepath.Join(Cache(), "snapshots"))
}

// Preferences resolves the path to the persisted quality and volume preferences.
func Preferences() string {
	return filepath.Join(Config(), "preferences.json")
}

// Temp resolves a volatile filesystem path for transient artifacts such as player IPC sockets.
func Temp() string {
	return ensureDir(filepath.Join(os.TempDir(), constant.Livewatch))
}
