package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// WatchdogProfile holds fork-server watchdog settings: how often to check
// the forked server is still listening, and how many times to restart a
// dead one before giving up. Load and LoadWatchdogProfile fill it in;
// doltdut's watchdog does not read it and uses its own fixed 10s check
// interval and limit of 3 restarts.
type WatchdogProfile struct {
	CheckInterval time.Duration
	MaxRestarts   int
}

// watchdogFile is WatchdogProfile's on-disk TOML shape; duration fields are
// stored as strings (toml has no native duration) and parsed on load.
type watchdogFile struct {
	CheckInterval string `toml:"check_interval"`
	MaxRestarts   int    `toml:"max_restarts"`
}

// LoadWatchdogProfile reads a standalone watchdog.toml directly, bypassing
// viper, for callers (a CLI "doctor"-style inspection command, or a driver
// constructed outside of Load's full layering) that only need this one
// narrow setting. Returns the zero WatchdogProfile, not an error, if the
// file doesn't exist.
func LoadWatchdogProfile(path string) (WatchdogProfile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WatchdogProfile{}, nil
	}

	var raw watchdogFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return WatchdogProfile{}, err
	}

	profile := WatchdogProfile{MaxRestarts: raw.MaxRestarts}
	if raw.CheckInterval != "" {
		d, err := time.ParseDuration(raw.CheckInterval)
		if err != nil {
			return WatchdogProfile{}, err
		}
		profile.CheckInterval = d
	}
	return profile, nil
}
