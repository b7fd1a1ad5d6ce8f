// Package config loads one test run's settings: seed, output directory,
// per-statement timeout, DUT selection/DSN, replay-file path, and watchdog
// parameters. Loading layers a file (TOML or YAML, auto-detected from the
// extension) under environment-variable overrides via viper; environment
// variables always win over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DUTConfig names which driver to target and how to reach it. Exactly one
// of DSN or Path is meaningful depending on Driver.
type DUTConfig struct {
	// Driver is one of "mysql", "dolt", "postgres", "sqlite".
	Driver string
	// DSN is a driver-specific connection string (mysqldut, pqdut) or the
	// Dolt data directory the embedded driver opens (doltdut).
	DSN string
	// Path is a SQLite database file path, or ":memory:".
	Path string
	// Database is the schema name Introspect reflects (mysqldut, doltdut).
	Database string
}

// Config is one test run's full settings.
type Config struct {
	Seed uint64

	OutputDir string

	NumTransactions int
	StmtsPerTxn     int
	Serializable    bool

	StmtTimeout time.Duration

	DUT DUTConfig

	// ReplayDir, when non-empty, tells the CLI's reproduce/minimize
	// subcommands which saved triple to load instead of generating a new
	// run.
	ReplayDir string

	// ReplayFile, when non-empty, backs the generator's draws with the
	// named byte file (randsrc.FileSource) instead of the seeded PRNG, so
	// a coverage-guided front end can drive generation.
	ReplayFile string

	Watchdog WatchdogProfile
}

// defaults gives every knob a safe out-of-the-box value, so a config file
// only needs to override what differs.
func defaults() Config {
	return Config{
		Seed:            1,
		OutputDir:       "./txnfuzz-out",
		NumTransactions: 4,
		StmtsPerTxn:     8,
		Serializable:    false,
		StmtTimeout:     150 * time.Millisecond,
		DUT: DUTConfig{
			Driver: "sqlite",
			Path:   ":memory:",
		},
		Watchdog: WatchdogProfile{
			CheckInterval: 10 * time.Second,
			MaxRestarts:   3,
		},
	}
}

// Load builds a Config from the optional file at path (TOML or YAML,
// chosen by extension; viper auto-detects from SetConfigFile's suffix) and
// then TXNFUZZ_-prefixed environment variables, which always win over the
// file. path may be empty, in which case only defaults and environment
// overrides apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetEnvPrefix("TXNFUZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	bindDefault := func(key string, val any) {
		v.SetDefault(key, val)
	}
	bindDefault("seed", cfg.Seed)
	bindDefault("output-dir", cfg.OutputDir)
	bindDefault("num-transactions", cfg.NumTransactions)
	bindDefault("stmts-per-txn", cfg.StmtsPerTxn)
	bindDefault("serializable", cfg.Serializable)
	bindDefault("stmt-timeout", cfg.StmtTimeout)
	bindDefault("dut.driver", cfg.DUT.Driver)
	bindDefault("dut.dsn", cfg.DUT.DSN)
	bindDefault("dut.path", cfg.DUT.Path)
	bindDefault("dut.database", cfg.DUT.Database)
	bindDefault("replay-dir", cfg.ReplayDir)
	bindDefault("replay-file", cfg.ReplayFile)
	bindDefault("watchdog.check-interval", cfg.Watchdog.CheckInterval)
	bindDefault("watchdog.max-restarts", cfg.Watchdog.MaxRestarts)

	cfg.Seed = uint64(v.GetInt64("seed"))
	cfg.OutputDir = v.GetString("output-dir")
	cfg.NumTransactions = v.GetInt("num-transactions")
	cfg.StmtsPerTxn = v.GetInt("stmts-per-txn")
	cfg.Serializable = v.GetBool("serializable")
	cfg.StmtTimeout = v.GetDuration("stmt-timeout")
	cfg.DUT.Driver = v.GetString("dut.driver")
	cfg.DUT.DSN = v.GetString("dut.dsn")
	cfg.DUT.Path = v.GetString("dut.path")
	cfg.DUT.Database = v.GetString("dut.database")
	cfg.ReplayDir = v.GetString("replay-dir")
	cfg.ReplayFile = v.GetString("replay-file")
	cfg.Watchdog.CheckInterval = v.GetDuration("watchdog.check-interval")
	cfg.Watchdog.MaxRestarts = v.GetInt("watchdog.max-restarts")

	if cfg.NumTransactions < 2 {
		return nil, fmt.Errorf("config: num-transactions must be >= 2, got %d", cfg.NumTransactions)
	}
	return &cfg, nil
}
