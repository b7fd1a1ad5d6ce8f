package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.Seed)
	require.Equal(t, "sqlite", cfg.DUT.Driver)
	require.Equal(t, 150*time.Millisecond, cfg.StmtTimeout)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txnfuzz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 42
num-transactions: 6
dut:
  driver: mysql
  dsn: "root@tcp(127.0.0.1:3306)/txnfuzz"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(42), cfg.Seed)
	require.Equal(t, 6, cfg.NumTransactions)
	require.Equal(t, "mysql", cfg.DUT.Driver)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txnfuzz.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed = 7
stmts-per-txn = 3

[dut]
driver = "sqlite"
path = "/tmp/txnfuzz.db"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(7), cfg.Seed)
	require.Equal(t, 3, cfg.StmtsPerTxn)
	require.Equal(t, "/tmp/txnfuzz.db", cfg.DUT.Path)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txnfuzz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 42\n"), 0o644))

	t.Setenv("TXNFUZZ_SEED", "99")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(99), cfg.Seed)
}

func TestLoadRejectsTooFewTransactions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txnfuzz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num-transactions: 1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadWatchdogProfileMissingFileIsZeroValue(t *testing.T) {
	profile, err := LoadWatchdogProfile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, WatchdogProfile{}, profile)
}

func TestLoadWatchdogProfileParsesDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchdog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
check_interval = "5s"
max_restarts = 10
`), 0o644))

	profile, err := LoadWatchdogProfile(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, profile.CheckInterval)
	require.Equal(t, 10, profile.MaxRestarts)
}
