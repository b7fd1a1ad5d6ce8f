package doltdut

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/dolthub/driver"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/dut/sqlutil"
)

// Config configures one doltdut.DUT.
type Config struct {
	// DataDir is the Dolt repository directory the embedded connection
	// opens directly (no network hop for the primary session).
	DataDir string
	// Database is the Dolt database name within DataDir.
	Database string
	// ForkPort is the TCP port the auxiliary blocking-probe server listens
	// on once ForkServer is called.
	ForkPort int
}

// DUT implements dut.DUT against a Dolt repository via the embedded
// dolthub/driver connection. Backup/RestoreTo use Dolt's native branch
// model instead of a file-copy snapshot: a branch is the cheapest
// versioning primitive the engine offers.
type DUT struct {
	cfg Config
	db  *sql.DB
	wd  *forkWatchdog
}

var _ dut.DUT = (*DUT)(nil)

// Open connects the embedded primary session.
func Open(cfg Config) (*DUT, error) {
	dsn := (&url.URL{
		Scheme: "file",
		Path:   cfg.DataDir,
		RawQuery: url.Values{
			"commitname":  {"txnfuzz"},
			"commitemail": {"txnfuzz@localhost"},
			"database":    {cfg.Database},
		}.Encode(),
	}).String()

	db, err := sql.Open("dolt", dsn)
	if err != nil {
		return nil, fmt.Errorf("doltdut: open %s: %w", cfg.DataDir, err)
	}
	return &DUT{cfg: cfg, db: db}, nil
}

func (d *DUT) Execute(ctx context.Context, stmt string) (dut.Result, error) {
	rows, err := d.db.QueryContext(ctx, stmt)
	if err != nil {
		return dut.Result{Class: sqlutil.ClassifyError(err), Err: err}, nil
	}
	defer rows.Close()

	out, err := sqlutil.ScanRows(rows)
	if err != nil {
		return dut.Result{Class: sqlutil.ClassifyError(err), Err: err}, nil
	}
	return dut.Result{Class: dut.OK, Rows: out, AffectedRows: int64(len(out))}, nil
}

func (d *DUT) IsBlocked(ctx context.Context, sessionID string) (bool, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT 1 FROM information_schema.processlist WHERE id = ? AND state LIKE '%lock%'", sessionID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (d *DUT) Reset(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, "CALL DOLT_CHECKOUT('-b', 'main'); CALL DOLT_RESET('--hard')")
	return err
}

func (d *DUT) Backup(ctx context.Context) (dut.Snapshot, error) {
	branch := "snap_" + randomSuffix()
	if _, err := d.db.ExecContext(ctx, "CALL DOLT_BRANCH(?)", branch); err != nil {
		return dut.Snapshot{}, fmt.Errorf("doltdut: backup: %w", err)
	}
	return dut.Snapshot{Handle: branch}, nil
}

func (d *DUT) RestoreTo(ctx context.Context, snap dut.Snapshot) error {
	branch, ok := snap.Handle.(string)
	if !ok {
		return fmt.Errorf("doltdut: restore: snapshot handle is not a branch name")
	}
	_, err := d.db.ExecContext(ctx, "CALL DOLT_CHECKOUT(?)", branch)
	return err
}

func (d *DUT) GetContent(ctx context.Context, tables []string) (map[string][]dut.Row, error) {
	out := make(map[string][]dut.Row, len(tables))
	for _, t := range tables {
		rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY wkey", t))
		if err != nil {
			return nil, fmt.Errorf("doltdut: get content %s: %w", t, err)
		}
		content, err := sqlutil.ScanRows(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out[t] = content
	}
	return out, nil
}

func (d *DUT) BeginStmt() string  { return "START TRANSACTION" }
func (d *DUT) CommitStmt() string { return "COMMIT" }
func (d *DUT) AbortStmt() string  { return "ROLLBACK" }

// ForkServer starts a disposable `dolt sql-server` on the same data
// directory for the scheduler's auxiliary blocking-probe session, and
// installs a watchdog that restarts it with backoff if it dies mid-run.
func (d *DUT) ForkServer(ctx context.Context) (int, error) {
	cfg := defaultServerConfig(d.cfg.DataDir, d.cfg.ForkPort)
	pid, err := startServer(ctx, cfg)
	if err != nil {
		return 0, err
	}
	d.wd = startWatchdog(cfg, pid)
	return pid, nil
}

// Close stops the fork watchdog, if one was started, and the embedded
// connection.
func (d *DUT) Close() error {
	if d.wd != nil {
		d.wd.stop()
	}
	return d.db.Close()
}

func (d *DUT) Introspect(ctx context.Context) (*catalog.RawSchema, error) {
	return introspect(ctx, d.db, d.cfg.Database)
}

func randomSuffix() string {
	return strconv.FormatInt(int64(idCounter.add()), 36)
}

var idCounter counter

type counter struct{ n uint64 }

func (c *counter) add() uint64 {
	c.n++
	return c.n
}
