// Package sqlitedut implements the dut.DUT interface against SQLite via
// modernc.org/sqlite, the pure-Go driver the rest of the pack favors over
// cgo bindings. SQLite has no session-visible lock table the way MySQL and
// Postgres do: a blocked writer simply gets SQLITE_BUSY back from Execute,
// which sqlutil.ClassifyError already maps to dut.Blocked, so IsBlocked
// here never has anything to report and always returns false — the
// scheduler learns about the block from Execute's own result class instead.
package sqlitedut

import (
	"context"
	"database/sql"
	"fmt"

	atlassqlite "ariga.io/atlas/sql/sqlite"
	_ "modernc.org/sqlite"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/dut/sqlutil"
)

// Config configures one sqlitedut.DUT.
type Config struct {
	// Path is the database file path, or ":memory:" for an ephemeral DUT.
	Path string
}

// DUT implements dut.DUT against a single SQLite connection.
type DUT struct {
	cfg Config
	db  *sql.DB
}

var _ dut.DUT = (*DUT)(nil)

// Open connects a single-connection pool to cfg.Path in WAL mode, the
// setting two concurrent sessions need to observe each other's commits at
// all.
func Open(cfg Config) (*DUT, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitedut: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=0"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitedut: set pragmas: %w", err)
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

// IsBlocked always returns false; see the package doc comment.
func (d *DUT) IsBlocked(ctx context.Context, sessionID string) (bool, error) { return false, nil }

func (d *DUT) Reset(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return err
	}
	tables, err := sqlutil.ScanRows(rows)
	rows.Close()
	if err != nil {
		return err
	}
	for _, t := range tables {
		if name, ok := t["name"].(string); ok {
			if _, err := d.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
				return fmt.Errorf("sqlitedut: reset: drop %s: %w", name, err)
			}
		}
	}
	return nil
}

// Backup exports every current table's content, the same row-replay
// approach mysqldut and pqdut use since SQLite's VACUUM INTO is a
// file-level copy unsuited to an in-memory DUT.
func (d *DUT) Backup(ctx context.Context) (dut.Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return dut.Snapshot{}, err
	}
	tableRows, err := sqlutil.ScanRows(rows)
	rows.Close()
	if err != nil {
		return dut.Snapshot{}, err
	}
	var tables []string
	for _, t := range tableRows {
		if name, ok := t["name"].(string); ok {
			tables = append(tables, name)
		}
	}
	content, err := d.GetContent(ctx, tables)
	if err != nil {
		return dut.Snapshot{}, err
	}
	return dut.Snapshot{Handle: content}, nil
}

func (d *DUT) RestoreTo(ctx context.Context, snap dut.Snapshot) error {
	content, ok := snap.Handle.(map[string][]dut.Row)
	if !ok {
		return fmt.Errorf("sqlitedut: restore: snapshot handle is not table content")
	}
	if err := d.Reset(ctx); err != nil {
		return err
	}
	for table, rows := range content {
		for _, row := range rows {
			if err := insertRow(ctx, d.db, table, row); err != nil {
				return fmt.Errorf("sqlitedut: restore: %s: %w", table, err)
			}
		}
	}
	return nil
}

func insertRow(ctx context.Context, db *sql.DB, table string, row dut.Row) error {
	cols := make([]string, 0, len(row))
	vals := make([]any, 0, len(row))
	placeholders := make([]string, 0, len(row))
	for c, v := range row {
		cols = append(cols, c)
		vals = append(vals, v)
		placeholders = append(placeholders, "?")
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinCols(cols), joinCols(placeholders))
	_, err := db.ExecContext(ctx, stmt, vals...)
	return err
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (d *DUT) GetContent(ctx context.Context, tables []string) (map[string][]dut.Row, error) {
	out := make(map[string][]dut.Row, len(tables))
	for _, t := range tables {
		rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY wkey", t))
		if err != nil {
			return nil, fmt.Errorf("sqlitedut: get content %s: %w", t, err)
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

func (d *DUT) BeginStmt() string  { return "BEGIN IMMEDIATE" }
func (d *DUT) CommitStmt() string { return "COMMIT" }
func (d *DUT) AbortStmt() string  { return "ROLLBACK" }

// ForkServer is a no-op: sqlitedut has no separate server process, just the
// file at cfg.Path.
func (d *DUT) ForkServer(ctx context.Context) (int, error) { return 0, nil }

func (d *DUT) Close() error { return d.db.Close() }

func (d *DUT) Introspect(ctx context.Context) (*catalog.RawSchema, error) {
	drv, err := atlassqlite.Open(d.db)
	if err != nil {
		return nil, fmt.Errorf("sqlitedut: open atlas driver: %w", err)
	}
	schema, err := drv.InspectSchema(ctx, "main", nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitedut: inspect schema: %w", err)
	}
	return &catalog.RawSchema{Schema: schema}, nil
}
