// Package pqdut implements the dut.DUT interface against PostgreSQL via
// lib/pq. Like mysqldut, it targets an already-running server; ForkServer
// returns this session's backend pid, the identifier IsBlocked polling
// needs to find it in pg_stat_activity / pg_locks.
package pqdut

import (
	"context"
	"database/sql"
	"fmt"

	atlaspostgres "ariga.io/atlas/sql/postgres"
	_ "github.com/lib/pq"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/dut/sqlutil"
)

// Config configures one pqdut.DUT.
type Config struct {
	// DSN is a lib/pq connection string, e.g.
	// "postgres://txnfuzz@localhost/txnfuzz?sslmode=disable".
	DSN string
	// Schema is the schema name Introspect reflects and Reset clears.
	Schema string
}

// DUT implements dut.DUT against a single-connection PostgreSQL pool.
type DUT struct {
	cfg Config
	db  *sql.DB
}

var _ dut.DUT = (*DUT)(nil)

// Open connects a single-connection pool to cfg.DSN.
func Open(cfg Config) (*DUT, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pqdut: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if cfg.Schema == "" {
		cfg.Schema = "public"
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
	rows, err := d.db.QueryContext(ctx,
		"SELECT 1 FROM pg_stat_activity WHERE pid = $1 AND wait_event_type = 'Lock'", sessionID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (d *DUT) Reset(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE; CREATE SCHEMA %s", d.cfg.Schema, d.cfg.Schema))
	return err
}

// Backup takes a pg_dump-free snapshot by exporting every table's content;
// PostgreSQL has no cheap branch primitive so RestoreTo replays it row by
// row, the same approach mysqldut uses.
func (d *DUT) Backup(ctx context.Context) (dut.Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT tablename FROM pg_tables WHERE schemaname = $1", d.cfg.Schema)
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
		for _, v := range t {
			if name, ok := v.(string); ok {
				tables = append(tables, name)
			}
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
		return fmt.Errorf("pqdut: restore: snapshot handle is not table content")
	}
	if err := d.Reset(ctx); err != nil {
		return err
	}
	for table, rows := range content {
		for _, row := range rows {
			if err := insertRow(ctx, d.db, table, row); err != nil {
				return fmt.Errorf("pqdut: restore: %s: %w", table, err)
			}
		}
	}
	return nil
}

func insertRow(ctx context.Context, db *sql.DB, table string, row dut.Row) error {
	cols := make([]string, 0, len(row))
	vals := make([]any, 0, len(row))
	placeholders := make([]string, 0, len(row))
	i := 1
	for c, v := range row {
		cols = append(cols, c)
		vals = append(vals, v)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		i++
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
			return nil, fmt.Errorf("pqdut: get content %s: %w", t, err)
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

func (d *DUT) BeginStmt() string  { return "BEGIN" }
func (d *DUT) CommitStmt() string { return "COMMIT" }
func (d *DUT) AbortStmt() string  { return "ROLLBACK" }

// ForkServer is a no-op: pqdut targets a server started externally.
func (d *DUT) ForkServer(ctx context.Context) (int, error) {
	var pid int
	if err := d.db.QueryRowContext(ctx, "SELECT pg_backend_pid()").Scan(&pid); err != nil {
		return 0, fmt.Errorf("pqdut: fork server: %w", err)
	}
	return pid, nil
}

func (d *DUT) Close() error { return d.db.Close() }

func (d *DUT) Introspect(ctx context.Context) (*catalog.RawSchema, error) {
	drv, err := atlaspostgres.Open(d.db)
	if err != nil {
		return nil, fmt.Errorf("pqdut: open atlas driver: %w", err)
	}
	schema, err := drv.InspectSchema(ctx, d.cfg.Schema, nil)
	if err != nil {
		return nil, fmt.Errorf("pqdut: inspect schema %s: %w", d.cfg.Schema, err)
	}
	return &catalog.RawSchema{Schema: schema}, nil
}
