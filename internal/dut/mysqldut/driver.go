// Package mysqldut implements the dut.DUT interface against a real MySQL
// server via go-sql-driver/mysql. Unlike doltdut's embedded/forked pair,
// mysqldut connects to an already-running server for both the primary
// session and the auxiliary blocking-probe session; ForkServer is a no-op
// that returns the connection id the server assigned this session.
package mysqldut

import (
	"context"
	"database/sql"
	"fmt"

	atlasmysql "ariga.io/atlas/sql/mysql"
	_ "github.com/go-sql-driver/mysql"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/dut/sqlutil"
)

// Config configures one mysqldut.DUT.
type Config struct {
	// DSN is a go-sql-driver/mysql data source name, e.g.
	// "root@tcp(127.0.0.1:3306)/txnfuzz".
	DSN string
	// Database is the schema name Introspect reflects.
	Database string
}

// DUT implements dut.DUT against a MySQL connection pool of size one: a
// single logical session is required so BEGIN/COMMIT and locks observed by
// IsBlocked stay bound to this DUT value, matching doltdut's treatment of a
// DUT value as one transaction's session.
type DUT struct {
	cfg Config
	db  *sql.DB
}

var _ dut.DUT = (*DUT)(nil)

// Open connects a single-connection pool to dsn.
func Open(cfg Config) (*DUT, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysqldut: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
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
		"SELECT 1 FROM information_schema.innodb_trx t JOIN performance_schema.threads th ON t.trx_mysql_thread_id = th.processlist_id WHERE th.processlist_id = ? AND t.trx_state = 'LOCK WAIT'", sessionID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (d *DUT) Reset(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, "SHOW TABLES FROM "+d.cfg.Database)
	if err != nil {
		return err
	}
	tables, err := sqlutil.ScanRows(rows)
	rows.Close()
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=0"); err != nil {
		return err
	}
	for _, t := range tables {
		for _, v := range t {
			name, _ := v.(string)
			if name == "" {
				continue
			}
			if _, err := d.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", d.cfg.Database, name)); err != nil {
				return fmt.Errorf("mysqldut: reset: drop %s: %w", name, err)
			}
		}
	}
	_, err = d.db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=1")
	return err
}

// Backup dumps every table's content into an in-memory snapshot; MySQL has
// no branch-like primitive the way Dolt does, so RestoreTo replays it
// statement by statement instead of a server-side checkout.
func (d *DUT) Backup(ctx context.Context) (dut.Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, "SHOW TABLES FROM "+d.cfg.Database)
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
		return fmt.Errorf("mysqldut: restore: snapshot handle is not table content")
	}
	var tables []string
	for t := range content {
		tables = append(tables, t)
	}
	if err := d.Reset(ctx); err != nil {
		return err
	}
	for table, rows := range content {
		for _, row := range rows {
			if err := insertRow(ctx, d.db, table, row); err != nil {
				return fmt.Errorf("mysqldut: restore: %s: %w", table, err)
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
			return nil, fmt.Errorf("mysqldut: get content %s: %w", t, err)
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

// ForkServer is a no-op: mysqldut targets a server started externally, not
// one this process owns the lifecycle of.
func (d *DUT) ForkServer(ctx context.Context) (int, error) {
	var pid int64
	if err := d.db.QueryRowContext(ctx, "SELECT CONNECTION_ID()").Scan(&pid); err != nil {
		return 0, fmt.Errorf("mysqldut: fork server: %w", err)
	}
	return int(pid), nil
}

func (d *DUT) Close() error { return d.db.Close() }

func (d *DUT) Introspect(ctx context.Context) (*catalog.RawSchema, error) {
	drv, err := atlasmysql.Open(d.db)
	if err != nil {
		return nil, fmt.Errorf("mysqldut: open atlas driver: %w", err)
	}
	schema, err := drv.InspectSchema(ctx, d.cfg.Database, nil)
	if err != nil {
		return nil, fmt.Errorf("mysqldut: inspect schema %s: %w", d.cfg.Database, err)
	}
	return &catalog.RawSchema{Schema: schema}, nil
}
