// Package sqlutil holds the database/sql plumbing every concrete DUT
// driver (doltdut, mysqldut, pqdut, sqlitedut) shares: scanning a
// *sql.Rows into the engine-neutral dut.Row shape, and classifying a
// driver error into the dut.ErrClass the scheduler switches on.
package sqlutil

import (
	"database/sql"
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/dut"
)

// ScanRows reads every row of rows into dut.Row maps keyed by column name.
func ScanRows(rows *sql.Rows) ([]dut.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []dut.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(dut.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize converts driver-returned []byte (common for TEXT/NUMERIC
// columns under database/sql) into a plain string so depgraph's row
// hashing and the reproducer's usage.txt round-trip see a stable type.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ClassifyError maps a driver error's text to one of the ErrClass values
// the scheduler and analyzer distinguish. This is necessarily textual:
// each engine's driver surfaces distinct error shapes, with no typed error
// hierarchy shared across them.
func ClassifyError(err error) dut.ErrClass {
	if err == nil {
		return dut.OK
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") || strings.Contains(msg, "busy"):
		return dut.Blocked
	case strings.Contains(msg, "lock") && (strings.Contains(msg, "wait") || strings.Contains(msg, "timeout") || strings.Contains(msg, "blocked")):
		return dut.Blocked
	case strings.Contains(msg, "syntax"):
		return dut.Syntax
	case strings.Contains(msg, "constraint") || strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "violat"):
		return dut.Constraint
	case strings.Contains(msg, "current transaction is aborted") || strings.Contains(msg, "commands ignored until end of transaction block"):
		return dut.Skipped
	case strings.Contains(msg, "internal error") || strings.Contains(msg, "assertion") || strings.Contains(msg, "lost connection") || strings.Contains(msg, "panic"):
		return dut.FatalBug
	default:
		return dut.Syntax
	}
}
