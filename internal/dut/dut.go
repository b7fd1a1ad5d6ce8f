// Package dut defines the narrow interface every device-under-test driver
// implements: connect, execute, fetch, reset, snapshot/restore, and the
// three transaction-control literals a generated statement sequence needs
// to bracket itself with. The scheduler (internal/scheduler) only ever
// talks to this interface; everything engine-specific lives behind one of
// the concrete driver packages (mysqldut, doltdut, pqdut, sqlitedut).
package dut

import (
	"context"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

// ErrClass classifies the outcome of one Execute call. The scheduler and
// analyzer both switch on this instead of inspecting driver-specific error
// strings.
type ErrClass int

const (
	// OK means the statement executed and returned a result set or
	// affected-row count normally.
	OK ErrClass = iota
	// Syntax means the DUT rejected the statement as malformed; the
	// scheduler marks the statement skipped and moves on.
	Syntax
	// Constraint means the statement violated a constraint the generator
	// doesn't model (a unique index collision, a CHECK failure); the
	// scheduler likewise marks it skipped.
	Constraint
	// Blocked means the statement is waiting on a lock held by another
	// session; the scheduler parks the transaction and polls IsBlocked.
	Blocked
	// Skipped means the driver reported that the statement was not run
	// because its transaction is already aborted ("current transaction is
	// aborted", "commands ignored"); the scheduler marks it skipped.
	Skipped
	// FatalBug means the DBMS itself failed: an internal error, an
	// assertion, a panic, or a lost connection. This is the only class the
	// scheduler stops on and reports to internal/orchestrator.
	FatalBug
)

func (e ErrClass) String() string {
	switch e {
	case OK:
		return "ok"
	case Syntax:
		return "syntax"
	case Constraint:
		return "constraint"
	case Blocked:
		return "blocked"
	case Skipped:
		return "skipped"
	case FatalBug:
		return "fatal-bug"
	default:
		return "unknown"
	}
}

// Row is one result-set row keyed by column name, as returned by Execute
// and GetContent. Values are driver-native (int64, float64, string, bool,
// nil); the analyzer never interprets them beyond equality and the
// designated wkey/write_op_id columns.
type Row map[string]any

// Result is the outcome of one Execute call.
type Result struct {
	Class        ErrClass
	Rows         []Row
	AffectedRows int64
	Err          error
}

// Snapshot is an opaque handle to a point-in-time copy of the DUT's state,
// produced by Backup and consumed by RestoreTo. Concrete drivers embed
// whatever they need (a Dolt branch name, a file path, a dump blob) behind
// this single exported field so callers in internal/scheduler and
// internal/orchestrator never need a type switch.
type Snapshot struct {
	Handle any
}

// DUT is the device-under-test abstraction the scheduler executes
// against. Implementations need not be safe for concurrent use by multiple
// goroutines against the *same* session, but the scheduler opens one DUT
// value per transaction plus one for the auxiliary blocking probe, so
// distinct DUT values backed by the same underlying server must be safe to
// use concurrently with each other.
type DUT interface {
	// Execute runs one statement on this session. Deadline/cancellation is
	// carried by ctx.
	Execute(ctx context.Context, stmt string) (Result, error)
	// IsBlocked reports whether sessionID is currently waiting on a lock.
	IsBlocked(ctx context.Context, sessionID string) (bool, error)
	// Reset discards all data and schema, returning the DUT to its
	// just-started state.
	Reset(ctx context.Context) error
	// Backup takes a point-in-time snapshot of the DUT's current state.
	Backup(ctx context.Context) (Snapshot, error)
	// RestoreTo rolls the DUT back to a previously taken snapshot.
	RestoreTo(ctx context.Context, snap Snapshot) error
	// GetContent fetches every row of each named table, ordered by the
	// wkey column, for history reconstruction (internal/depgraph).
	GetContent(ctx context.Context, tables []string) (map[string][]Row, error)
	// BeginStmt/CommitStmt/AbortStmt return the literal SQL text that
	// starts, commits, or rolls back a transaction on this engine.
	BeginStmt() string
	CommitStmt() string
	AbortStmt() string
	// ForkServer starts a fresh, disposable instance of the underlying
	// server for this test run and returns its process id. Drivers that
	// connect to an already-running server (mysqldut, pqdut) start nothing
	// and return this session's server-side id instead (the MySQL
	// connection id, the PostgreSQL backend pid).
	ForkServer(ctx context.Context) (pid int, err error)
	// Introspect reflects the DUT's current schema into the shape
	// internal/catalog.ReflectFrom consumes.
	Introspect(ctx context.Context) (*catalog.RawSchema, error)
}
