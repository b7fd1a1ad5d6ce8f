package depgraph

import (
	"testing"

	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

func hasPredicate(violations []Violation, predicate string) bool {
	for _, v := range violations {
		if v.Predicate == predicate {
			return true
		}
	}
	return false
}

// TestG1aAbortedRead covers the aborted-read case: a committed transaction
// observes a row version written by a transaction that went on to abort.
func TestG1aAbortedRead(t *testing.T) {
	in := Input{
		Stmts: []StmtOutput{
			{Tid: 1, Role: instrument.UpdateWrite, Target: "t0"},
			{Tid: 1, Role: instrument.AfterWriteRead, Target: "t0", Rows: []Row{{"wkey": int64(1), "write_op_id": int64(1), "v": int64(9)}}},
			{Tid: 2, Role: instrument.SelectRead, Target: "t0", Rows: []Row{{"wkey": int64(1), "write_op_id": int64(1), "v": int64(9)}}},
		},
		TxnStatus: map[int]TxnStatus{1: StatusAborted, 2: StatusCommitted},
	}
	g, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hist := buildHistory(in)
	violations := Detect(g, hist)
	if !hasPredicate(violations, "G1a") {
		t.Fatalf("Detect() = %+v, want a G1a violation", violations)
	}
}

// TestG1bIntermediateRead covers the intermediate-read case: a committed
// transaction reads an intermediate version of a row its writer later
// overwrote again before committing.
func TestG1bIntermediateRead(t *testing.T) {
	in := Input{
		Stmts: []StmtOutput{
			{Tid: 1, Role: instrument.UpdateWrite, Target: "t0"},
			{Tid: 1, Role: instrument.AfterWriteRead, Target: "t0", Rows: []Row{{"wkey": int64(1), "write_op_id": int64(1), "v": int64(1)}}},
			{Tid: 2, Role: instrument.SelectRead, Target: "t0", Rows: []Row{{"wkey": int64(1), "write_op_id": int64(1), "v": int64(1)}}},
			{Tid: 1, Role: instrument.UpdateWrite, Target: "t0"},
			{Tid: 1, Role: instrument.AfterWriteRead, Target: "t0", Rows: []Row{{"wkey": int64(1), "write_op_id": int64(2), "v": int64(2)}}},
		},
		TxnStatus: map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted},
	}
	hist := buildHistory(in)
	violations := detectG1b(hist)
	if !hasPredicate(violations, "G1b") {
		t.Fatalf("detectG1b() = %+v, want a G1b violation", violations)
	}
}

// TestSerializableHistoryHasNoViolations covers the clean case: two
// non-overlapping committed transactions with no data dependency at all
// produce an empty violation set.
func TestSerializableHistoryHasNoViolations(t *testing.T) {
	in := Input{
		Stmts: []StmtOutput{
			{Tid: 1, Role: instrument.SelectRead, Target: "t0", Rows: []Row{{"wkey": int64(1), "write_op_id": int64(0), "v": int64(1)}}},
			{Tid: 2, Role: instrument.SelectRead, Target: "t0", Rows: []Row{{"wkey": int64(2), "write_op_id": int64(0), "v": int64(2)}}},
		},
		TxnStatus: map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted},
	}
	g, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hist := buildHistory(in)
	if violations := Detect(g, hist); len(violations) != 0 {
		t.Fatalf("Detect() = %+v, want no violations", violations)
	}
}

// TestGSIaUnaccompaniedWriteEdge covers the missing-start-edge case: a WR edge
// between two committed transactions with no accompanying start edge is a
// GSIa violation.
func TestGSIaUnaccompaniedWriteEdge(t *testing.T) {
	g := newGraph()
	g.TxnStatus = map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted}
	g.addTxnEdge(1, 2, WriteRead)

	violations := Detect(g, RowHistory{})
	if !hasPredicate(violations, "GSIa") {
		t.Fatalf("Detect() = %+v, want a GSIa violation", violations)
	}
}

// TestGSIaSuppressedByStartEdge covers the negative case: the same WR edge
// accompanied by a Start edge in the same direction is not a GSIa
// violation.
func TestGSIaSuppressedByStartEdge(t *testing.T) {
	g := newGraph()
	g.TxnStatus = map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted}
	g.addTxnEdge(1, 2, WriteRead)
	g.addTxnEdge(1, 2, Start)

	violations := Detect(g, RowHistory{})
	if hasPredicate(violations, "GSIa") {
		t.Fatalf("Detect() = %+v, want no GSIa violation once a start edge accompanies the WR edge", violations)
	}
}

// TestGSIbSingleAntiDependencyCycle covers the GSIb cycle shape: a cycle
// over WW/WR/RW/strict-start edges that closes with exactly one RW edge.
func TestGSIbSingleAntiDependencyCycle(t *testing.T) {
	g := newGraph()
	g.TxnStatus = map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted, 3: StatusCommitted}
	g.addTxnEdge(1, 2, WriteRead)
	g.addTxnEdge(2, 3, StrictStart)
	g.addTxnEdge(3, 1, ReadWrite)

	violations := Detect(g, RowHistory{})
	if !hasPredicate(violations, "GSIb") {
		t.Fatalf("Detect() = %+v, want a GSIb violation", violations)
	}
}

// TestGSIbRequiresExactlyOneAntiDependencyEdge covers the negative case: a
// cycle with two RW edges is not GSIb.
func TestGSIbRequiresExactlyOneAntiDependencyEdge(t *testing.T) {
	g := newGraph()
	g.TxnStatus = map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted, 3: StatusCommitted}
	g.addTxnEdge(1, 2, ReadWrite)
	g.addTxnEdge(2, 3, WriteRead)
	g.addTxnEdge(3, 1, ReadWrite)

	violations := Detect(g, RowHistory{})
	if hasPredicate(violations, "GSIb") {
		t.Fatalf("Detect() = %+v, want no GSIb violation for a cycle with two RW edges", violations)
	}
}

// TestG1cCircularInformationFlow covers a WR/WW-only cycle among committed
// transactions, with no RW edge at all.
func TestG1cCircularInformationFlow(t *testing.T) {
	g := newGraph()
	g.TxnStatus = map[int]TxnStatus{1: StatusCommitted, 2: StatusCommitted}
	g.addTxnEdge(1, 2, WriteWrite)
	g.addTxnEdge(2, 1, WriteRead)

	violations := Detect(g, RowHistory{})
	if !hasPredicate(violations, "G1c") {
		t.Fatalf("Detect() = %+v, want a G1c violation", violations)
	}
}

// TestMinimizationOrderIsAFixedPoint checks that running
// the minimizer's ordering twice over an unchanged graph yields the same
// result (idempotent, not a moving target across minimizer iterations).
func TestMinimizationOrderIsAFixedPoint(t *testing.T) {
	in := Input{
		Stmts: []StmtOutput{
			{Tid: 1, Role: instrument.BeforeWriteRead, Target: "t0"},
			{Tid: 1, Role: instrument.UpdateWrite, Target: "t0"},
			{Tid: 1, Role: instrument.AfterWriteRead, Target: "t0"},
			{Tid: 2, Role: instrument.SelectRead, Target: "t0"},
		},
	}
	g, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	first := MinimizationOrder(g)
	second := MinimizationOrder(g)
	if len(first) != len(second) {
		t.Fatalf("MinimizationOrder not stable across calls: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("MinimizationOrder not stable across calls: %v vs %v", first, second)
		}
	}
	if len(first) != g.NumStmts {
		t.Fatalf("MinimizationOrder returned %d entries, want %d", len(first), g.NumStmts)
	}
}
