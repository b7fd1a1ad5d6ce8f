package reproducer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/txnfuzz/txnfuzz/internal/depgraph"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

// buildStmts is a write-cycle fixture: T0 writes row A then (while
// still open) reads row B and observes T1's write to it; T1 writes row B
// then reads row A and observes T0's write to it. The two write→read
// observations form a WR cycle (G1c). Two select-reads of an untouched
// row C are mixed in as disposable statements for the minimizer to drop.
func buildStmts() []*instrument.Stmt {
	return []*instrument.Stmt{
		{Text: "BEGIN", Tid: 0, Role: instrument.Init},
		{Text: "BEGIN", Tid: 1, Role: instrument.Init},
		{Text: "SELECT * FROM t0 WHERE wkey = 3", Tid: 0, Role: instrument.SelectRead, Target: "t0"}, // disposable
		{Text: "UPDATE t0 SET v = 1 WHERE wkey = 1", Tid: 0, Role: instrument.UpdateWrite, Target: "t0"},
		{Text: "SELECT * FROM t0 WHERE wkey = 1", Tid: 0, Role: instrument.AfterWriteRead, Target: "t0"}, // A=1
		{Text: "UPDATE t0 SET v = 1 WHERE wkey = 2", Tid: 1, Role: instrument.UpdateWrite, Target: "t0"},
		{Text: "SELECT * FROM t0 WHERE wkey = 2", Tid: 1, Role: instrument.AfterWriteRead, Target: "t0"}, // B=1
		{Text: "SELECT * FROM t0 WHERE wkey = 2", Tid: 0, Role: instrument.SelectRead, Target: "t0"},     // T0 observes T1's B=1 -> WR T1->T0
		{Text: "SELECT * FROM t0 WHERE wkey = 3", Tid: 1, Role: instrument.SelectRead, Target: "t0"},     // disposable
		{Text: "SELECT * FROM t0 WHERE wkey = 1", Tid: 1, Role: instrument.SelectRead, Target: "t0"},     // T1 observes T0's A=1 -> WR T0->T1
		{Text: "COMMIT", Tid: 0, Role: instrument.Init},
		{Text: "COMMIT", Tid: 1, Role: instrument.Init},
	}
}

// fakeReplay reruns depgraph.Build/Detect directly against the fixed row
// shape below, standing in for internal/orchestrator's real scheduler-
// backed Replay in this unit test.
func fakeReplay(t *testing.T) Replay {
	return func(ctx context.Context, stmts []*instrument.Stmt) ([]depgraph.Violation, error) {
		g, hist := buildGraphFor(stmts)
		return depgraph.Detect(g, hist), nil
	}
}

// rowOf returns the fixed observed content for a statement of the
// *original* 12-statement fixture, keyed by its literal text and tid so the
// shape survives statements being dropped out from under it.
func rowOf(text string, tid int) (depgraph.Row, bool) {
	switch {
	case text == "SELECT * FROM t0 WHERE wkey = 1" && tid == 0:
		return depgraph.Row{"wkey": int64(1), "write_op_id": int64(1), "v": int64(1)}, true // A=1, T0's own write
	case text == "SELECT * FROM t0 WHERE wkey = 2" && tid == 1:
		return depgraph.Row{"wkey": int64(2), "write_op_id": int64(1), "v": int64(1)}, true // B=1, T1's own write
	case text == "SELECT * FROM t0 WHERE wkey = 2" && tid == 0:
		return depgraph.Row{"wkey": int64(2), "write_op_id": int64(1), "v": int64(1)}, true // T0 observes T1's B=1
	case text == "SELECT * FROM t0 WHERE wkey = 1" && tid == 1:
		return depgraph.Row{"wkey": int64(1), "write_op_id": int64(1), "v": int64(1)}, true // T1 observes T0's A=1
	case text == "SELECT * FROM t0 WHERE wkey = 3":
		return depgraph.Row{"wkey": int64(3), "write_op_id": int64(0), "v": int64(0)}, true // disposable, untouched
	default:
		return nil, false
	}
}

func buildGraphFor(stmts []*instrument.Stmt) (*depgraph.Graph, depgraph.RowHistory) {
	var out []depgraph.StmtOutput
	for _, s := range stmts {
		so := depgraph.StmtOutput{Tid: s.Tid, Role: s.Role, Target: s.Target}
		if row, ok := rowOf(s.Text, s.Tid); ok {
			so.Rows = []depgraph.Row{row}
		}
		out = append(out, so)
	}

	in := depgraph.Input{
		Stmts:     out,
		TxnStatus: map[int]depgraph.TxnStatus{0: depgraph.StatusCommitted, 1: depgraph.StatusCommitted},
	}
	g, _ := depgraph.Build(in)
	return g, depgraph.History(in)
}

func TestMinimizeDropsDisposableStatementsButKeepsTheCycle(t *testing.T) {
	stmts := buildStmts()
	g, hist := buildGraphFor(stmts)
	violations := depgraph.Detect(g, hist)
	require.True(t, hasPredicate(violations, "G1c"), "fixture must reproduce G1c before minimizing")

	reduced, err := Minimize(context.Background(), fakeReplay(t), g, &Triple{Stmts: stmts}, "G1c")
	require.NoError(t, err)
	require.Less(t, len(reduced.Stmts), len(stmts), "minimizer should have dropped at least the disposable select-reads")

	rg, rhist := buildGraphFor(reduced.Stmts)
	require.True(t, hasPredicate(depgraph.Detect(rg, rhist), "G1c"), "minimized reproducer must still trigger G1c")

	for _, s := range reduced.Stmts {
		require.NotContains(t, s.Text, "wkey = 3", "disposable read of the untouched row should have been dropped")
	}
}

func TestMinimizeIsAFixedPoint(t *testing.T) {
	stmts := buildStmts()
	g, _ := buildGraphFor(stmts)

	first, err := Minimize(context.Background(), fakeReplay(t), g, &Triple{Stmts: stmts}, "G1c")
	require.NoError(t, err)

	g2, _ := buildGraphFor(first.Stmts)
	second, err := Minimize(context.Background(), fakeReplay(t), g2, first, "G1c")
	require.NoError(t, err)
	require.Equal(t, len(first.Stmts), len(second.Stmts))
}
