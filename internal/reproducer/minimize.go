package reproducer

import (
	"context"

	"github.com/txnfuzz/txnfuzz/internal/depgraph"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

// Replay executes stmts through one full scheduler+analyzer pass and
// returns whatever anomaly violations depgraph.Detect found against the
// resulting history. Callers supply this — internal/orchestrator wires a
// fresh DUT.Reset, a scheduler.Run pass, and a depgraph.Build+Detect pass —
// so this package never needs DUT session plumbing of its own.
type Replay func(ctx context.Context, stmts []*instrument.Stmt) ([]depgraph.Violation, error)

// Minimize repeatedly drops one statement from t, replaying the reduced
// queue, and keeps the removal only if targetPredicate still appears among
// the resulting violations. Candidates are tried in g's MinimizationOrder (the
// statement least load-bearing to a real data dependency first), so cheap
// structural statements are trimmed before ones a write-read/write-write
// edge depends on. The loop runs to a fixed point: a full pass over the
// remaining statements with zero successful removals ends it (S6).
func Minimize(ctx context.Context, replay Replay, g *depgraph.Graph, t *Triple, targetPredicate string) (*Triple, error) {
	kept := make([]bool, len(t.Stmts))
	for i := range kept {
		kept[i] = true
	}

	order := depgraph.MinimizationOrder(g)

	for {
		removedThisPass := false
		for _, idx := range order {
			if idx < 0 || idx >= len(kept) || !kept[idx] {
				continue
			}
			kept[idx] = false
			candidate := subset(t.Stmts, kept)

			violations, err := replay(ctx, candidate)
			if err != nil {
				kept[idx] = true
				return nil, err
			}
			if !hasPredicate(violations, targetPredicate) {
				kept[idx] = true // removing idx lost the anomaly; keep it
				continue
			}
			removedThisPass = true
		}
		if !removedThisPass {
			break
		}
	}

	return &Triple{Stmts: subset(t.Stmts, kept)}, nil
}

func subset(stmts []*instrument.Stmt, kept []bool) []*instrument.Stmt {
	out := make([]*instrument.Stmt, 0, len(stmts))
	for i, s := range stmts {
		if kept[i] {
			out = append(out, s)
		}
	}
	return out
}

func hasPredicate(violations []depgraph.Violation, predicate string) bool {
	for _, v := range violations {
		if v.Predicate == predicate {
			return true
		}
	}
	return false
}
