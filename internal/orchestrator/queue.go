package orchestrator

import (
	"context"
	"fmt"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/grammar"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

// buildQueue instruments each transaction's planned statements and
// brackets the result with that session's own begin/commit-or-abort
// literal, per the generator's contract that it never emits transaction
// control itself (instrument.Instrument passes schema statements through
// unrewritten, but BEGIN/COMMIT/ROLLBACK aren't generated at all). The
// per-tid sequences are concatenated in ascending tid order; the
// scheduler interleaves them by polling, not by the order they appear
// here.
func buildQueue(ctx context.Context, sessions *sessionSet, cat *catalog.Catalog, perTid map[int][]*grammar.PlannedStmt, plan map[int]bool) ([]*instrument.Stmt, error) {
	var q []*instrument.Stmt
	for tid := 0; tid < len(perTid); tid++ {
		stmts, ok := perTid[tid]
		if !ok {
			continue
		}
		session, err := sessions.Session(ctx, tid)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: open session for tid %d: %w", tid, err)
		}

		body, err := instrument.Instrument(cat, stmts)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: instrument tid %d: %w", tid, err)
		}

		terminal := session.AbortStmt()
		if plan[tid] {
			terminal = session.CommitStmt()
		}

		q = append(q, &instrument.Stmt{Text: session.BeginStmt(), Tid: tid, Role: instrument.Init})
		q = append(q, body...)
		q = append(q, &instrument.Stmt{Text: terminal, Tid: tid, Role: instrument.Init})
	}
	return q, nil
}
