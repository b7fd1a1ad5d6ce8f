package orchestrator

import (
	"fmt"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/grammar"
	"github.com/txnfuzz/txnfuzz/internal/randsrc"
	"github.com/txnfuzz/txnfuzz/internal/scope"
)

// generatePlan builds numTxns transactions of stmtsPerTxn top-level
// statements each against cat, applying any schema statement to cat (and
// re-finalizing it, then rebuilding the root scope) as soon as it's
// generated so later statements in the same run see the new table —
// fill_scope's "seed every base table" guarantee has to be re-established
// each time the catalog changes underneath a live generation loop.
func generatePlan(cat *catalog.Catalog, source randsrc.Source, numTxns, stmtsPerTxn int) (map[int][]*grammar.PlannedStmt, error) {
	root := scope.New(cat)
	gctx := grammar.NewContext(root, source)

	perTid := make(map[int][]*grammar.PlannedStmt, numTxns)
	for tid := 0; tid < numTxns; tid++ {
		for i := 0; i < stmtsPerTxn; i++ {
			stmt, err := grammar.NewTopLevelStmt(gctx, tid)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: generate tid=%d stmt=%d: %w", tid, i, err)
			}

			if stmt.Family == grammar.StmtSchema {
				if ss, ok := stmt.Stmt.(grammar.SchemaStmt); ok {
					ss.ApplyToCatalog(cat)
					if err := cat.Finalize(); err != nil {
						return nil, fmt.Errorf("orchestrator: re-finalize catalog after schema change: %w", err)
					}
					gctx.Scope = scope.New(cat)
				}
			}

			perTid[tid] = append(perTid[tid], stmt)
		}
	}
	return perTid, nil
}

// decideCommitPlan assigns each transaction id a planned terminal outcome,
// giving every transaction a one-in-four chance of a planned abort so a run
// exercises both WR edges into a committed reader and G1a's
// aborted-writer case.
func decideCommitPlan(source randsrc.Source, numTxns int) map[int]bool {
	plan := make(map[int]bool, numTxns)
	for tid := 0; tid < numTxns; tid++ {
		plan[tid] = source.Dx(4) != 1
	}
	return plan
}
