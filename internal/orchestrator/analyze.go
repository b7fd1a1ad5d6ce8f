package orchestrator

import (
	"context"
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/config"
	"github.com/txnfuzz/txnfuzz/internal/depgraph"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
	"github.com/txnfuzz/txnfuzz/internal/reproducer"
	"github.com/txnfuzz/txnfuzz/internal/scheduler"
	"github.com/txnfuzz/txnfuzz/internal/telemetry"
)

// analyze turns the scheduler's actual execution order into a dependency
// graph and runs every anomaly predicate against it. Rows travel as
// dut.Row in the scheduler and depgraph.Row here, but both are the same
// underlying map[string]any, so the conversion is direct.
func analyze(actual []scheduler.Executed) []depgraph.Violation {
	_, violations, err := buildGraphAndDetect(actual)
	if err != nil {
		return nil
	}
	return violations
}

// buildGraphAndDetect is analyze's graph-returning core, shared with
// ReplayGraph (the "minimize" CLI subcommand's entry point, which needs
// the *depgraph.Graph itself for MinimizationOrder, not just its
// predicate verdicts).
func buildGraphAndDetect(actual []scheduler.Executed) (*depgraph.Graph, []depgraph.Violation, error) {
	in := depgraph.Input{
		TxnStatus: txnStatuses(actual),
		Stmts:     make([]depgraph.StmtOutput, 0, len(actual)),
	}
	for _, e := range actual {
		rows := make([]depgraph.Row, len(e.Result.Rows))
		for i, r := range e.Result.Rows {
			rows[i] = depgraph.Row(r)
		}
		in.Stmts = append(in.Stmts, depgraph.StmtOutput{
			Tid:    e.Stmt.Tid,
			Role:   e.Stmt.Role,
			Target: e.Stmt.Target,
			Rows:   rows,
		})
	}

	g, err := depgraph.Build(in)
	if err != nil {
		return nil, nil, err
	}
	return g, depgraph.Detect(g, depgraph.History(in)), nil
}

// txnStatuses reads each transaction's terminal Init-role statement text
// (the commit or abort literal buildQueue appended) out of actual, the
// only place the orchestrator learns which outcome actually happened
// rather than which one was planned.
func txnStatuses(actual []scheduler.Executed) map[int]depgraph.TxnStatus {
	out := map[int]depgraph.TxnStatus{}
	for _, e := range actual {
		if e.Stmt.Role != instrument.Init {
			continue
		}
		switch {
		case isCommitText(e.Stmt.Text):
			out[e.Stmt.Tid] = depgraph.StatusCommitted
		case isAbortText(e.Stmt.Text):
			out[e.Stmt.Tid] = depgraph.StatusAborted
		}
	}
	return out
}

func isCommitText(s string) bool {
	return strings.Contains(strings.ToUpper(s), "COMMIT")
}

func isAbortText(s string) bool {
	up := strings.ToUpper(s)
	return strings.Contains(up, "ROLLBACK") || strings.Contains(up, "ABORT")
}

// recordSchedulerTelemetry walks actual's per-statement results, counting
// the outcome class the scheduler last resolved each statement to. Every
// entry in actual reached StmtExecuted, so dut.Blocked/Syntax/Constraint/
// Skipped here describe a statement that was retried and eventually
// settled, not one the scheduler is still tracking as blocked or skipped.
func recordSchedulerTelemetry(ctx context.Context, tel *telemetry.Run, actual []scheduler.Executed) {
	for _, e := range actual {
		switch e.Result.Class {
		case dut.Blocked:
			tel.StmtBlocked(ctx)
		case dut.Syntax, dut.Constraint, dut.Skipped:
			tel.StmtSkipped(ctx)
		default:
			tel.StmtExecuted(ctx)
		}
	}
}

// saveReproducer writes the full instrumented queue to a fresh directory
// under cfg.OutputDir so the "reproduce"/"minimize" CLI subcommands can
// replay the exact run that tripped an anomaly, plus a manifest naming
// the seed, driver, and fired predicates for triage.
func saveReproducer(cfg *config.Config, q []*instrument.Stmt, violations []depgraph.Violation) (string, error) {
	dir := reproducer.NewDir(cfg.OutputDir)
	if err := reproducer.Save(dir, &reproducer.Triple{Stmts: q}); err != nil {
		return dir, err
	}
	m := &reproducer.Manifest{
		Seed:       cfg.Seed,
		Driver:     cfg.DUT.Driver,
		Statements: len(q),
	}
	for _, v := range violations {
		m.Violations = append(m.Violations, reproducer.ManifestViolation{
			Predicate: v.Predicate,
			Txns:      v.Txns,
			RowID:     v.RowID,
			Detail:    v.Detail,
		})
	}
	if err := reproducer.SaveManifest(dir, m); err != nil {
		return dir, err
	}
	return dir, nil
}
