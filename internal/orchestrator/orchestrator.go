// Package orchestrator ties the generator, instrumentor, scheduler, and
// dependency analyzer into one wall-clock-bound test run, and is
// the real internal/reproducer.Replay implementation's home: on an anomaly
// it saves the three-file reproducer directory (plus its manifest) and
// returns; the "minimize" CLI subcommand later hands a loaded triple to
// internal/reproducer.Minimize.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/config"
	"github.com/txnfuzz/txnfuzz/internal/depgraph"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
	"github.com/txnfuzz/txnfuzz/internal/randsrc"
	"github.com/txnfuzz/txnfuzz/internal/reproducer"
	"github.com/txnfuzz/txnfuzz/internal/scheduler"
	"github.com/txnfuzz/txnfuzz/internal/telemetry"
)

// FatalBugError is returned by RunTest when an anomaly instance was found,
// either because the analyzer's predicates fired against the actual
// execution history or because a DUT session itself classified a
// statement's error as dut.FatalBug. Dir names the saved reproducer
// directory a caller should hand to the "reproduce"/"minimize" CLI
// subcommands.
type FatalBugError struct {
	Violations []depgraph.Violation
	Dir        string
}

func (e *FatalBugError) Error() string {
	return fmt.Sprintf("orchestrator: %d anomaly violation(s) found, reproducer saved to %s", len(e.Violations), e.Dir)
}

// Report summarizes one completed test run, anomalous or not.
type Report struct {
	StatementsExecuted int
	TransactionsRun    int
	Violations         []depgraph.Violation
}

// RunTest drives one generate→instrument→schedule→analyze pass against a
// DUT opened through factory. ctx's deadline is the outer wall-clock
// timeout for the whole test; on return (success, anomaly, or
// cancellation) every opened session that implements io.Closer is closed.
// The DUT is reset at the start of each run, not on return.
func RunTest(ctx context.Context, cfg *config.Config, factory DUTFactory, tel *telemetry.Run) (*Report, error) {
	sessions, err := newSessionSet(ctx, factory)
	if err != nil {
		return nil, err
	}
	defer sessions.closeAll()

	bootstrap, err := sessions.Session(ctx, bootstrapTid)
	if err != nil {
		return nil, err
	}
	if err := bootstrap.Reset(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: reset dut: %w", err)
	}

	cat, err := buildCatalog(ctx, bootstrap)
	if err != nil {
		return nil, err
	}

	var source randsrc.Source = randsrc.NewSeedSource(cfg.Seed)
	if cfg.ReplayFile != "" {
		fs, err := randsrc.NewFileSource(cfg.ReplayFile)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: open replay file: %w", err)
		}
		defer fs.Close()
		source = fs
	}

	genCtx, genSpan := tel.Span(ctx, "generate")
	perTid, err := generatePlan(cat, source, cfg.NumTransactions, cfg.StmtsPerTxn)
	genSpan.End()
	if err != nil {
		return nil, err
	}

	plan := decideCommitPlan(source, cfg.NumTransactions)

	instCtx, instSpan := tel.Span(genCtx, "instrument")
	q, err := buildQueue(instCtx, sessions, cat, perTid, plan)
	instSpan.End()
	if err != nil {
		return nil, err
	}

	schedPlan := scheduler.Plan{PlannedCommitted: plan, Serializable: cfg.Serializable, StmtTimeout: cfg.StmtTimeout}
	schedCtx, schedSpan := tel.Span(instCtx, "schedule")
	actual, runErr := scheduler.Run(schedCtx, sessions, q, schedPlan)
	schedSpan.End()
	recordSchedulerTelemetry(ctx, tel, actual)

	var schedFatal *scheduler.FatalBugError
	if runErr != nil && !errors.As(runErr, &schedFatal) {
		return nil, runErr
	}

	analyzeCtx, analyzeSpan := tel.Span(schedCtx, "analyze")
	violations := analyze(actual)
	analyzeSpan.End()
	for _, v := range violations {
		tel.AnomalyFound(analyzeCtx, v.Predicate)
	}

	if schedFatal == nil && len(violations) == 0 {
		return &Report{StatementsExecuted: len(actual), TransactionsRun: cfg.NumTransactions}, nil
	}

	dir, saveErr := saveReproducer(cfg, q, violations)
	if saveErr != nil {
		tel.Logf("orchestrator: failed to save reproducer: %v", saveErr)
	}
	return &Report{StatementsExecuted: len(actual), TransactionsRun: cfg.NumTransactions, Violations: violations},
		&FatalBugError{Violations: violations, Dir: dir}
}

// bootstrapTid is a transaction id reserved for the session that
// introspects the schema and resets the DUT between runs; it never appears
// in a generated statement's Tid.
const bootstrapTid = -2

func buildCatalog(ctx context.Context, d dut.DUT) (*catalog.Catalog, error) {
	raw, err := d.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: introspect dut: %w", err)
	}
	cat := catalog.New()
	if err := cat.ReflectFrom(raw); err != nil {
		return nil, fmt.Errorf("orchestrator: reflect schema: %w", err)
	}
	if err := cat.Finalize(); err != nil {
		return nil, fmt.Errorf("orchestrator: finalize catalog: %w", err)
	}
	return cat, nil
}

// NewReplay builds a reproducer.Replay that drives an already-instrumented
// statement sequence through a fresh scheduler.Run + depgraph.Detect pass
// using sessions opened from factory — the "reproduce"/"minimize" CLI
// subcommands' only path into the scheduler and analyzer.
// Each call to the returned Replay opens its own session set and resets
// the DUT first, so repeated calls from reproducer.Minimize never see
// state left over from a previous candidate.
func NewReplay(factory DUTFactory) reproducer.Replay {
	return func(ctx context.Context, stmts []*instrument.Stmt) ([]depgraph.Violation, error) {
		_, violations, err := replayOnce(ctx, factory, stmts)
		return violations, err
	}
}

// ReplayGraph runs one replay pass and additionally returns the
// dependency graph the analyzer built, so a caller (the "minimize" CLI subcommand)
// can compute depgraph.MinimizationOrder from the same run reproducer.Minimize
// is about to reduce, rather than rebuilding it from a different replay.
func ReplayGraph(ctx context.Context, factory DUTFactory, stmts []*instrument.Stmt) (*depgraph.Graph, []depgraph.Violation, error) {
	return replayOnce(ctx, factory, stmts)
}

func replayOnce(ctx context.Context, factory DUTFactory, stmts []*instrument.Stmt) (*depgraph.Graph, []depgraph.Violation, error) {
	sessions, err := newSessionSet(ctx, factory)
	if err != nil {
		return nil, nil, err
	}
	defer sessions.closeAll()

	bootstrap, err := sessions.Session(ctx, bootstrapTid)
	if err != nil {
		return nil, nil, err
	}
	if err := bootstrap.Reset(ctx); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: reset dut: %w", err)
	}

	schedPlan := scheduler.Plan{PlannedCommitted: plannedFromStmts(stmts)}
	actual, runErr := scheduler.Run(ctx, sessions, stmts, schedPlan)
	var schedFatal *scheduler.FatalBugError
	if runErr != nil && !errors.As(runErr, &schedFatal) {
		return nil, nil, runErr
	}
	return buildGraphAndDetect(actual)
}

// plannedFromStmts recovers each transaction's intended commit/abort
// outcome from the Init-role terminal statement reproducer.Load already
// parsed out of usage.txt, the same text scheduler.Plan.PlannedCommitted
// needs for its non-serializable-mode guard.
func plannedFromStmts(stmts []*instrument.Stmt) map[int]bool {
	out := map[int]bool{}
	for _, s := range stmts {
		if s.Role != instrument.Init {
			continue
		}
		if isCommitText(s.Text) {
			out[s.Tid] = true
		}
	}
	return out
}

