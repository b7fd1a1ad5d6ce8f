// Package scheduler drives one instrumented statement queue against a set
// of per-transaction DUT sessions as a single-goroutine polling loop: no
// shared mutable state among sessions, state transitions driven entirely
// by polling, never one goroutine per transaction.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

// TxnState is a transaction's place in the state machine:
// Idle, Running, Blocked (and back to Running), then Committed or Aborted.
type TxnState int

const (
	Idle TxnState = iota
	Running
	Blocked
	Committed
	Aborted
)

// StmtState is one queue position's outcome.
type StmtState int

const (
	StmtPending StmtState = iota
	StmtExecuted
	StmtSkipped
)

const (
	stmtTimeout    = 150 * time.Millisecond
	blockProbeBase = 100 * time.Millisecond
	blockProbeMax  = 200 * time.Millisecond
)

// Sessions supplies one DUT handle per transaction id plus a shared
// auxiliary probe connection the scheduler uses to ask "is this session
// blocked?" without going through the session itself.
type Sessions interface {
	// Session returns the DUT handle bound to tid's transaction, opening
	// one lazily on first use.
	Session(ctx context.Context, tid int) (dut.DUT, error)
	// Probe returns the auxiliary blocking-probe connection, shared across
	// every transaction.
	Probe() dut.DUT
	// SessionID returns the driver-level identifier try_execute polls
	// IsBlocked with for tid's session.
	SessionID(tid int) string
}

// Executed is one statement's actual outcome, recorded in actual execution
// order, the only order internal/depgraph is allowed to see.
type Executed struct {
	Stmt   *instrument.Stmt
	Idx    int // position in the planned queue
	Result dut.Result
}

// Plan gives the scheduler the transaction statuses the generator
// intended; the scheduler reaches each one by executing that
// transaction's own commit/abort statement, already present in q, but
// uses the intended status up front for the non-serializable-mode guard in
// the global loop.
type Plan struct {
	// PlannedCommitted lists every transaction id the generator intends to
	// commit. Transactions absent from this set are planned aborts.
	PlannedCommitted map[int]bool
	// Serializable, when true, skips the guard that keeps later statements
	// from jumping ahead of a plan-committed transaction's lock wait; when
	// false the guard applies.
	Serializable bool
	// StmtTimeout bounds one try_execute poll; zero means the 150ms
	// default.
	StmtTimeout time.Duration
}

func (p Plan) stmtTimeout() time.Duration {
	if p.StmtTimeout > 0 {
		return p.StmtTimeout
	}
	return stmtTimeout
}

// Run drives the instrumented queue q to completion (every statement
// Executed or Skipped) and returns the actual execution order.
func Run(ctx context.Context, sessions Sessions, q []*instrument.Stmt, plan Plan) ([]Executed, error) {
	s := &run{
		ctx:      ctx,
		sessions: sessions,
		q:        q,
		stmtSt:   make([]StmtState, len(q)),
		txnSt:    map[int]TxnState{},
		plan:     plan,
	}
	return s.drive()
}

type run struct {
	ctx      context.Context
	sessions Sessions
	q        []*instrument.Stmt
	stmtSt   []StmtState
	txnSt    map[int]TxnState
	next     map[int]int // tid -> index of its next pending statement
	actual   []Executed
	plan     Plan
}

func (s *run) state(tid int) TxnState {
	if st, ok := s.txnSt[tid]; ok {
		return st
	}
	return Idle
}

func (s *run) nextPending(tid int) int {
	if s.next == nil {
		s.next = map[int]int{}
	}
	idx, ok := s.next[tid]
	if !ok {
		idx = 0
	}
	for idx < len(s.q) {
		if s.q[idx].Tid == tid {
			if s.stmtSt[idx] == StmtPending {
				s.next[tid] = idx
				return idx
			}
			idx++
			continue
		}
		idx++
	}
	return -1
}

// someOtherPlannedCommitBlocked reports whether a transaction other than
// tid, and planned to commit, is currently Blocked — the
// non-serializable-mode guard: don't let an unrelated statement jump ahead
// of a plan-committed transaction's lock wait.
func (s *run) someOtherPlannedCommitBlocked(tid int) bool {
	for other, st := range s.txnSt {
		if other == tid || st != Blocked {
			continue
		}
		if s.plan.PlannedCommitted[other] {
			return true
		}
	}
	return false
}

func (s *run) drive() ([]Executed, error) {
	for i := 0; i < len(s.q); i++ {
		if err := s.ctx.Err(); err != nil {
			return s.actual, err
		}
		t := s.q[i].Tid
		if s.state(t) == Blocked {
			continue
		}
		if s.state(t) == Aborted || s.state(t) == Committed {
			continue
		}
		if !s.plan.Serializable && s.someOtherPlannedCommitBlocked(t) {
			continue
		}
		if s.stmtSt[i] != StmtPending {
			continue
		}

		r, res, err := s.tryExecute(t, i)
		if err != nil {
			return s.actual, err
		}
		switch r {
		case StmtExecuted:
			s.record(t, i, res)
			if s.q[i].Role == instrument.Init && isTerminal(s.q[i].Text) {
				if err := s.retryPass(); err != nil {
					return s.actual, err
				}
			}
		case StmtPending:
			s.txnSt[t] = Blocked
		case StmtSkipped:
			s.stmtSt[i] = StmtSkipped
		}
	}

	for {
		before := len(s.actual)
		if err := s.retryPass(); err != nil {
			return s.actual, err
		}
		if len(s.actual) == before {
			break
		}
	}
	return s.actual, nil
}

func (s *run) record(tid, idx int, res dut.Result) {
	s.stmtSt[idx] = StmtExecuted
	s.actual = append(s.actual, Executed{Stmt: s.q[idx], Idx: idx, Result: res})
}

// retryPass is the recursive release pass: every
// blocked transaction gets one re-attempt at its next pending statement;
// a success unblocks it and its remaining pending statements run in order;
// a commit/abort during the pass triggers a recursive pass so transitively
// released transactions make progress.
func (s *run) retryPass() error {
	progressed := false
	for tid, st := range s.txnSt {
		if st != Blocked {
			continue
		}
		idx := s.nextPending(tid)
		if idx < 0 {
			continue
		}
		r, res, err := s.tryExecute(tid, idx)
		if err != nil {
			return err
		}
		if r != StmtExecuted {
			continue
		}
		s.record(tid, idx, res)
		s.txnSt[tid] = Running
		progressed = true

		for {
			next := s.nextPending(tid)
			if next < 0 || s.state(tid) != Running {
				break
			}
			r, res, err := s.tryExecute(tid, next)
			if err != nil {
				return err
			}
			if r == StmtExecuted {
				s.record(tid, next, res)
				continue
			}
			if r == StmtSkipped {
				s.stmtSt[next] = StmtSkipped
				continue
			}
			s.txnSt[tid] = Blocked
			break
		}
	}
	if progressed {
		return s.retryPass()
	}
	return nil
}

// tryExecute submits q[idx] on tid's session and classifies the result:
// it polls for completion within the per-statement timeout, racing an
// auxiliary blocked-probe on a short cenkalti/backoff/v4-paced interval
// using golang.org/x/sync/errgroup to bound the two concurrent I/O calls.
func (s *run) tryExecute(tid, idx int) (StmtState, dut.Result, error) {
	stmt := s.q[idx]
	session, err := s.sessions.Session(s.ctx, tid)
	if err != nil {
		return StmtPending, dut.Result{}, fmt.Errorf("scheduler: open session for tid %d: %w", tid, err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.plan.stmtTimeout())
	defer cancel()
	pollCtx, pollCancel := context.WithCancel(ctx)
	defer pollCancel()

	var res dut.Result
	var execErr error
	var blocked bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, execErr = session.Execute(gctx, stmt.Text)
		pollCancel() // statement finished; stop the probe without waiting out stmtTimeout
		return nil
	})
	g.Go(func() error {
		blocked = s.pollBlocked(pollCtx, tid)
		return nil
	})
	_ = g.Wait()

	if execErr != nil && ctx.Err() != nil && blocked {
		s.txnSt[tid] = Blocked
		return StmtPending, res, nil
	}
	if execErr != nil {
		return StmtPending, res, nil
	}

	switch res.Class {
	case dut.OK:
		if stmt.Role.IsWrite() || stmt.Role == instrument.Init {
			switch {
			case isCommit(stmt.Text):
				s.txnSt[tid] = Committed
			case isAbort(stmt.Text):
				s.txnSt[tid] = Aborted
			}
		}
		s.txnSt[tid] = maxRunning(s.txnSt[tid])
		return StmtExecuted, res, nil
	case dut.Blocked:
		s.txnSt[tid] = Blocked
		return StmtPending, res, nil
	case dut.Syntax, dut.Constraint, dut.Skipped:
		return StmtSkipped, res, nil
	case dut.FatalBug:
		return StmtPending, res, &FatalBugError{Stmt: stmt, Result: res}
	default:
		return StmtSkipped, res, nil
	}
}

func maxRunning(st TxnState) TxnState {
	if st == Committed || st == Aborted {
		return st
	}
	return Running
}

// pollBlocked asks the auxiliary probe, with backoff-paced retries inside
// ctx's deadline, whether tid's session is waiting on a lock.
func (s *run) pollBlocked(ctx context.Context, tid int) bool {
	probe := s.sessions.Probe()
	sessionID := s.sessions.SessionID(tid)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = blockProbeBase
	b.MaxInterval = blockProbeMax
	b.MaxElapsedTime = 0 // bounded externally by ctx's deadline

	var blocked bool
	_ = backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		b2, err := probe.IsBlocked(ctx, sessionID)
		if err != nil {
			return err
		}
		if b2 {
			blocked = true
			return nil
		}
		return fmt.Errorf("not blocked yet")
	}, backoff.WithContext(b, ctx))
	return blocked
}

// FatalBugError reports a DUT-level error the analyzer never sees directly
// but the scheduler must stop on: the only ErrClass that escapes the
// scheduler loop to internal/orchestrator.
type FatalBugError struct {
	Stmt   *instrument.Stmt
	Result dut.Result
}

func (e *FatalBugError) Error() string {
	return fmt.Sprintf("scheduler: fatal bug executing tid=%d role=%s: %v", e.Stmt.Tid, e.Stmt.Role, e.Result.Err)
}

func isTerminal(text string) bool {
	return isCommit(text) || isAbort(text)
}

func isCommit(text string) bool {
	return containsFold(text, "COMMIT")
}

func isAbort(text string) bool {
	return containsFold(text, "ROLLBACK") || containsFold(text, "ABORT")
}

func containsFold(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if equalFold(s[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
