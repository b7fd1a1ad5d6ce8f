package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

// fakeSession is an in-memory dut.DUT stand-in: every Execute succeeds
// immediately with dut.OK unless the statement text has been passed to
// block, in which case it reports Blocked until unblock is called.
type fakeSession struct {
	mu      sync.Mutex
	blocked map[string]bool
}

func newFakeSession() *fakeSession { return &fakeSession{blocked: map[string]bool{}} }

func (f *fakeSession) Execute(ctx context.Context, stmt string) (dut.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[stmt] {
		return dut.Result{Class: dut.Blocked}, nil
	}
	return dut.Result{Class: dut.OK, Rows: []dut.Row{{"wkey": int64(1)}}}, nil
}
func (f *fakeSession) block(stmt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[stmt] = true
}
func (f *fakeSession) unblock(stmt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, stmt)
}
func (f *fakeSession) IsBlocked(ctx context.Context, sessionID string) (bool, error) { return false, nil }
func (f *fakeSession) Reset(ctx context.Context) error                              { return nil }
func (f *fakeSession) Backup(ctx context.Context) (dut.Snapshot, error)              { return dut.Snapshot{}, nil }
func (f *fakeSession) RestoreTo(ctx context.Context, snap dut.Snapshot) error        { return nil }
func (f *fakeSession) GetContent(ctx context.Context, tables []string) (map[string][]dut.Row, error) {
	return nil, nil
}
func (f *fakeSession) BeginStmt() string  { return "BEGIN" }
func (f *fakeSession) CommitStmt() string { return "COMMIT" }
func (f *fakeSession) AbortStmt() string  { return "ROLLBACK" }
func (f *fakeSession) ForkServer(ctx context.Context) (int, error)                  { return 0, nil }
func (f *fakeSession) Introspect(ctx context.Context) (*catalog.RawSchema, error) { return nil, nil }

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[int]*fakeSession
}

func newFakeSessions() *fakeSessions { return &fakeSessions{sessions: map[int]*fakeSession{}} }

func (f *fakeSessions) Session(ctx context.Context, tid int) (dut.DUT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tid]
	if !ok {
		s = newFakeSession()
		f.sessions[tid] = s
	}
	return s, nil
}
func (f *fakeSessions) Probe() dut.DUT          { return newFakeSession() }
func (f *fakeSessions) SessionID(tid int) string { return "session-fake" }

func TestRunExecutesStatementsInSubmittedOrderPerTxn(t *testing.T) {
	sessions := newFakeSessions()
	q := []*instrument.Stmt{
		{Text: "BEGIN", Tid: 1, Role: instrument.Init},
		{Text: "INSERT INTO t0 VALUES (1)", Tid: 1, Role: instrument.InsertWrite, Target: "t0"},
		{Text: "SELECT * FROM t0 WHERE wkey = 1", Tid: 1, Role: instrument.AfterWriteRead, Target: "t0"},
		{Text: "COMMIT", Tid: 1, Role: instrument.Init},
	}
	out, err := Run(context.Background(), sessions, q, Plan{PlannedCommitted: map[int]bool{1: true}})
	require.NoError(t, err)
	require.Len(t, out, len(q))
	for i, e := range out {
		require.Equal(t, i, e.Idx)
		require.Equal(t, q[i], e.Stmt)
	}
}

func TestRunReleasesABlockedTransactionOnRetryPass(t *testing.T) {
	sessions := newFakeSessions()
	s1, _ := sessions.Session(context.Background(), 1)
	fs1 := s1.(*fakeSession)
	fs1.block("UPDATE t0 SET v = 1 WHERE wkey = 1")

	q := []*instrument.Stmt{
		{Text: "UPDATE t0 SET v = 1 WHERE wkey = 1", Tid: 1, Role: instrument.UpdateWrite, Target: "t0"},
		{Text: "SELECT * FROM t0 WHERE wkey = 2", Tid: 2, Role: instrument.SelectRead, Target: "t0"},
		{Text: "COMMIT", Tid: 2, Role: instrument.Init},
	}

	done := make(chan struct{})
	var out []Executed
	var runErr error
	go func() {
		out, runErr = Run(context.Background(), sessions, q, Plan{PlannedCommitted: map[int]bool{1: true, 2: true}})
		close(done)
	}()

	fs1.unblock("UPDATE t0 SET v = 1 WHERE wkey = 1")
	<-done

	require.NoError(t, runErr)
	require.Len(t, out, len(q))
}
