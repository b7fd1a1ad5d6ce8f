package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/txnfuzz/txnfuzz/internal/dut"
)

// DUTFactory opens one fresh session against the configured target. Each
// call must return an independent session: the scheduler opens one per
// transaction plus one for the auxiliary blocking probe, and distinct
// values backed by the same server must be safe to use concurrently with
// each other (dut.DUT's doc comment).
type DUTFactory func() (dut.DUT, error)

// sessionSet implements scheduler.Sessions by lazily opening one DUTFactory
// session per transaction id and one shared probe session up front.
// ForkServer is called on every session immediately after opening it, both
// to register the identifier IsBlocked polling needs (mysqldut/pqdut treat
// this call as returning their own connection id) and, for doltdut, to
// stand up the disposable sql-server the probe needs to exist at all.
type sessionSet struct {
	factory DUTFactory

	mu      sync.Mutex
	byTid   map[int]dut.DUT
	ids     map[int]string
	probe   dut.DUT
	probeID string
	opened  []dut.DUT
}

func newSessionSet(ctx context.Context, factory DUTFactory) (*sessionSet, error) {
	probe, err := factory()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open probe session: %w", err)
	}
	pid, err := probe.ForkServer(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fork probe session: %w", err)
	}
	return &sessionSet{
		factory: factory,
		byTid:   map[int]dut.DUT{},
		ids:     map[int]string{},
		probe:   probe,
		probeID: strconv.Itoa(pid),
		opened:  []dut.DUT{probe},
	}, nil
}

func (s *sessionSet) Session(ctx context.Context, tid int) (dut.DUT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.byTid[tid]; ok {
		return d, nil
	}
	d, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open session for tid %d: %w", tid, err)
	}
	pid, err := d.ForkServer(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fork session for tid %d: %w", tid, err)
	}
	s.byTid[tid] = d
	s.ids[tid] = strconv.Itoa(pid)
	s.opened = append(s.opened, d)
	return d, nil
}

func (s *sessionSet) Probe() dut.DUT { return s.probe }

func (s *sessionSet) SessionID(tid int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[tid]
}

// closeAll closes every session opened so far that implements io.Closer;
// dut.DUT itself has no Close method since drivers that share an
// already-running server (mysqldut, pqdut) have nothing process-level to
// tear down.
func (s *sessionSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.opened {
		if c, ok := d.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
