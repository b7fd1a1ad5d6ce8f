package doltdut

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// forkWatchdog supervises the disposable sql-server ForkServer started,
// restarting it with backoff if it stops answering. It exists only to keep
// the auxiliary blocking-probe session alive for the duration of a test
// run; the embedded primary session does not depend on it.
type forkWatchdog struct {
	mu       sync.Mutex
	cfg      *serverConfig
	pid      int
	stopCh   chan struct{}
	doneCh   chan struct{}
	restarts int
}

const (
	watchdogCheckInterval = 10 * time.Second
	watchdogMaxRestarts   = 3
)

func startWatchdog(cfg *serverConfig, pid int) *forkWatchdog {
	w := &forkWatchdog{cfg: cfg, pid: pid, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go w.loop()
	return w
}

func (w *forkWatchdog) loop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(watchdogCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *forkWatchdog) check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if isServerRunning(w.cfg.Host, w.cfg.Port) {
		return
	}
	if w.restarts >= watchdogMaxRestarts {
		fmt.Fprintf(os.Stderr, "doltdut: fork server down, giving up after %d restarts\n", w.restarts)
		return
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 2 * time.Second
	boff.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		pid, err := startServer(context.Background(), w.cfg)
		if err != nil {
			return err
		}
		w.pid = pid
		return nil
	}, boff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doltdut: fork server restart failed: %v\n", err)
		return
	}
	w.restarts++
	fmt.Fprintf(os.Stderr, "doltdut: fork server restarted (attempt %d), new pid=%d\n", w.restarts, w.pid)
}

func (w *forkWatchdog) stop() {
	close(w.stopCh)
	<-w.doneCh
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = stopServer(w.pid)
}
