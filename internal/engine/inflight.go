package engine

import (
	"context"
	"sync"
)

// inflight counts transmitted events awaiting a result.
//
// Unlike sync.WaitGroup it may be waited on while the count moves away from
// zero again.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // Closed while n == 0
}

func newInflight() *inflight {
	idle := make(chan struct{})
	close(idle)
	return &inflight{idle: idle}
}

func (f *inflight) add(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= 0 {
		return
	}
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n += n
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.n == 0 {
		return
	}
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// wait blocks until the count is zero or ctx ends.
func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
