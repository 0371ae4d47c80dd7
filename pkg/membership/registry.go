package membership

import (
	"context"
	"sync"
	"time"
)

// Registry is the readiness barrier an orchestrator provides: agents mark
// themselves ready once their listener is up, and the run loop polls
// AllReady before its first round.
type Registry interface {
	MarkReady(ctx context.Context, id int) error
	AllReady(ctx context.Context) (bool, error)
}

// MemoryRegistry is the in-process Registry used by the cluster harness and
// by tests.
type MemoryRegistry struct {
	mu    sync.Mutex
	ready map[int]bool
	n     int
}

func NewMemoryRegistry(n int) *MemoryRegistry {
	return &MemoryRegistry{
		ready: make(map[int]bool, n),
		n:     n,
	}
}

func (r *MemoryRegistry) MarkReady(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready[id] = true
	return nil
}

func (r *MemoryRegistry) AllReady(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ready) >= r.n, nil
}

// WaitAllReady polls the registry until every agent is ready or the context
// is cancelled. The wait is deliberately unbounded beyond the context; the
// orchestrator is responsible for eventually making the cluster ready.
func WaitAllReady(ctx context.Context, reg Registry, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ok, err := reg.AllReady(ctx)
		if err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
