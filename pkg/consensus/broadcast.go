package consensus

import (
	"context"
	"sync"

	"github.com/meta-node-blockchain/coin-consensus/internal/telemetry"
	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
)

// broadcast pushes a decided (round, value) pair to every other agent.
// Delivery is best-effort: each peer gets a bounded retry sequence and
// failures after exhaustion are logged, never propagated. The caller's own
// commit stands regardless.
func (a *Agent) broadcast(ctx context.Context, round uint64, value Opinion) {
	// The decision path is unreachable for faulty agents; the guard is
	// still explicit.
	if a.state.Faulty() || a.state.Killed() {
		return
	}

	var wg sync.WaitGroup
	for peerID, addr := range a.table.Peers(a.id) {
		wg.Add(1)
		go func(peerID int, addr string) {
			defer wg.Done()
			if err := a.pushWithRetry(ctx, addr, round, value); err != nil {
				logger.Warn("agent %d: broadcast to peer %d failed after %d attempts: %v", a.id, peerID, a.cfg.BroadcastRetries, err)
				telemetry.BroadcastFailures.Inc()
				return
			}
			logger.Trace("agent %d: delivered decision to peer %d", a.id, peerID)
		}(peerID, addr)
	}
	wg.Wait()
}

func (a *Agent) pushWithRetry(ctx context.Context, addr string, round uint64, value Opinion) error {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.BroadcastRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		pctx, cancel := context.WithTimeout(ctx, a.cfg.VoteTimeout())
		err := a.transport.PushUpdate(pctx, addr, round, value)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < a.cfg.BroadcastRetries {
			if err := a.sleep(ctx, a.cfg.BroadcastBackoff()); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}
