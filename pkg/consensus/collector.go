package consensus

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meta-node-blockchain/coin-consensus/internal/telemetry"
	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
)

// maxParallelQueries bounds the vote fan-out per round.
const maxParallelQueries = 16

// collectVotes queries every peer's exposed state exactly once, each under
// its own timeout. Unreachable peers, malformed payloads and null opinions
// are dropped silently; a failed query can only shrink the tally, never
// abort the round.
func (a *Agent) collectVotes(ctx context.Context, round uint64) Tally {
	var tally Tally
	if a.state.Faulty() {
		return tally
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(maxParallelQueries)

	for peerID, addr := range a.table.Peers(a.id) {
		peerID, addr := peerID, addr
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, a.cfg.VoteTimeout())
			defer cancel()

			view, err := a.transport.PeerState(qctx, addr)
			if err != nil {
				logger.Debug("agent %d round %d: dropping peer %d: %v", a.id, round, peerID, err)
				telemetry.VotesDiscarded.Inc()
				return nil
			}
			opinion, ok := view.ConcreteOpinion()
			if !ok {
				logger.Debug("agent %d round %d: peer %d exposes no opinion", a.id, round, peerID)
				telemetry.VotesDiscarded.Inc()
				return nil
			}

			mu.Lock()
			tally.Add(opinion)
			mu.Unlock()
			telemetry.VotesCollected.Inc()
			return nil
		})
	}
	g.Wait()

	// The agent's own opinion joins the tally. Peers alone top out at N-1
	// observations, which can never reach the strict-majority threshold
	// once a single peer is faulty.
	if own := a.state.Opinion(); own.Concrete() {
		tally.Add(own)
	}
	return tally
}
