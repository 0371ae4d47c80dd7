package consensus

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/meta-node-blockchain/coin-consensus/internal/telemetry"
	"github.com/meta-node-blockchain/coin-consensus/pkg/archive"
	"github.com/meta-node-blockchain/coin-consensus/pkg/config"
	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
	"github.com/meta-node-blockchain/coin-consensus/pkg/loggerfile"
	"github.com/meta-node-blockchain/coin-consensus/pkg/membership"
)

// Agent is one consensus participant. Its run loop executes one round at a
// time; inbound updates land on their own goroutines and serialize with the
// loop through the State mutex.
type Agent struct {
	id        int
	state     *State
	table     *membership.Table
	registry  membership.Registry
	transport Transport
	cfg       *config.ClusterConfig

	rng      *rand.Rand
	limiter  *rate.Limiter
	tracer   *loggerfile.FileLogger
	recorder *archive.Recorder
	running  atomic.Bool
}

// New builds an agent from its initial opinion and cluster wiring. A faulty
// agent is constructed the same way but never participates.
func New(id int, initial Opinion, faulty bool, table *membership.Table, registry membership.Registry, transport Transport, cfg *config.ClusterConfig) *Agent {
	limit := rate.Inf
	burst := 1
	if cfg.BroadcastRatePerSec > 0 {
		limit = rate.Limit(cfg.BroadcastRatePerSec)
		burst = cfg.BroadcastRatePerSec
	}
	return &Agent{
		id:        id,
		state:     NewState(initial, faulty),
		table:     table,
		registry:  registry,
		transport: transport,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		limiter:   rate.NewLimiter(limit, burst),
	}
}

func (a *Agent) ID() int {
	return a.id
}

// State exposes the agent's own record to the RPC layer and to tests.
func (a *Agent) State() *State {
	return a.state
}

// SetRecorder attaches an optional round archive.
func (a *Agent) SetRecorder(rec *archive.Recorder) {
	a.recorder = rec
}

// EnableTrace opens a per-agent trace file under the global log directory.
func (a *Agent) EnableTrace() {
	fl, err := loggerfile.NewFileLogger(fmt.Sprintf("agent_%d/rounds.log", a.id))
	if err != nil {
		logger.Warn("agent %d: trace disabled: %v", a.id, err)
		return
	}
	a.tracer = fl
}

// Run executes the consensus loop until a decision is reached or the round
// ceiling is exhausted. Both outcomes complete without error; only local
// precondition violations surface to the caller.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.state.Guard(); err != nil {
		return err
	}
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	logger.Info("agent %d waiting for cluster readiness", a.id)
	if err := membership.WaitAllReady(ctx, a.registry, a.cfg.ReadyPoll()); err != nil {
		return fmt.Errorf("readiness wait aborted: %w", err)
	}
	a.tracer.Info("cluster ready, starting run")

	for round := uint64(0); round < a.cfg.RoundCeiling; round++ {
		if a.state.Killed() {
			logger.Warn("agent %d stopped mid-run at round %d", a.id, round)
			return nil
		}
		if value, decided := a.state.Decided(); decided {
			a.tracer.Info("round %d: decision %d adopted from a peer, stopping", round, value)
			logger.Info("agent %d adopted decision %d from a peer", a.id, value)
			return nil
		}

		if err := a.sleep(ctx, a.cfg.RoundDelay()); err != nil {
			return fmt.Errorf("run aborted at round %d: %w", round, err)
		}

		tally := a.collectVotes(ctx, round)
		telemetry.RoundsTotal.Inc()

		if value, ok := Majority(tally, a.table.N()); ok {
			a.state.RecordRound(round, value, true)
			telemetry.DecisionsTotal.WithLabelValues(fmt.Sprintf("%d", value)).Inc()
			a.record(round, tally, value, true)
			a.tracer.Info("round %d: majority %d (%d zeros / %d ones), deciding", round, value, tally.Zeros, tally.Ones)
			logger.Info("agent %d decided %d at round %d", a.id, value, round)
			a.broadcast(ctx, round, value)
			return nil
		}

		flip := coinFlip(a.rng)
		a.state.RecordRound(round, flip, false)
		a.record(round, tally, flip, false)
		a.tracer.Info("round %d: no majority (%d zeros / %d ones), coin flip %d", round, tally.Zeros, tally.Ones, flip)
	}

	logger.Info("agent %d exhausted the round ceiling without deciding", a.id)
	a.tracer.Info("round ceiling reached without a decision")
	return nil
}

// Probe reports the liveness indicator: faulty agents always answer faulty,
// regardless of killed.
func (a *Agent) Probe() string {
	if a.state.Faulty() {
		return "faulty"
	}
	return "live"
}

// Snapshot returns the externally visible state.
func (a *Agent) Snapshot() StateView {
	return a.state.Snapshot()
}

// HandleUpdate acknowledges a peer-pushed (round, value) pair. The mutation
// is applied on its own goroutine so the responder never blocks.
func (a *Agent) HandleUpdate(round uint64, value Opinion) error {
	if err := a.state.Guard(); err != nil {
		return err
	}
	if !value.Concrete() {
		return fmt.Errorf("update value %d is not binary", value)
	}
	go a.applyUpdate(round, value)
	return nil
}

func (a *Agent) applyUpdate(round uint64, value Opinion) {
	if a.state.ApplyUpdate(round, value) {
		telemetry.UpdatesApplied.Inc()
		a.tracer.Info("adopted pushed update round=%d value=%d", round, value)
		logger.Debug("agent %d adopted update round=%d value=%d", a.id, round, value)
		return
	}
	telemetry.UpdatesIgnored.Inc()
	logger.Debug("agent %d ignored stale update round=%d", a.id, round)
}

// Stop marks the agent killed. Idempotent and terminal.
func (a *Agent) Stop() {
	a.state.Kill()
	logger.Info("agent %d stopped", a.id)
}

func (a *Agent) record(round uint64, tally Tally, opinion Opinion, decided bool) {
	err := a.recorder.Record(archive.RoundRecord{
		Round:     round,
		Collected: tally.Size(),
		Zeros:     tally.Zeros,
		Ones:      tally.Ones,
		Opinion:   int(opinion),
		Decided:   decided,
	})
	if err != nil {
		logger.Warn("agent %d: failed to archive round %d: %v", a.id, round, err)
	}
}

func (a *Agent) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
