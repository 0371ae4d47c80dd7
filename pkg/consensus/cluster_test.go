package consensus_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meta-node-blockchain/coin-consensus/pkg/config"
	"github.com/meta-node-blockchain/coin-consensus/pkg/consensus"
	"github.com/meta-node-blockchain/coin-consensus/pkg/membership"
	"github.com/meta-node-blockchain/coin-consensus/pkg/rpc"
)

type testCluster struct {
	cfg     *config.ClusterConfig
	agents  []*consensus.Agent
	servers []*rpc.Server
	client  *rpc.Client
}

// freeAddrs reserves n loopback ports by binding and releasing them.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

func startCluster(t *testing.T, initial []consensus.Opinion, faulty []bool, ceiling uint64) *testCluster {
	t.Helper()
	n := len(initial)
	addrs := freeAddrs(t, n)

	cfg := config.Default()
	cfg.RoundCeiling = ceiling
	cfg.RoundDelayMs = 10
	cfg.VoteTimeoutMs = 250
	cfg.ReadyPollMs = 5
	cfg.BroadcastBackoffMs = 10
	for i := 0; i < n; i++ {
		cfg.Agents = append(cfg.Agents, config.AgentConfig{ID: i, Address: addrs[i], Faulty: faulty[i]})
	}
	require.NoError(t, cfg.Validate())

	table := membership.NewTable(addrs)
	registry := membership.NewMemoryRegistry(n)
	client := rpc.NewClient()

	tc := &testCluster{cfg: cfg, client: client}
	for i := 0; i < n; i++ {
		agent := consensus.New(i, initial[i], faulty[i], table, registry, client, cfg)
		server := rpc.NewServer(agent, addrs[i])
		require.NoError(t, server.Start())
		require.NoError(t, registry.MarkReady(context.Background(), i))
		tc.agents = append(tc.agents, agent)
		tc.servers = append(tc.servers, server)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, s := range tc.servers {
			s.Shutdown(ctx)
		}
	})
	return tc
}

func (tc *testCluster) runAll(t *testing.T, ids ...int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			errs[i] = tc.agents[id].Run(context.Background())
		}(i, id)
	}
	wg.Wait()
	for i, id := range ids {
		require.NoError(t, errs[i], "agent %d run failed", id)
	}
}

func TestClusterUnanimousDecision(t *testing.T) {
	// N=4, agent 3 faulty, all opinions start at 1: every honest agent
	// observes its own vote plus two peers and decides 1 immediately.
	tc := startCluster(t,
		[]consensus.Opinion{consensus.OpinionOne, consensus.OpinionOne, consensus.OpinionOne, consensus.OpinionOne},
		[]bool{false, false, false, true},
		10,
	)

	tc.runAll(t, 0, 1, 2)

	for id := 0; id < 3; id++ {
		value, decided := tc.agents[id].State().Decided()
		assert.True(t, decided, "agent %d should have decided", id)
		assert.Equal(t, consensus.OpinionOne, value, "agent %d decided the wrong value", id)
	}

	view := tc.agents[3].Snapshot()
	assert.Nil(t, view.Opinion)
	assert.Nil(t, view.Decided)
	assert.Nil(t, view.Round)
}

func TestClusterCeilingExhaustion(t *testing.T) {
	// With two of three agents faulty the majority threshold of 2 is
	// unreachable, so the run completes by exhausting the ceiling.
	tc := startCluster(t,
		[]consensus.Opinion{consensus.OpinionOne, consensus.OpinionOne, consensus.OpinionOne},
		[]bool{false, true, true},
		3,
	)

	require.NoError(t, tc.agents[0].Run(context.Background()))

	view := tc.agents[0].Snapshot()
	require.NotNil(t, view.Decided)
	assert.False(t, *view.Decided)
	require.NotNil(t, view.Round)
	assert.Equal(t, uint64(2), *view.Round)
	require.NotNil(t, view.Opinion, "coin flips still leave a concrete opinion")
}

func TestClusterStaleUpdateIgnored(t *testing.T) {
	tc := startCluster(t,
		[]consensus.Opinion{consensus.OpinionOne, consensus.OpinionZero},
		[]bool{false, false},
		10,
	)

	tc.agents[0].State().RecordRound(7, consensus.OpinionOne, false)

	ctx := context.Background()
	require.NoError(t, tc.client.PushUpdate(ctx, tc.cfg.Agents[0].Address, 5, consensus.OpinionZero))
	time.Sleep(100 * time.Millisecond)

	view := tc.agents[0].Snapshot()
	require.NotNil(t, view.Round)
	assert.Equal(t, uint64(7), *view.Round)
	require.NotNil(t, view.Opinion)
	assert.Equal(t, 1, *view.Opinion)
	require.NotNil(t, view.Decided)
	assert.False(t, *view.Decided)
}

func TestClusterStopExcludesAgent(t *testing.T) {
	tc := startCluster(t,
		[]consensus.Opinion{consensus.OpinionOne, consensus.OpinionOne, consensus.OpinionOne},
		[]bool{false, false, false},
		10,
	)
	ctx := context.Background()

	require.NoError(t, tc.client.Stop(ctx, tc.cfg.Agents[2].Address))
	require.Eventually(t, func() bool {
		_, err := tc.client.State(ctx, tc.cfg.Agents[2].Address)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond, "stopped agent should stop answering")

	// The stopped agent rejects a direct start.
	assert.ErrorIs(t, tc.agents[2].Run(ctx), consensus.ErrStopped)
	assert.Error(t, tc.client.PushUpdate(ctx, tc.cfg.Agents[2].Address, 1, consensus.OpinionOne))

	// The survivors still reach a decision among themselves.
	tc.runAll(t, 0, 1)
	for id := 0; id < 2; id++ {
		value, decided := tc.agents[id].State().Decided()
		assert.True(t, decided, "agent %d should have decided", id)
		assert.Equal(t, consensus.OpinionOne, value)
	}
}

func TestClusterFaultyRunRejected(t *testing.T) {
	tc := startCluster(t,
		[]consensus.Opinion{consensus.OpinionOne, consensus.OpinionOne},
		[]bool{false, true},
		10,
	)
	assert.ErrorIs(t, tc.agents[1].Run(context.Background()), consensus.ErrFaulty)
}

func TestClusterConcurrentRunRejected(t *testing.T) {
	tc := startCluster(t,
		[]consensus.Opinion{consensus.OpinionOne, consensus.OpinionOne, consensus.OpinionOne},
		[]bool{false, true, true},
		2,
	)
	// Stretch the rounds so the first run is reliably still in flight.
	tc.cfg.RoundDelayMs = 300

	done := make(chan error, 1)
	go func() { done <- tc.agents[0].Run(context.Background()) }()

	time.Sleep(150 * time.Millisecond)
	assert.ErrorIs(t, tc.agents[0].Run(context.Background()), consensus.ErrAlreadyRunning)

	require.NoError(t, <-done)
}
