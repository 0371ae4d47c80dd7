package rpc

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meta-node-blockchain/coin-consensus/pkg/config"
	"github.com/meta-node-blockchain/coin-consensus/pkg/consensus"
	"github.com/meta-node-blockchain/coin-consensus/pkg/membership"
)

func startAgentServer(t *testing.T, initial consensus.Opinion, faulty bool) (*consensus.Agent, *Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Agents = []config.AgentConfig{{ID: 0, Address: "127.0.0.1:0"}}
	table := membership.NewTable([]string{"127.0.0.1:0"})
	registry := membership.NewMemoryRegistry(1)
	registry.MarkReady(context.Background(), 0)

	agent := consensus.New(0, initial, faulty, table, registry, NewClient(), cfg)
	server := NewServer(agent, "127.0.0.1:0")
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
	return agent, server
}

func TestProbe(t *testing.T) {
	_, live := startAgentServer(t, consensus.OpinionOne, false)
	_, faulty := startAgentServer(t, consensus.OpinionOne, true)
	client := NewClient()
	ctx := context.Background()

	status, err := client.Probe(ctx, live.Addr())
	require.NoError(t, err)
	assert.Equal(t, "live", status)

	status, err = client.Probe(ctx, faulty.Addr())
	require.NoError(t, err)
	assert.Equal(t, "faulty", status)
}

func TestProbeFaultyRegardlessOfKilled(t *testing.T) {
	agent, server := startAgentServer(t, consensus.OpinionOne, true)
	agent.Stop()

	status, err := NewClient().Probe(context.Background(), server.Addr())
	require.NoError(t, err)
	assert.Equal(t, "faulty", status)
}

func TestStateFaultyShape(t *testing.T) {
	_, server := startAgentServer(t, consensus.OpinionOne, true)

	view, err := NewClient().State(context.Background(), server.Addr())
	require.NoError(t, err)
	assert.False(t, view.Killed)
	assert.Nil(t, view.Opinion)
	assert.Nil(t, view.Decided)
	assert.Nil(t, view.Round)
}

func TestUpdateAppliedAsynchronously(t *testing.T) {
	agent, server := startAgentServer(t, consensus.OpinionZero, false)
	client := NewClient()
	ctx := context.Background()

	require.NoError(t, client.PushUpdate(ctx, server.Addr(), 3, consensus.OpinionOne))

	require.Eventually(t, func() bool {
		view := agent.Snapshot()
		return view.Round != nil && *view.Round == 3
	}, time.Second, 10*time.Millisecond)

	view := agent.Snapshot()
	require.NotNil(t, view.Opinion)
	assert.Equal(t, 1, *view.Opinion)
	require.NotNil(t, view.Decided)
	assert.True(t, *view.Decided, "an adopted push finalizes the receiver")
}

func TestUpdateRejectedWhenKilled(t *testing.T) {
	agent, server := startAgentServer(t, consensus.OpinionZero, false)
	agent.Stop()

	err := NewClient().PushUpdate(context.Background(), server.Addr(), 1, consensus.OpinionOne)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}

func TestUpdateMalformedPayload(t *testing.T) {
	_, server := startAgentServer(t, consensus.OpinionZero, false)

	resp, err := http.Post("http://"+server.Addr()+"/update", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post("http://"+server.Addr()+"/update", "application/json", bytes.NewReader([]byte(`{"round":1,"value":7}`)))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestRunRejectedForFaultyAgent(t *testing.T) {
	_, server := startAgentServer(t, consensus.OpinionOne, true)

	_, err := NewClient().Run(context.Background(), server.Addr())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "faulty")
}

func TestStopShutsListenerDown(t *testing.T) {
	_, server := startAgentServer(t, consensus.OpinionOne, false)
	client := NewClient()
	ctx := context.Background()

	require.NoError(t, client.Stop(ctx, server.Addr()))
	require.Eventually(t, func() bool {
		_, err := client.State(ctx, server.Addr())
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMethodNotAllowed(t *testing.T) {
	_, server := startAgentServer(t, consensus.OpinionOne, false)

	resp, err := http.Get("http://" + server.Addr() + "/stop")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
