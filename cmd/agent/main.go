package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/meta-node-blockchain/coin-consensus/pkg/config"
	"github.com/meta-node-blockchain/coin-consensus/pkg/consensus"
	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
	"github.com/meta-node-blockchain/coin-consensus/pkg/loggerfile"
	"github.com/meta-node-blockchain/coin-consensus/pkg/membership"
	"github.com/meta-node-blockchain/coin-consensus/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "config.json", "cluster config file")
	id := flag.Int("id", -1, "this agent's id")
	initial := flag.Int("init", -1, "initial opinion (0/1), random when unset")
	etcdEndpoints := flag.String("etcd", "", "comma-separated etcd endpoints for the readiness registry")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}
	self, err := cfg.Agent(*id)
	if err != nil {
		logger.Error("bad agent id: %v", err)
		os.Exit(1)
	}
	logger.SetIdentifier(fmt.Sprintf("agent-%d", self.ID))
	logger.Info("run id %s", uuid.NewString())

	if cfg.TraceDir != "" {
		loggerfile.SetGlobalLogDir(cfg.TraceDir)
	}

	opinion := consensus.Opinion(*initial)
	if !opinion.Concrete() {
		opinion = consensus.Opinion(rand.New(rand.NewSource(time.Now().UnixNano())).Intn(2))
	}

	registry, err := buildRegistry(*etcdEndpoints, len(cfg.Agents))
	if err != nil {
		logger.Error("failed to build registry: %v", err)
		os.Exit(1)
	}

	table := membership.NewTable(cfg.Addresses())
	agent := consensus.New(self.ID, opinion, self.Faulty, table, registry, rpc.NewClient(), cfg)
	if cfg.TraceDir != "" {
		agent.EnableTrace()
	}

	server := rpc.NewServer(agent, self.Address)
	if err := server.Start(); err != nil {
		logger.Error("failed to start server: %v", err)
		os.Exit(1)
	}
	if err := registry.MarkReady(context.Background(), self.ID); err != nil {
		logger.Error("failed to mark ready: %v", err)
		os.Exit(1)
	}
	logger.Info("agent %d up (faulty=%v, opinion=%d)", self.ID, self.Faulty, opinion)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	agent.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("agent %d shut down", self.ID)
}

// buildRegistry returns the etcd registry when endpoints are given. Without
// etcd a single process cannot observe cluster-wide readiness, so the
// in-memory registry starts pre-marked and the orchestrator is trusted to
// sequence startup.
func buildRegistry(endpoints string, n int) (membership.Registry, error) {
	if endpoints != "" {
		cli, err := membership.NewEtcdClient(strings.Split(endpoints, ","))
		if err != nil {
			return nil, err
		}
		return membership.NewEtcdRegistry(cli, n, 10), nil
	}
	logger.Warn("no etcd endpoints, assuming the whole cluster is ready")
	reg := membership.NewMemoryRegistry(n)
	for i := 0; i < n; i++ {
		reg.MarkReady(context.Background(), i)
	}
	return reg, nil
}
