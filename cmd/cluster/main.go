package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meta-node-blockchain/coin-consensus/pkg/archive"
	"github.com/meta-node-blockchain/coin-consensus/pkg/config"
	"github.com/meta-node-blockchain/coin-consensus/pkg/consensus"
	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
	"github.com/meta-node-blockchain/coin-consensus/pkg/loggerfile"
	"github.com/meta-node-blockchain/coin-consensus/pkg/membership"
	"github.com/meta-node-blockchain/coin-consensus/pkg/rpc"
)

func main() {
	n := flag.Int("n", 4, "cluster size")
	faultyList := flag.String("faulty", "", "comma-separated ids of faulty agents")
	initList := flag.String("init", "", "comma-separated initial opinions (0/1), random when empty")
	basePort := flag.Int("port", 9100, "first loopback port")
	ceiling := flag.Uint64("ceiling", 10, "round ceiling")
	traceDir := flag.String("trace", "", "directory for per-agent trace files")
	archivePath := flag.String("archive", "", "leveldb path for the round archive (in-memory when empty)")
	flag.Parse()

	faulty, err := parseIDs(*faultyList, *n)
	if err != nil {
		logger.Error("invalid -faulty: %v", err)
		os.Exit(1)
	}
	initial, err := parseOpinions(*initList, *n)
	if err != nil {
		logger.Error("invalid -init: %v", err)
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.RoundCeiling = *ceiling
	for i := 0; i < *n; i++ {
		cfg.Agents = append(cfg.Agents, config.AgentConfig{
			ID:      i,
			Address: fmt.Sprintf("127.0.0.1:%d", *basePort+i),
			Faulty:  faulty[i],
		})
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("bad cluster config: %v", err)
		os.Exit(1)
	}

	if *traceDir != "" {
		loggerfile.SetGlobalLogDir(*traceDir)
	}

	var store archive.Store = archive.NewMemoryStore()
	if *archivePath != "" {
		ls, err := archive.NewLevelStore(*archivePath)
		if err != nil {
			logger.Error("failed to open archive: %v", err)
			os.Exit(1)
		}
		store = ls
	}
	defer store.Close()

	runID := uuid.NewString()
	logger.Info("run %s: n=%d faulty=%d ceiling=%d", runID, *n, cfg.NumFaulty(), cfg.RoundCeiling)

	table := membership.NewTable(cfg.Addresses())
	registry := membership.NewMemoryRegistry(*n)
	client := rpc.NewClient()

	agents := make([]*consensus.Agent, *n)
	servers := make([]*rpc.Server, *n)
	recorders := make([]*archive.Recorder, *n)
	ctx := context.Background()

	for i := 0; i < *n; i++ {
		agents[i] = consensus.New(i, initial[i], faulty[i], table, registry, client, cfg)
		recorders[i] = archive.NewRecorder(store, i)
		agents[i].SetRecorder(recorders[i])
		if *traceDir != "" {
			agents[i].EnableTrace()
		}
		servers[i] = rpc.NewServer(agents[i], cfg.Agents[i].Address)
		if err := servers[i].Start(); err != nil {
			logger.Error("failed to start agent %d: %v", i, err)
			os.Exit(1)
		}
		if err := registry.MarkReady(ctx, i); err != nil {
			logger.Error("failed to mark agent %d ready: %v", i, err)
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		if faulty[i] {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := client.Run(ctx, cfg.Agents[i].Address); err != nil {
				logger.Warn("agent %d run failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	printStates(ctx, client, cfg)
	printArchive(recorders)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(shutdownCtx)
	}
}

func printStates(ctx context.Context, client *rpc.Client, cfg *config.ClusterConfig) {
	logger.Info("final states:")
	for _, a := range cfg.Agents {
		view, err := client.State(ctx, a.Address)
		if err != nil {
			logger.Warn("  agent %d: unreachable: %v", a.ID, err)
			continue
		}
		logger.Info("  agent %d: killed=%v opinion=%s decided=%s round=%s",
			a.ID, view.Killed, fmtIntPtr(view.Opinion), fmtBoolPtr(view.Decided), fmtUintPtr(view.Round))
	}
}

func printArchive(recorders []*archive.Recorder) {
	for i, rec := range recorders {
		rounds, err := rec.Rounds()
		if err != nil {
			logger.Warn("agent %d: archive read failed: %v", i, err)
			continue
		}
		for _, r := range rounds {
			logger.Debug("agent %d round %d: collected=%d zeros=%d ones=%d opinion=%d decided=%v",
				i, r.Round, r.Collected, r.Zeros, r.Ones, r.Opinion, r.Decided)
		}
		logger.Info("agent %d archived %d rounds", i, len(rounds))
	}
}

func parseIDs(list string, n int) (map[int]bool, error) {
	out := make(map[int]bool, n)
	if list == "" {
		return out, nil
	}
	for _, part := range strings.Split(list, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if id < 0 || id >= n {
			return nil, fmt.Errorf("agent id %d out of range", id)
		}
		out[id] = true
	}
	return out, nil
}

func parseOpinions(list string, n int) ([]consensus.Opinion, error) {
	out := make([]consensus.Opinion, n)
	if list == "" {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for i := range out {
			out[i] = consensus.Opinion(rng.Intn(2))
		}
		return out, nil
	}
	parts := strings.Split(list, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d opinions, got %d", n, len(parts))
	}
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("opinion %d is not binary", v)
		}
		out[i] = consensus.Opinion(v)
	}
	return out, nil
}

func fmtIntPtr(p *int) string {
	if p == nil {
		return "none"
	}
	return strconv.Itoa(*p)
}

func fmtBoolPtr(p *bool) string {
	if p == nil {
		return "none"
	}
	return strconv.FormatBool(*p)
}

func fmtUintPtr(p *uint64) string {
	if p == nil {
		return "none"
	}
	return strconv.FormatUint(*p, 10)
}
