package membership

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
)

const registryPrefix = "/coinflip/agents/"

// EtcdRegistry is a Registry backed by an etcd cluster, for deployments
// where agents run as separate processes. Each agent registers itself under
// a leased key; readiness is a prefix count.
type EtcdRegistry struct {
	cli *clientv3.Client
	n   int
	ttl int64
}

func NewEtcdClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

func NewEtcdRegistry(cli *clientv3.Client, n int, leaseTTL int64) *EtcdRegistry {
	if leaseTTL <= 0 {
		leaseTTL = 10
	}
	return &EtcdRegistry{cli: cli, n: n, ttl: leaseTTL}
}

// MarkReady grants a lease, writes the agent key under it and keeps the
// lease alive for the lifetime of the process.
func (r *EtcdRegistry) MarkReady(ctx context.Context, id int) error {
	lease, err := r.cli.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	key := fmt.Sprintf("%s%d", registryPrefix, id)
	if _, err := r.cli.Put(ctx, key, "ready", clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register agent %d: %w", id, err)
	}
	ch, err := r.cli.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}
	go func() {
		for range ch {
		}
		logger.Warn("registry lease for agent %d expired", id)
	}()
	return nil
}

func (r *EtcdRegistry) AllReady(ctx context.Context) (bool, error) {
	resp, err := r.cli.Get(ctx, registryPrefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return false, err
	}
	return resp.Count >= int64(r.n), nil
}
