package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// AgentConfig describes one member of the cluster.
type AgentConfig struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	Faulty  bool   `json:"faulty"`
}

// ClusterConfig is the full configuration for a consensus run. Durations are
// carried as milliseconds in the file and exposed as time.Duration helpers.
type ClusterConfig struct {
	Agents              []AgentConfig `json:"agents"`
	RoundCeiling        uint64        `json:"round_ceiling"`
	RoundDelayMs        int           `json:"round_delay_ms"`
	VoteTimeoutMs       int           `json:"vote_timeout_ms"`
	ReadyPollMs         int           `json:"ready_poll_ms"`
	BroadcastRetries    int           `json:"broadcast_retries"`
	BroadcastBackoffMs  int           `json:"broadcast_backoff_ms"`
	BroadcastRatePerSec int           `json:"broadcast_rate_per_sec"`
	TraceDir            string        `json:"trace_dir"`
}

// Default returns the configuration used when a field is absent from the
// file.
func Default() *ClusterConfig {
	return &ClusterConfig{
		RoundCeiling:        10,
		RoundDelayMs:        250,
		VoteTimeoutMs:       100,
		ReadyPollMs:         50,
		BroadcastRetries:    3,
		BroadcastBackoffMs:  100,
		BroadcastRatePerSec: 100,
	}
}

// Load reads a JSON cluster configuration, filling unset fields with
// defaults.
func Load(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClusterConfig) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("config has no agents")
	}
	seen := make(map[int]bool)
	for i, a := range c.Agents {
		if a.ID != i {
			return fmt.Errorf("agent at position %d has id %d, ids must be ordinal", i, a.ID)
		}
		if a.Address == "" {
			return fmt.Errorf("agent %d has no address", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %d", a.ID)
		}
		seen[a.ID] = true
	}
	if c.RoundCeiling == 0 {
		return fmt.Errorf("round ceiling must be positive")
	}
	if c.BroadcastRetries <= 0 {
		return fmt.Errorf("broadcast retries must be positive")
	}
	return nil
}

// Agent returns the entry for the given id.
func (c *ClusterConfig) Agent(id int) (AgentConfig, error) {
	if id < 0 || id >= len(c.Agents) {
		return AgentConfig{}, fmt.Errorf("agent id %d out of range [0, %d)", id, len(c.Agents))
	}
	return c.Agents[id], nil
}

// Addresses returns the ordered address list of the whole cluster.
func (c *ClusterConfig) Addresses() []string {
	addrs := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		addrs[i] = a.Address
	}
	return addrs
}

// NumFaulty counts the agents marked faulty.
func (c *ClusterConfig) NumFaulty() int {
	n := 0
	for _, a := range c.Agents {
		if a.Faulty {
			n++
		}
	}
	return n
}

func (c *ClusterConfig) RoundDelay() time.Duration {
	return time.Duration(c.RoundDelayMs) * time.Millisecond
}

func (c *ClusterConfig) VoteTimeout() time.Duration {
	return time.Duration(c.VoteTimeoutMs) * time.Millisecond
}

func (c *ClusterConfig) ReadyPoll() time.Duration {
	return time.Duration(c.ReadyPollMs) * time.Millisecond
}

func (c *ClusterConfig) BroadcastBackoff() time.Duration {
	return time.Duration(c.BroadcastBackoffMs) * time.Millisecond
}
