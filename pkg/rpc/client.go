package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/meta-node-blockchain/coin-consensus/pkg/consensus"
)

// Client talks to agents over their HTTP surface. Deadlines come from the
// caller's context so each call can carry its own timeout.
type Client struct {
	http *http.Client
}

var _ consensus.Transport = (*Client)(nil)

func NewClient() *Client {
	return &Client{http: &http.Client{}}
}

func (c *Client) url(addr, path string) string {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr + path
}

// PeerState reads a peer's exposed state. A response that is not valid JSON
// or carries a non-binary opinion is reported as an error so the collector
// discards it.
func (c *Client) PeerState(ctx context.Context, addr string) (consensus.StateView, error) {
	var view consensus.StateView
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/state"), nil)
	if err != nil {
		return view, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return view, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return view, fmt.Errorf("state query returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return view, fmt.Errorf("malformed state payload: %w", err)
	}
	if view.Opinion != nil && *view.Opinion != 0 && *view.Opinion != 1 {
		return consensus.StateView{}, fmt.Errorf("malformed state payload: opinion %d", *view.Opinion)
	}
	return view, nil
}

// PushUpdate delivers a decided (round, value) pair.
func (c *Client) PushUpdate(ctx context.Context, addr string, round uint64, value consensus.Opinion) error {
	body, err := json.Marshal(UpdateRequest{Round: round, Value: int(value)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, "/update"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("update rejected: %s", serverError(resp))
	}
	return nil
}

// Probe returns the liveness indicator ("live" or "faulty").
func (c *Client) Probe(ctx context.Context, addr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/probe"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("probe returned %s", resp.Status)
	}
	var pr ProbeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", err
	}
	return pr.Status, nil
}

// Run triggers an agent's consensus loop and blocks until it completes,
// returning the terminal state.
func (c *Client) Run(ctx context.Context, addr string) (consensus.StateView, error) {
	var view consensus.StateView
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, "/run"), nil)
	if err != nil {
		return view, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return view, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return view, fmt.Errorf("run rejected: %s", serverError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return view, err
	}
	return view, nil
}

// Stop kills an agent. Idempotent.
func (c *Client) Stop(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, "/stop"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stop rejected: %s", serverError(resp))
	}
	return nil
}

// State reads any agent's exposed state without the collector's binary
// validation, for harnesses and operators.
func (c *Client) State(ctx context.Context, addr string) (consensus.StateView, error) {
	var view consensus.StateView
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/state"), nil)
	if err != nil {
		return view, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return view, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return view, fmt.Errorf("state query returned %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&view)
	return view, err
}

func serverError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return resp.Status
	}
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		return er.Error
	}
	return resp.Status
}
