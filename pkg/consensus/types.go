package consensus

import (
	"context"
	"errors"
)

// Opinion is an agent's current binary leaning. OpinionUnknown stands for
// both "not yet initialized" and the null opinion a faulty agent exposes.
type Opinion int

const (
	OpinionUnknown Opinion = -1
	OpinionZero    Opinion = 0
	OpinionOne     Opinion = 1
)

// Concrete reports whether the opinion is a real binary value.
func (o Opinion) Concrete() bool {
	return o == OpinionZero || o == OpinionOne
}

var (
	// ErrStopped is returned by every operation on a killed agent.
	ErrStopped = errors.New("agent has been stopped")
	// ErrFaulty is returned by every protocol operation on a faulty agent.
	ErrFaulty = errors.New("agent is faulty")
	// ErrAlreadyRunning rejects a second concurrent Run on the same agent.
	ErrAlreadyRunning = errors.New("agent run already in progress")
)

// StateView is the externally visible snapshot of an agent. Nullable fields
// carry nil for faulty agents, which always expose the same fixed shape.
type StateView struct {
	Killed  bool    `json:"killed"`
	Opinion *int    `json:"opinion"`
	Decided *bool   `json:"decided"`
	Round   *uint64 `json:"round"`
}

// ConcreteOpinion extracts the opinion if the view carries a binary value.
func (v StateView) ConcreteOpinion() (Opinion, bool) {
	if v.Opinion == nil {
		return OpinionUnknown, false
	}
	o := Opinion(*v.Opinion)
	if !o.Concrete() {
		return OpinionUnknown, false
	}
	return o, true
}

// Transport is the peer-facing slice of the RPC client the engine consumes.
type Transport interface {
	// PeerState reads a peer's exposed state under the caller's context.
	PeerState(ctx context.Context, addr string) (StateView, error)
	// PushUpdate delivers a decided (round, value) pair to a peer.
	PushUpdate(ctx context.Context, addr string, round uint64, value Opinion) error
}
