package consensus

import "sync"

// State is the mutable record owned by one agent. Exactly two call paths
// mutate it, the agent's own run loop and its inbound update handler, and
// both serialize through the one mutex so the round stays monotonic.
type State struct {
	mu       sync.Mutex
	faulty   bool
	killed   bool
	opinion  Opinion
	decided  bool
	round    uint64
	hasRound bool
}

// NewState builds the record from an initial opinion and the faulty flag.
// Faulty agents never hold a real opinion.
func NewState(initial Opinion, faulty bool) *State {
	s := &State{faulty: faulty, opinion: OpinionUnknown}
	if !faulty {
		s.opinion = initial
	}
	return s
}

func (s *State) Faulty() bool {
	return s.faulty
}

func (s *State) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

// Guard is the capability check run at the entry of every protocol
// operation: killed first, then faulty.
func (s *State) Guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.killed {
		return ErrStopped
	}
	if s.faulty {
		return ErrFaulty
	}
	return nil
}

// Kill permanently stops the agent. Idempotent; there is no way back.
func (s *State) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed = true
}

// Opinion returns the current leaning.
func (s *State) Opinion() Opinion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opinion
}

// Decided returns the committed value once a decision exists.
func (s *State) Decided() (Opinion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opinion, s.decided
}

// RecordRound commits a round outcome from the agent's own loop. The round
// never moves backwards even if an inbound update raced ahead, and a
// randomized fallback never overwrites a committed decision.
func (s *State) RecordRound(round uint64, opinion Opinion, decided bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decided || decided {
		s.opinion = opinion
		s.decided = s.decided || decided
	}
	if !s.hasRound || round > s.round {
		s.round = round
	}
	s.hasRound = true
}

// ApplyUpdate adopts a peer-pushed (round, value) pair if it is strictly
// newer than the local round. Adopting also finalizes the decision: a push
// is only ever emitted for a committed value. Equal-or-older rounds are
// ignored, which makes duplicate deliveries idempotent.
func (s *State) ApplyUpdate(round uint64, value Opinion) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasRound && round <= s.round {
		return false
	}
	s.opinion = value
	s.decided = true
	s.round = round
	s.hasRound = true
	return true
}

// Snapshot returns the externally visible state. A faulty agent always
// exposes the fixed shape {killed, nil, nil, nil}.
func (s *State) Snapshot() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := StateView{Killed: s.killed}
	if s.faulty {
		return view
	}
	if s.opinion.Concrete() {
		op := int(s.opinion)
		view.Opinion = &op
	}
	decided := s.decided
	view.Decided = &decided
	if s.hasRound {
		round := s.round
		view.Round = &round
	}
	return view
}
