package archive

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RoundRecord is what an agent archives after each processed round.
type RoundRecord struct {
	Round     uint64 `json:"round"`
	Collected int    `json:"collected"`
	Zeros     int    `json:"zeros"`
	Ones      int    `json:"ones"`
	Opinion   int    `json:"opinion"`
	Decided   bool   `json:"decided"`
}

// Recorder writes one record per round for a single agent. A nil Recorder
// is a no-op, so agents that do not archive skip the checks.
type Recorder struct {
	store   Store
	agentID int
}

func NewRecorder(store Store, agentID int) *Recorder {
	return &Recorder{store: store, agentID: agentID}
}

func (r *Recorder) key(round uint64) string {
	return fmt.Sprintf("agent/%d/round/%08d", r.agentID, round)
}

// Record archives a round outcome. Errors are returned for the caller to
// log; archiving never affects the round itself.
func (r *Recorder) Record(rec RoundRecord) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}
	return r.store.Put(r.key(rec.Round), data)
}

// Rounds returns the archived records for this agent in round order.
func (r *Recorder) Rounds() ([]RoundRecord, error) {
	if r == nil {
		return nil, nil
	}
	keys, err := r.store.Keys()
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("agent/%d/round/", r.agentID)
	var mine []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			mine = append(mine, k)
		}
	}
	sort.Strings(mine)
	records := make([]RoundRecord, 0, len(mine))
	for _, k := range mine {
		data, err := r.store.Get(k)
		if err != nil {
			return nil, err
		}
		var rec RoundRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal round record %s: %w", k, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
