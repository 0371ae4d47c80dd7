package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, 2)

	require.NoError(t, rec.Record(RoundRecord{Round: 0, Collected: 2, Zeros: 1, Ones: 1, Opinion: 1}))
	require.NoError(t, rec.Record(RoundRecord{Round: 1, Collected: 3, Zeros: 0, Ones: 3, Opinion: 1, Decided: true}))

	rounds, err := rec.Rounds()
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, uint64(0), rounds[0].Round)
	assert.Equal(t, uint64(1), rounds[1].Round)
	assert.True(t, rounds[1].Decided)
}

func TestRecorderIsolatesAgents(t *testing.T) {
	store := NewMemoryStore()
	recA := NewRecorder(store, 0)
	recB := NewRecorder(store, 1)

	require.NoError(t, recA.Record(RoundRecord{Round: 0, Opinion: 0}))
	require.NoError(t, recB.Record(RoundRecord{Round: 0, Opinion: 1}))

	rounds, err := recA.Rounds()
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, 0, rounds[0].Opinion)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NoError(t, rec.Record(RoundRecord{Round: 0}))
	rounds, err := rec.Rounds()
	assert.NoError(t, err)
	assert.Nil(t, rounds)
}
