package consensus

import "math/rand"

// Tally counts the binary opinions observed in one round.
type Tally struct {
	Zeros int
	Ones  int
}

func (t Tally) Size() int {
	return t.Zeros + t.Ones
}

// Add counts one opinion; non-concrete values are ignored.
func (t *Tally) Add(o Opinion) {
	switch o {
	case OpinionZero:
		t.Zeros++
	case OpinionOne:
		t.Ones++
	}
}

// MajorityThreshold is the minimum identical votes required to decide a
// value in a cluster of n agents.
func MajorityThreshold(n int) int {
	return n/2 + 1
}

// Majority applies the decision rule: zeros are checked first, then ones;
// ties and empty tallies both yield no majority.
func Majority(t Tally, n int) (Opinion, bool) {
	threshold := MajorityThreshold(n)
	if t.Zeros >= threshold {
		return OpinionZero, true
	}
	if t.Ones >= threshold {
		return OpinionOne, true
	}
	return OpinionUnknown, false
}

// coinFlip draws a fresh uniform binary value.
func coinFlip(rng *rand.Rand) Opinion {
	if rng.Intn(2) == 0 {
		return OpinionZero
	}
	return OpinionOne
}
