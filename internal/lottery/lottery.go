// Package lottery implements the deterministic, reproducible weighted
// lottery: eligibility weighting, the Mulberry32 PRNG, and
// weighted-without-replacement selection. Every piece here is bit-for-bit
// fixed so external verifiers can reproduce a draw from the seed inputs
// stored in round meta plus the eligible set and its weights, which round
// meta does not store.
package lottery

import (
	"fmt"
	"math"

	"treasurybot/internal/clockid"
)

// Candidate is one eligible holder's lottery inputs.
type Candidate struct {
	Wallet          string
	WalletAgeDays   float64
	StreakRounds    int
	TWBScore        float64
	TokenBalanceUi  float64
}

// Weight computes a candidate's lottery weight, a non-negative real in
// [0, 10]:
//
//	weight = min(10, sqrt(walletAgeDays) * min(3, 1 + streak/10) * min(5, 1 + log10(1 + twb)))
func Weight(c Candidate) float64 {
	ageTerm := math.Sqrt(math.Max(0, c.WalletAgeDays))
	streakTerm := math.Min(3, 1+float64(c.StreakRounds)/10)
	twbTerm := math.Min(5, 1+math.Log10(1+math.Max(0, c.TWBScore)))
	w := ageTerm * streakTerm * twbTerm
	return math.Min(10, w)
}

// Seed computes the deterministic per-round seed: hash32(ts-mint-blockhash).
func Seed(timestamp int64, tokenMint, blockhash string) uint32 {
	input := fmt.Sprintf("%d-%s-%s", timestamp, tokenMint, blockhash)
	return clockid.Hash32(input)
}

// Mulberry32 is a tiny, fast, seedable PRNG. Next() returns a float64 in
// [0, 1). The algorithm is fixed bit-for-bit with the reference
// implementation; any correct port is bit-identical for the same seed.
type Mulberry32 struct {
	state uint32
}

// NewMulberry32 creates a PRNG initialised from seed.
func NewMulberry32(seed uint32) *Mulberry32 {
	return &Mulberry32{state: seed}
}

// Next returns the next pseudo-random float64 in [0, 1).
func (m *Mulberry32) Next() float64 {
	m.state += 0x6D2B79F5
	z := m.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	z ^= z >> 14
	return float64(z) / 4294967296.0
}

// Winner pairs a selected wallet with the weight it was drawn with.
type Winner struct {
	Wallet string
	Weight float64
}

// SelectWinners draws count winners without replacement from candidates,
// using rng for randomness. weights[i] must correspond to candidates[i]
// (callers derive it via Weight, kept separate so callers that already know
// a candidate's weight don't recompute it). The draw walks the cumulative
// weight and picks the first index where cumulative exceeds the draw r,
// so a weight of exactly zero can never be selected.
func SelectWinners(candidates []Candidate, weights []float64, count int, rng *Mulberry32) []Winner {
	remaining := make([]Candidate, len(candidates))
	copy(remaining, candidates)
	weights = append([]float64(nil), weights...)

	var winners []Winner
	n := count
	if len(remaining) < n {
		n = len(remaining)
	}
	for i := 0; i < n; i++ {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			break
		}
		r := rng.Next() * total
		cumulative := 0.0
		j := -1
		for idx, w := range weights {
			cumulative += w
			if cumulative > r {
				j = idx
				break
			}
		}
		if j < 0 {
			j = len(remaining) - 1
		}
		winners = append(winners, Winner{Wallet: remaining[j].Wallet, Weight: weights[j]})

		remaining = append(remaining[:j], remaining[j+1:]...)
		weights = append(weights[:j], weights[j+1:]...)
	}
	return winners
}
