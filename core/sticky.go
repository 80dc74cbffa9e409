// Sticky peer selector, §4.C.
//
// Computes a small set of plain float64 coefficients from external inputs
// (response rate and latency) without reaching for a stats library: no
// quartile-over-a-few-hundred-samples computation here needs more than
// slices and stdlib sort.
package core

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
)

var stickyLogger = log.New()

func SetStickyLogger(l *log.Logger) { stickyLogger = l }

// cryptoRand is the production Rand, backed by crypto/rand (not
// math/rand) even though this sampling is not itself security-sensitive.
type cryptoRand struct{}

func (cryptoRand) Uint64n(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.LittleEndian.Uint64(buf[:]) % n
}

// StickySelector rebuilds the rotating sticky peer pool the scheduler
// samples from, §4.C.
type StickySelector struct {
	table *ActivePeerTable
	rng   Rand

	// Sticky is the ordered rotating pool actives_sample walks with its
	// LCG cursor, §4.D.
	Sticky []Pubkey
}

func NewStickySelector(table *ActivePeerTable, rng Rand) *StickySelector {
	if rng == nil {
		rng = cryptoRand{}
	}
	return &StickySelector{table: table, rng: rng}
}

// Reshuffle runs the full §4.C algorithm. It is a no-op (and returns
// ErrNoStakeWeights) until at least one stake-weights snapshot has been
// applied: this engine never repairs without stake context.
func (s *StickySelector) Reshuffle() error {
	if s.table.TotalStake() == 0 {
		return ErrNoStakeWeights
	}

	all := s.table.Snapshot()
	byPubkey := make(map[Pubkey]PeerEntry, len(all))
	for _, p := range all {
		byPubkey[p.Pubkey] = p
	}

	var prevSticky []PeerEntry
	for _, p := range all {
		if p.Sticky {
			prevSticky = append(prevSticky, p)
		}
	}

	acceptable := firstQuartileLatencyCutoff(prevSticky)

	var great, good []Pubkey
	retained := make(map[Pubkey]bool)
	for _, p := range prevSticky {
		if p.AvgReps > 0 && float64(p.MeanLatency()) > acceptable {
			continue // dropped: latency regression
		}
		switch classify(p) {
		case classGreat:
			great = append(great, p.Pubkey)
			retained[p.Pubkey] = true
		case classGood:
			good = append(good, p.Pubkey)
			retained[p.Pubkey] = true
		case classBad:
			// dropped
		}
	}

	ordered := make([]Pubkey, 0, MaxStickyPeers)
	budget := MaxStickyPeers - 2
	for _, pk := range great {
		if len(ordered) >= budget {
			break
		}
		ordered = append(ordered, pk)
	}
	for _, pk := range good {
		if len(ordered) >= budget {
			break
		}
		ordered = append(ordered, pk)
	}

	finalSet := make(map[Pubkey]bool, len(ordered))
	for _, pk := range ordered {
		finalSet[pk] = true
	}

	// Non-sticky remainder: active peers with known stake that are not
	// already retained.
	var remainder []PeerEntry
	for _, p := range all {
		if !finalSet[p.Pubkey] && p.Stake > 0 {
			remainder = append(remainder, p)
		}
	}
	sampled := s.weightedSampleWithoutReplacement(remainder, 64)
	for _, pk := range sampled {
		if len(ordered) >= MaxStickyPeers {
			break
		}
		ordered = append(ordered, pk)
		finalSet[pk] = true
	}

	s.table.setSticky(finalSet)
	s.Sticky = ordered
	return nil
}

type peerClass int

const (
	classBad peerClass = iota
	classGood
	classGreat
)

func classify(p PeerEntry) peerClass {
	if p.AvgReqs >= 10 && p.ResponseRate() < 0.01 {
		return classBad
	}
	great := p.AvgReps >= 0.8*p.AvgReqs && p.MeanLatency() <= 2500*1_000_000 /*ns*/ && p.AvgReqs >= 20
	if great {
		return classGreat
	}
	return classGood
}

// firstQuartileLatencyCutoff returns 2x the first-quartile mean latency
// over peers with at least one response, or +Inf if fewer than four such
// samples exist, §4.C step 3.
func firstQuartileLatencyCutoff(peers []PeerEntry) float64 {
	var samples []float64
	for _, p := range peers {
		if p.AvgReps > 0 {
			samples = append(samples, float64(p.MeanLatency()))
		}
	}
	if len(samples) < 4 {
		return math.Inf(1)
	}
	sort.Float64s(samples)
	q1 := samples[len(samples)/4]
	return 2 * q1
}

// weightedSampleWithoutReplacement draws up to n peers from candidates,
// each draw picking a uniform target in [0, total_stake) and returning
// the first peer whose cumulative stake reaches it, §4.C step 6.
func (s *StickySelector) weightedSampleWithoutReplacement(candidates []PeerEntry, n int) []Pubkey {
	pool := append([]PeerEntry(nil), candidates...)
	var out []Pubkey
	for len(out) < n && len(pool) > 0 {
		var total uint64
		for _, p := range pool {
			total += p.Stake
		}
		if total == 0 {
			break
		}
		target := s.rng.Uint64n(total)
		var cum uint64
		idx := -1
		for i, p := range pool {
			cum += p.Stake
			if cum > target {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = len(pool) - 1
		}
		out = append(out, pool[idx].Pubkey)
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return out
}
