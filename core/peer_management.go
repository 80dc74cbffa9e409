// Active peer table, §4.B/§3.
//
// Adapted from the Synnergy node's core/peer_management.go, which wrapped
// a libp2p host's connection set with discovery/advertise/sample helpers.
// This repair engine has no multiplexed-stream transport to wrap — peers
// are UDP endpoints reached by raw datagrams — so the libp2p plumbing is
// gone, but the original's shape survives: a mutex-guarded map keyed by
// peer identity and a bounded size, mirroring the original's
// `peers map[NodeID]*Peer` under `peerLock sync.RWMutex`.
package core

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var peerLogger = log.New()

func SetPeerLogger(l *log.Logger) { peerLogger = l }

// ActivePeerTable is the bounded set of peers the engine currently knows
// about, §3's "active peer entry".
type ActivePeerTable struct {
	mu    sync.Mutex
	clk   Clock
	peers map[Pubkey]*PeerEntry

	totalStake uint64
	FullDrops  uint64
}

func NewActivePeerTable(clk Clock) *ActivePeerTable {
	return &ActivePeerTable{clk: clk, peers: make(map[Pubkey]*PeerEntry)}
}

// UpsertContact records or refreshes a peer's endpoints from a gossip
// contact-info update, §6. New peers start with FirstRequestTime unset —
// it is stamped the first time the scheduler sends them a request
// (RecordSend; §4.D's grace period).
func (t *ActivePeerTable) UpsertContact(c ContactInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.peers[c.Pubkey]; ok {
		p.IntakeAddr = c.Intake
		p.ServeAddr = c.Serve
		return nil
	}
	if len(t.peers) >= MaxActivePeers {
		t.FullDrops++
		return ErrActivePeerTableFull
	}
	t.peers[c.Pubkey] = &PeerEntry{
		Pubkey:     c.Pubkey,
		IntakeAddr: c.Intake,
		ServeAddr:  c.Serve,
	}
	return nil
}

// ApplyStakeWeights records each snapshot entry's stake into the matching
// active peer and recomputes total_stake over the peers it could place,
// §4.C step 2. Peers named in the snapshot that are not yet in the active
// table are skipped — their stake cannot route anywhere until a contact
// update arrives for them.
func (t *ActivePeerTable) ApplyStakeWeights(weights []StakeWeight) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total uint64
	for _, w := range weights {
		if p, ok := t.peers[w.Pubkey]; ok {
			p.Stake = w.Stake
			total += w.Stake
		}
	}
	t.totalStake = total
}

func (t *ActivePeerTable) TotalStake() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalStake
}

// Get returns a copy of the peer entry for pubkey.
func (t *ActivePeerTable) Get(pubkey Pubkey) (PeerEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[pubkey]
	if !ok {
		return PeerEntry{}, false
	}
	return *p, true
}

// PubkeyAt returns the pubkey of the peer advertising ep as its serve
// address, or false if no known peer claims it. Used on the client side
// to resolve the expected signer of an inbound ping arriving on the
// intake socket, §4.B.
func (t *ActivePeerTable) PubkeyAt(ep Endpoint) (Pubkey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pk, p := range t.peers {
		if p.ServeAddr == ep {
			return pk, true
		}
	}
	return Pubkey{}, false
}

// Len returns the number of known peers.
func (t *ActivePeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// RecordSend updates avg_reqs for pubkey when the scheduler sends it a
// request, stamping FirstRequestTime on the first send, §4.D.
func (t *ActivePeerTable) RecordSend(pubkey Pubkey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[pubkey]
	if !ok {
		return
	}
	if p.AvgReqs == 0 && p.FirstRequestTime.IsZero() {
		p.FirstRequestTime = t.clk.Now()
	}
	p.AvgReqs++
}

// RecordResponse updates avg_reps/avg_lat for pubkey when a response
// matches a pending request, §4.D.
func (t *ActivePeerTable) RecordResponse(pubkey Pubkey, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[pubkey]
	if !ok {
		return
	}
	p.AvgReps++
	p.AvgLat += latency
}

// Decay applies the 12.5% EMA-like decay §3 specifies, run on the same
// 15–30s cadence as the sticky reshuffle and stats print.
func (t *ActivePeerTable) Decay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peers {
		p.AvgReqs *= 0.875
		p.AvgReps *= 0.875
		p.AvgLat = time.Duration(float64(p.AvgLat) * 0.875)
	}
}

// Snapshot returns copies of every active peer entry, for the sticky
// selector's classification pass.
func (t *ActivePeerTable) Snapshot() []PeerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PeerEntry, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}

// setSticky overwrites the sticky flag for a set of peers; used by the
// selector after classification, §4.C steps 4–6.
func (t *ActivePeerTable) setSticky(set map[Pubkey]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pk, p := range t.peers {
		p.Sticky = set[pk]
	}
}
