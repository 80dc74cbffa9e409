// Request scheduler, §4.D.
//
// Holds a table of outstanding requests keyed by a wrapping nonce counter
// and walks it on a fixed tick to transmit or expire: allocate,
// batch-send, sweep expired, match on reply. Each pending request is sent
// once; a fresh fan-out needs another Need call.
package core

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

var schedulerLogger = log.New()

func SetSchedulerLogger(l *log.Logger) { schedulerLogger = l }

// Scheduler owns the nonce ring, the pending-request table and the
// duplicate-suppression table described in §3/§4.D.
type Scheduler struct {
	mu sync.Mutex

	clk    Clock
	signer Signer
	sender NetSender
	peers  *ActivePeerTable
	sticky *StickySelector
	sink   ShredSink

	oldestNonce  uint32
	currentNonce uint32
	nextNonce    uint32

	pending map[uint32]*PendingRequest
	dup     map[DupKey]*DupEntry

	sampleCursor uint64
}

func NewScheduler(clk Clock, signer Signer, sender NetSender, peers *ActivePeerTable, sticky *StickySelector, sink ShredSink) *Scheduler {
	return &Scheduler{
		clk:     clk,
		signer:  signer,
		sender:  sender,
		peers:   peers,
		sticky:  sticky,
		sink:    sink,
		pending: make(map[uint32]*PendingRequest),
		dup:     make(map[DupKey]*DupEntry),
	}
}

// Need requests a shred (or orphan parent), §4.D. A key sent within the
// last 200ms is suppressed outright; otherwise up to MaxFanout sticky
// peers are sampled and a pending entry allocated per peer under a fresh
// nonce. Returns ErrPendingTableFull without allocating any nonce if the
// full fan-out would overflow the pending table.
func (s *Scheduler) Need(kind RequestKind, slot uint64, shredIndex uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind != KindWindowIndex {
		shredIndex = 0 // orphan and highest_window_index are keyed per slot, see DupKey
	}
	k := DupKey{Kind: kind, Slot: slot, ShredIndex: shredIndex}
	now := s.clk.Now()

	if e, ok := s.dup[k]; ok && now.Sub(e.LastSend) < DuplicateWindow {
		return nil
	}

	peers := s.activesSample(MaxFanout)
	if len(peers) == 0 {
		return nil
	}
	if len(s.pending)+len(peers) > MaxPendingReqs {
		return ErrPendingTableFull
	}

	e, ok := s.dup[k]
	if !ok {
		e = &DupEntry{}
		s.dup[k] = e
	}
	for _, pk := range peers {
		nonce := s.nextNonce
		s.nextNonce++
		s.pending[nonce] = &PendingRequest{Nonce: nonce, Peer: pk, DupKey: k, SentAt: now}
	}
	e.LastSend = now
	e.ReqCnt += len(peers)
	return nil
}

// activesSample walks the sticky pool with a linear-congruential cursor,
// skipping peers classified bad once they have had a 5s grace period since
// their first request (cold peers are never punished before they have had
// a fair chance to respond), §4.D.
func (s *Scheduler) activesSample(n int) []Pubkey {
	pool := s.sticky.Sticky
	if len(pool) == 0 {
		return nil
	}
	now := s.clk.Now()
	seen := make(map[int]bool, n)
	out := make([]Pubkey, 0, n)
	for attempts := 0; len(out) < n && attempts < 2*len(pool); attempts++ {
		idx := int(s.sampleCursor % uint64(len(pool)))
		s.sampleCursor = lcgStep(s.sampleCursor, uint64(len(pool)))
		if seen[idx] {
			continue
		}
		seen[idx] = true

		pk := pool[idx]
		entry, ok := s.peers.Get(pk)
		if !ok {
			continue
		}
		if classify(entry) == classBad && !entry.FirstRequestTime.IsZero() && now.Sub(entry.FirstRequestTime) > RequestExpiry {
			continue
		}
		out = append(out, pk)
	}
	return out
}

// lcgStep advances a linear-congruential cursor over [0, modulus).
func lcgStep(cur, modulus uint64) uint64 {
	if modulus == 0 {
		return 0
	}
	const a = 1103515245
	const c = 12345
	return (a*cur + c) % modulus
}

// SendBatch transmits up to SendBatchSize pending requests starting at
// current_nonce, advancing it past each one sent, §4.D. Run on the
// SendBatchInterval tick.
func (s *Scheduler) SendBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < SendBatchSize; i++ {
		if s.currentNonce == s.nextNonce {
			return
		}
		p, ok := s.pending[s.currentNonce]
		if !ok {
			s.currentNonce++
			continue
		}
		s.peers.RecordSend(p.Peer)
		peer, ok := s.peers.Get(p.Peer)
		if ok {
			req := &Request{
				Kind: p.DupKey.Kind,
				Header: RequestHeader{
					Sender:      s.signer.Identity(),
					Recipient:   p.Peer,
					TimestampMs: uint64(s.clk.Now().UnixMilli()),
					Nonce:       p.Nonce,
				},
				Slot:       p.DupKey.Slot,
				ShredIndex: p.DupKey.ShredIndex,
			}
			wire := EncodeRequest(s.signer, req)
			// Requests are dialed at the peer's externally-reachable serve
			// address, not its (possibly zero-valued, cache-seeded)
			// intake address — see core/capability.go's NetSender doc.
			if err := s.sender.SendIntake(peer.ServeAddr, wire); err != nil {
				schedulerLogger.WithError(err).Warn("send_intake failed")
			}
		}
		s.currentNonce++
	}
}

// Expire advances oldest_nonce past any pending entry older than
// RequestExpiry, decrementing (and possibly removing) the matching
// duplicate-suppression entry for each one dropped, §4.D.
func (s *Scheduler) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
}

func (s *Scheduler) expireLocked() {
	now := s.clk.Now()
	for nonceLess(s.oldestNonce, s.nextNonce) {
		p, ok := s.pending[s.oldestNonce]
		if !ok {
			s.oldestNonce++
			continue
		}
		if now.Sub(p.SentAt) < RequestExpiry {
			return
		}
		delete(s.pending, s.oldestNonce)
		s.decrementDup(p.DupKey)
		s.oldestNonce++
	}
}

func (s *Scheduler) decrementDup(k DupKey) {
	e, ok := s.dup[k]
	if !ok {
		return
	}
	e.ReqCnt--
	if e.ReqCnt <= 0 {
		delete(s.dup, k)
	}
}

// HandleResponse matches an inbound shred response to its pending request
// by nonce, records the round-trip against the responding peer, delivers
// the payload to the shred sink, and removes the pending entry (the
// duplicate-suppression entry survives until its last sibling request
// expires or is itself answered), §4.D.
func (s *Scheduler) HandleResponse(nonce uint32, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[nonce]
	if !ok {
		return ErrUnknownPeer
	}
	latency := s.clk.Now().Sub(p.SentAt)
	s.peers.RecordResponse(p.Peer, latency)
	delete(s.pending, nonce)
	s.decrementDup(p.DupKey)

	ref := ShredRef{Slot: p.DupKey.Slot, ShredIndex: p.DupKey.ShredIndex}
	s.sink.DeliverShred(ref, payload)
	return nil
}

// PendingLen reports the number of outstanding requests, for metrics.
func (s *Scheduler) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
