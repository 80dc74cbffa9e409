package core

import (
	"crypto/rand"
	"sync"
)

// PingPongTable tracks the anti-abuse liveness handshake, §4.B: an
// inbound server request from an unverified peer triggers a ping bound to
// the peer's endpoint; a peer only gets server responses once its pong
// has been verified and while its claimed pubkey keeps matching.
//
// Bounded at MaxPingedPeers entries; overflow drops the new entry and
// bumps FullDrops rather than evicting an existing (possibly still
// in-flight) challenge, matching §4.B/§7's "drop new entry" policy for a
// full table.
type PingPongTable struct {
	mu        sync.Mutex
	peers     map[Endpoint]*PingedPeer
	FullDrops uint64
}

func NewPingPongTable() *PingPongTable {
	return &PingPongTable{peers: make(map[Endpoint]*PingedPeer)}
}

func randomToken() [32]byte {
	var t [32]byte
	_, _ = rand.Read(t[:])
	return t
}

// Challenge records (or refreshes) an unverified peer and returns the
// token to embed in the outbound ping. Good is reset to false: a new
// challenge always demands a fresh pong before the peer is served again.
func (t *PingPongTable) Challenge(ep Endpoint, claimed Pubkey) ([32]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.peers[ep]; ok {
		p.Expected = claimed
		p.Good = false
		p.Token = randomToken()
		return p.Token, nil
	}
	if len(t.peers) >= MaxPingedPeers {
		t.FullDrops++
		return [32]byte{}, ErrPingTableFull
	}
	token := randomToken()
	t.peers[ep] = &PingedPeer{Endpoint: ep, Expected: claimed, Token: token}
	return token, nil
}

// VerifyPong checks a decoded pong against the stored challenge for ep,
// marking the peer good on success. claimed must match the pubkey that
// was challenged and the signature must already have been checked by the
// caller against that same pubkey (DecodePingOrPong's claimant argument).
func (t *PingPongTable) VerifyPong(ep Endpoint, claimed Pubkey, pong *PongMsg) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[ep]
	if !ok || p.Expected != claimed {
		return false
	}
	want := pingPongHash(p.Token)
	if want != pong.Hash {
		return false
	}
	p.Good = true
	return true
}

// IsGood reports whether ep/claimed has a verified, matching pong on
// file — the gate the server applies before answering any repair
// request, §4.B.
func (t *PingPongTable) IsGood(ep Endpoint, claimed Pubkey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[ep]
	return ok && p.Good && p.Expected == claimed
}

// Len reports the current table size, mostly for tests and metrics.
func (t *PingPongTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}
