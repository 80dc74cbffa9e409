// Package core implements the repair protocol engine: nonce-scheduled
// shred repair requests, peer quality tracking, the missing-shred forest,
// the FEC blind-complete tracker, and the server side that answers repair
// requests against a block store.
//
// The engine is single-threaded by design (see Engine.mu): every public
// entry point acquires one coarse lock so a future multi-threaded
// embedding stays correct without touching call sites.
package core

import (
	"net"
	"sync"
	"time"
)

// Pubkey is a 32-byte Ed25519 public key, also used as peer identity.
type Pubkey [32]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

// Endpoint is a UDP destination: 4-byte IPv4 address plus port.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

func (e Endpoint) String() string {
	return (&net.UDPAddr{IP: net.IP(e.IP[:]), Port: int(e.Port)}).String()
}

// ShredRef identifies a single shred within the block tree.
type ShredRef struct {
	Slot        uint64
	ShredIndex  uint32
	FecSetIndex uint32
	IsCoding    bool
}

// RequestKind enumerates the three repair request types §6 names.
type RequestKind uint8

const (
	KindWindowIndex RequestKind = iota
	KindHighestWindowIndex
	KindOrphan
)

func (k RequestKind) String() string {
	switch k {
	case KindWindowIndex:
		return "window_index"
	case KindHighestWindowIndex:
		return "highest_window_index"
	case KindOrphan:
		return "orphan"
	default:
		return "unknown"
	}
}

// DupKey is the duplicate-suppression key: §3 keys the duplicate table by
// (kind, slot, shred_index). shred_index is ignored (zero) for orphan and
// highest_window_index requests, which are keyed per-slot only.
type DupKey struct {
	Kind       RequestKind
	Slot       uint64
	ShredIndex uint32
}

// DupEntry tracks the last time a duplicate key was sent and how many
// pending requests currently reference it.
type DupEntry struct {
	LastSend time.Time
	ReqCnt   int
}

// PendingRequest is one outstanding nonce, §3.
type PendingRequest struct {
	Nonce   uint32
	Peer    Pubkey
	DupKey  DupKey
	SentAt  time.Time
}

// PeerEntry is the active-peer-table row, §3.
type PeerEntry struct {
	Pubkey           Pubkey
	IntakeAddr       Endpoint
	ServeAddr        Endpoint
	AvgReqs          float64
	AvgReps          float64
	AvgLat           time.Duration
	Stake            uint64
	Sticky           bool
	FirstRequestTime time.Time
}

// ResponseRate returns AvgReps/AvgReqs, or 0 if no requests were sent.
func (p *PeerEntry) ResponseRate() float64 {
	if p.AvgReqs == 0 {
		return 0
	}
	return p.AvgReps / p.AvgReqs
}

// MeanLatency returns AvgLat/AvgReps, or 0 if no responses were received.
func (p *PeerEntry) MeanLatency() time.Duration {
	if p.AvgReps == 0 {
		return 0
	}
	return time.Duration(float64(p.AvgLat) / p.AvgReps)
}

// PingedPeer is one entry of the server-side ping/pong liveness table, §4.B.
type PingedPeer struct {
	Endpoint Endpoint
	Expected Pubkey
	Token    [32]byte
	Good     bool
}

// Clock is injected time so the engine is deterministic under test, §9.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// manualClock lets tests advance time deterministically.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ContactInfo is one gossip contact-update tuple, §6.
type ContactInfo struct {
	Pubkey Pubkey
	Intake Endpoint
	Serve  Endpoint
}

// StakeWeight is one entry of the ordered stake-weights snapshot, §6.
type StakeWeight struct {
	Pubkey Pubkey
	Stake  uint64
}

// RepairRequest is one entry of the replay-supplied request batch, §6.
type RepairRequest struct {
	Kind       RequestKind
	Slot       uint64
	ShredIndex uint32
}

// Sizing limits from §3.
const (
	MaxStickyPeers    = 1024
	MaxActivePeers    = 4096
	MaxPendingReqs    = 1 << 20
	MaxPingedPeers    = 16384
	RequestExpiry     = 5 * time.Second
	DuplicateWindow   = 200 * time.Millisecond
	StickyShuffle     = 15 * time.Second
	StatsDecayPeriod  = 30 * time.Second
	CacheWritePeriod  = 60 * time.Second
	SendBatchInterval = time.Millisecond
	SendBatchSize     = 128
	MaxFanout         = 4
	// MaxPendingFecSets is the default intra-FEC pool capacity used when an
	// embedder supplies no override via EngineConfig.MaxPendingShredSets.
	MaxPendingFecSets = 1024
	// MaxDataShreds bounds the traversal window the scheduler enumerates
	// missing indices over; Solana blocks never carry more data shreds
	// than this per slot.
	MaxDataShreds = 1 << 15
)

// nonceDiff returns a-b as a signed 32-bit difference, the wrap-safe
// comparison §3/§8 requires for the nonce ring.
func nonceDiff(a, b uint32) int32 {
	return int32(a - b)
}

// nonceLess reports whether a precedes b on the wrapping ring.
func nonceLess(a, b uint32) bool {
	return nonceDiff(a, b) < 0
}

// nonceLessEq reports whether a precedes or equals b on the wrapping ring.
func nonceLessEq(a, b uint32) bool {
	return nonceDiff(a, b) <= 0
}
