package core

import "time"

// The engine never touches a socket, a signing service, or a block store
// directly: §9's design notes ask for a capability object polymorphic over
// {send_intake, send_serve, sign, deliver_shred, deliver_fail, get_shred,
// get_parent}, passed in at construction. These interfaces are that
// capability surface; production wiring (UDP sockets, the signing
// service, the block store) lives outside this module, per §1's scope
// carve-out for network drivers and the signing service.

// NetSender transmits a signed datagram over one of this node's two local
// sockets. SendIntake writes on the local intake socket: outbound repair
// requests dial a peer's serve endpoint (the active peer table's
// ServeAddr, the only externally-dialable address a peer advertises) and
// the same socket receives that peer's shred responses back. SendServe
// writes on the local serve socket: it answers inbound repair requests
// and issues server-side pings, dialed back at the requester's source
// endpoint (that requester's own intake socket).
type NetSender interface {
	SendIntake(dst Endpoint, payload []byte) error
	SendServe(dst Endpoint, payload []byte) error
}

// Signer abstracts the signing service: §1 treats it as an external
// collaborator, modeled here as synchronous from the core's perspective
// (§5: "message-passing, treated as synchronous from the core's
// perspective").
type Signer interface {
	Identity() Pubkey
	Sign(msg []byte) Signature
}

// BlockStore is the read-only view of block storage the server responder
// queries. Implementations must be safe for concurrent lock-free use;
// §5 describes an optimistic read/read-check/retry protocol on the real
// store, which is opaque to this interface — GetShred either succeeds or
// reports ErrShredMiss after any internal retries.
type BlockStore interface {
	// GetShred returns the raw bytes of shred index `idx` of `slot`. If
	// idx is ^uint32(0), the block-store-advertised slot_complete_idx
	// shred is returned instead (§4.G highest_window_index).
	GetShred(slot uint64, idx uint32) ([]byte, error)

	// GetParentSlot returns the parent of slot, or 0 with ok=false if the
	// parent is not known (§4.G orphan walk terminator).
	GetParentSlot(slot uint64) (parent uint64, ok bool)
}

// ShredSink is where repaired shred payloads are delivered, §6.
type ShredSink interface {
	DeliverShred(ref ShredRef, payload []byte)
	DeliverFail(ref ShredRef, err error)
}

// ForceCompleteSink receives blind-complete / explicit-complete
// notifications, §4.F, addressed to the owning shred tile.
type ForceCompleteSink interface {
	ForceComplete(shredTileIdx uint32, sig Signature)
}

// Rand is the seeded source of randomness §9 asks the engine to take at
// construction rather than reading a global RNG, so repair peer sampling
// is deterministic under test.
type Rand interface {
	// Uint64n returns a uniform random value in [0, n). n must be > 0.
	Uint64n(n uint64) uint64
}

// TokenSource abstracts the random 32-byte liveness token used by the
// server-side ping, §4.B. Kept distinct from Rand (which drives stake
// sampling) because tokens must be unguessable, not merely
// deterministically seeded for test reproducibility of sampling order.
type TokenSource interface {
	Token() [32]byte
}

// elapsedSince is a small helper so components can share one Clock without
// importing time.Now() directly, keeping the engine's notion of "now"
// swappable in tests (§9 set_now).
func elapsedSince(clk Clock, t time.Time) time.Duration {
	return clk.Now().Sub(t)
}
