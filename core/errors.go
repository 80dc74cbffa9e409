package core

import "errors"

// Sentinel errors for the expected control-flow outcomes §7 enumerates.
// Where returned, they are not logged-and-swallowed, so callers (the
// engine's table-full counters, its reshuffle check) can branch on them.
// A few only name an outcome that the code handles with a counter bump
// or a silent drop instead of returning it; their comments say so.
var (
	// ErrPendingTableFull is returned by need() when the pending-request
	// table is at capacity; §5 says callers are expected to retry later.
	ErrPendingTableFull = errors.New("core: pending request table full")

	// ErrPingTableFull is returned when the ping/pong table has reached
	// MaxPingedPeers; the new server-side peer is dropped.
	ErrPingTableFull = errors.New("core: ping/pong table full")

	// ErrActivePeerTableFull is returned when the active peer table is at
	// MaxActivePeers; the new peer is dropped and no existing entry is
	// evicted.
	ErrActivePeerTableFull = errors.New("core: active peer table full")

	// ErrShredBelowRoot names a shred at or below the root watermark.
	// Forest.InsertDataShred and Engine.HandleShred ignore such shreds
	// silently and do not return it.
	ErrShredBelowRoot = errors.New("core: shred slot at or below root")

	// ErrUnknownPeer is returned by Scheduler.HandleResponse when a shred
	// response's nonce matches no pending request.
	ErrUnknownPeer = errors.New("core: unknown peer")

	// ErrBadSignature is returned by codec verification on signature
	// mismatch.
	ErrBadSignature = errors.New("core: invalid signature")

	// ErrMalformed is returned by the decoder on a payload too short to
	// contain its discriminant and body.
	ErrMalformed = errors.New("core: malformed datagram")

	// ErrRecipientMismatch names a request whose recipient pubkey does not
	// match this node's identity. The server drops such requests and bumps
	// Server.RecipientMismatch rather than returning it.
	ErrRecipientMismatch = errors.New("core: recipient pubkey mismatch")

	// ErrNotVerified names a server request from a peer that has not
	// completed the ping/pong handshake. The server answers such a request
	// with a ping challenge rather than returning it.
	ErrNotVerified = errors.New("core: peer not ping/pong verified")

	// ErrNoStakeWeights is returned by the sticky selector when no stake
	// snapshot has been ingested yet; repairing without stake context is
	// never allowed.
	ErrNoStakeWeights = errors.New("core: no stake weights known")

	// ErrShredMiss is returned by a BlockStore when the requested shred is
	// not present; §7 says this is answered with silence, not an error
	// response, so callers must not translate it into a wire message.
	ErrShredMiss = errors.New("core: shred not found in block store")

	// ErrFecTableFull is returned when the intra-FEC pool is at capacity
	// and a shred names a (slot, fec_set_idx) pair with no existing entry;
	// the new entry is dropped rather than evicting an older in-flight set.
	ErrFecTableFull = errors.New("core: intra-FEC table full")
)
