package core

import (
	"encoding/binary"
)

// Wire layout, §4.A:
//
//	[ 4-byte LE discriminant ] [ 64-byte Ed25519 signature ] [ body ]
//
// The signature covers discriminant||body — the encoder's sign-buffer is
// built directly as that concatenation rather than by splicing bytes in
// and out of the final frame in place; Verify recomputes the identical
// buffer, so the two stay bit-compatible with the original's
// write-discriminant/sign/splice-signature-back convention while avoiding
// its aliasing hazard (§9 design notes flag a naive refactor here as a
// common source of silently-unverifiable messages).
const (
	discWindowIndex        uint32 = uint32(KindWindowIndex)
	discHighestWindowIndex uint32 = uint32(KindHighestWindowIndex)
	discOrphan             uint32 = uint32(KindOrphan)
	discPingMsg            uint32 = 3
	discPongMsg            uint32 = 4
)

const (
	headerSize = 32 + 32 + 8 + 4 // sender pubkey, recipient pubkey, timestamp_ms, nonce
	discSize   = 4
	sigSize    = 64
)

// RequestHeader is common to all three request kinds, §4.A.
type RequestHeader struct {
	Sender      Pubkey
	Recipient   Pubkey
	TimestampMs uint64
	Nonce       uint32
}

func (h *RequestHeader) marshal(buf []byte) {
	copy(buf[0:32], h.Sender[:])
	copy(buf[32:64], h.Recipient[:])
	binary.LittleEndian.PutUint64(buf[64:72], h.TimestampMs)
	binary.LittleEndian.PutUint32(buf[72:76], h.Nonce)
}

func (h *RequestHeader) unmarshal(buf []byte) {
	copy(h.Sender[:], buf[0:32])
	copy(h.Recipient[:], buf[32:64])
	h.TimestampMs = binary.LittleEndian.Uint64(buf[64:72])
	h.Nonce = binary.LittleEndian.Uint32(buf[72:76])
}

// Request is a decoded window_index / highest_window_index / orphan
// request, §4.A/§6.
type Request struct {
	Kind       RequestKind
	Header     RequestHeader
	Slot       uint64
	ShredIndex uint32 // valid only when Kind == KindWindowIndex
}

func (r *Request) bodyLen() int {
	if r.Kind == KindWindowIndex {
		return headerSize + 8 + 4
	}
	return headerSize + 8
}

func (r *Request) marshalBody(buf []byte) {
	r.Header.marshal(buf)
	binary.LittleEndian.PutUint64(buf[headerSize:headerSize+8], r.Slot)
	if r.Kind == KindWindowIndex {
		binary.LittleEndian.PutUint32(buf[headerSize+8:headerSize+12], r.ShredIndex)
	}
}

// EncodeRequest signs and frames a request for transmission.
func EncodeRequest(signer Signer, r *Request) []byte {
	body := make([]byte, r.bodyLen())
	r.marshalBody(body)
	return encodeFrame(signer, uint32(r.Kind), body)
}

// PingMsg is the liveness-check payload, §4.B: a freshly generated random
// token bound to the target peer's endpoint.
type PingMsg struct {
	Token [32]byte
}

func EncodePing(signer Signer, token [32]byte) []byte {
	return encodeFrame(signer, discPingMsg, token[:])
}

// PongMsg answers a PingMsg: the SHA-256 of "SOLANA_PING_PONG" concatenated
// with the token that was pinged, §4.B.
type PongMsg struct {
	Hash [32]byte
}

func EncodePong(signer Signer, hash [32]byte) []byte {
	return encodeFrame(signer, discPongMsg, hash[:])
}

func encodeFrame(signer Signer, disc uint32, body []byte) []byte {
	signBuf := make([]byte, discSize+len(body))
	binary.LittleEndian.PutUint32(signBuf[0:discSize], disc)
	copy(signBuf[discSize:], body)

	sig := signer.Sign(signBuf)

	out := make([]byte, discSize+sigSize+len(body))
	binary.LittleEndian.PutUint32(out[0:discSize], disc)
	copy(out[discSize:discSize+sigSize], sig[:])
	copy(out[discSize+sigSize:], body)
	return out
}

// frame is a decoded tagged message; decodeFrame does not verify its
// signature (see verifyFrame).
type frame struct {
	disc uint32
	sig  Signature
	body []byte
}

// decodeFrame splits a datagram into discriminant/signature/body without
// verifying the signature (callers verify against the claimed signer,
// which they must resolve from context — sender pubkey in the header, or
// the expected pubkey stored in the ping/pong table).
func decodeFrame(buf []byte) (frame, error) {
	if len(buf) < discSize+sigSize {
		return frame{}, ErrMalformed
	}
	var f frame
	f.disc = binary.LittleEndian.Uint32(buf[0:discSize])
	copy(f.sig[:], buf[discSize:discSize+sigSize])
	f.body = buf[discSize+sigSize:]
	return f, nil
}

// verifyFrame checks f's signature against claimant, reconstructing the
// exact sign-buffer Encode* built.
func verifyFrame(claimant Pubkey, f frame) bool {
	signBuf := make([]byte, discSize+len(f.body))
	binary.LittleEndian.PutUint32(signBuf[0:discSize], f.disc)
	copy(signBuf[discSize:], f.body)
	return ed25519Verify(claimant, signBuf, f.sig)
}

// DecodeRequest decodes and signature-verifies a request datagram. The
// signature is checked against Header.Sender, which the caller must cross
// check against any externally-known identity if recipient spoofing
// matters (the server additionally checks Recipient, §4.G).
func DecodeRequest(buf []byte) (*Request, error) {
	f, err := decodeFrame(buf)
	if err != nil {
		return nil, err
	}
	var kind RequestKind
	switch f.disc {
	case discWindowIndex:
		kind = KindWindowIndex
	case discHighestWindowIndex:
		kind = KindHighestWindowIndex
	case discOrphan:
		kind = KindOrphan
	default:
		return nil, ErrMalformed
	}
	minLen := headerSize + 8
	if kind == KindWindowIndex {
		minLen += 4
	}
	if len(f.body) < minLen {
		return nil, ErrMalformed
	}
	r := &Request{Kind: kind}
	r.Header.unmarshal(f.body)
	r.Slot = binary.LittleEndian.Uint64(f.body[headerSize : headerSize+8])
	if kind == KindWindowIndex {
		r.ShredIndex = binary.LittleEndian.Uint32(f.body[headerSize+8 : headerSize+12])
	}
	if !verifyFrame(r.Header.Sender, f) {
		return nil, ErrBadSignature
	}
	return r, nil
}

// DecodePingOrPong decodes a tagged ping/pong datagram. ok is false (with
// no error) when the datagram's discriminant is neither ping nor pong,
// signalling the caller should fall through to the shred-response path
// per §4.A's error-handling note.
func DecodePingOrPong(buf []byte, claimant Pubkey) (ping *PingMsg, pong *PongMsg, ok bool) {
	f, err := decodeFrame(buf)
	if err != nil {
		return nil, nil, false
	}
	switch f.disc {
	case discPingMsg:
		if len(f.body) < 32 {
			return nil, nil, false
		}
		if !verifyFrame(claimant, f) {
			return nil, nil, false
		}
		p := &PingMsg{}
		copy(p.Token[:], f.body[:32])
		return p, nil, true
	case discPongMsg:
		if len(f.body) < 32 {
			return nil, nil, false
		}
		if !verifyFrame(claimant, f) {
			return nil, nil, false
		}
		p := &PongMsg{}
		copy(p.Hash[:], f.body[:32])
		return nil, p, true
	default:
		return nil, nil, false
	}
}

// EncodeShredResponse appends a trailing 4-byte LE nonce to a raw shred
// payload. This response kind is deliberately not self-describing (no
// discriminant, no signature) — it rides on the fact that the nonce alone
// identifies the pending request it answers, §4.A.
func EncodeShredResponse(payload []byte, nonce uint32) []byte {
	out := make([]byte, len(payload)+4)
	copy(out, payload)
	binary.LittleEndian.PutUint32(out[len(payload):], nonce)
	return out
}

// DecodeShredResponse splits a raw shred response into payload and nonce.
func DecodeShredResponse(buf []byte) (payload []byte, nonce uint32, err error) {
	if len(buf) < 4 {
		return nil, 0, ErrMalformed
	}
	payload = buf[:len(buf)-4]
	nonce = binary.LittleEndian.Uint32(buf[len(buf)-4:])
	return payload, nonce, nil
}
