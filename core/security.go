// Package core – signing primitives for the repair protocol engine.
//
// Adapted from the Synnergy node's core/security.go, which offered both
// Ed25519 and BLS12-381 signing for wallets and validators. The repair
// protocol speaks a single scheme end to end (§4.A/§4.B), so this file
// keeps only the Ed25519 half of that original surface and adds the
// ping/pong SHA-256-then-Ed25519 pre-image helper §4.B names.
package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var secLogger = log.New()

// SetSecurityLogger overrides the package logger, matching the Set*Logger
// convention used throughout core/ so tests can silence or capture log
// output.
func SetSecurityLogger(l *log.Logger) { secLogger = l }

// Identity is an Ed25519 keypair loaded from the 64-byte seed+pubkey blob
// §6's identity_key_path names.
type Identity struct {
	pub  Pubkey
	priv ed25519.PrivateKey
}

// NewIdentity generates a fresh random identity; used in tests and for
// bootstrapping a new node.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	id := &Identity{priv: priv}
	copy(id.pub[:], pub)
	return id, nil
}

// LoadIdentity parses a 64-byte seed+pubkey blob (the 32-byte Ed25519 seed
// followed by its 32-byte public key, the on-disk format §6 names).
func LoadIdentity(blob []byte) (*Identity, error) {
	if len(blob) != 64 {
		return nil, fmt.Errorf("identity blob: want 64 bytes, got %d", len(blob))
	}
	seed := blob[:32]
	priv := ed25519.NewKeyFromSeed(seed)
	id := &Identity{priv: priv}
	copy(id.pub[:], blob[32:64])
	if !bytesEqual(id.pub[:], priv.Public().(ed25519.PublicKey)) {
		return nil, fmt.Errorf("identity blob: embedded pubkey does not match seed")
	}
	return id, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (id *Identity) Identity() Pubkey { return id.pub }

func (id *Identity) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(id.priv, msg))
	return sig
}

var _ Signer = (*Identity)(nil)

func ed25519Verify(pub Pubkey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}

// pingPongLiteral is the exact ASCII literal §4.B specifies.
const pingPongLiteral = "SOLANA_PING_PONG"

func pingPongPreimage(token [32]byte) []byte {
	buf := make([]byte, len(pingPongLiteral)+32)
	copy(buf, pingPongLiteral)
	copy(buf[len(pingPongLiteral):], token[:])
	return buf
}

// pingPongHash computes the SHA-256-then-Ed25519 scheme's hash half: the
// SHA-256 digest of the pre-image, which becomes the pong body (§4.B).
// The Ed25519 half is the ordinary frame signature EncodePong applies over
// discriminant||hash — §4.A is explicit that pong responses are signed
// the same way as outbound requests.
func pingPongHash(token [32]byte) [32]byte {
	return sha256.Sum256(pingPongPreimage(token))
}
