package core

import "testing"

func TestLoadIdentityRoundTrip(t *testing.T) {
	id, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	blob := make([]byte, 64)
	// Re-derive the seed the same way ed25519.PrivateKey lays it out:
	// first 32 bytes seed, last 32 bytes public key.
	priv := id.priv
	copy(blob[:32], priv.Seed())
	pub := id.Identity()
	copy(blob[32:], pub[:])

	got, err := LoadIdentity(blob)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if got.Identity() != id.Identity() {
		t.Fatalf("pubkey mismatch")
	}
	msg := []byte("hello")
	sig := got.Sign(msg)
	if !ed25519Verify(got.Identity(), msg, sig) {
		t.Fatalf("signature does not verify")
	}
}

func TestLoadIdentityRejectsMismatchedPubkey(t *testing.T) {
	id, _ := NewIdentity()
	blob := make([]byte, 64)
	copy(blob[:32], id.priv.Seed())
	// corrupt the embedded pubkey half
	blob[32] ^= 0xFF
	if _, err := LoadIdentity(blob); err == nil {
		t.Fatalf("expected error for mismatched embedded pubkey")
	}
}

func TestLoadIdentityRejectsWrongLength(t *testing.T) {
	if _, err := LoadIdentity(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for short blob")
	}
}

func TestPingPongHashMatchesLiteral(t *testing.T) {
	var token [32]byte
	token[0] = 1
	h := pingPongHash(token)
	pre := pingPongPreimage(token)
	if string(pre[:16]) != pingPongLiteral {
		t.Fatalf("preimage does not start with literal")
	}
	if h == ([32]byte{}) {
		t.Fatalf("hash should not be zero")
	}
}
