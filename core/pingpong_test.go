package core

import "testing"

func TestPingPongChallengeVerify(t *testing.T) {
	tbl := NewPingPongTable()
	ep := Endpoint{IP: [4]byte{1, 2, 3, 4}, Port: 8001}
	var claimed Pubkey
	claimed[0] = 9

	token, err := tbl.Challenge(ep, claimed)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if tbl.IsGood(ep, claimed) {
		t.Fatalf("should not be good before pong")
	}

	hash := pingPongHash(token)
	if !tbl.VerifyPong(ep, claimed, &PongMsg{Hash: hash}) {
		t.Fatalf("VerifyPong should succeed")
	}
	if !tbl.IsGood(ep, claimed) {
		t.Fatalf("should be good after valid pong")
	}
}

func TestPingPongVerifyRejectsWrongHash(t *testing.T) {
	tbl := NewPingPongTable()
	ep := Endpoint{Port: 1}
	var claimed Pubkey
	if _, err := tbl.Challenge(ep, claimed); err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if tbl.VerifyPong(ep, claimed, &PongMsg{Hash: [32]byte{1}}) {
		t.Fatalf("expected verification failure on wrong hash")
	}
}

func TestPingPongVerifyRejectsPubkeyMismatch(t *testing.T) {
	tbl := NewPingPongTable()
	ep := Endpoint{Port: 1}
	var claimed, other Pubkey
	claimed[0] = 1
	other[0] = 2
	token, _ := tbl.Challenge(ep, claimed)
	hash := pingPongHash(token)
	if tbl.VerifyPong(ep, other, &PongMsg{Hash: hash}) {
		t.Fatalf("expected verification failure on pubkey mismatch")
	}
}

func TestPingPongTableFull(t *testing.T) {
	tbl := NewPingPongTable()
	for i := 0; i < MaxPingedPeers; i++ {
		ep := Endpoint{Port: uint16(i % 65536)}
		ep.IP[0] = byte(i >> 8)
		ep.IP[1] = byte(i >> 16)
		var claimed Pubkey
		claimed[0] = byte(i)
		if _, err := tbl.Challenge(ep, claimed); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	_, err := tbl.Challenge(Endpoint{Port: 60000, IP: [4]byte{9, 9, 9, 9}}, Pubkey{})
	if err != ErrPingTableFull {
		t.Fatalf("expected ErrPingTableFull, got %v", err)
	}
	if tbl.FullDrops != 1 {
		t.Fatalf("expected FullDrops=1, got %d", tbl.FullDrops)
	}
}
