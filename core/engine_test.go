package core

import (
	"testing"
	"time"
)

func newTestEngine(clk Clock) (*Engine, *fakeSender, *fakeSink, *Identity) {
	signer, err := NewIdentity()
	if err != nil {
		panic(err)
	}
	sender := &fakeSender{}
	sink := &fakeSink{}
	store := &fakeBlockStore{shreds: map[uint64]map[uint32][]byte{}, parents: map[uint64]uint64{}}
	forceSink := &fakeCompleteSink{}
	eng := NewEngine(clk, EngineConfig{ShredTileCnt: 4}, signer, sender, store, sink, forceSink, fixedRand{})
	return eng, sender, sink, signer
}

func TestColdStartThenRepairOneShred(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	eng, sender, sink, _ := newTestEngine(clk)

	var p1, p2 Pubkey
	p1[0], p2[0] = 11, 12
	eng.HandleContactInfo([]ContactInfo{
		{Pubkey: p1, Intake: Endpoint{Port: 1001}, Serve: Endpoint{Port: 2001}},
		{Pubkey: p2, Intake: Endpoint{Port: 1002}, Serve: Endpoint{Port: 2002}},
	})
	eng.HandleStakeWeights([]StakeWeight{{Pubkey: p1, Stake: 100}, {Pubkey: p2, Stake: 200}})
	eng.Tick() // forces a reshuffle since lastShuffle is zero-valued (far in the past)

	eng.HandleRepairRequests([]RepairRequest{{Kind: KindWindowIndex, Slot: 42, ShredIndex: 0}})
	eng.Tick() // send batch

	if len(sender.intake) == 0 {
		t.Fatalf("expected at least one outbound window_index request")
	}
	for _, d := range sender.intake {
		if d.dst.Port != 2001 && d.dst.Port != 2002 {
			t.Fatalf("expected requests dialed at a peer's serve port, got %+v", d.dst)
		}
	}

	wire := EncodeShredResponse([]byte("repaired-shred"), 0)
	eng.HandleIntakeDatagram(Endpoint{Port: 2001}, wire)

	if len(sink.delivered) != 1 || sink.delivered[0].Slot != 42 {
		t.Fatalf("expected shred delivered for slot 42, got %+v", sink.delivered)
	}
	if eng.sched.PendingLen() != len(sender.intake)-1 {
		t.Fatalf("expected one pending entry removed by the matched response")
	}
}

func TestDuplicateSuppressionAcrossEngine(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	eng, sender, _, _ := newTestEngine(clk)

	var p1 Pubkey
	p1[0] = 11
	eng.HandleContactInfo([]ContactInfo{{Pubkey: p1, Intake: Endpoint{Port: 1001}, Serve: Endpoint{Port: 2001}}})
	eng.HandleStakeWeights([]StakeWeight{{Pubkey: p1, Stake: 100}})
	eng.Tick()

	eng.HandleRepairRequests([]RepairRequest{{Kind: KindWindowIndex, Slot: 42, ShredIndex: 0}})
	clk.Advance(50 * time.Millisecond)
	eng.HandleRepairRequests([]RepairRequest{{Kind: KindWindowIndex, Slot: 42, ShredIndex: 0}})
	eng.Tick()

	if len(sender.intake) != 1 {
		t.Fatalf("expected exactly one batch of outbound requests, got %d", len(sender.intake))
	}
}

func TestServerPingDanceThroughEngine(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	eng, sender, _, serverSigner := newTestEngine(clk)

	peer, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	from := Endpoint{Port: 2000}

	req := &Request{
		Kind:   KindWindowIndex,
		Header: RequestHeader{Sender: peer.Identity(), Recipient: serverSigner.Identity(), Nonce: 7},
		Slot:   1,
	}
	wire := EncodeRequest(peer, req)
	eng.HandleServeDatagram(from, wire)
	if len(sender.serve) != 1 {
		t.Fatalf("expected a ping challenge, got %d serve datagrams", len(sender.serve))
	}

	token, err := eng.server.pings.Challenge(from, peer.Identity())
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	pong := EncodePong(peer, pingPongHash(token))
	eng.HandleServeDatagram(from, pong)
	if !eng.server.pings.IsGood(from, peer.Identity()) {
		t.Fatalf("expected peer marked good after valid pong")
	}
}

func TestClientAnswersServerPingOnIntake(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	eng, sender, _, _ := newTestEngine(clk)

	server, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	serveAddr := Endpoint{Port: 2001}
	eng.HandleContactInfo([]ContactInfo{{Pubkey: server.Identity(), Intake: Endpoint{Port: 1001}, Serve: serveAddr}})

	var token [32]byte
	token[0] = 0xAB
	wire := EncodePing(server, token)
	eng.HandleIntakeDatagram(serveAddr, wire)

	if len(sender.intake) != 1 {
		t.Fatalf("expected a pong sent back on the intake socket, got %d", len(sender.intake))
	}
	if sender.intake[0].dst != serveAddr {
		t.Fatalf("expected the pong dialed back at the challenging server, got %+v", sender.intake[0].dst)
	}
	f, err := decodeFrame(sender.intake[0].payload)
	if err != nil || f.disc != discPongMsg {
		t.Fatalf("expected a pong frame, decode err=%v disc=%v", err, f)
	}
	wantHash := pingPongHash(token)
	if len(f.body) < 32 || [32]byte(f.body[:32]) != wantHash {
		t.Fatalf("expected pong hash to match the pinged token")
	}
}

func TestBlindCompleteThroughEngine(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	eng, _, _, _ := newTestEngine(clk)

	var sig Signature
	sig[0] = 0xFF
	for i := uint32(0); i < 31; i++ {
		eng.HandleShred(5, 0, i, 0, false, sig)
	}
	eng.HandleShred(5, 0, 31, 0, true, sig) // slot_complete at idx 31, still within fec set 0

	eng.mu.Lock()
	force := eng.forceSink.(*fakeCompleteSink)
	called := force.called
	eng.mu.Unlock()
	if !called {
		t.Fatalf("expected blind-complete to publish to the shred tile")
	}

	eng.HandleFecComplete(5, 0, 31)
	if eng.fec.Len() != 0 {
		t.Fatalf("expected FEC-intra entry removed on explicit completion")
	}
}
