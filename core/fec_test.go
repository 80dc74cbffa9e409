package core

import "testing"

type fakeCompleteSink struct {
	tileIdx uint32
	sig     Signature
	called  bool
}

func (f *fakeCompleteSink) ForceComplete(tileIdx uint32, sig Signature) {
	f.tileIdx, f.sig, f.called = tileIdx, sig, true
}

func TestShouldForceCompleteFalseWhenDataCntKnown(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTracker(forest, 4)
	fec.RecordDataShred(10, 0, 0, 0, Signature{})
	fec.RecordCodingShred(10, 0, 5)
	if fec.ShouldForceComplete(10, 0) {
		t.Fatalf("expected false once data_cnt is known")
	}
}

func TestShouldForceCompleteTrueWhenLaterFecSetStarted(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTracker(forest, 4)
	fec.RecordDataShred(10, 0, 0, 0, Signature{1})
	for i := uint32(0); i < 32; i++ {
		forest.InsertDataShred(10, 0, i, 0, false)
	}
	forest.InsertDataShred(10, 0, 32, 32, false) // starts the next fec set at shred idx 32, now buffered
	if !fec.ShouldForceComplete(10, 0) {
		t.Fatalf("expected true once a later FEC set has started")
	}
}

func TestShouldForceCompleteFalseWhenLaterSetBitNotYetBuffered(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTracker(forest, 4)
	fec.RecordDataShred(10, 0, 0, 0, Signature{1})
	forest.InsertDataShred(10, 0, 32, 32, false) // a later set's start index is known, but 1-31 are missing
	if fec.ShouldForceComplete(10, 0) {
		t.Fatalf("expected false: the later set's start bit isn't buffered yet, only referenced out of order")
	}
}

func TestShouldForceCompleteTrueWhenSlotCompleteWithinSet(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTracker(forest, 4)
	fec.RecordDataShred(10, 0, 0, 0, Signature{1})
	forest.InsertDataShred(10, 0, 3, 0, true) // slot-complete index 3, within fec set 0
	if !fec.ShouldForceComplete(10, 0) {
		t.Fatalf("expected true when slot-complete index lies within this set")
	}
}

func TestForceCompleteStoresDataCntAndPublishesToTile(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTracker(forest, 4)
	var sig Signature
	sig[0], sig[1] = 0xAB, 0xCD
	fec.RecordDataShred(10, 0, 0, 0, sig)
	fec.RecordDataShred(10, 0, 1, 0, sig)
	forest.InsertDataShred(10, 0, 3, 0, true)

	if !fec.ShouldForceComplete(10, 0) {
		t.Fatalf("precondition: expected ShouldForceComplete true")
	}
	sink := &fakeCompleteSink{}
	fec.ForceComplete(10, 0, sink)
	if !sink.called {
		t.Fatalf("expected ForceComplete published to sink")
	}
	if sink.sig != sig {
		t.Fatalf("expected published signature to match originating shred")
	}
	// Case (b): slot-complete index 3 within set 0 -> data_cnt = 3-0+1 = 4,
	// not recvCnt (2 shreds actually recorded).
	if got := fec.entries[fecKey{10, 0}].dataCnt; got != 4 {
		t.Fatalf("expected data_cnt inferred from complete_idx (4), got %d", got)
	}
}

func TestForceCompleteUsesLaterFecSetIndexWhenOneStarted(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTracker(forest, 4)
	var sig Signature
	sig[0] = 0xEE
	fec.RecordDataShred(10, 0, 0, 0, sig)
	for i := uint32(0); i < 32; i++ {
		forest.InsertDataShred(10, 0, i, 0, false)
	}
	forest.InsertDataShred(10, 0, 32, 32, false) // starts the next fec set at shred idx 32, now buffered

	if !fec.ShouldForceComplete(10, 0) {
		t.Fatalf("precondition: expected ShouldForceComplete true")
	}
	sink := &fakeCompleteSink{}
	fec.ForceComplete(10, 0, sink)
	if !sink.called {
		t.Fatalf("expected ForceComplete published to sink")
	}
	// Case (a): later set started at idx 32 -> data_cnt = 32-0 = 32.
	if got := fec.entries[fecKey{10, 0}].dataCnt; got != 32 {
		t.Fatalf("expected data_cnt inferred from later fec set start (32), got %d", got)
	}
}

func TestRecordDataShredDropsNewEntryWhenPoolFull(t *testing.T) {
	forest := NewForest(0)
	fec := NewFecTrackerWithCapacity(forest, 4, 2)
	fec.RecordDataShred(10, 0, 0, 0, Signature{})
	fec.RecordDataShred(11, 0, 0, 0, Signature{})
	if fec.Len() != 2 {
		t.Fatalf("expected pool at capacity 2, got %d", fec.Len())
	}
	fec.RecordDataShred(12, 0, 0, 0, Signature{}) // new key, pool full
	if fec.Len() != 2 {
		t.Fatalf("expected new entry dropped, pool still at 2, got %d", fec.Len())
	}
	if fec.Dropped != 1 {
		t.Fatalf("expected Dropped counter incremented, got %d", fec.Dropped)
	}
	// An existing key still accepts updates even while the pool is full.
	fec.RecordDataShred(10, 0, 1, 0, Signature{})
	if got := fec.entries[fecKey{10, 0}].recvCnt; got != 2 {
		t.Fatalf("expected existing entry still updatable, recvCnt=%d", got)
	}
}

func TestCompleteFecSetComputesDataCntAndMarksForest(t *testing.T) {
	forest := NewForest(0)
	forest.InsertDataShred(10, 0, 0, 0, false)
	fec := NewFecTracker(forest, 4)
	fec.RecordDataShred(10, 0, 0, 0, Signature{})

	fec.CompleteFecSet(10, 0, 3) // data_cnt = 3+1-0 = 4
	if fec.Len() != 0 {
		t.Fatalf("expected intra entry removed after explicit complete")
	}
	if got := forest.BufferedIdx(10); got != 3 {
		t.Fatalf("expected bufferedIdx advanced to 3 after marking indices 0-3, got %d", got)
	}
}
