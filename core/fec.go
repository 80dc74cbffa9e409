// FEC repair tracker, §4.F.
//
// Follows the same bounded-pool pattern as the active peer and pending
// request tables, reused here for a different key shape: (slot,
// fec_set_idx) intra-FEC entries instead of peer identities. The
// blind-complete predicate is split into a pure ShouldForceComplete query
// and a mutating ForceComplete call so testing the detection logic never
// needs a ForceCompleteSink in hand.
package core

// fecKey identifies one FEC set within a slot.
type fecKey struct {
	slot      uint64
	fecSetIdx uint32
}

// fecEntry is one intra-FEC bookkeeping row, §4.F.
type fecEntry struct {
	parentOff uint64
	idxs      bitset
	// recvCnt counts data shreds actually received so far, for
	// observability only — it is not used to infer dataCnt, since shreds
	// can arrive out of order or go missing entirely.
	recvCnt  uint32
	dataCnt  int32 // -1 means unknown
	sig      Signature
	sigKnown bool
}

// FecTracker maintains the bounded pool of intra-FEC entries, §4.F. Sizing
// mirrors the active-peer/pending-request/ping tables: once maxEntries is
// reached a shred naming an unseen (slot, fec_set_idx) pair is dropped
// rather than evicting an older in-flight set, §7.
type FecTracker struct {
	forest       *Forest
	entries      map[fecKey]*fecEntry
	shredTileCnt uint32
	maxEntries   int

	Dropped uint64
}

func NewFecTracker(forest *Forest, shredTileCnt uint32) *FecTracker {
	return NewFecTrackerWithCapacity(forest, shredTileCnt, MaxPendingFecSets)
}

// NewFecTrackerWithCapacity lets an embedder size the intra-FEC pool from
// the max_pending_shred_sets configuration option, §6.
func NewFecTrackerWithCapacity(forest *Forest, shredTileCnt uint32, maxEntries int) *FecTracker {
	if shredTileCnt == 0 {
		shredTileCnt = 1
	}
	if maxEntries <= 0 {
		maxEntries = MaxPendingFecSets
	}
	return &FecTracker{forest: forest, entries: make(map[fecKey]*fecEntry), shredTileCnt: shredTileCnt, maxEntries: maxEntries}
}

// entry returns the bookkeeping row for (slot, fecSetIdx), creating one if
// the pool has room. ok is false when the pool is full and no entry for
// this key already exists, §7.
func (t *FecTracker) entry(slot uint64, fecSetIdx uint32) (e *fecEntry, ok bool) {
	k := fecKey{slot, fecSetIdx}
	e, ok = t.entries[k]
	if ok {
		return e, true
	}
	if len(t.entries) >= t.maxEntries {
		t.Dropped++
		return nil, false
	}
	e = &fecEntry{dataCnt: -1}
	t.entries[k] = e
	return e, true
}

// RecordDataShred updates parent_off, appends to idxs and bumps recv_cnt
// for the owning FEC entry, §4.F. A shred for a key the full pool cannot
// admit is silently dropped, matching the §7 full-table policy.
func (t *FecTracker) RecordDataShred(slot uint64, fecSetIdx, shredIndex uint32, parentOff uint64, sig Signature) {
	e, ok := t.entry(slot, fecSetIdx)
	if !ok {
		return
	}
	e.parentOff = parentOff
	e.idxs.Set(shredIndex)
	e.recvCnt++
	e.sig = sig
	e.sigKnown = true
}

// RecordCodingShred provides the authoritative data_cnt for a FEC set,
// §4.F.
func (t *FecTracker) RecordCodingShred(slot uint64, fecSetIdx uint32, dataCnt uint32) {
	e, ok := t.entry(slot, fecSetIdx)
	if !ok {
		return
	}
	e.dataCnt = int32(dataCnt)
}

// ShouldForceComplete is the pure blind-complete predicate, §4.F: true iff
// data_cnt is unknown and either a later FEC set has already started, or
// the slot's complete index falls within this set.
func (t *FecTracker) ShouldForceComplete(slot uint64, fecSetIdx uint32) bool {
	e, ok := t.entries[fecKey{slot, fecSetIdx}]
	if !ok || e.dataCnt != -1 {
		return false
	}
	if _, found := t.firstLaterFecSetIdx(slot, fecSetIdx); found {
		return true
	}
	completeIdx, known := t.forest.CompleteIdx(slot)
	if !known || completeIdx < int64(fecSetIdx) {
		return false
	}
	el := t.forest.elements[slot]
	for i := int64(fecSetIdx) + 1; i <= completeIdx; i++ {
		if el.fecs.Test(uint32(i)) {
			return false // a later set starts at or before the complete index
		}
	}
	return true
}

// firstLaterFecSetIdx scans the forest's fec-start bitmap for the first
// index past fecSetIdx, bounded by the slot's buffered_idx+1: a later FEC
// set only counts as "started" once its first shred has actually been
// buffered, not merely referenced by an index past fecSetIdx, matching
// fd_repair_tile.c's should_force_complete loop bound.
func (t *FecTracker) firstLaterFecSetIdx(slot uint64, fecSetIdx uint32) (uint32, bool) {
	el, ok := t.forest.elements[slot]
	if !ok {
		return 0, false
	}
	limit := el.bufferedIdx + 1
	for i := fecSetIdx + 1; int64(i) < limit; i++ {
		if el.fecs.Test(i) {
			return i, true
		}
	}
	return 0, false
}

// ForceComplete infers and stores data_cnt for a blind-completed set and
// publishes the originating shred's signature to the owning shred tile,
// §4.F. data_cnt is inferred by one of two cases, mirroring
// fd_repair_tile.c's should_force_complete: (a) a later FEC set has
// already started, so this set's data_cnt is the gap up to that set's
// first buffered index; (b) the slot's complete index falls within this
// set, so this set runs to exactly that index. Callers must have already
// confirmed ShouldForceComplete.
func (t *FecTracker) ForceComplete(slot uint64, fecSetIdx uint32, sink ForceCompleteSink) {
	e, ok := t.entries[fecKey{slot, fecSetIdx}]
	if !ok || !e.sigKnown {
		return
	}
	if laterIdx, found := t.firstLaterFecSetIdx(slot, fecSetIdx); found {
		e.dataCnt = int32(laterIdx - fecSetIdx)
	} else if completeIdx, known := t.forest.CompleteIdx(slot); known && uint32(completeIdx) >= fecSetIdx {
		e.dataCnt = int32(uint32(completeIdx) - fecSetIdx + 1)
	} else {
		return
	}
	tileIdx := shredTileForSignature(e.sig, t.shredTileCnt)
	sink.ForceComplete(tileIdx, e.sig)
}

// shredTileForSignature selects signature[0:8] mod shred_tile_cnt, §4.F.
func shredTileForSignature(sig Signature, shredTileCnt uint32) uint32 {
	var n uint64
	for i := 0; i < 8; i++ {
		n = n<<8 | uint64(sig[i])
	}
	return uint32(n % uint64(shredTileCnt))
}

// CompleteFecSet handles an explicit FEC-complete notification, §4.F:
// data_cnt = shred_index + 1 - fec_set_idx, mark every index in the set in
// the forest, and drop the intra entry. Handing the completed set off to
// the chainer is the replay stage's concern, outside this module's
// capability surface (§1 scope carve-out).
func (t *FecTracker) CompleteFecSet(slot uint64, fecSetIdx, shredIndex uint32) {
	dataCnt := shredIndex + 1 - fecSetIdx
	el, ok := t.forest.elements[slot]
	if ok {
		for i := uint32(0); i < dataCnt; i++ {
			el.idxs.Set(fecSetIdx + i)
		}
		t.forest.advanceBufferedIdx(el)
	}
	delete(t.entries, fecKey{slot, fecSetIdx})
}

// Len reports the number of live intra-FEC entries, for metrics and tests.
func (t *FecTracker) Len() int {
	return len(t.entries)
}
