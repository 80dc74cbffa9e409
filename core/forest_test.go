package core

import "testing"

func TestInsertDataShredIgnoresAtOrBelowRoot(t *testing.T) {
	f := NewForest(100)
	f.InsertDataShred(100, 1, 0, 0, false)
	f.InsertDataShred(50, 1, 0, 0, false)
	if f.Len() != 0 {
		t.Fatalf("expected no elements created at or below root, got %d", f.Len())
	}
}

func TestInsertDataShredAdvancesBufferedIdx(t *testing.T) {
	f := NewForest(0)
	f.InsertDataShred(10, 0, 0, 0, false)
	f.InsertDataShred(10, 0, 1, 0, false)
	f.InsertDataShred(10, 0, 2, 0, false)
	if got := f.BufferedIdx(10); got != 2 {
		t.Fatalf("expected bufferedIdx=2, got %d", got)
	}
	// A gap at index 4 should not advance bufferedIdx past 2.
	f.InsertDataShred(10, 0, 4, 0, false)
	if got := f.BufferedIdx(10); got != 2 {
		t.Fatalf("expected bufferedIdx to stay at 2 across a gap, got %d", got)
	}
}

func TestInsertDataShredCreatesOrphanWithoutKnownParent(t *testing.T) {
	f := NewForest(0)
	f.InsertDataShred(10, 5, 0, 0, false) // parent = 5, unknown
	if f.set[10] != setOrphaned {
		t.Fatalf("expected slot 10 orphaned, got %v", f.set[10])
	}
	if len(f.MissingSlots()) != 1 {
		t.Fatalf("expected orphaned slot counted in MissingSlots")
	}
}

func TestInsertDataShredLinksKnownParentToFrontier(t *testing.T) {
	f := NewForest(0)
	f.InsertDataShred(5, 5, 0, 0, false)  // parent offset 5 -> the root, slot 0
	f.InsertDataShred(10, 5, 0, 0, false) // parent offset 5 -> parent slot 5
	if f.set[10] != setFrontier {
		t.Fatalf("expected slot 10 in frontier, got %v", f.set[10])
	}
	if f.set[5] != setAncestry {
		t.Fatalf("expected slot 5 promoted to ancestry once it has a child, got %v", f.set[5])
	}
}

func TestInsertDataShredAdoptsOrphanTransitively(t *testing.T) {
	f := NewForest(0)
	// 20's parent is 15 (offset 5), not yet known: orphaned.
	f.InsertDataShred(20, 5, 0, 0, false)
	if f.set[20] != setOrphaned {
		t.Fatalf("expected slot 20 orphaned before parent known")
	}
	// 15 arrives with parent 10 (offset 5), also unknown yet.
	f.InsertDataShred(15, 5, 0, 0, false)
	// 10 arrives with known root parent.
	f.InsertDataShred(10, 10, 0, 0, false)
	if f.set[20] == setOrphaned {
		t.Fatalf("expected slot 20 adopted once its ancestry chain resolved")
	}
}

func TestMissingIndicesRespectsCompleteIdx(t *testing.T) {
	f := NewForest(0)
	f.InsertDataShred(10, 0, 0, 0, false)
	f.InsertDataShred(10, 0, 5, 0, true) // slot-complete at index 5
	missing := f.MissingIndices(10)
	want := []uint32{1, 2, 3, 4}
	if len(missing) != len(want) {
		t.Fatalf("expected %v missing, got %v", want, missing)
	}
	for i, v := range want {
		if missing[i] != v {
			t.Fatalf("expected %v missing, got %v", want, missing)
		}
	}
}

func TestMissingIndicesUnknownSlotReturnsNil(t *testing.T) {
	f := NewForest(0)
	if got := f.MissingIndices(999); got != nil {
		t.Fatalf("expected nil for unknown slot, got %v", got)
	}
}
