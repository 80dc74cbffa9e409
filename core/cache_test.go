package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteThenReadGoodPeerCacheRoundTrips(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	tbl := NewActivePeerTable(clk)
	var pk Pubkey
	pk[0], pk[5] = 7, 42
	serve := Endpoint{IP: [4]byte{10, 0, 0, 1}, Port: 8001}
	if err := tbl.UpsertContact(ContactInfo{Pubkey: pk, Serve: serve}); err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}

	path := filepath.Join(t.TempDir(), "good-peers.txt")
	if err := WriteGoodPeerCache(path, tbl, []Pubkey{pk}); err != nil {
		t.Fatalf("WriteGoodPeerCache: %v", err)
	}

	entries, err := ReadGoodPeerCache(path)
	if err != nil {
		t.Fatalf("ReadGoodPeerCache: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Pubkey != pk {
		t.Fatalf("expected pubkey round-trip, got %v", entries[0].Pubkey)
	}
	if entries[0].Serve != serve {
		t.Fatalf("expected serve endpoint round-trip, got %+v", entries[0].Serve)
	}
}

func TestReadGoodPeerCacheSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "good-peers.txt")
	content := "not-enough-fields\ngarbage/1.2.3/xx\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	entries, err := ReadGoodPeerCache(path)
	if err != nil {
		t.Fatalf("ReadGoodPeerCache: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected all malformed lines skipped, got %d entries", len(entries))
	}
}

func TestReadGoodPeerCacheMissingFileReturnsNoEntries(t *testing.T) {
	entries, err := ReadGoodPeerCache(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries for missing file, got %v", entries)
	}
}

func TestWriteGoodPeerCacheTruncatesPreviousContents(t *testing.T) {
	clk := newManualClock(time.Unix(0, 0))
	tbl := NewActivePeerTable(clk)
	path := filepath.Join(t.TempDir(), "good-peers.txt")
	if err := os.WriteFile(path, []byte("stale-line-from-before\nstale-line-from-before\nstale-line-from-before\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteGoodPeerCache(path, tbl, nil); err != nil {
		t.Fatalf("WriteGoodPeerCache: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected truncated file, got %q", data)
	}
}
