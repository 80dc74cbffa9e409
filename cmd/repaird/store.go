package main

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"repair-engine/core"
)

// memoryBlockStore is a minimal in-memory core.BlockStore good enough to
// exercise the engine end to end. Production deployments wire the engine
// to the real ledger's block store instead (§1's scope carve-out keeps
// that store outside this module).
type memoryBlockStore struct {
	mu      sync.Mutex
	shreds  map[uint64]map[uint32][]byte
	parents map[uint64]uint64
}

func newMemoryBlockStore() *memoryBlockStore {
	return &memoryBlockStore{
		shreds:  make(map[uint64]map[uint32][]byte),
		parents: make(map[uint64]uint64),
	}
}

func (m *memoryBlockStore) Put(slot uint64, idx uint32, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIdx, ok := m.shreds[slot]
	if !ok {
		byIdx = make(map[uint32][]byte)
		m.shreds[slot] = byIdx
	}
	byIdx[idx] = payload
}

func (m *memoryBlockStore) SetParent(slot, parent uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents[slot] = parent
}

func (m *memoryBlockStore) GetShred(slot uint64, idx uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIdx, ok := m.shreds[slot]
	if !ok {
		return nil, core.ErrShredMiss
	}
	if idx == ^uint32(0) {
		var maxIdx uint32
		var found bool
		for i := range byIdx {
			if !found || i > maxIdx {
				maxIdx, found = i, true
			}
		}
		if !found {
			return nil, core.ErrShredMiss
		}
		return byIdx[maxIdx], nil
	}
	payload, ok := byIdx[idx]
	if !ok {
		return nil, core.ErrShredMiss
	}
	return payload, nil
}

func (m *memoryBlockStore) GetParentSlot(slot uint64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parents[slot]
	return p, ok
}

// loggingShredSink delivers repaired shreds into the memory store and logs
// delivery failures, a stand-in core.ShredSink for the CLI entrypoint.
type loggingShredSink struct {
	store *memoryBlockStore
}

func (s *loggingShredSink) DeliverShred(ref core.ShredRef, payload []byte) {
	s.store.Put(ref.Slot, ref.ShredIndex, payload)
}

func (s *loggingShredSink) DeliverFail(ref core.ShredRef, err error) {
	log.WithError(err).WithField("slot", ref.Slot).Warn("shred delivery failed")
}

// loggingForceCompleteSink logs blind-complete notifications in lieu of a
// real shred-tile IPC channel.
type loggingForceCompleteSink struct{}

func (loggingForceCompleteSink) ForceComplete(shredTileIdx uint32, sig core.Signature) {
	log.WithField("shred_tile", shredTileIdx).Info("fec set force-completed")
}
