// Engine, §5/§6/§7.
//
// One owner goroutine per embedding, channel-fed input, a coarse mutex
// guarding state that a future multi-threaded embedding might touch
// concurrently. This engine specializes that shape to the repair
// protocol's input channels and periodic timers from §5/§6.
package core

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var engineLogger = log.New()

func SetEngineLogger(l *log.Logger) { engineLogger = l }

// EngineConfig bundles the construction-time parameters SPEC_FULL.md's
// configuration section names, §6.
type EngineConfig struct {
	RootSlot          uint64
	ShredTileCnt      uint32
	GoodPeerCacheFile string
	// MaxPendingShredSets sizes the intra-FEC pool (§6's
	// max_pending_shred_sets); zero selects MaxPendingFecSets.
	MaxPendingShredSets int
}

// Counters tracks the §7 error-policy counters. The fields are plain
// integers written only while Engine.mu is held; a read that overlaps a
// running engine method is not synchronized with those writes.
type Counters struct {
	RecvCorruptPkt       uint64
	RecvInvalidSignature uint64
	PendingTableFull     uint64
	PingTableFull        uint64
	PeerTableFull        uint64
	FecTableFull         uint64
}

// Engine is the single coarsely-locked owner of every repair subsystem,
// §5. All public methods acquire mu; none block on anything but that
// lock, matching the "no suspension points inside the core loop"
// requirement.
type Engine struct {
	mu sync.Mutex

	clk       Clock
	cfg       EngineConfig
	signer    Signer
	sender    NetSender
	peers     *ActivePeerTable
	sticky    *StickySelector
	sched     *Scheduler
	forest    *Forest
	fec       *FecTracker
	server    *Server
	forceSink ForceCompleteSink

	Counters Counters

	lastShuffle    time.Time
	lastStatsPrint time.Time
	lastCacheWrite time.Time
}

// NewEngine wires every subsystem from the capability objects §9 asks the
// embedder to supply.
func NewEngine(clk Clock, cfg EngineConfig, signer Signer, sender NetSender, store BlockStore, sink ShredSink, forceSink ForceCompleteSink, rng Rand) *Engine {
	peers := NewActivePeerTable(clk)
	sticky := NewStickySelector(peers, rng)
	sched := NewScheduler(clk, signer, sender, peers, sticky, sink)
	forest := NewForest(cfg.RootSlot)
	fec := NewFecTrackerWithCapacity(forest, cfg.ShredTileCnt, cfg.MaxPendingShredSets)
	server := NewServer(signer, sender, store)

	return &Engine{
		clk:       clk,
		cfg:       cfg,
		signer:    signer,
		sender:    sender,
		peers:     peers,
		sticky:    sticky,
		sched:     sched,
		forest:    forest,
		fec:       fec,
		server:    server,
		forceSink: forceSink,
	}
}

// HandleIntakeDatagram routes a datagram arriving on the intake port: a
// server's liveness ping is tried first, mirroring HandleServeDatagram's
// dispatch order, then shred responses. FEC-complete markers do not pass
// through here; they arrive via HandleFecComplete.
func (e *Engine) HandleIntakeDatagram(from Endpoint, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	claimant, _ := e.peers.PubkeyAt(from)
	if ping, _, handled := DecodePingOrPong(payload, claimant); handled {
		if ping != nil {
			hash := pingPongHash(ping.Token)
			wire := EncodePong(e.signer, hash)
			_ = e.sender.SendIntake(from, wire)
		}
		return
	}

	body, nonce, err := DecodeShredResponse(payload)
	if err != nil {
		e.Counters.RecvCorruptPkt++
		return
	}
	if err := e.sched.HandleResponse(nonce, body); err != nil {
		engineLogger.WithError(err).Debug("unmatched shred response")
	}
}

// HandleServeDatagram routes a datagram arriving on the serve port to the
// ping/pong-gated server responder, §4.B/§4.G.
func (e *Engine) HandleServeDatagram(from Endpoint, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.server.HandleServeDatagram(from, payload)
	e.Counters.RecvCorruptPkt += e.server.Dropped
	e.Counters.PingTableFull += e.server.FullTable
	e.server.Dropped = 0
	e.server.FullTable = 0
}

// HandleContactInfo applies a gossip contact-info batch, §6.
func (e *Engine) HandleContactInfo(updates []ContactInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range updates {
		if err := e.peers.UpsertContact(c); err != nil {
			e.Counters.PeerTableFull++
		}
	}
}

// HandleStakeWeights applies a stake-weights snapshot, §6.
func (e *Engine) HandleStakeWeights(weights []StakeWeight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peers.ApplyStakeWeights(weights)
}

// HandleRepairRequests applies a batch of replay-supplied repair requests,
// §6.
func (e *Engine) HandleRepairRequests(reqs []RepairRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range reqs {
		if err := e.sched.Need(r.Kind, r.Slot, r.ShredIndex); err != nil {
			e.Counters.PendingTableFull++
		}
	}
}

// RequestMissing asks the scheduler to (re-)request every currently
// missing index of slot, the manually-invoked re-request entry point this
// SPEC_FULL.md resolves in place of an automatic cadence (see DESIGN.md).
func (e *Engine) RequestMissing(slot uint64) {
	e.mu.Lock()
	missing := e.forest.MissingIndices(slot)
	e.mu.Unlock()
	for _, idx := range missing {
		if err := e.sched.Need(KindWindowIndex, slot, idx); err != nil {
			e.mu.Lock()
			e.Counters.PendingTableFull++
			e.mu.Unlock()
		}
	}
}

// HandleShred feeds one raw shred into the forest and FEC tracker, §6.
func (e *Engine) HandleShred(slot uint64, parentOff uint64, shredIndex, fecSetIndex uint32, slotComplete bool, sig Signature) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slot <= e.forest.root {
		return // silent drop, §7
	}
	e.forest.InsertDataShred(slot, parentOff, shredIndex, fecSetIndex, slotComplete)
	e.fec.RecordDataShred(slot, fecSetIndex, shredIndex, parentOff, sig)
	e.Counters.FecTableFull += e.fec.Dropped
	e.fec.Dropped = 0
	if e.fec.ShouldForceComplete(slot, fecSetIndex) {
		e.fec.ForceComplete(slot, fecSetIndex, e.forceSink)
	}
}

// HandleFecComplete feeds an explicit FEC-complete marker, distinguished
// upstream by payload size per §6, into the FEC tracker.
func (e *Engine) HandleFecComplete(slot uint64, fecSetIdx, shredIndex uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fec.CompleteFecSet(slot, fecSetIdx, shredIndex)
}

// Tick runs every periodic bookkeeping action whose interval has elapsed,
// driven by the embedder on (at least) SendBatchInterval granularity, §5.
func (e *Engine) Tick() {
	e.mu.Lock()
	now := e.clk.Now()
	dueShuffle := now.Sub(e.lastShuffle) >= StickyShuffle
	dueStats := now.Sub(e.lastStatsPrint) >= StatsDecayPeriod
	dueCache := now.Sub(e.lastCacheWrite) >= CacheWritePeriod
	e.mu.Unlock()

	e.sched.SendBatch()
	e.sched.Expire()

	if dueShuffle || dueStats {
		e.mu.Lock()
		if err := e.sticky.Reshuffle(); err != nil && err != ErrNoStakeWeights {
			engineLogger.WithError(err).Warn("sticky reshuffle failed")
		}
		if dueShuffle {
			e.lastShuffle = now
		}
		e.mu.Unlock()
	}
	if dueStats {
		e.mu.Lock()
		e.peers.Decay()
		e.lastStatsPrint = now
		e.mu.Unlock()
		e.logStats()
	}
	if dueCache && e.cfg.GoodPeerCacheFile != "" {
		e.mu.Lock()
		sticky := append([]Pubkey(nil), e.sticky.Sticky...)
		e.lastCacheWrite = now
		e.mu.Unlock()
		if err := WriteGoodPeerCache(e.cfg.GoodPeerCacheFile, e.peers, sticky); err != nil {
			engineLogger.WithError(err).Warn("good-peer cache write failed")
		}
	}
}

// LoadGoodPeerCache seeds the active peer table from a previously written
// cache file, §4.H/§8 scenario 6. Call once at startup before any traffic
// arrives.
func (e *Engine) LoadGoodPeerCache() error {
	entries, err := ReadGoodPeerCache(e.cfg.GoodPeerCacheFile)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range entries {
		_ = e.peers.UpsertContact(c)
	}
	return nil
}

func (e *Engine) logStats() {
	e.mu.Lock()
	peerCount := e.peers.Len()
	stickyCount := len(e.sticky.Sticky)
	pending := e.sched.PendingLen()
	e.mu.Unlock()
	engineLogger.WithFields(log.Fields{
		"peers":   peerCount,
		"sticky":  stickyCount,
		"pending": pending,
	}).Info("repair engine stats")
}
