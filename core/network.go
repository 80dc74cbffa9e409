// Server responder and ping/pong-gated ingress dispatch, §4.B/§4.G.
//
// Dispatches one function per datagram kind over a bare UDP responder: the
// repair protocol has no multiplexed stream transport, only datagrams
// tagged by destination port (intake vs. serve) and, within serve traffic,
// by wire discriminant.
package core

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

var networkLogger = log.New()

func SetNetworkLogger(l *log.Logger) { networkLogger = l }

// Server answers repair requests against a block store, gated by the
// ping/pong liveness handshake, §4.B/§4.G.
type Server struct {
	mu sync.Mutex

	signer Signer
	sender NetSender
	store  BlockStore
	pings  *PingPongTable

	// Dropped, RecipientMismatch and FullTable count the §4.G/§4.B drop
	// reasons for observability (§5's "counter bump" requirement).
	// DecodeRequest already folds bad-signature and malformed framing into
	// the single Dropped counter.
	Dropped           uint64
	RecipientMismatch uint64
	FullTable         uint64
}

func NewServer(signer Signer, sender NetSender, store BlockStore) *Server {
	return &Server{
		signer: signer,
		sender: sender,
		store:  store,
		pings:  NewPingPongTable(),
	}
}

// HandleServeDatagram is the entry point for traffic arriving on the serve
// port: it first tries ping/pong, then (once the claimed sender is a known
// good peer) a repair request, §4.B/§4.G.
func (s *Server) HandleServeDatagram(from Endpoint, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ping, pong, ok := DecodePingOrPong(buf, s.expectedClaimant(from)); ok {
		switch {
		case ping != nil:
			s.handlePing(from, *ping)
		case pong != nil:
			s.handlePong(from, *pong)
		}
		return
	}

	req, err := DecodeRequest(buf)
	if err != nil {
		s.Dropped++
		networkLogger.WithError(err).Debug("malformed repair request")
		return
	}
	if req.Header.Recipient != s.signer.Identity() {
		s.RecipientMismatch++
		return
	}
	if !s.pings.IsGood(from, req.Header.Sender) {
		s.challenge(from, req.Header.Sender)
		return
	}
	s.serve(from, *req)
}

// expectedClaimant returns the pubkey the pinged table expects at this
// endpoint, or the zero pubkey if none is pinged yet — DecodePingOrPong
// verifies both ping and pong signatures against this key, so a ping or
// pong from an unpinged endpoint always fails verification against the
// zero key, which is the desired outcome for pongs (§4.B requires a
// matching pinged entry before a pong can pass).
func (s *Server) expectedClaimant(from Endpoint) Pubkey {
	s.pings.mu.Lock()
	defer s.pings.mu.Unlock()
	if p, ok := s.pings.peers[from]; ok {
		return p.Expected
	}
	return Pubkey{}
}

// challenge issues a fresh ping to an unverified peer, §4.B. Overflow of
// the ping/pong table drops the request silently (counter bump only).
func (s *Server) challenge(from Endpoint, claimed Pubkey) {
	token, err := s.pings.Challenge(from, claimed)
	if err != nil {
		s.FullTable++
		return
	}
	wire := EncodePing(s.signer, token)
	_ = s.sender.SendServe(from, wire)
}

func (s *Server) handlePing(from Endpoint, msg PingMsg) {
	hash := pingPongHash(msg.Token)
	wire := EncodePong(s.signer, hash)
	_ = s.sender.SendServe(from, wire)
}

func (s *Server) handlePong(from Endpoint, msg PongMsg) {
	claimed := s.expectedClaimant(from)
	if !s.pings.VerifyPong(from, claimed, &msg) {
		networkLogger.Debug("pong verification failed")
	}
}

// serve dispatches a verified request to its §4.G handler. A shred fetch
// failure returns quietly: no error datagram is ever sent back.
func (s *Server) serve(from Endpoint, req Request) {
	switch req.Kind {
	case KindWindowIndex:
		s.serveWindowIndex(from, req)
	case KindHighestWindowIndex:
		s.serveHighestWindowIndex(from, req)
	case KindOrphan:
		s.serveOrphan(from, req)
	}
}

func (s *Server) serveWindowIndex(from Endpoint, req Request) {
	payload, err := s.store.GetShred(req.Slot, req.ShredIndex)
	if err != nil {
		return
	}
	s.respond(from, req, payload)
}

func (s *Server) serveHighestWindowIndex(from Endpoint, req Request) {
	payload, err := s.store.GetShred(req.Slot, ^uint32(0))
	if err != nil {
		return
	}
	s.respond(from, req, payload)
}

// serveOrphan walks up to 10 parents via GetParentSlot, sending the
// highest shred of each ancestor above slot 1, §4.G.
func (s *Server) serveOrphan(from Endpoint, req Request) {
	slot := req.Slot
	for i := 0; i < 10; i++ {
		parent, ok := s.store.GetParentSlot(slot)
		if !ok || parent <= 1 {
			return
		}
		payload, err := s.store.GetShred(parent, ^uint32(0))
		if err == nil {
			s.respond(from, req, payload)
		}
		slot = parent
	}
}

// respond answers a peer on its serve endpoint with a nonce-tagged shred
// payload, §4.A/§4.G — the shred response kind carries no discriminant or
// signature, only the original request's nonce appended.
func (s *Server) respond(to Endpoint, req Request, payload []byte) {
	wire := EncodeShredResponse(payload, req.Header.Nonce)
	_ = s.sender.SendServe(to, wire)
}
