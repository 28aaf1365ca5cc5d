package libp2p

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/petervdpas/conversation-engine/internal/transport"
)

// Manager opens and accepts conversation-engine links over a libp2p
// host, the way goop2's Node owns stream handler registration for its
// content and data protocols (internal/p2p/node.go, data.go). Unlike
// those request/response protocols, each accepted or dialed stream here
// becomes a long-lived Connection handed to the scheduler.
type Manager struct {
	host          host.Host
	bestChunkSize int
	filesDir      string
	ourTwincode   string
	maxMajor      int
	maxMinor      int

	mu       sync.Mutex
	conns    map[string]*Connection
	onAccept func(*Connection)
}

// NewManager registers the IQ stream handler on h and returns a Manager
// ready to Dial outgoing links. ourTwincode/maxMajor/maxMinor are
// advertised in the handshake on every dial and accept.
func NewManager(h host.Host, ourTwincode string, maxMajor, maxMinor, bestChunkSize int, filesDir string) *Manager {
	m := &Manager{
		host:          h,
		bestChunkSize: bestChunkSize,
		filesDir:      filesDir,
		ourTwincode:   ourTwincode,
		maxMajor:      maxMajor,
		maxMinor:      maxMinor,
		conns:         make(map[string]*Connection),
	}
	h.SetStreamHandler(ProtoID, m.handleIncoming)
	return m
}

// OnAccept registers the callback invoked for every inbound link once
// its handshake completes, mirroring the scheduler's canAcceptIncoming
// decision (spec.md §4.5) happening above this layer, not inside it.
func (m *Manager) OnAccept(fn func(*Connection)) {
	m.mu.Lock()
	m.onAccept = fn
	m.mu.Unlock()
}

func connKey(conversationId int64, peerTwincode string) string {
	return fmt.Sprintf("%d|%s", conversationId, peerTwincode)
}

func (m *Manager) handleIncoming(s network.Stream) {
	br := bufio.NewReader(s)
	hs, err := readHandshake(br)
	if err != nil {
		log.Printf("[transport/libp2p] handshake read failed from %s: %v", s.Conn().RemotePeer(), err)
		_ = s.Close()
		return
	}

	ack := handshake{
		ConversationId: hs.ConversationId,
		OurTwincode:    m.ourTwincode,
		PeerTwincode:   hs.OurTwincode,
		MaxMajor:       m.maxMajor,
		MaxMinor:       m.maxMinor,
	}
	bw := bufio.NewWriter(s)
	if err := writeHandshake(bw, ack); err != nil {
		log.Printf("[transport/libp2p] handshake ack failed: %v", err)
		_ = s.Close()
		return
	}

	c := newConnection(s, hs, m.bestChunkSize, m.filesDir)
	c.our, c.peer = m.ourTwincode, hs.OurTwincode
	c.bw, c.br = bw, br

	m.mu.Lock()
	m.conns[connKey(c.conversationId, c.peer)] = c
	cb := m.onAccept
	m.mu.Unlock()

	go c.readLoop()
	if cb != nil {
		cb(c)
	}
}

// Dial opens a new stream to pid for conversationId, completes the
// handshake, and returns an open Connection. Mirrors RemoteDataOp's
// connect-then-NewStream sequence in goop2's data.go.
func (m *Manager) Dial(ctx context.Context, pid peer.ID, conversationId int64, peerTwincode string) (*Connection, error) {
	_ = m.host.Connect(ctx, peer.AddrInfo{ID: pid})

	s, err := m.host.NewStream(ctx, pid, ProtoID)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	bw := bufio.NewWriter(s)
	req := handshake{
		ConversationId: conversationId,
		OurTwincode:    m.ourTwincode,
		PeerTwincode:   peerTwincode,
		MaxMajor:       m.maxMajor,
		MaxMinor:       m.maxMinor,
	}
	if err := writeHandshake(bw, req); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	br := bufio.NewReader(s)
	ack, err := readHandshake(br)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("read handshake ack: %w", err)
	}

	c := newConnection(s, handshake{
		ConversationId: conversationId,
		MaxMajor:       ack.MaxMajor,
		MaxMinor:       ack.MaxMinor,
	}, m.bestChunkSize, m.filesDir)
	c.our, c.peer = m.ourTwincode, peerTwincode
	c.bw, c.br = bw, br

	m.mu.Lock()
	m.conns[connKey(conversationId, peerTwincode)] = c
	m.mu.Unlock()

	go c.readLoop()
	return c, nil
}

// Lookup returns the Connection for (conversationId, peerTwincode) if one
// is currently registered.
func (m *Manager) Lookup(conversationId int64, peerTwincode string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connKey(conversationId, peerTwincode)]
	return c, ok
}

// Forget drops a closed connection from the registry; called once the
// scheduler has observed the Closed state transition.
func (m *Manager) Forget(conversationId int64, peerTwincode string) {
	m.mu.Lock()
	delete(m.conns, connKey(conversationId, peerTwincode))
	m.mu.Unlock()
}

var _ transport.PeerConnection = (*Connection)(nil)
