package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// NewPair builds two in-memory PeerConnection endpoints wired to each
// other's SendPacket, for tests and the demo CLI. It plays the role the
// libp2p stream plays in internal/transport/libp2p: both sides just move
// bytes, the IQ layer above never knows the difference, including the
// asynchronous delivery a real stream's read loop provides — SendPacket
// queues onto the peer's inbox rather than calling its handler inline, so
// a handler that itself sends (every IQ response does) never reenters the
// sender's call stack.
func NewPair(conversationId int64, ourTwincode, peerTwincode string, bestChunkSize int, filesDir string) (a, b *MemoryConnection) {
	a = &MemoryConnection{
		conversationId: conversationId,
		our:            ourTwincode,
		peer:           peerTwincode,
		bestChunkSize:  bestChunkSize,
		filesDir:       filesDir,
		state:          Open,
		inbox:          make(chan []byte, 256),
	}
	b = &MemoryConnection{
		conversationId: conversationId,
		our:            peerTwincode,
		peer:           ourTwincode,
		bestChunkSize:  bestChunkSize,
		filesDir:       filesDir,
		state:          Open,
		inbox:          make(chan []byte, 256),
	}
	a.peerEnd, b.peerEnd = b, a
	go a.drain()
	go b.drain()
	return a, b
}

// MemoryConnection is an in-process PeerConnection backed by a buffered
// inbox on its paired endpoint, drained by a goroutine, rather than a real
// transport stream.
type MemoryConnection struct {
	conversationId int64
	our, peer      string
	bestChunkSize  int
	filesDir       string

	peerEnd *MemoryConnection
	inbox   chan []byte

	mu            sync.Mutex
	state         State
	requestIdSeq  int64
	deviceState   PeerDeviceState
	onReceive     func(payload []byte)
	onStateChange func(new State, reason CloseReason)
}

func (c *MemoryConnection) ConversationId() int64 { return c.conversationId }

func (c *MemoryConnection) SendPacket(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	peerEnd := c.peerEnd
	c.mu.Unlock()
	if peerEnd == nil {
		return nil
	}
	peerEnd.mu.Lock()
	closed := peerEnd.state == Closed
	peerEnd.mu.Unlock()
	if closed {
		return nil
	}
	peerEnd.inbox <- payload
	return nil
}

// drain is c's read loop: it delivers queued payloads to whatever
// onReceive is registered at delivery time, one at a time and in order,
// the way a real stream's reader goroutine feeds the engine.
func (c *MemoryConnection) drain() {
	for payload := range c.inbox {
		c.mu.Lock()
		cb := c.onReceive
		closed := c.state == Closed
		c.mu.Unlock()
		if cb != nil && !closed {
			cb(payload)
		}
	}
}

func (c *MemoryConnection) SendMessage(ctx context.Context, payload []byte) error {
	return c.SendPacket(ctx, payload)
}

func (c *MemoryConnection) NewRequestId() int64 {
	return atomic.AddInt64(&c.requestIdSeq, 1)
}

func (c *MemoryConnection) MaxPeerMajorVersion() int          { return 2 }
func (c *MemoryConnection) MaxPeerMinorVersion(major int) int { return 20 }
func (c *MemoryConnection) IsSupported(major, minor int) bool {
	return major < 2 || (major == 2 && minor <= 20)
}

func (c *MemoryConnection) BestChunkSize() int { return c.bestChunkSize }
func (c *MemoryConnection) FilesDir() string   { return c.filesDir }

func (c *MemoryConnection) PeerDeviceState() PeerDeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceState
}

// SetPeerDeviceState lets tests drive the peer-pending-operations signal.
func (c *MemoryConnection) SetPeerDeviceState(s PeerDeviceState) {
	c.mu.Lock()
	c.deviceState = s
	c.mu.Unlock()
}

func (c *MemoryConnection) OurTwincodeOutbound() string  { return c.our }
func (c *MemoryConnection) PeerTwincodeOutbound() string { return c.peer }

func (c *MemoryConnection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MemoryConnection) Close(reason CloseReason) error {
	c.mu.Lock()
	c.state = Closed
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(Closed, reason)
	}
	return nil
}

func (c *MemoryConnection) OnReceive(fn func(payload []byte)) {
	c.mu.Lock()
	c.onReceive = fn
	c.mu.Unlock()
}

func (c *MemoryConnection) OnStateChange(fn func(new State, reason CloseReason)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

var _ PeerConnection = (*MemoryConnection)(nil)
