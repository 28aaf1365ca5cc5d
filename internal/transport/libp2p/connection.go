package libp2p

import (
	"bufio"
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/network"

	"github.com/petervdpas/conversation-engine/internal/transport"
)

// Connection is a transport.PeerConnection backed by a single long-lived
// libp2p stream on ProtoID, framed with writeFrame/readFrame. One
// Connection exists per (conversation, peer) link, the same granularity
// goop2's RemoteDataOp uses a stream per request — here the stream stays
// open for the life of the link instead of one request/response.
type Connection struct {
	stream network.Stream
	bw     *bufio.Writer
	br     *bufio.Reader

	conversationId int64
	our, peer      string
	maxMajor       int
	maxMinor       int
	bestChunkSize  int
	filesDir       string

	mu            sync.Mutex
	state         transport.State
	deviceState   transport.PeerDeviceState
	onReceive     func(payload []byte)
	onStateChange func(new transport.State, reason transport.CloseReason)

	requestIdSeq int64
}

func newConnection(s network.Stream, hs handshake, bestChunkSize int, filesDir string) *Connection {
	c := &Connection{
		stream:         s,
		bw:             bufio.NewWriter(s),
		br:             bufio.NewReader(s),
		conversationId: hs.ConversationId,
		maxMajor:       hs.MaxMajor,
		maxMinor:       hs.MaxMinor,
		bestChunkSize:  bestChunkSize,
		filesDir:       filesDir,
		state:          transport.Open,
	}
	return c
}

// readLoop pumps frames off the stream and dispatches them to the
// registered onReceive callback until the stream closes.
func (c *Connection) readLoop() {
	for {
		payload, err := readFrame(c.br)
		if err != nil {
			c.transitionTo(transport.Closed, transport.ReasonDisconnected)
			return
		}
		c.mu.Lock()
		cb := c.onReceive
		c.mu.Unlock()
		if cb != nil {
			cb(payload)
		}
	}
}

func (c *Connection) transitionTo(s transport.State, reason transport.CloseReason) {
	c.mu.Lock()
	if c.state == transport.Closed {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(s, reason)
	}
}

func (c *Connection) ConversationId() int64 { return c.conversationId }

func (c *Connection) SendPacket(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transport.Open {
		return network.ErrReset
	}
	if err := writeFrame(c.bw, payload); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Connection) SendMessage(ctx context.Context, payload []byte) error {
	return c.SendPacket(ctx, payload)
}

func (c *Connection) NewRequestId() int64 {
	return atomic.AddInt64(&c.requestIdSeq, 1)
}

func (c *Connection) MaxPeerMajorVersion() int { return c.maxMajor }

func (c *Connection) MaxPeerMinorVersion(major int) int {
	if major == c.maxMajor {
		return c.maxMinor
	}
	return 0
}

func (c *Connection) IsSupported(major, minor int) bool {
	if major < c.maxMajor {
		return true
	}
	return major == c.maxMajor && minor <= c.maxMinor
}

func (c *Connection) BestChunkSize() int { return c.bestChunkSize }
func (c *Connection) FilesDir() string   { return c.filesDir }

func (c *Connection) PeerDeviceState() transport.PeerDeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceState
}

// SetPeerDeviceState lets the IQ layer record the peer's last-advertised
// device state bitmask from a PushCommand/heartbeat payload.
func (c *Connection) SetPeerDeviceState(s transport.PeerDeviceState) {
	c.mu.Lock()
	c.deviceState = s
	c.mu.Unlock()
}

func (c *Connection) OurTwincodeOutbound() string  { return c.our }
func (c *Connection) PeerTwincodeOutbound() string { return c.peer }

func (c *Connection) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Close(reason transport.CloseReason) error {
	c.mu.Lock()
	if c.state == transport.Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = transport.Closed
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(transport.Closed, reason)
	}
	if err := c.stream.Close(); err != nil {
		log.Printf("[transport/libp2p] close stream: %v", err)
		return err
	}
	return nil
}

func (c *Connection) OnReceive(fn func(payload []byte)) {
	c.mu.Lock()
	c.onReceive = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(new transport.State, reason transport.CloseReason)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

var _ transport.PeerConnection = (*Connection)(nil)
