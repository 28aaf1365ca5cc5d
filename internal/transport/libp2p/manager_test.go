package libp2p

import (
	"context"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/petervdpas/conversation-engine/internal/transport"
)

func newTestHost(t *testing.T) (h host.Host, mgr *Manager, addrInfo peer.AddrInfo) {
	t.Helper()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	if err != nil {
		t.Fatalf("libp2p.New: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	m := NewManager(h, "our-twincode", 2, 20, 65536, t.TempDir())
	return h, m, peer.AddrInfo{ID: h.ID(), Addrs: h.Addrs()}
}

func TestDialHandshakeEstablishesConnection(t *testing.T) {
	hostA, mgrA, _ := newTestHost(t)
	_, mgrB, infoB := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan *Connection, 1)
	mgrB.OnAccept(func(c *Connection) { accepted <- c })

	if err := hostA.Connect(ctx, infoB); err != nil {
		t.Fatalf("connect: %v", err)
	}

	connA, err := mgrA.Dial(ctx, infoB.ID, 42, "peer-twincode")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer connA.Close(transport.ReasonSuccess)

	select {
	case connB := <-accepted:
		if connB.ConversationId() != 42 {
			t.Errorf("accepted conversation id = %d, want 42", connB.ConversationId())
		}
		if connB.PeerTwincodeOutbound() != "our-twincode" {
			t.Errorf("accepted peer twincode = %q, want our-twincode", connB.PeerTwincodeOutbound())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accepted connection")
	}

	if connA.ConversationId() != 42 {
		t.Errorf("dialed conversation id = %d, want 42", connA.ConversationId())
	}
	if got, want := connA.MaxPeerMajorVersion(), 2; got != want {
		t.Errorf("MaxPeerMajorVersion = %d, want %d", got, want)
	}
}

func TestSendPacketDeliversAcrossDialedConnection(t *testing.T) {
	hostA, mgrA, _ := newTestHost(t)
	_, mgrB, infoB := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan *Connection, 1)
	mgrB.OnAccept(func(c *Connection) { accepted <- c })

	if err := hostA.Connect(ctx, infoB); err != nil {
		t.Fatalf("connect: %v", err)
	}
	connA, err := mgrA.Dial(ctx, infoB.ID, 7, "peer-twincode")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var connB *Connection
	select {
	case connB = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	received := make(chan []byte, 1)
	connB.OnReceive(func(payload []byte) { received <- payload })

	if err := connA.SendPacket(ctx, []byte("hello")); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Errorf("received %q, want %q", payload, "hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for payload")
	}
}
