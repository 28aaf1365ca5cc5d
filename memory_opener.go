package engine

import (
	"context"
	"sync"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/transport"
)

// LoopbackHub pairs up two engines' Open calls for the same conversation
// id into one transport.NewPair, so two in-process Engines can exchange
// IQs without a real transport (used by the demo CLI and integration
// tests; production wiring uses Libp2pOpener instead).
type LoopbackHub struct {
	mu      sync.Mutex
	waiting map[int64]chan *transport.MemoryConnection
}

// NewLoopbackHub constructs an empty pairing hub.
func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{waiting: make(map[int64]chan *transport.MemoryConnection)}
}

func (h *LoopbackHub) open(ctx context.Context, conv descriptor.DatabaseId, ourTwincode, peerTwincode string, bestChunkSize int, filesDir string) (transport.PeerConnection, error) {
	key := int64(conv)

	h.mu.Lock()
	ch, exists := h.waiting[key]
	if !exists {
		ch = make(chan *transport.MemoryConnection, 1)
		h.waiting[key] = ch
		a, b := transport.NewPair(key, ourTwincode, peerTwincode, bestChunkSize, filesDir)
		ch <- b
		h.mu.Unlock()
		return a, nil
	}
	delete(h.waiting, key)
	h.mu.Unlock()

	select {
	case conn := <-ch:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoopbackOpener binds a LoopbackHub to one engine's identity, so the
// scheduler only ever needs to call Open(conv, peerTwincode).
type LoopbackOpener struct {
	hub           *LoopbackHub
	ourTwincode   string
	bestChunkSize int
	filesDir      string
}

// NewLoopbackOpener returns a scheduler.ConnectionOpener bound to hub and
// ourTwincode, for wiring a demo or test Engine.
func NewLoopbackOpener(hub *LoopbackHub, ourTwincode string, bestChunkSize int, filesDir string) *LoopbackOpener {
	return &LoopbackOpener{hub: hub, ourTwincode: ourTwincode, bestChunkSize: bestChunkSize, filesDir: filesDir}
}

// Open implements scheduler.ConnectionOpener.
func (o *LoopbackOpener) Open(ctx context.Context, conv descriptor.DatabaseId, peerTwincode string) (transport.PeerConnection, error) {
	return o.hub.open(ctx, conv, o.ourTwincode, peerTwincode, o.bestChunkSize, o.filesDir)
}
