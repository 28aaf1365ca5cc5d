package engine

import (
	"context"
	"fmt"

	p2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/transport"
	"github.com/petervdpas/conversation-engine/internal/transport/libp2p"
)

// PeerResolver maps a peer's twincode outbound identity to a dialable
// libp2p peer.ID. The engine treats this as an opaque external
// collaborator per spec.md §1 ("the repository layer ... and the
// twincode-outbound lookup service"); it never inspects or caches the
// mapping itself.
type PeerResolver interface {
	ResolvePeer(ctx context.Context, peerTwincode string) (p2ppeer.ID, error)
}

// Libp2pOpener adapts a libp2p.Manager into a scheduler.ConnectionOpener,
// resolving each conversation's peer twincode through resolver before
// dialing (spec.md §4.5 "startOutgoing").
type Libp2pOpener struct {
	manager  *libp2p.Manager
	resolver PeerResolver
}

// NewLibp2pOpener builds an opener that dials outgoing conversation
// links over mgr's libp2p host.
func NewLibp2pOpener(mgr *libp2p.Manager, resolver PeerResolver) *Libp2pOpener {
	return &Libp2pOpener{manager: mgr, resolver: resolver}
}

// Open implements scheduler.ConnectionOpener.
func (o *Libp2pOpener) Open(ctx context.Context, conv descriptor.DatabaseId, peerTwincode string) (transport.PeerConnection, error) {
	pid, err := o.resolver.ResolvePeer(ctx, peerTwincode)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve peer %q: %w", peerTwincode, err)
	}
	return o.manager.Dial(ctx, pid, int64(conv), peerTwincode)
}
