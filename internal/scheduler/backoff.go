package scheduler

import "github.com/petervdpas/conversation-engine/internal/transport"

// nextBackoffIndex applies the after-close transition rule of spec.md
// §4.5 to a per-conversation index into the backoff table: hard errors
// jump to the last slot, the transient reasons that mean "the peer is
// merely not ready right now" reset to the first slot, and connectivity
// errors step forward by one slot.
func nextBackoffIndex(idx int, reason transport.CloseReason, tableLen int) int {
	switch reason {
	case transport.ReasonGone, transport.ReasonRevoked, transport.ReasonNotAuthorized:
		return tableLen - 1
	case transport.ReasonBusy, transport.ReasonDisconnected, transport.ReasonSuccess:
		return 0
	case transport.ReasonTimeout, transport.ReasonConnectivityError:
		if idx < tableLen-1 {
			return idx + 1
		}
		return idx
	default:
		return idx
	}
}
