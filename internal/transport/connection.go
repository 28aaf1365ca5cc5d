// Package transport defines the abstract per-link capability the engine
// consumes from the P2P transport (spec.md §6.1). The transport itself —
// connection setup, ICE/STUN, encryption — is out of scope; this package
// only describes the contract and provides an in-memory pair
// implementation for tests and the demo CLI.
package transport

import "context"

// State is a connection's lifecycle state (spec.md §6.1).
type State int

const (
	Init State = iota
	Opening
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Opening:
		return "Opening"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CloseReason explains why a connection transitioned to Closed.
type CloseReason int

const (
	ReasonSuccess CloseReason = iota
	ReasonBusy
	ReasonDisconnected
	ReasonTimeout
	ReasonConnectivityError
	ReasonNotAuthorized
	ReasonRevoked
	ReasonGone
)

// PeerDeviceState is the bitmask reported by getPeerDeviceState
// (spec.md §6.1).
type PeerDeviceState uint32

const (
	DeviceValid            PeerDeviceState = 0x01
	DeviceForeground       PeerDeviceState = 0x02
	DeviceHasOperations    PeerDeviceState = 0x04
	DeviceSynchronizeKeys  PeerDeviceState = 0x08
)

// PeerConnection is the per-link capability the engine consumes
// (spec.md §6.1). The transport adapter (e.g. internal/transport/libp2p)
// implements this over a concrete medium; the scheduler and IQ layer
// only ever see this interface.
type PeerConnection interface {
	// ConversationId identifies which conversation this link carries.
	ConversationId() int64

	// SendPacket transmits an IQ payload (already encoded by the caller).
	SendPacket(ctx context.Context, payload []byte) error
	// SendMessage transmits a legacy framed blob, bypassing the IQ envelope.
	SendMessage(ctx context.Context, payload []byte) error

	// NewRequestId returns the next monotonic request id for this link.
	NewRequestId() int64

	// MaxPeerMajorVersion and MaxPeerMinorVersion report the peer's
	// negotiated protocol version (spec.md §4.3 version gating).
	MaxPeerMajorVersion() int
	MaxPeerMinorVersion(major int) int
	IsSupported(major, minor int) bool

	// BestChunkSize is the transport's current advised file chunk size.
	BestChunkSize() int
	// FilesDir is the local directory backing file-bearing descriptors;
	// empty when no files directory is available (spec.md §9 open
	// question: execute returns FeatureNotSupportedByPeer in that case).
	FilesDir() string

	// PeerDeviceState reports the peer's last-known device state bitmask.
	PeerDeviceState() PeerDeviceState

	// OurTwincodeOutbound and PeerTwincodeOutbound identify the two ends
	// of the link, used for the canAcceptIncoming tie-break (spec.md §4.5).
	OurTwincodeOutbound() string
	PeerTwincodeOutbound() string

	// State returns the connection's current lifecycle state.
	State() State
	// Close requests the link be torn down with reason.
	Close(reason CloseReason) error

	// OnReceive registers the callback invoked for every inbound IQ
	// payload, dispatched on the engine's executor (spec.md §6.1).
	OnReceive(fn func(payload []byte))
	// OnStateChange registers the callback invoked on every lifecycle
	// transition.
	OnStateChange(fn func(new State, reason CloseReason))
}
