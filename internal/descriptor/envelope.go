package descriptor

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

// Flag bits for Envelope.Flags (spec.md §3.2).
const (
	FlagCopyAllowed  uint32 = 1 << 0
	FlagHasThumbnail uint32 = 1 << 1
	FlagUpdated      uint32 = 1 << 2
	// bits 4-6 are call-specific; see the Call variant.
	FlagCallMask  uint32 = 0b0111_0000
	FlagCallShift        = 4
)

// Timestamp sentinels (spec.md §3.2, §7).
const (
	// TimestampUnset means "not yet reached this stage".
	TimestampUnset int64 = 0
	// TimestampFailed records "send failed" / "will not deliver".
	TimestampFailed int64 = -1
	// TimestampNeverDelivered marks a descriptor that was never delivered,
	// used by the expiration rule (spec.md §3.2).
	TimestampNeverDelivered int64 = -1
)

// Envelope is the common header shared by every descriptor variant.
type Envelope struct {
	Id               Id
	ConversationDbId DatabaseId
	Type             Type

	// SendTo addresses the descriptor to a single group member only; nil
	// for conversation-wide descriptors.
	SendTo *uuid.UUID
	// ReplyTo references another descriptor this one replies to.
	ReplyTo *Id

	CreationDate   int64
	SentTimestamp  int64
	ReceivedTimestamp int64
	ReadTimestamp  int64
	UpdatedTimestamp  int64
	PeerDeletedTimestamp int64
	DeletedTimestamp  int64

	// ExpireTimeout is milliseconds after read at which the descriptor
	// expires. Zero means "never expires".
	ExpireTimeout int64

	Flags uint32

	Annotations []AnnotationSummary
}

// AnnotationSummary is one aggregated row in the annotation summary
// attached to a loaded descriptor: Σ over stored annotation rows grouped
// by (kind, value) with a count (spec.md §4.1, §8).
type AnnotationSummary struct {
	Kind  AnnotationKind
	Value int32
	Count int
}

// IsOwnedByUs reports whether this descriptor was created locally
// (TwincodeOutboundId equals ours), which drives the delete policy in
// spec.md §4.2.
func (e Envelope) IsOwnedByUs(ourTwincodeOutboundId uuid.UUID) bool {
	return e.Id.TwincodeOutboundId == ourTwincodeOutboundId
}

// Expired applies the expiration rule from spec.md §3.2:
//   - if ExpireTimeout > 0 and ReadTimestamp > 0: expired when
//     now > ReadTimestamp + ExpireTimeout.
//   - if ReadTimestamp < 0 ("never delivered"): expired immediately.
//   - otherwise: not expired.
func (e Envelope) Expired(now int64) bool {
	if e.ReadTimestamp < 0 {
		return true
	}
	if e.ExpireTimeout > 0 && e.ReadTimestamp > 0 {
		return now > e.ReadTimestamp+e.ExpireTimeout
	}
	return false
}

// MonotoneOK reports whether the envelope's timestamps respect
// creationDate ≤ sent ≤ received ≤ read when each is defined (positive),
// per the monotonicity invariant (spec.md §3.2, §8). A sentinel of -1
// ("send failed") at any stage is exempt from the chain below it.
func (e Envelope) MonotoneOK() bool {
	stages := []int64{e.CreationDate, e.SentTimestamp, e.ReceivedTimestamp, e.ReadTimestamp}
	last := int64(-1)
	haveLast := false
	for _, s := range stages {
		if s <= 0 {
			continue // unset or failed: does not participate in the chain
		}
		if haveLast && s < last {
			return false
		}
		last = s
		haveLast = true
	}
	return true
}

// Descriptor is implemented by every tagged variant: Object, Image, Audio,
// Video, NamedFile, File, Invitation, Geolocation, Twincode, Call, Clear.
type Descriptor interface {
	// Base returns the common envelope.
	Base() *Envelope
	// SchemaHeader returns this variant's current wire/storage schema id
	// and version.
	SchemaHeader() codec.SchemaHeader
	// Encode appends this variant's payload (not the envelope) to w.
	Encode(w *codec.Writer)
	// Forward produces a copy of this variant's payload for the
	// createForward operation (spec.md §4.2). Invitations return
	// ErrCannotForwardInvitation.
	Forward() (Descriptor, error)
}
