// Package descriptor implements the tagged-variant descriptor model:
// the common envelope shared by every exchanged content unit (message,
// media, invitation, ...), its per-variant payloads, the schema registry
// used to serialize/deserialize them, and forward/copy semantics.
package descriptor

import "github.com/google/uuid"

// DatabaseId is an opaque local 64-bit integer, unique within one table.
// Zero means "not yet assigned locally".
type DatabaseId int64

// NotAssigned is the sentinel DatabaseId value meaning "not yet assigned
// locally".
const NotAssigned DatabaseId = 0

// Id is the triple identifying a descriptor: a local DatabaseId plus the
// (twincodeOutboundId, sequenceId) pair that is stable across peers.
//
// Two Ids refer to the same descriptor when either:
//   - both DatabaseIds are positive and equal, or
//   - their (TwincodeOutboundId, SequenceId) pairs match.
type Id struct {
	DatabaseId         DatabaseId
	TwincodeOutboundId uuid.UUID
	SequenceId         int64
}

// Equal implements the descriptor-identity comparison rule from the data
// model: same positive DatabaseId, or same (twincode, sequence) pair.
func (a Id) Equal(b Id) bool {
	if a.DatabaseId > 0 && b.DatabaseId > 0 && a.DatabaseId == b.DatabaseId {
		return true
	}
	return a.TwincodeOutboundId == b.TwincodeOutboundId && a.SequenceId == b.SequenceId
}

// IsAssigned reports whether a local DatabaseId has been allocated.
func (a Id) IsAssigned() bool {
	return a.DatabaseId > 0
}
