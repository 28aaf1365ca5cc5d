package descriptor

import "errors"

// ErrCannotForwardInvitation is returned by Invitation.Forward: spec.md
// §4.2 states invitations cannot be forwarded.
var ErrCannotForwardInvitation = errors.New("descriptor: invitation cannot be forwarded")

// ErrUnknownSchema is returned by Decode when no registered codec matches
// the (schemaId, schemaVersion) pair read from the wire or storage. Per
// spec.md §9 design notes, unknown codes are dropped, not crashed on.
var ErrUnknownSchema = errors.New("descriptor: unknown schema")
