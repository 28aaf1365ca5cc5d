package iq

import "errors"

// ErrWrongVariant is returned when a decoded descriptor's concrete type
// doesn't match what the enclosing IQ family expects (e.g. a PushFileReq
// whose payload decoded to an Object). Treated as BadRequest by callers.
var ErrWrongVariant = errors.New("iq: descriptor variant mismatch")

// ErrUnknownPacket is returned by dispatch when PeekKind can't identify
// the incoming payload's schema id (spec.md §9: unknown codes are
// dropped, not crashed on).
var ErrUnknownPacket = errors.New("iq: unrecognized packet schema")
