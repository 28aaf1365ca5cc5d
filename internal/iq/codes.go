// Package iq implements the wire IQ request/response packet families
// (spec.md §4.3) and the operation set built on top of them (spec.md
// §4.4): the set of pending-action types, each with a serialize/
// execute(connection) contract, request/response correlation by
// requestId, and the sliding-window file chunk protocol.
package iq

// ErrorCode is the taxonomy every operation execute() and IQ response
// resolves into (spec.md §7). No exception escapes the engine's public
// API; every outcome is one of these.
type ErrorCode int

const (
	// Success: continue normally, no further action.
	Success ErrorCode = iota
	// Queued: in flight, waiting for a response.
	Queued
	// Expired: the underlying descriptor/operation no longer exists;
	// delete the operation, emit no user-visible error, do not retry.
	Expired
	// BadRequest: malformed IQ or violated invariant; log, delete the
	// operation, keep the connection.
	BadRequest
	// FeatureNotSupportedByPeer: peer is too old for this request.
	FeatureNotSupportedByPeer
	// Transient: transport returned Busy/Disconnected/Timeout/
	// ConnectivityError; operation stays queued, backoff advances.
	Transient
	// Fatal: NotAuthorized/Revoked/Gone/cryptographic failure; backoff
	// jumps to the maximum slot, operation remains queued.
	Fatal
	// DatabaseError: raised through a dedicated channel to a host
	// callback; surfaced, not self-repaired.
	DatabaseError
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "Success"
	case Queued:
		return "Queued"
	case Expired:
		return "Expired"
	case BadRequest:
		return "BadRequest"
	case FeatureNotSupportedByPeer:
		return "FeatureNotSupportedByPeer"
	case Transient:
		return "Transient"
	case Fatal:
		return "Fatal"
	case DatabaseError:
		return "DatabaseError"
	default:
		return "Unknown"
	}
}

// Terminal reports whether this code means "don't keep this operation
// queued for retry" (everything except Queued/Transient/Fatal).
func (c ErrorCode) Terminal() bool {
	switch c {
	case Queued, Transient, Fatal:
		return false
	default:
		return true
	}
}
