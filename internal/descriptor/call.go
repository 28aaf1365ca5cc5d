package descriptor

import "github.com/petervdpas/conversation-engine/internal/codec"

// CallOutcome is the call-ended reason, packed into Envelope.Flags bits
// 4-6 (FlagCallMask/FlagCallShift) rather than a separate column, mirroring
// how the rest of the flag bitmask is used for compact status bits.
type CallOutcome byte

const (
	CallAnswered       CallOutcome = 0
	CallMissed         CallOutcome = 1
	CallDeclined       CallOutcome = 2
	CallFailed         CallOutcome = 3
	CallCancelledLocal CallOutcome = 4
)

// Call is a call-record descriptor: metadata only, never the media
// stream itself (the engine's transport is opaque to call media).
type Call struct {
	Envelope
	DurationMs int64
	Outgoing   bool
}

var callSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f000a")

const callSchemaVersion = 1

func init() { RegisterSchema(callSchemaID, callSchemaVersion, decodeCall) }

func (d *Call) Base() *Envelope { return &d.Envelope }
func (d *Call) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: callSchemaID, Version: callSchemaVersion}
}

// Outcome reads the call outcome packed into the envelope flags.
func (d *Call) Outcome() CallOutcome {
	return CallOutcome((d.Flags & FlagCallMask) >> FlagCallShift)
}

// SetOutcome packs o into the envelope flags, replacing any prior value.
func (d *Call) SetOutcome(o CallOutcome) {
	d.Flags = (d.Flags &^ FlagCallMask) | (uint32(o)<<FlagCallShift)&FlagCallMask
}

func (d *Call) Encode(w *codec.Writer) {
	w.WriteLong(d.DurationMs)
	w.WriteBool(d.Outgoing)
}

func (d *Call) Forward() (Descriptor, error) {
	return &Call{DurationMs: d.DurationMs, Outgoing: d.Outgoing}, nil
}

func decodeCall(r *codec.Reader, env Envelope) (Descriptor, error) {
	dur, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	out, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	return &Call{Envelope: env, DurationMs: dur, Outgoing: out}, nil
}
