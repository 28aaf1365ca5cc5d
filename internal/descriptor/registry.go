package descriptor

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

// Envelope wire versions (spec.md §4.2): v4 adds expireTimeout, sendTo and
// replyTo to the common header; v3 omits them entirely (no tag bytes, for
// byte-for-byte compatibility with peers that never learned those fields).
const (
	EnvelopeVersionV3     = 3
	EnvelopeVersionV4     = 4
	CurrentEnvelopeVersion = EnvelopeVersionV4
)

// DecodeFunc decodes one variant's payload given the already-decoded
// common envelope. Registered per (schemaId, schemaVersion) pair.
type DecodeFunc func(r *codec.Reader, env Envelope) (Descriptor, error)

type schemaKey struct {
	id      uuid.UUID
	version int
}

var registry = map[schemaKey]DecodeFunc{}

// RegisterSchema installs a decoder for one (schemaId, schemaVersion)
// pair. Called from each variant's init(). A variant may register more
// than one schema version if it has evolved.
func RegisterSchema(id uuid.UUID, version int, fn DecodeFunc) {
	registry[schemaKey{id, version}] = fn
}

// EncodeEnvelope appends the common envelope fields to w, honoring the
// given envelope wire version (spec.md §4.2).
func EncodeEnvelope(w *codec.Writer, e Envelope, version int) {
	w.WriteByte(byte(e.Type))
	w.WriteUUID(e.Id.TwincodeOutboundId)
	w.WriteLong(e.Id.SequenceId)
	w.WriteLong(e.CreationDate)
	w.WriteInt32(int32(e.Flags))

	if version < EnvelopeVersionV4 {
		return
	}
	w.WriteOptionalLong(optLong(e.ExpireTimeout))
	w.WriteOptionalUUID(e.SendTo)
	if e.ReplyTo == nil {
		w.WriteBool(false)
	} else {
		w.WriteBool(true)
		w.WriteUUID(e.ReplyTo.TwincodeOutboundId)
		w.WriteLong(e.ReplyTo.SequenceId)
	}
}

func optLong(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// DecodeEnvelope reads the common envelope fields written by
// EncodeEnvelope, for the given wire version. ConversationDbId and
// DatabaseId are left zero: the caller (the IQ layer or the persistence
// provider) resolves those from context, not from the wire.
func DecodeEnvelope(r *codec.Reader, version int) (Envelope, error) {
	var e Envelope

	typ, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	e.Type = Type(typ)

	twincode, err := r.ReadUUID()
	if err != nil {
		return e, err
	}
	e.Id.TwincodeOutboundId = twincode

	seq, err := r.ReadLong()
	if err != nil {
		return e, err
	}
	e.Id.SequenceId = seq

	creation, err := r.ReadLong()
	if err != nil {
		return e, err
	}
	e.CreationDate = creation

	flags, err := r.ReadInt32()
	if err != nil {
		return e, err
	}
	e.Flags = uint32(flags)

	if version < EnvelopeVersionV4 {
		return e, nil
	}

	expire, err := r.ReadOptionalLong()
	if err != nil {
		return e, err
	}
	if expire != nil {
		e.ExpireTimeout = *expire
	}

	sendTo, err := r.ReadOptionalUUID()
	if err != nil {
		return e, err
	}
	e.SendTo = sendTo

	hasReply, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if hasReply {
		rtTwincode, err := r.ReadUUID()
		if err != nil {
			return e, err
		}
		rtSeq, err := r.ReadLong()
		if err != nil {
			return e, err
		}
		e.ReplyTo = &Id{TwincodeOutboundId: rtTwincode, SequenceId: rtSeq}
	}

	return e, nil
}

// Encode serializes a full descriptor (schema header + common envelope +
// variant payload) using the given envelope wire version.
func Encode(w *codec.Writer, d Descriptor, envelopeVersion int) {
	w.WriteSchemaHeader(d.SchemaHeader())
	EncodeEnvelope(w, *d.Base(), envelopeVersion)
	d.Encode(w)
}

// Decode reads a full descriptor: schema header, common envelope, then
// dispatches to the registered variant decoder. Returns ErrUnknownSchema
// (not a crash) for an unrecognized (schemaId, schemaVersion) pair, per
// spec.md §9.
func Decode(r *codec.Reader, envelopeVersion int) (Descriptor, error) {
	header, err := r.ReadSchemaHeader()
	if err != nil {
		return nil, err
	}
	env, err := DecodeEnvelope(r, envelopeVersion)
	if err != nil {
		return nil, err
	}
	fn, ok := registry[schemaKey{header.ID, header.Version}]
	if !ok {
		return nil, ErrUnknownSchema
	}
	return fn(r, env)
}
