package iq

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

// Header is the fixed prefix of every packet on a P2P link (spec.md
// §4.3): schemaId, schemaVersion, then requestId, then variant-specific
// fields. Every request/response family below embeds Header.
type Header struct {
	Schema    codec.SchemaHeader
	RequestId int64
}

func writeHeader(w *codec.Writer, h Header) {
	w.WriteSchemaHeader(h.Schema)
	w.WriteLong(h.RequestId)
}

func readHeader(r *codec.Reader) (Header, error) {
	var h Header
	schema, err := r.ReadSchemaHeader()
	if err != nil {
		return h, err
	}
	h.Schema = schema
	reqId, err := r.ReadLong()
	if err != nil {
		return h, err
	}
	h.RequestId = reqId
	return h, nil
}

// Kind identifies one IQ packet family, independent of request/response
// direction, used to dispatch a decoded packet to its handler.
type Kind int

const (
	KindResetConversation Kind = iota
	KindOnResetConversation
	KindPushObject
	KindOnPushObject
	KindPushFile
	KindOnPushFile
	KindPushFileChunk
	KindOnPushFileChunk
	KindPushThumbnail
	KindOnPushThumbnail
	KindPushGeolocation
	KindOnPushGeolocation
	KindPushTwincode
	KindOnPushTwincode
	KindPushCommand
	KindOnPushCommand
	KindPushTransientObject
	KindInviteGroup
	KindRevokeInviteGroup
	KindJoinGroup
	KindLeaveGroup
	KindUpdateGroupMember
	KindOnResultGroup
	KindOnResultJoin
	KindUpdateDescriptorTimestamp
	KindOnUpdateDescriptorTimestamp
	KindUpdateDescriptor
	KindUpdateAnnotations
	KindOnUpdateAnnotations
)

// schemaIDs assigns one stable UUID per packet kind. Request and response
// of the same family intentionally share nothing but a name; they are
// decoded independently once the generic Header has been read, the same
// way the descriptor registry keys on (schemaId, schemaVersion).
var schemaIDs = map[Kind]uuid.UUID{
	KindResetConversation:           codec.MustUUID("c6a0f001-0000-4000-8000-000000000001"),
	KindOnResetConversation:         codec.MustUUID("c6a0f001-0000-4000-8000-000000000002"),
	KindPushObject:                  codec.MustUUID("c6a0f001-0000-4000-8000-000000000003"),
	KindOnPushObject:                codec.MustUUID("c6a0f001-0000-4000-8000-000000000004"),
	KindPushFile:                    codec.MustUUID("c6a0f001-0000-4000-8000-000000000005"),
	KindOnPushFile:                  codec.MustUUID("c6a0f001-0000-4000-8000-000000000006"),
	KindPushFileChunk:               codec.MustUUID("c6a0f001-0000-4000-8000-000000000007"),
	KindOnPushFileChunk:             codec.MustUUID("c6a0f001-0000-4000-8000-000000000008"),
	KindPushThumbnail:               codec.MustUUID("c6a0f001-0000-4000-8000-000000000009"),
	KindOnPushThumbnail:             codec.MustUUID("c6a0f001-0000-4000-8000-00000000000a"),
	KindPushGeolocation:             codec.MustUUID("c6a0f001-0000-4000-8000-00000000000b"),
	KindOnPushGeolocation:           codec.MustUUID("c6a0f001-0000-4000-8000-00000000000c"),
	KindPushTwincode:                codec.MustUUID("c6a0f001-0000-4000-8000-00000000000d"),
	KindOnPushTwincode:              codec.MustUUID("c6a0f001-0000-4000-8000-00000000000e"),
	KindPushCommand:                 codec.MustUUID("c6a0f001-0000-4000-8000-00000000000f"),
	KindOnPushCommand:               codec.MustUUID("c6a0f001-0000-4000-8000-000000000010"),
	KindPushTransientObject:         codec.MustUUID("c6a0f001-0000-4000-8000-000000000011"),
	KindInviteGroup:                 codec.MustUUID("c6a0f001-0000-4000-8000-000000000012"),
	KindRevokeInviteGroup:           codec.MustUUID("c6a0f001-0000-4000-8000-000000000013"),
	KindJoinGroup:                   codec.MustUUID("c6a0f001-0000-4000-8000-000000000014"),
	KindLeaveGroup:                  codec.MustUUID("c6a0f001-0000-4000-8000-000000000015"),
	KindUpdateGroupMember:           codec.MustUUID("c6a0f001-0000-4000-8000-000000000016"),
	KindOnResultGroup:               codec.MustUUID("c6a0f001-0000-4000-8000-000000000017"),
	KindOnResultJoin:                codec.MustUUID("c6a0f001-0000-4000-8000-000000000018"),
	KindUpdateDescriptorTimestamp:   codec.MustUUID("c6a0f001-0000-4000-8000-000000000019"),
	KindOnUpdateDescriptorTimestamp: codec.MustUUID("c6a0f001-0000-4000-8000-00000000001a"),
	KindUpdateDescriptor:            codec.MustUUID("c6a0f001-0000-4000-8000-00000000001b"),
	KindUpdateAnnotations:           codec.MustUUID("c6a0f001-0000-4000-8000-00000000001c"),
	KindOnUpdateAnnotations:         codec.MustUUID("c6a0f001-0000-4000-8000-00000000001d"),
}

const packetSchemaVersion = 1

func header(k Kind, requestId int64) Header {
	return Header{Schema: codec.SchemaHeader{ID: schemaIDs[k], Version: packetSchemaVersion}, RequestId: requestId}
}

// PeekKind reads just enough of payload (the schema header) to identify
// which packet family it belongs to, without consuming the reader used
// for the real decode. Returns ok=false for an unrecognized schema id,
// per spec.md §9's "guard all switches with a default, don't crash" rule.
func PeekKind(payload []byte) (k Kind, requestId int64, ok bool) {
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return 0, 0, false
	}
	for kind, id := range schemaIDs {
		if id == h.Schema.ID {
			return kind, h.RequestId, true
		}
	}
	return 0, 0, false
}
