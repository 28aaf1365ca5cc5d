package descriptor

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

// Twincode shares a twincode identity with the peer (e.g. introducing a
// contact's outbound twincode into a conversation).
type Twincode struct {
	Envelope
	TwincodeOutboundId uuid.UUID
	DisplayName        string
}

var twincodeSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0009")

const twincodeSchemaVersion = 1

func init() { RegisterSchema(twincodeSchemaID, twincodeSchemaVersion, decodeTwincode) }

func (d *Twincode) Base() *Envelope { return &d.Envelope }
func (d *Twincode) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: twincodeSchemaID, Version: twincodeSchemaVersion}
}

func (d *Twincode) Encode(w *codec.Writer) {
	w.WriteUUID(d.TwincodeOutboundId)
	w.WriteString(d.DisplayName)
}

func (d *Twincode) Forward() (Descriptor, error) {
	return &Twincode{TwincodeOutboundId: d.TwincodeOutboundId, DisplayName: d.DisplayName}, nil
}

func decodeTwincode(r *codec.Reader, env Envelope) (Descriptor, error) {
	tc, err := r.ReadUUID()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &Twincode{Envelope: env, TwincodeOutboundId: tc, DisplayName: name}, nil
}
