package descriptor

import "github.com/petervdpas/conversation-engine/internal/codec"

// Clear is a conversation-wipe marker: when received, the peer must
// delete every descriptor in the conversation created before
// ClearBefore. It carries no other payload.
type Clear struct {
	Envelope
	ClearBefore int64
}

var clearSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f000b")

const clearSchemaVersion = 1

func init() { RegisterSchema(clearSchemaID, clearSchemaVersion, decodeClear) }

func (d *Clear) Base() *Envelope { return &d.Envelope }
func (d *Clear) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: clearSchemaID, Version: clearSchemaVersion}
}

func (d *Clear) Encode(w *codec.Writer) {
	w.WriteLong(d.ClearBefore)
}

func (d *Clear) Forward() (Descriptor, error) {
	return &Clear{ClearBefore: d.ClearBefore}, nil
}

func decodeClear(r *codec.Reader, env Envelope) (Descriptor, error) {
	before, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return &Clear{Envelope: env, ClearBefore: before}, nil
}
