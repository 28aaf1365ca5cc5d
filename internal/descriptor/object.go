package descriptor

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
)

// Object is a plain text message descriptor.
type Object struct {
	Envelope
	Message string
}

var objectSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0001")

const objectSchemaVersion = 1

func init() {
	RegisterSchema(objectSchemaID, objectSchemaVersion, decodeObject)
}

func (o *Object) Base() *Envelope { return &o.Envelope }

func (o *Object) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: objectSchemaID, Version: objectSchemaVersion}
}

func (o *Object) Encode(w *codec.Writer) {
	w.WriteString(o.Message)
}

func (o *Object) Forward() (Descriptor, error) {
	return &Object{Message: o.Message}, nil
}

func decodeObject(r *codec.Reader, env Envelope) (Descriptor, error) {
	msg, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &Object{Envelope: env, Message: msg}, nil
}

// NewObject constructs a freshly-created (unsent) Object descriptor. Per
// spec.md §4.2's construction rules, an outgoing descriptor has
// creationDate = now and sent/received/read = 0 until dispatched.
func NewObject(id Id, convId DatabaseId, now int64, message string) *Object {
	return &Object{Envelope: newEnvelope(id, convId, TypeObject, now), Message: message}
}
