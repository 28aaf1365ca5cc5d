package codec

import (
	"testing"

	"github.com/google/uuid"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	id := uuid.New()
	str := "hello, descriptor"
	var nilStr *string
	present := "present"
	var nilLong *int64
	three := int64(3)

	for _, framing := range []Framing{Compact, Wire} {
		w := NewWriter(framing)
		w.WriteByte(42)
		w.WriteBool(true)
		w.WriteInt32(-12345)
		w.WriteLong(-1)
		w.WriteLong(1_700_000_000_000)
		w.WriteString(str)
		w.WriteBytes([]byte{1, 2, 3, 4})
		w.WriteUUID(id)
		w.WriteOptionalUUID(nil)
		w.WriteOptionalString(nilStr)
		w.WriteOptionalString(&present)
		w.WriteOptionalLong(nilLong)
		w.WriteOptionalLong(&three)
		w.WriteSchemaHeader(SchemaHeader{ID: id, Version: 4})

		r := NewReader(framing, w.Bytes())

		if b, err := r.ReadByte(); err != nil || b != 42 {
			t.Fatalf("framing %v: ReadByte = %v, %v", framing, b, err)
		}
		if b, err := r.ReadBool(); err != nil || !b {
			t.Fatalf("framing %v: ReadBool = %v, %v", framing, b, err)
		}
		if v, err := r.ReadInt32(); err != nil || v != -12345 {
			t.Fatalf("framing %v: ReadInt32 = %v, %v", framing, v, err)
		}
		if v, err := r.ReadLong(); err != nil || v != -1 {
			t.Fatalf("framing %v: ReadLong(-1) = %v, %v", framing, v, err)
		}
		if v, err := r.ReadLong(); err != nil || v != 1_700_000_000_000 {
			t.Fatalf("framing %v: ReadLong(ts) = %v, %v", framing, v, err)
		}
		if s, err := r.ReadString(); err != nil || s != str {
			t.Fatalf("framing %v: ReadString = %q, %v", framing, s, err)
		}
		if b, err := r.ReadBytes(); err != nil || len(b) != 4 {
			t.Fatalf("framing %v: ReadBytes = %v, %v", framing, b, err)
		}
		if got, err := r.ReadUUID(); err != nil || got != id {
			t.Fatalf("framing %v: ReadUUID = %v, %v", framing, got, err)
		}
		if got, err := r.ReadOptionalUUID(); err != nil || got != nil {
			t.Fatalf("framing %v: ReadOptionalUUID(nil) = %v, %v", framing, got, err)
		}
		if got, err := r.ReadOptionalString(); err != nil || got != nil {
			t.Fatalf("framing %v: ReadOptionalString(nil) = %v, %v", framing, got, err)
		}
		if got, err := r.ReadOptionalString(); err != nil || got == nil || *got != present {
			t.Fatalf("framing %v: ReadOptionalString(present) = %v, %v", framing, got, err)
		}
		if got, err := r.ReadOptionalLong(); err != nil || got != nil {
			t.Fatalf("framing %v: ReadOptionalLong(nil) = %v, %v", framing, got, err)
		}
		if got, err := r.ReadOptionalLong(); err != nil || got == nil || *got != three {
			t.Fatalf("framing %v: ReadOptionalLong(3) = %v, %v", framing, got, err)
		}
		if h, err := r.ReadSchemaHeader(); err != nil || h.ID != id || h.Version != 4 {
			t.Fatalf("framing %v: ReadSchemaHeader = %v, %v", framing, h, err)
		}
		if !r.Done() {
			t.Fatalf("framing %v: expected reader exhausted, %d bytes remaining", framing, r.Remaining())
		}
	}
}

func TestReadShortBufferError(t *testing.T) {
	r := NewReader(Compact, []byte{1})
	if _, err := r.ReadInt32(); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestWireFramingHasLeadingPaddingByte(t *testing.T) {
	w := NewWriter(Wire)
	w.WriteByte(7)
	if len(w.Bytes()) != 2 {
		t.Fatalf("expected padding + 1 byte, got %d bytes", len(w.Bytes()))
	}
	if w.Bytes()[0] != 0 {
		t.Fatalf("expected leading padding byte to be 0, got %d", w.Bytes()[0])
	}
}
