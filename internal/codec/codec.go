// Package codec implements the engine's versioned binary encoding: the
// typed primitives (UUIDs, varint ints/longs, length-prefixed strings and
// byte slices, optional tags, enum bytes) that every descriptor, operation,
// and IQ packet is built from.
//
// Two framing flavors share the same primitive encoder/decoder:
//   - Wire: a leading padding byte required by some transport framings
//     (LEADING_PADDING in the source system).
//   - Compact: no padding, used for in-database BLOB storage.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Framing selects which byte layout a Writer/Reader pair uses.
type Framing int

const (
	// Compact is the dense form used for on-disk storage.
	Compact Framing = iota
	// Wire carries one leading padding byte, required by some transport
	// framings that need to peek at the first byte without consuming it.
	Wire
)

// Writer accumulates an encoded byte stream.
type Writer struct {
	framing Framing
	buf     []byte
}

// NewWriter creates a Writer using the given framing flavor.
func NewWriter(framing Framing) *Writer {
	w := &Writer{framing: framing}
	if framing == Wire {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Bytes returns the accumulated encoded byte stream.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBool appends a single byte: 1 for true, 0 for false.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

// WriteInt32 appends a 32-bit signed integer in big-endian form.
func (w *Writer) WriteInt32(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	w.buf = append(w.buf, tmp[:]...)
}

// WriteLong appends a 64-bit signed integer using zig-zag varint encoding,
// so small magnitudes (including small negatives, common for sentinel
// values like -1) stay compact.
func (w *Writer) WriteLong(v int64) {
	u := uint64((v << 1) ^ (v >> 63))
	w.writeUvarint(u)
}

func (w *Writer) writeUvarint(u uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], u)
	w.buf = append(w.buf, tmp[:n]...)
}

// WriteString appends a length-prefixed (varint length) UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.writeUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes appends a length-prefixed (varint length) byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.writeUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteUUID appends a UUID as 16 raw bytes.
func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// WriteOptionalUUID appends a tag byte (0 absent, 1 present) then, if
// present, the 16 raw UUID bytes.
func (w *Writer) WriteOptionalUUID(id *uuid.UUID) {
	if id == nil {
		w.WriteByte(0)
		return
	}
	w.WriteByte(1)
	w.WriteUUID(*id)
}

// WriteOptionalLong appends a tag byte then, if present, the long value.
// A nil pointer and a present-but-zero value are distinguished.
func (w *Writer) WriteOptionalLong(v *int64) {
	if v == nil {
		w.WriteByte(0)
		return
	}
	w.WriteByte(1)
	w.WriteLong(*v)
}

// WriteOptionalString appends a tag byte then, if present, the string.
func (w *Writer) WriteOptionalString(s *string) {
	if s == nil {
		w.WriteByte(0)
		return
	}
	w.WriteByte(1)
	w.WriteString(*s)
}

// WriteSchemaHeader appends the canonical schemaId(16)|schemaVersion(varint)
// header shared by every persisted and wire record.
func (w *Writer) WriteSchemaHeader(h SchemaHeader) {
	w.WriteUUID(h.ID)
	w.writeUvarint(uint64(h.Version))
}

// Reader consumes an encoded byte stream produced by a matching Writer.
type Reader struct {
	framing Framing
	buf     []byte
	pos     int
}

// NewReader wraps buf for decoding using the given framing flavor.
func NewReader(framing Framing, buf []byte) *Reader {
	r := &Reader{framing: framing, buf: buf}
	if framing == Wire && len(buf) > 0 {
		r.pos = 1
	}
	return r
}

// ErrShortBuffer is returned when the underlying buffer ends before a
// requested field can be fully decoded.
var ErrShortBuffer = fmt.Errorf("codec: short buffer")

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrShortBuffer
	}
	return nil
}

// ReadByte consumes and returns a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBool consumes a single byte and interprets it as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadInt32 consumes a 32-bit big-endian signed integer.
func (r *Reader) ReadInt32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return int32(v), nil
}

// ReadLong consumes a zig-zag varint-encoded 64-bit signed integer.
func (r *Reader) ReadLong() (int64, error) {
	u, err := r.readUvarint()
	if err != nil {
		return 0, err
	}
	v := int64(u>>1) ^ -int64(u&1)
	return v, nil
}

func (r *Reader) readUvarint() (uint64, error) {
	u, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrShortBuffer
	}
	r.pos += n
	return u, nil
}

// ReadString consumes a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.readUvarint()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBytes consumes a length-prefixed byte slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// ReadUUID consumes 16 raw bytes and parses them as a UUID.
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	if err := r.need(16); err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	return id, nil
}

// ReadOptionalUUID consumes a tag byte then, if present, 16 raw bytes.
func (r *Reader) ReadOptionalUUID() (*uuid.UUID, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	id, err := r.ReadUUID()
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ReadOptionalLong consumes a tag byte then, if present, a long value.
func (r *Reader) ReadOptionalLong() (*int64, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadOptionalString consumes a tag byte then, if present, a string.
func (r *Reader) ReadOptionalString() (*string, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadSchemaHeader consumes the canonical schemaId(16)|schemaVersion(varint)
// header.
func (r *Reader) ReadSchemaHeader() (SchemaHeader, error) {
	id, err := r.ReadUUID()
	if err != nil {
		return SchemaHeader{}, err
	}
	v, err := r.readUvarint()
	if err != nil {
		return SchemaHeader{}, err
	}
	return SchemaHeader{ID: id, Version: int(v)}, nil
}

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Done reports whether the whole buffer has been consumed.
func (r *Reader) Done() bool {
	return r.pos >= len(r.buf)
}
