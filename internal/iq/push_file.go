package iq

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// DataWindowSize is the sliding-window size for file chunk transfer:
// the sender never lets sentOffset run more than this far ahead of the
// last acknowledged chunkStart (spec.md §4.3).
const DataWindowSize = 262144

// NotInitialized is the sentinel chunkStart before the sender has
// solicited the peer's current receive position (spec.md §4.3).
const NotInitialized int64 = -1

// MaxChunkBytes bounds a single PushFileChunkReq payload: the protocol
// sends 2x the transport's advised chunk size, clamped to this ceiling
// (spec.md §4.3).
const MaxChunkBytes = 256 * 1024

// ChunkSizeFor returns the per-IQ chunk size to use given the
// transport's currently advised best chunk size.
func ChunkSizeFor(bestChunkSize int) int {
	n := 2 * bestChunkSize
	if n <= 0 || n > MaxChunkBytes {
		return MaxChunkBytes
	}
	return n
}

// IsReadyToSend reports whether the sender may push more bytes of a
// length-byte file given its current sentOffset/chunkStart (spec.md
// §4.3): sentOffset < length, sentOffset >= 0, and the in-flight window
// sentOffset-chunkStart stays under DataWindowSize.
func IsReadyToSend(sentOffset, chunkStart, length int64) bool {
	return sentOffset < length && sentOffset >= 0 && sentOffset-chunkStart < DataWindowSize
}

// PushFileReq delivers a file-bearing descriptor's metadata (spec.md
// §4.3); the byte stream itself follows as PushFileChunkReq messages. An
// oversized thumbnail is sent beforehand via PushThumbnailReq, so here
// ThumbnailInline carries only a thumbnail small enough to ride inline.
type PushFileReq struct {
	Header
	Descriptor      descriptor.Descriptor // *File, *Image, *Audio, *Video, or *NamedFile
	ThumbnailInline []byte
}

func NewPushFileReq(requestId int64, d descriptor.Descriptor, thumbnail []byte) PushFileReq {
	return PushFileReq{Header: header(KindPushFile, requestId), Descriptor: d, ThumbnailInline: thumbnail}
}

func (m PushFileReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	descriptor.Encode(w, m.Descriptor, descriptor.CurrentEnvelopeVersion)
	w.WriteBytes(m.ThumbnailInline)
	return w.Bytes()
}

func DecodePushFileReq(payload []byte) (PushFileReq, error) {
	var m PushFileReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	d, err := descriptor.Decode(r, descriptor.CurrentEnvelopeVersion)
	if err != nil {
		return m, err
	}
	if !d.Base().Type.IsFileBearing() {
		return m, ErrWrongVariant
	}
	m.Descriptor = d
	thumb, err := r.ReadBytes()
	if err != nil {
		return m, err
	}
	m.ThumbnailInline = thumb
	return m, nil
}

// OnPushFileResp acknowledges a PushFileReq and reports the peer's
// current receive offset, which seeds the sender's first chunk IQ.
type OnPushFileResp struct {
	Header
	NextChunkStart int64
}

func NewOnPushFileResp(requestId, nextChunkStart int64) OnPushFileResp {
	return OnPushFileResp{Header: header(KindOnPushFile, requestId), NextChunkStart: nextChunkStart}
}

func (m OnPushFileResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.NextChunkStart)
	return w.Bytes()
}

func DecodeOnPushFileResp(payload []byte) (OnPushFileResp, error) {
	var m OnPushFileResp
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	v, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.NextChunkStart = v
	return m, nil
}

// PushFileChunkReq carries one window's worth of file bytes (or, with an
// empty Data, the "probe" IQ a sender transmits after (re)connect to
// solicit the peer's current position: spec.md §4.3).
type PushFileChunkReq struct {
	Header
	DescId     descriptor.Id
	ChunkStart int64
	Data       []byte
}

func NewPushFileChunkReq(requestId int64, descId descriptor.Id, chunkStart int64, data []byte) PushFileChunkReq {
	return PushFileChunkReq{Header: header(KindPushFileChunk, requestId), DescId: descId, ChunkStart: chunkStart, Data: data}
}

func (m PushFileChunkReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteUUID(m.DescId.TwincodeOutboundId)
	w.WriteLong(m.DescId.SequenceId)
	w.WriteLong(m.ChunkStart)
	w.WriteBytes(m.Data)
	return w.Bytes()
}

func DecodePushFileChunkReq(payload []byte) (PushFileChunkReq, error) {
	var m PushFileChunkReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	tc, err := r.ReadUUID()
	if err != nil {
		return m, err
	}
	seq, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.DescId = descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
	if m.ChunkStart, err = r.ReadLong(); err != nil {
		return m, err
	}
	if m.Data, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// OnPushFileChunkResp echoes the next expected chunkStart, serving as the
// sliding-window acknowledgement (spec.md §4.3).
type OnPushFileChunkResp struct {
	Header
	NextChunkStart int64
}

func NewOnPushFileChunkResp(requestId, nextChunkStart int64) OnPushFileChunkResp {
	return OnPushFileChunkResp{Header: header(KindOnPushFileChunk, requestId), NextChunkStart: nextChunkStart}
}

func (m OnPushFileChunkResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.NextChunkStart)
	return w.Bytes()
}

func DecodeOnPushFileChunkResp(payload []byte) (OnPushFileChunkResp, error) {
	var m OnPushFileChunkResp
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	v, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.NextChunkStart = v
	return m, nil
}

// PushThumbnailReq carries one chunk of an oversized thumbnail, sent
// ahead of the main PushFileReq when the thumbnail exceeds
// 2*bestChunkSize (spec.md §4.3).
type PushThumbnailReq struct {
	Header
	DescId descriptor.Id
	Offset int64
	Data   []byte
	Final  bool
}

func NewPushThumbnailReq(requestId int64, descId descriptor.Id, offset int64, data []byte, final bool) PushThumbnailReq {
	return PushThumbnailReq{Header: header(KindPushThumbnail, requestId), DescId: descId, Offset: offset, Data: data, Final: final}
}

func (m PushThumbnailReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteUUID(m.DescId.TwincodeOutboundId)
	w.WriteLong(m.DescId.SequenceId)
	w.WriteLong(m.Offset)
	w.WriteBytes(m.Data)
	w.WriteBool(m.Final)
	return w.Bytes()
}

func DecodePushThumbnailReq(payload []byte) (PushThumbnailReq, error) {
	var m PushThumbnailReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	tc, err := r.ReadUUID()
	if err != nil {
		return m, err
	}
	seq, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.DescId = descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
	if m.Offset, err = r.ReadLong(); err != nil {
		return m, err
	}
	if m.Data, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.Final, err = r.ReadBool(); err != nil {
		return m, err
	}
	return m, nil
}

// OnPushThumbnailResp echoes the next expected thumbnail offset,
// mirroring OnPushFileChunkResp's sliding-window acknowledgement.
type OnPushThumbnailResp struct {
	Header
	NextOffset int64
}

func NewOnPushThumbnailResp(requestId, nextOffset int64) OnPushThumbnailResp {
	return OnPushThumbnailResp{Header: header(KindOnPushThumbnail, requestId), NextOffset: nextOffset}
}

func (m OnPushThumbnailResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.NextOffset)
	return w.Bytes()
}

func DecodeOnPushThumbnailResp(payload []byte) (OnPushThumbnailResp, error) {
	var m OnPushThumbnailResp
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	v, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.NextOffset = v
	return m, nil
}
