package iq

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// UpdateAnnotationsReq pushes one annotation change (add or remove) for
// a referenced descriptor (spec.md §4.4, operation type 14).
type UpdateAnnotationsReq struct {
	Header
	DescId descriptor.Id
	Kind   descriptor.AnnotationKind
	Value  int32
	Remove bool
}

func NewUpdateAnnotationsReq(requestId int64, descId descriptor.Id, kind descriptor.AnnotationKind, value int32, remove bool) UpdateAnnotationsReq {
	return UpdateAnnotationsReq{
		Header: header(KindUpdateAnnotations, requestId), DescId: descId, Kind: kind, Value: value, Remove: remove,
	}
}

func (m UpdateAnnotationsReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteUUID(m.DescId.TwincodeOutboundId)
	w.WriteLong(m.DescId.SequenceId)
	w.WriteInt32(int32(m.Kind))
	w.WriteInt32(m.Value)
	w.WriteBool(m.Remove)
	return w.Bytes()
}

func DecodeUpdateAnnotationsReq(payload []byte) (UpdateAnnotationsReq, error) {
	var m UpdateAnnotationsReq
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
	kind, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.Kind = descriptor.AnnotationKind(kind)
	if m.Value, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.Remove, err = r.ReadBool(); err != nil {
		return m, err
	}
	return m, nil
}

// OnUpdateAnnotationsResp acknowledges an UpdateAnnotationsReq.
type OnUpdateAnnotationsResp struct {
	Header
	Code ErrorCode
}

func NewOnUpdateAnnotationsResp(requestId int64, code ErrorCode) OnUpdateAnnotationsResp {
	return OnUpdateAnnotationsResp{Header: header(KindOnUpdateAnnotations, requestId), Code: code}
}

func (m OnUpdateAnnotationsResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteInt32(int32(m.Code))
	return w.Bytes()
}

func DecodeOnUpdateAnnotationsResp(payload []byte) (OnUpdateAnnotationsResp, error) {
	var m OnUpdateAnnotationsResp
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	code, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.Code = ErrorCode(code)
	return m, nil
}
