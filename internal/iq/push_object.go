package iq

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// PushObjectReq delivers a text message descriptor (spec.md §4.3).
type PushObjectReq struct {
	Header
	Descriptor *descriptor.Object
}

func NewPushObjectReq(requestId int64, d *descriptor.Object) PushObjectReq {
	return PushObjectReq{Header: header(KindPushObject, requestId), Descriptor: d}
}

func (m PushObjectReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	descriptor.Encode(w, m.Descriptor, descriptor.CurrentEnvelopeVersion)
	return w.Bytes()
}

func DecodePushObjectReq(payload []byte) (PushObjectReq, error) {
	var m PushObjectReq
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
	obj, ok := d.(*descriptor.Object)
	if !ok {
		return m, ErrWrongVariant
	}
	m.Descriptor = obj
	return m, nil
}

// OnPushObjectResp yields the peer-assigned receivedTimestamp.
type OnPushObjectResp struct {
	Header
	ReceivedTimestamp int64
}

func NewOnPushObjectResp(requestId, receivedTimestamp int64) OnPushObjectResp {
	return OnPushObjectResp{Header: header(KindOnPushObject, requestId), ReceivedTimestamp: receivedTimestamp}
}

func (m OnPushObjectResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.ReceivedTimestamp)
	return w.Bytes()
}

func DecodeOnPushObjectResp(payload []byte) (OnPushObjectResp, error) {
	var m OnPushObjectResp
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	ts, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.ReceivedTimestamp = ts
	return m, nil
}
