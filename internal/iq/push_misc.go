package iq

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// PushGeolocationReq delivers a Geolocation descriptor.
type PushGeolocationReq struct {
	Header
	Descriptor *descriptor.Geolocation
}

func NewPushGeolocationReq(requestId int64, d *descriptor.Geolocation) PushGeolocationReq {
	return PushGeolocationReq{Header: header(KindPushGeolocation, requestId), Descriptor: d}
}

func (m PushGeolocationReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	descriptor.Encode(w, m.Descriptor, descriptor.CurrentEnvelopeVersion)
	return w.Bytes()
}

func DecodePushGeolocationReq(payload []byte) (PushGeolocationReq, error) {
	var m PushGeolocationReq
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
	geo, ok := d.(*descriptor.Geolocation)
	if !ok {
		return m, ErrWrongVariant
	}
	m.Descriptor = geo
	return m, nil
}

// OnPushGeolocationResp mirrors OnPushObjectResp.
type OnPushGeolocationResp struct {
	Header
	ReceivedTimestamp int64
}

func NewOnPushGeolocationResp(requestId, receivedTimestamp int64) OnPushGeolocationResp {
	return OnPushGeolocationResp{Header: header(KindOnPushGeolocation, requestId), ReceivedTimestamp: receivedTimestamp}
}

func (m OnPushGeolocationResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.ReceivedTimestamp)
	return w.Bytes()
}

func DecodeOnPushGeolocationResp(payload []byte) (OnPushGeolocationResp, error) {
	var m OnPushGeolocationResp
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

// PushTwincodeReq shares a twincode card.
type PushTwincodeReq struct {
	Header
	Descriptor *descriptor.Twincode
}

func NewPushTwincodeReq(requestId int64, d *descriptor.Twincode) PushTwincodeReq {
	return PushTwincodeReq{Header: header(KindPushTwincode, requestId), Descriptor: d}
}

func (m PushTwincodeReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	descriptor.Encode(w, m.Descriptor, descriptor.CurrentEnvelopeVersion)
	return w.Bytes()
}

func DecodePushTwincodeReq(payload []byte) (PushTwincodeReq, error) {
	var m PushTwincodeReq
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
	tc, ok := d.(*descriptor.Twincode)
	if !ok {
		return m, ErrWrongVariant
	}
	m.Descriptor = tc
	return m, nil
}

// OnPushTwincodeResp mirrors OnPushObjectResp.
type OnPushTwincodeResp struct {
	Header
	ReceivedTimestamp int64
}

func NewOnPushTwincodeResp(requestId, receivedTimestamp int64) OnPushTwincodeResp {
	return OnPushTwincodeResp{Header: header(KindOnPushTwincode, requestId), ReceivedTimestamp: receivedTimestamp}
}

func (m OnPushTwincodeResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.ReceivedTimestamp)
	return w.Bytes()
}

func DecodeOnPushTwincodeResp(payload []byte) (OnPushTwincodeResp, error) {
	var m OnPushTwincodeResp
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

// PushCommandReq is a transient sidecar for realtime commands; never
// persisted as a descriptor (spec.md §4.3).
type PushCommandReq struct {
	Header
	Command string
	Args    []byte
}

func NewPushCommandReq(requestId int64, command string, args []byte) PushCommandReq {
	return PushCommandReq{Header: header(KindPushCommand, requestId), Command: command, Args: args}
}

func (m PushCommandReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteString(m.Command)
	w.WriteBytes(m.Args)
	return w.Bytes()
}

func DecodePushCommandReq(payload []byte) (PushCommandReq, error) {
	var m PushCommandReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	if m.Command, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Args, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// OnPushCommandResp acknowledges a PushCommandReq.
type OnPushCommandResp struct {
	Header
}

func NewOnPushCommandResp(requestId int64) OnPushCommandResp {
	return OnPushCommandResp{Header: header(KindOnPushCommand, requestId)}
}

func (m OnPushCommandResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	return w.Bytes()
}

func DecodeOnPushCommandResp(payload []byte) (OnPushCommandResp, error) {
	var m OnPushCommandResp
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	return m, nil
}

// PushTransientObjectReq is a fire-and-forget signal (typing, etc.): no
// response is expected (spec.md §4.3, §9 open question resolution).
type PushTransientObjectReq struct {
	Header
	Kind    string
	Payload []byte
}

func NewPushTransientObjectReq(requestId int64, kind string, payload []byte) PushTransientObjectReq {
	return PushTransientObjectReq{Header: header(KindPushTransientObject, requestId), Kind: kind, Payload: payload}
}

func (m PushTransientObjectReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteString(m.Kind)
	w.WriteBytes(m.Payload)
	return w.Bytes()
}

func DecodePushTransientObjectReq(payload []byte) (PushTransientObjectReq, error) {
	var m PushTransientObjectReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	if m.Kind, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Payload, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}
