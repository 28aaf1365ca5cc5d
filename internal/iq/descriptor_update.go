package iq

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// TimestampKind selects which timestamp field UpdateDescriptorTimestampReq
// pushes (spec.md §4.3).
type TimestampKind int32

const (
	TimestampKindRead       TimestampKind = 0
	TimestampKindDelete     TimestampKind = 1
	TimestampKindPeerDelete TimestampKind = 2
)

// UpdateDescriptorTimestampReq pushes a READ, DELETE, or PEER_DELETE
// timestamp for a referenced descriptor (spec.md §4.3, operation type 5).
type UpdateDescriptorTimestampReq struct {
	Header
	Kind      TimestampKind
	DescId    descriptor.Id
	Timestamp int64
}

func NewUpdateDescriptorTimestampReq(requestId int64, kind TimestampKind, descId descriptor.Id, timestamp int64) UpdateDescriptorTimestampReq {
	return UpdateDescriptorTimestampReq{
		Header: header(KindUpdateDescriptorTimestamp, requestId), Kind: kind, DescId: descId, Timestamp: timestamp,
	}
}

func (m UpdateDescriptorTimestampReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteInt32(int32(m.Kind))
	w.WriteUUID(m.DescId.TwincodeOutboundId)
	w.WriteLong(m.DescId.SequenceId)
	w.WriteLong(m.Timestamp)
	return w.Bytes()
}

func DecodeUpdateDescriptorTimestampReq(payload []byte) (UpdateDescriptorTimestampReq, error) {
	var m UpdateDescriptorTimestampReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	k, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.Kind = TimestampKind(k)
	tc, err := r.ReadUUID()
	if err != nil {
		return m, err
	}
	seq, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.DescId = descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
	if m.Timestamp, err = r.ReadLong(); err != nil {
		return m, err
	}
	return m, nil
}

// OnUpdateDescriptorTimestampResp acknowledges the push.
type OnUpdateDescriptorTimestampResp struct {
	Header
	Code ErrorCode
}

func NewOnUpdateDescriptorTimestampResp(requestId int64, code ErrorCode) OnUpdateDescriptorTimestampResp {
	return OnUpdateDescriptorTimestampResp{Header: header(KindOnUpdateDescriptorTimestamp, requestId), Code: code}
}

func (m OnUpdateDescriptorTimestampResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteInt32(int32(m.Code))
	return w.Bytes()
}

func DecodeOnUpdateDescriptorTimestampResp(payload []byte) (OnUpdateDescriptorTimestampResp, error) {
	var m OnUpdateDescriptorTimestampResp
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

// Update flag bits for UpdateDescriptorReq (spec.md §4.4, operation 18).
const (
	UpdateFlagMessage     uint32 = 1 << 0
	UpdateFlagCopyAllowed uint32 = 1 << 1
	UpdateFlagExpiration  uint32 = 1 << 2
)

// UpdateDescriptorReq carries content/flag/expire edits for an existing
// message (spec.md §4.3). Acknowledged implicitly via the next IQ on
// this link rather than a dedicated response schema, per the protocol
// table; NewMessage/CopyAllowed/ExpireTimeout are only meaningful when
// their corresponding UpdateFlag bit is set.
type UpdateDescriptorReq struct {
	Header
	DescId        descriptor.Id
	UpdateFlags   uint32
	NewMessage    string
	CopyAllowed   bool
	ExpireTimeout int64
}

func NewUpdateDescriptorReq(requestId int64, descId descriptor.Id, flags uint32, newMessage string, copyAllowed bool, expireTimeout int64) UpdateDescriptorReq {
	return UpdateDescriptorReq{
		Header: header(KindUpdateDescriptor, requestId), DescId: descId, UpdateFlags: flags,
		NewMessage: newMessage, CopyAllowed: copyAllowed, ExpireTimeout: expireTimeout,
	}
}

func (m UpdateDescriptorReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteUUID(m.DescId.TwincodeOutboundId)
	w.WriteLong(m.DescId.SequenceId)
	w.WriteInt32(int32(m.UpdateFlags))
	w.WriteString(m.NewMessage)
	w.WriteBool(m.CopyAllowed)
	w.WriteLong(m.ExpireTimeout)
	return w.Bytes()
}

func DecodeUpdateDescriptorReq(payload []byte) (UpdateDescriptorReq, error) {
	var m UpdateDescriptorReq
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
	flags, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.UpdateFlags = uint32(flags)
	if m.NewMessage, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.CopyAllowed, err = r.ReadBool(); err != nil {
		return m, err
	}
	if m.ExpireTimeout, err = r.ReadLong(); err != nil {
		return m, err
	}
	return m, nil
}
