package iq

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

// ResetConversationReq asks the peer to delete everything at or below
// minSeq (and, for groups, each member's own peerMinSeq) — spec.md §4.3.
type ResetConversationReq struct {
	Header
	MinSeq       int64
	PeerMinSeq   map[uuid.UUID]int64 // group member twincode -> cutoff sequence id
	ResetMembers bool
}

// NewResetConversationReq builds a request with a freshly assigned
// requestId.
func NewResetConversationReq(requestId, minSeq int64, peerMinSeq map[uuid.UUID]int64, resetMembers bool) ResetConversationReq {
	return ResetConversationReq{
		Header:       header(KindResetConversation, requestId),
		MinSeq:       minSeq,
		PeerMinSeq:   peerMinSeq,
		ResetMembers: resetMembers,
	}
}

func (m ResetConversationReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(m.MinSeq)
	w.WriteBool(m.ResetMembers)
	w.WriteInt32(int32(len(m.PeerMinSeq)))
	for tc, seq := range m.PeerMinSeq {
		w.WriteUUID(tc)
		w.WriteLong(seq)
	}
	return w.Bytes()
}

func DecodeResetConversationReq(payload []byte) (ResetConversationReq, error) {
	var m ResetConversationReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	if m.MinSeq, err = r.ReadLong(); err != nil {
		return m, err
	}
	if m.ResetMembers, err = r.ReadBool(); err != nil {
		return m, err
	}
	n, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	if n > 0 {
		m.PeerMinSeq = make(map[uuid.UUID]int64, n)
		for i := int32(0); i < n; i++ {
			tc, err := r.ReadUUID()
			if err != nil {
				return m, err
			}
			seq, err := r.ReadLong()
			if err != nil {
				return m, err
			}
			m.PeerMinSeq[tc] = seq
		}
	}
	return m, nil
}

// OnResetConversationResp acknowledges a ResetConversationReq.
type OnResetConversationResp struct {
	Header
	Code ErrorCode
}

func NewOnResetConversationResp(requestId int64, code ErrorCode) OnResetConversationResp {
	return OnResetConversationResp{Header: header(KindOnResetConversation, requestId), Code: code}
}

func (m OnResetConversationResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteInt32(int32(m.Code))
	return w.Bytes()
}

func DecodeOnResetConversationResp(payload []byte) (OnResetConversationResp, error) {
	var m OnResetConversationResp
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
