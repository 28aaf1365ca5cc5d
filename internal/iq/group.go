package iq

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// InviteGroupReq carries an Invitation descriptor inviting memberId into
// groupId (spec.md §4.3).
type InviteGroupReq struct {
	Header
	Descriptor *descriptor.Invitation
}

func NewInviteGroupReq(requestId int64, d *descriptor.Invitation) InviteGroupReq {
	return InviteGroupReq{Header: header(KindInviteGroup, requestId), Descriptor: d}
}

func (m InviteGroupReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	descriptor.Encode(w, m.Descriptor, descriptor.CurrentEnvelopeVersion)
	return w.Bytes()
}

func DecodeInviteGroupReq(payload []byte) (InviteGroupReq, error) {
	var m InviteGroupReq
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
	inv, ok := d.(*descriptor.Invitation)
	if !ok {
		return m, ErrWrongVariant
	}
	m.Descriptor = inv
	return m, nil
}

// RevokeInviteGroupReq withdraws a previously sent invitation.
type RevokeInviteGroupReq struct {
	Header
	InvitationId descriptor.Id
}

func NewRevokeInviteGroupReq(requestId int64, invitationId descriptor.Id) RevokeInviteGroupReq {
	return RevokeInviteGroupReq{Header: header(KindRevokeInviteGroup, requestId), InvitationId: invitationId}
}

func (m RevokeInviteGroupReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteUUID(m.InvitationId.TwincodeOutboundId)
	w.WriteLong(m.InvitationId.SequenceId)
	return w.Bytes()
}

func DecodeRevokeInviteGroupReq(payload []byte) (RevokeInviteGroupReq, error) {
	var m RevokeInviteGroupReq
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
	m.InvitationId = descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
	return m, nil
}

// JoinGroupReq asks to join groupId as memberId with permissions,
// optionally carrying a group key/secret (spec.md §4.4 op 8).
type JoinGroupReq struct {
	Header
	GroupId     descriptor.DatabaseId
	MemberId    uuid.UUID
	Permissions uint32
	Key         []byte
	Secret      []byte
}

func NewJoinGroupReq(requestId int64, groupId descriptor.DatabaseId, memberId uuid.UUID, permissions uint32, key, secret []byte) JoinGroupReq {
	return JoinGroupReq{Header: header(KindJoinGroup, requestId), GroupId: groupId, MemberId: memberId, Permissions: permissions, Key: key, Secret: secret}
}

func (m JoinGroupReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(int64(m.GroupId))
	w.WriteUUID(m.MemberId)
	w.WriteInt32(int32(m.Permissions))
	w.WriteBytes(m.Key)
	w.WriteBytes(m.Secret)
	return w.Bytes()
}

func DecodeJoinGroupReq(payload []byte) (JoinGroupReq, error) {
	var m JoinGroupReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	gid, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.GroupId = descriptor.DatabaseId(gid)
	if m.MemberId, err = r.ReadUUID(); err != nil {
		return m, err
	}
	perm, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.Permissions = uint32(perm)
	if m.Key, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.Secret, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// LeaveGroupReq leaves groupId as memberId.
type LeaveGroupReq struct {
	Header
	GroupId  descriptor.DatabaseId
	MemberId uuid.UUID
}

func NewLeaveGroupReq(requestId int64, groupId descriptor.DatabaseId, memberId uuid.UUID) LeaveGroupReq {
	return LeaveGroupReq{Header: header(KindLeaveGroup, requestId), GroupId: groupId, MemberId: memberId}
}

func (m LeaveGroupReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(int64(m.GroupId))
	w.WriteUUID(m.MemberId)
	return w.Bytes()
}

func DecodeLeaveGroupReq(payload []byte) (LeaveGroupReq, error) {
	var m LeaveGroupReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	gid, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.GroupId = descriptor.DatabaseId(gid)
	if m.MemberId, err = r.ReadUUID(); err != nil {
		return m, err
	}
	return m, nil
}

// UpdateGroupMemberReq pushes a permissions change for memberId in
// groupId, optionally signed off (spec.md §4.4 op 10).
type UpdateGroupMemberReq struct {
	Header
	GroupId     descriptor.DatabaseId
	MemberId    uuid.UUID
	Permissions uint32
	SignedOff   bool
	Signature   []byte
}

func NewUpdateGroupMemberReq(requestId int64, groupId descriptor.DatabaseId, memberId uuid.UUID, permissions uint32, signedOff bool, signature []byte) UpdateGroupMemberReq {
	return UpdateGroupMemberReq{
		Header: header(KindUpdateGroupMember, requestId), GroupId: groupId, MemberId: memberId,
		Permissions: permissions, SignedOff: signedOff, Signature: signature,
	}
}

func (m UpdateGroupMemberReq) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteLong(int64(m.GroupId))
	w.WriteUUID(m.MemberId)
	w.WriteInt32(int32(m.Permissions))
	w.WriteBool(m.SignedOff)
	w.WriteBytes(m.Signature)
	return w.Bytes()
}

func DecodeUpdateGroupMemberReq(payload []byte) (UpdateGroupMemberReq, error) {
	var m UpdateGroupMemberReq
	r := codec.NewReader(codec.Wire, payload)
	h, err := readHeader(r)
	if err != nil {
		return m, err
	}
	m.Header = h
	gid, err := r.ReadLong()
	if err != nil {
		return m, err
	}
	m.GroupId = descriptor.DatabaseId(gid)
	if m.MemberId, err = r.ReadUUID(); err != nil {
		return m, err
	}
	perm, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.Permissions = uint32(perm)
	if m.SignedOff, err = r.ReadBool(); err != nil {
		return m, err
	}
	if m.Signature, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// OnResultGroupResp is the generic group-operation acknowledgement used
// by Invite/Revoke/Leave/UpdateGroupMember (spec.md §4.3).
type OnResultGroupResp struct {
	Header
	Code ErrorCode
}

func NewOnResultGroupResp(k Kind, requestId int64, code ErrorCode) OnResultGroupResp {
	return OnResultGroupResp{Header: header(KindOnResultGroup, requestId), Code: code}
}

func (m OnResultGroupResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteInt32(int32(m.Code))
	return w.Bytes()
}

func DecodeOnResultGroupResp(payload []byte) (OnResultGroupResp, error) {
	var m OnResultGroupResp
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

// GroupMemberInfo is one roster entry in an OnResultJoinResp.
type GroupMemberInfo struct {
	MemberId    uuid.UUID
	Permissions uint32
}

// OnResultJoinResp carries the resolved member roster with permissions
// in response to JoinGroupReq (spec.md §4.3).
type OnResultJoinResp struct {
	Header
	Code    ErrorCode
	Members []GroupMemberInfo
}

func NewOnResultJoinResp(requestId int64, code ErrorCode, members []GroupMemberInfo) OnResultJoinResp {
	return OnResultJoinResp{Header: header(KindOnResultJoin, requestId), Code: code, Members: members}
}

func (m OnResultJoinResp) Encode() []byte {
	w := codec.NewWriter(codec.Wire)
	writeHeader(w, m.Header)
	w.WriteInt32(int32(m.Code))
	w.WriteInt32(int32(len(m.Members)))
	for _, mem := range m.Members {
		w.WriteUUID(mem.MemberId)
		w.WriteInt32(int32(mem.Permissions))
	}
	return w.Bytes()
}

func DecodeOnResultJoinResp(payload []byte) (OnResultJoinResp, error) {
	var m OnResultJoinResp
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
	n, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.Members = make([]GroupMemberInfo, 0, n)
	for i := int32(0); i < n; i++ {
		id, err := r.ReadUUID()
		if err != nil {
			return m, err
		}
		perm, err := r.ReadInt32()
		if err != nil {
			return m, err
		}
		m.Members = append(m.Members, GroupMemberInfo{MemberId: id, Permissions: uint32(perm)})
	}
	return m, nil
}
