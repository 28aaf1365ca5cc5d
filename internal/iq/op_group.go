package iq

import (
	"context"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
)

// resetOp backs ResetConversation (type 0): tells the peer to discard
// everything at or below minSeq.
type resetOp struct {
	row     store.Operation
	content ResetContent
}

func (o *resetOp) Row() store.Operation { return o.row }

func (o *resetOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindResetConversation) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewResetConversationReq(reqId, o.content.MinSeq, o.content.PeerMinSeq, o.content.ResetMembers)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *resetOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnResetConversationResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// updateTimestampOp backs UpdateDescriptorTimestamp (type 5): pushes a
// READ, DELETE, or PEER_DELETE mark for a descriptor that may no longer
// be present locally (the content carries everything needed; no local
// descriptor lookup is required).
type updateTimestampOp struct {
	row     store.Operation
	content TimestampContent
}

func (o *updateTimestampOp) Row() store.Operation { return o.row }

func (o *updateTimestampOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindUpdateDescriptorTimestamp) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewUpdateDescriptorTimestampReq(reqId, o.content.Kind, o.content.DescId, o.content.Timestamp)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *updateTimestampOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnUpdateDescriptorTimestampResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// inviteGroupOp backs InviteGroup (type 6): sends the Invitation
// descriptor itself.
type inviteGroupOp struct{ row store.Operation }

func (o *inviteGroupOp) Row() store.Operation { return o.row }

func (o *inviteGroupOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return 0, Expired
	}
	inv, ok := d.(*descriptor.Invitation)
	if !ok {
		return 0, BadRequest
	}
	if !PeerSupports(conn, KindInviteGroup) {
		_ = markFailed(deps, inv)
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewInviteGroupReq(reqId, inv)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *inviteGroupOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnResultGroupResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// revokeInviteGroupOp backs WithdrawInviteGroup (type 7): withdraws a
// previously sent invitation by its descriptor id.
type revokeInviteGroupOp struct{ row store.Operation }

func (o *revokeInviteGroupOp) Row() store.Operation { return o.row }

func (o *revokeInviteGroupOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if o.row.DescId == nil {
		return 0, BadRequest
	}
	if !PeerSupports(conn, KindRevokeInviteGroup) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewRevokeInviteGroupReq(reqId, *o.row.DescId)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *revokeInviteGroupOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnResultGroupResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// joinGroupOp backs JoinGroup (type 8): no descriptor is involved, the
// membership request lives entirely in the persisted content.
type joinGroupOp struct {
	row     store.Operation
	content GroupMembershipContent
}

func (o *joinGroupOp) Row() store.Operation { return o.row }

func (o *joinGroupOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindJoinGroup) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewJoinGroupReq(reqId, o.content.GroupId, o.content.MemberId, o.content.Permissions, o.content.Key, o.content.Secret)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *joinGroupOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnResultJoinResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// leaveGroupOp backs LeaveGroup (type 9).
type leaveGroupOp struct {
	row     store.Operation
	content GroupMembershipContent
}

func (o *leaveGroupOp) Row() store.Operation { return o.row }

func (o *leaveGroupOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindLeaveGroup) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewLeaveGroupReq(reqId, o.content.GroupId, o.content.MemberId)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *leaveGroupOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnResultGroupResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// updateGroupMemberOp backs UpdateGroupMember (type 10).
type updateGroupMemberOp struct {
	row     store.Operation
	content GroupMembershipContent
}

func (o *updateGroupMemberOp) Row() store.Operation { return o.row }

func (o *updateGroupMemberOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindUpdateGroupMember) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewUpdateGroupMemberReq(reqId, o.content.GroupId, o.content.MemberId, o.content.Permissions, o.content.SignedOff, o.content.Signature)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *updateGroupMemberOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnResultGroupResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// updateAnnotationsOp backs UpdateAnnotations (type 14): pushes one
// annotation add/remove for a descriptor that must still exist locally
// on our side, but not necessarily on the peer's.
type updateAnnotationsOp struct {
	row     store.Operation
	content AnnotationContent
}

func (o *updateAnnotationsOp) Row() store.Operation { return o.row }

func (o *updateAnnotationsOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindUpdateAnnotations) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewUpdateAnnotationsReq(reqId, o.content.DescId, o.content.Kind, o.content.Value, o.content.Remove)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *updateAnnotationsOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnUpdateAnnotationsResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	return true, resp.Code, 0
}

// updateObjectOp backs UpdateObject (type 18): edits an already-sent
// text message in place (spec.md §4.4's newest operation type, gated on
// MinVersionUpdateObject).
type updateObjectOp struct {
	row     store.Operation
	content UpdateObjectContent
}

func (o *updateObjectOp) Row() store.Operation { return o.row }

func (o *updateObjectOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if o.row.DescId == nil {
		return 0, BadRequest
	}
	if !PeerSupports(conn, KindUpdateDescriptor) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewUpdateDescriptorReq(reqId, *o.row.DescId, o.content.UpdateFlags, o.content.NewMessage, o.content.CopyAllowed, o.content.ExpireTimeout)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	// Acknowledged implicitly via the next IQ on this link (spec.md §4.3's
	// protocol table), so there is nothing to correlate a response to.
	return 0, Success
}

func (o *updateObjectOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	return true, Success, 0
}
