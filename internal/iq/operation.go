package iq

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/events"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
)

// ExecDeps are the dependencies an Operation needs to execute against a
// live connection: persistence access, our own identity, and a clock.
// The same struct also backs HandleInbound, which additionally publishes
// to Bus for descriptor/group events arriving from the peer's side.
type ExecDeps struct {
	Store       *store.Store
	OurTwincode uuid.UUID
	Now         func() int64
	Bus         *events.Bus
}

// Operation is the contract every pending-action type implements (spec.md
// §4.4): serialize for persistence, execute against an open connection,
// and handle the correlated response when it arrives.
type Operation interface {
	// Row returns the persisted operation row this Operation wraps.
	Row() store.Operation
	// Execute sends the operation's initial packet(s) on conn and
	// reports the requestId to correlate the response by (0 if none is
	// expected) and the resulting status.
	Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (requestId int64, code ErrorCode)
	// HandleResponse processes a packet correlated to this operation by
	// requestId. done reports whether the operation has nothing left to
	// do (the caller should delete its row); code is the outcome. A
	// nonzero nextRequestId asks the caller to re-correlate this same
	// Operation to a new outstanding request (used by multi-round
	// transfers like pushFileOp's chunk burst).
	HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (done bool, code ErrorCode, nextRequestId int64)
}

// Build constructs the typed Operation for a persisted row, decoding its
// content blob. It does not touch the store: operations whose type uses a
// descriptor (spec.md §4.4 "(uses descriptor)" column entries) load it
// themselves in Execute/HandleResponse.
func Build(row store.Operation) (Operation, error) {
	switch row.Type {
	case store.OpResetConversation:
		content, err := DecodeResetContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &resetOp{row: row, content: content}, nil
	case store.OpSynchronizeConversation:
		return &noopOp{row: row}, nil
	case store.OpPushObject:
		return &pushObjectOp{row: row}, nil
	case store.OpPushTransientObject:
		content, err := DecodeTransientContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &pushTransientOp{row: row, content: content}, nil
	case store.OpPushFile:
		return &pushFileOp{row: row}, nil
	case store.OpUpdateDescriptorTimestamp:
		content, err := DecodeTimestampContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &updateTimestampOp{row: row, content: content}, nil
	case store.OpInviteGroup:
		return &inviteGroupOp{row: row}, nil
	case store.OpWithdrawInviteGroup:
		return &revokeInviteGroupOp{row: row}, nil
	case store.OpJoinGroup:
		content, err := DecodeGroupMembershipContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &joinGroupOp{row: row, content: content}, nil
	case store.OpLeaveGroup:
		content, err := DecodeGroupMembershipContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &leaveGroupOp{row: row, content: content}, nil
	case store.OpUpdateGroupMember:
		content, err := DecodeGroupMembershipContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &updateGroupMemberOp{row: row, content: content}, nil
	case store.OpPushGeolocation:
		return &pushGeolocationOp{row: row}, nil
	case store.OpPushTwincode:
		return &pushTwincodeOp{row: row}, nil
	case store.OpPushCommand:
		content, err := DecodeTransientContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &pushCommandOp{row: row, content: content}, nil
	case store.OpUpdateAnnotations:
		content, err := DecodeAnnotationContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &updateAnnotationsOp{row: row, content: content}, nil
	case store.OpInvokeJoinGroup, store.OpInvokeLeaveGroup, store.OpInvokeAddMemberGroup:
		return &serverBrokeredOp{row: row}, nil
	case store.OpUpdateObject:
		content, err := DecodeUpdateObjectContent(row.Content)
		if err != nil {
			return nil, err
		}
		return &updateObjectOp{row: row, content: content}, nil
	default:
		return nil, fmt.Errorf("iq: unknown operation type %d", row.Type)
	}
}

func loadDescriptor(deps ExecDeps, row store.Operation) (descriptor.Descriptor, error) {
	if row.DescId == nil {
		return nil, fmt.Errorf("iq: operation %d has no descriptor", row.Id)
	}
	return deps.Store.LoadDescriptor(row.ConvDbId, row.DescId.TwincodeOutboundId, row.DescId.SequenceId)
}

// markFailed records "will not deliver" on a descriptor (send=read=
// receive=-1), per spec.md §7's FeatureNotSupportedByPeer and Expired
// handling.
func markFailed(deps ExecDeps, d descriptor.Descriptor) error {
	base := d.Base()
	base.SentTimestamp = descriptor.TimestampFailed
	base.ReceivedTimestamp = descriptor.TimestampFailed
	base.ReadTimestamp = descriptor.TimestampFailed
	_, err := deps.Store.InsertOrUpdateDescriptor(d)
	return err
}

// noopOp backs SynchronizeConversation (type 1): triggered on reconnect
// and handled server-side; this engine has nothing to send (spec.md
// §4.4).
type noopOp struct{ row store.Operation }

func (o *noopOp) Row() store.Operation { return o.row }
func (o *noopOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	return 0, Success
}
func (o *noopOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	return true, Success, 0
}

// serverBrokeredOp backs Invoke{Join,Leave,AddMember}Group (types 15-17):
// these are executed via a server invocation, not a direct P2P IQ (spec.md
// §4.4), so there is nothing for this engine's connection layer to send.
type serverBrokeredOp struct{ row store.Operation }

func (o *serverBrokeredOp) Row() store.Operation { return o.row }
func (o *serverBrokeredOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	return 0, Success
}
func (o *serverBrokeredOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	return true, Success, 0
}
