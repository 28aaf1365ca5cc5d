package iq

import (
	"context"
	"fmt"
	"os"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/events"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
	"github.com/petervdpas/conversation-engine/internal/util"
)

// HandleInbound processes one packet arriving on conv's link that is
// NOT a correlated response to an operation this engine has in flight:
// a fresh request from the peer (spec.md §4.3's receiver side of the
// protocol table, which op_push.go/op_group.go/op_file.go only model
// from the sender's side). It applies the request's effect through deps
// and returns the packet to send back, or nil for families that expect
// no reply (PushTransientObject). ResetConversationReq is handled by
// HandleInboundWithResult instead, since applying it also needs to
// report deleted operation ids back to the scheduler.
func HandleInbound(ctx context.Context, conv descriptor.DatabaseId, payload []byte, conn transport.PeerConnection, deps ExecDeps) ([]byte, error) {
	kind, reqId, ok := PeekKind(payload)
	if !ok {
		return nil, ErrUnknownPacket
	}

	switch kind {
	case KindPushObject:
		return handlePushObject(conv, reqId, payload, deps)
	case KindPushGeolocation:
		return handlePushGeolocation(conv, reqId, payload, deps)
	case KindPushTwincode:
		return handlePushTwincode(conv, reqId, payload, deps)
	case KindPushCommand:
		return handlePushCommand(reqId, payload, deps)
	case KindPushTransientObject:
		return handlePushTransient(conv, payload, deps)
	case KindPushFile:
		return handlePushFile(conv, reqId, payload, conn, deps)
	case KindPushFileChunk:
		return handlePushFileChunk(conv, reqId, payload, conn, deps)
	case KindPushThumbnail:
		return handlePushThumbnail(conv, reqId, payload, conn, deps)
	case KindInviteGroup:
		return handleInviteGroup(conv, reqId, payload, deps)
	case KindRevokeInviteGroup:
		return handleRevokeInviteGroup(conv, reqId, payload, deps)
	case KindJoinGroup:
		return handleJoinGroup(reqId, payload, deps)
	case KindLeaveGroup:
		return handleLeaveGroup(reqId, payload, deps)
	case KindUpdateGroupMember:
		return handleUpdateGroupMember(reqId, payload, deps)
	case KindUpdateDescriptorTimestamp:
		return handleUpdateDescriptorTimestamp(conv, reqId, payload, deps)
	case KindUpdateDescriptor:
		return handleUpdateDescriptor(conv, payload, deps)
	case KindUpdateAnnotations:
		return handleUpdateAnnotations(conv, reqId, payload, deps)
	default:
		// A correlated response with no matching in-flight operation
		// (already handled and evicted, or the connection flipped
		// under us): drop it, per spec.md §9's "don't crash" rule.
		return nil, nil
	}
}

// clampReceived applies spec.md §4.2's receiver-side clamp: creationDate
// and sentTimestamp keep the peer's wire value but never exceed now, and
// receivedTimestamp is stamped with our own clock.
func clampReceived(base *descriptor.Envelope, conv descriptor.DatabaseId, now int64) {
	base.ConversationDbId = conv
	if base.CreationDate > now {
		base.CreationDate = now
	}
	if base.SentTimestamp > now {
		base.SentTimestamp = now
	}
	base.ReceivedTimestamp = now
}

func publishReceived(deps ExecDeps, conv descriptor.DatabaseId, d descriptor.Descriptor) {
	if deps.Bus == nil {
		return
	}
	deps.Bus.Publish(events.Event{
		Type: events.DescriptorReceived, Conv: conv, Descriptor: d, DescId: d.Base().Id, PeerInitiated: true,
	})
}

func handlePushObject(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodePushObjectReq(payload)
	if err != nil {
		return nil, err
	}
	now := deps.Now()
	clampReceived(req.Descriptor.Base(), conv, now)
	if _, err := deps.Store.InsertOrUpdateDescriptor(req.Descriptor); err != nil {
		return nil, err
	}
	publishReceived(deps, conv, req.Descriptor)
	return NewOnPushObjectResp(reqId, now).Encode(), nil
}

func handlePushGeolocation(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodePushGeolocationReq(payload)
	if err != nil {
		return nil, err
	}
	now := deps.Now()
	clampReceived(req.Descriptor.Base(), conv, now)
	if _, err := deps.Store.InsertOrUpdateDescriptor(req.Descriptor); err != nil {
		return nil, err
	}
	publishReceived(deps, conv, req.Descriptor)
	return NewOnPushGeolocationResp(reqId, now).Encode(), nil
}

func handlePushTwincode(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodePushTwincodeReq(payload)
	if err != nil {
		return nil, err
	}
	now := deps.Now()
	clampReceived(req.Descriptor.Base(), conv, now)
	if _, err := deps.Store.InsertOrUpdateDescriptor(req.Descriptor); err != nil {
		return nil, err
	}
	publishReceived(deps, conv, req.Descriptor)
	return NewOnPushTwincodeResp(reqId, now).Encode(), nil
}

// handlePushCommand acknowledges a realtime command sidecar; commands
// are never persisted as descriptors (spec.md §4.3).
func handlePushCommand(reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	if _, err := DecodePushCommandReq(payload); err != nil {
		return nil, err
	}
	return NewOnPushCommandResp(reqId).Encode(), nil
}

// handlePushTransient decodes a fire-and-forget signal (typing, etc.)
// and sends no reply at all, matching the sender side's expectations
// (spec.md §9's resolution for this request family). The decoded
// payload is handed to the host application through some side channel
// outside this engine's scope; nothing here is durable.
func handlePushTransient(conv descriptor.DatabaseId, payload []byte, deps ExecDeps) ([]byte, error) {
	if _, err := DecodePushTransientObjectReq(payload); err != nil {
		return nil, err
	}
	return nil, nil
}

// receivedFileName is the relative local name this engine assigns an
// incoming file-bearing descriptor's bytes, stored back into the
// descriptor's FileAttachment.LocalPath so later loads resolve through
// the same util.ResolvePath convention op_file.go's sender side uses.
func receivedFileName(descId descriptor.Id) string {
	return fmt.Sprintf("%s-%d.part", descId.TwincodeOutboundId.String(), descId.SequenceId)
}

// fileTransferPath resolves the on-disk path backing a file-bearing
// descriptor's chunk stream, rooted under conn's files directory (spec.md
// §9's FeatureNotSupportedByPeer open question: callers must check
// FilesDir() before reaching here).
func fileTransferPath(conn transport.PeerConnection, descId descriptor.Id) (string, error) {
	if conn.FilesDir() == "" {
		return "", fmt.Errorf("iq: no files directory configured for this link")
	}
	return util.ResolvePath(conn.FilesDir(), receivedFileName(descId)), nil
}

func currentSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// handlePushFile registers the incoming file-bearing descriptor and
// reports how many bytes we already hold, seeding the sender's first
// chunk (spec.md §4.3).
func handlePushFile(conv descriptor.DatabaseId, reqId int64, payload []byte, conn transport.PeerConnection, deps ExecDeps) ([]byte, error) {
	req, err := DecodePushFileReq(payload)
	if err != nil {
		return nil, err
	}
	now := deps.Now()
	clampReceived(req.Descriptor.Base(), conv, now)
	if att, ok := fileAttachmentOf(req.Descriptor); ok {
		att.LocalPath = receivedFileName(req.Descriptor.Base().Id)
	}
	if _, err := deps.Store.InsertOrUpdateDescriptor(req.Descriptor); err != nil {
		return nil, err
	}
	publishReceived(deps, conv, req.Descriptor)

	path, err := fileTransferPath(conn, req.Descriptor.Base().Id)
	if err != nil {
		return NewOnPushFileResp(reqId, NotInitialized).Encode(), nil
	}
	return NewOnPushFileResp(reqId, currentSize(path)).Encode(), nil
}

// handlePushFileChunk writes one window of file bytes at their absolute
// offset, or, for the zero-length "probe" IQ sent after (re)connect,
// just reports the current on-disk size without writing (spec.md §4.3).
func handlePushFileChunk(conv descriptor.DatabaseId, reqId int64, payload []byte, conn transport.PeerConnection, deps ExecDeps) ([]byte, error) {
	req, err := DecodePushFileChunkReq(payload)
	if err != nil {
		return nil, err
	}
	path, err := fileTransferPath(conn, req.DescId)
	if err != nil {
		return NewOnPushFileChunkResp(reqId, NotInitialized).Encode(), nil
	}

	if req.ChunkStart == NotInitialized || len(req.Data) == 0 {
		return NewOnPushFileChunkResp(reqId, currentSize(path)).Encode(), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	_, werr := f.WriteAt(req.Data, req.ChunkStart)
	cerr := f.Close()
	if werr != nil {
		return nil, werr
	}
	if cerr != nil {
		return nil, cerr
	}
	return NewOnPushFileChunkResp(reqId, req.ChunkStart+int64(len(req.Data))).Encode(), nil
}

// handlePushThumbnail appends one chunk of an oversized thumbnail to its
// own sidecar file alongside the main transfer (spec.md §4.3).
func handlePushThumbnail(conv descriptor.DatabaseId, reqId int64, payload []byte, conn transport.PeerConnection, deps ExecDeps) ([]byte, error) {
	req, err := DecodePushThumbnailReq(payload)
	if err != nil {
		return nil, err
	}
	path, err := fileTransferPath(conn, req.DescId)
	if err != nil {
		return NewOnPushThumbnailResp(reqId, NotInitialized).Encode(), nil
	}
	path += ".thumb"

	f, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		return nil, ferr
	}
	_, werr := f.WriteAt(req.Data, req.Offset)
	cerr := f.Close()
	if werr != nil {
		return nil, werr
	}
	if cerr != nil {
		return nil, cerr
	}
	return NewOnPushThumbnailResp(reqId, req.Offset+int64(len(req.Data))).Encode(), nil
}

// ResetResult reports a ResetConversationReq's side effect for the
// scheduler, which owns operation eviction; HandleInboundWithResult
// returns it alongside the reply packet whenever the inbound request
// was a reset.
type ResetResult struct {
	DeletedOperationIds []int64
}

// HandleInboundWithResult is the scheduler's single entry point into
// this package: it delegates every kind but ResetConversationReq to
// HandleInbound, and for a reset additionally deletes every descriptor
// at or below the requested cutoffs (spec.md §4.4 type 0, §8 scenario
// 3) and reports which operations referenced a deleted descriptor, so
// the scheduler can evict them from its in-memory queues — something
// the iq package has no handle on itself.
func HandleInboundWithResult(ctx context.Context, conv descriptor.DatabaseId, payload []byte, conn transport.PeerConnection, deps ExecDeps) ([]byte, *ResetResult, error) {
	kind, reqId, ok := PeekKind(payload)
	if !ok || kind != KindResetConversation {
		resp, err := HandleInbound(ctx, conv, payload, conn, deps)
		return resp, nil, err
	}

	req, err := DecodeResetConversationReq(payload)
	if err != nil {
		return nil, nil, err
	}
	cutoffs := []store.MemberCutoff{{Twincode: deps.OurTwincode, MaxSeqId: req.MinSeq}}
	for tc, seq := range req.PeerMinSeq {
		cutoffs = append(cutoffs, store.MemberCutoff{Twincode: tc, MaxSeqId: seq})
	}
	deletedOps, err := deps.Store.DeleteDescriptors(conv, cutoffs, false)
	if err != nil {
		return nil, nil, err
	}
	if deps.Bus != nil {
		deps.Bus.Publish(events.Event{Type: events.DescriptorDeleted, Conv: conv, PeerInitiated: true})
	}
	return NewOnResetConversationResp(reqId, Success).Encode(), &ResetResult{DeletedOperationIds: deletedOps}, nil
}

// handleInviteGroup persists an incoming Invitation descriptor and links
// it to the named group (spec.md §4.1, §4.3).
func handleInviteGroup(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodeInviteGroupReq(payload)
	if err != nil {
		return nil, err
	}
	now := deps.Now()
	clampReceived(req.Descriptor.Base(), conv, now)
	if _, err := deps.Store.InsertOrUpdateDescriptor(req.Descriptor); err != nil {
		return nil, err
	}
	if err := deps.Store.CreateInvitationRow(store.InvitationRow{
		DescId:        req.Descriptor.Base().Id,
		DescConv:      conv,
		GroupDbId:     conv,
		InviterMember: req.Descriptor.InviterTcId,
	}); err != nil {
		return nil, err
	}
	if deps.Bus != nil {
		deps.Bus.Publish(events.Event{
			Type: events.GroupInvited, Conv: conv, Invitation: req.Descriptor, DescId: req.Descriptor.Base().Id, PeerInitiated: true,
		})
	}
	return NewOnResultGroupResp(KindOnResultGroup, reqId, Success).Encode(), nil
}

// handleRevokeInviteGroup marks the referenced invitation withdrawn.
func handleRevokeInviteGroup(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodeRevokeInviteGroupReq(payload)
	if err != nil {
		return nil, err
	}
	d, err := deps.Store.LoadDescriptor(conv, req.InvitationId.TwincodeOutboundId, req.InvitationId.SequenceId)
	if err == nil {
		if inv, ok := d.(*descriptor.Invitation); ok {
			inv.Status = descriptor.InvitationWithdrawn
			_, _ = deps.Store.InsertOrUpdateDescriptor(inv)
		}
	}
	return NewOnResultGroupResp(KindOnResultGroup, reqId, Success).Encode(), nil
}

// handleJoinGroup acknowledges a join request. The full member roster
// merge lives in the backend-brokered invite/accept flow (spec.md §4.1
// Open Question); here we only acknowledge so the requester's operation
// completes, without fabricating a roster we cannot yet reconstruct.
func handleJoinGroup(reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	if _, err := DecodeJoinGroupReq(payload); err != nil {
		return nil, err
	}
	return NewOnResultJoinResp(reqId, Success, nil).Encode(), nil
}

func handleLeaveGroup(reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	if _, err := DecodeLeaveGroupReq(payload); err != nil {
		return nil, err
	}
	return NewOnResultGroupResp(KindOnResultGroup, reqId, Success).Encode(), nil
}

func handleUpdateGroupMember(reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	if _, err := DecodeUpdateGroupMemberReq(payload); err != nil {
		return nil, err
	}
	return NewOnResultGroupResp(KindOnResultGroup, reqId, Success).Encode(), nil
}

// handleUpdateDescriptorTimestamp applies a peer-pushed READ/DELETE/
// PEER_DELETE mark to our own copy of the referenced descriptor, when we
// still have it (spec.md §4.3).
func handleUpdateDescriptorTimestamp(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodeUpdateDescriptorTimestampReq(payload)
	if err != nil {
		return nil, err
	}
	d, err := deps.Store.LoadDescriptor(conv, req.DescId.TwincodeOutboundId, req.DescId.SequenceId)
	if err != nil {
		return NewOnUpdateDescriptorTimestampResp(reqId, Expired).Encode(), nil
	}
	base := d.Base()
	switch req.Kind {
	case TimestampKindRead:
		base.ReadTimestamp = req.Timestamp
	case TimestampKindDelete:
		base.DeletedTimestamp = req.Timestamp
	case TimestampKindPeerDelete:
		base.PeerDeletedTimestamp = req.Timestamp
	}
	if _, err := deps.Store.InsertOrUpdateDescriptor(d); err != nil {
		return nil, err
	}
	if deps.Bus != nil {
		deps.Bus.Publish(events.Event{Type: events.DescriptorUpdated, Conv: conv, DescId: req.DescId, PeerInitiated: true})
	}
	return NewOnUpdateDescriptorTimestampResp(reqId, Success).Encode(), nil
}

// handleUpdateDescriptor applies a content/flag/expire edit pushed by
// the peer. Per spec.md §4.3's protocol table this family has no
// dedicated response schema: it is acknowledged implicitly by the next
// IQ exchanged on the link, so this returns no reply packet.
func handleUpdateDescriptor(conv descriptor.DatabaseId, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodeUpdateDescriptorReq(payload)
	if err != nil {
		return nil, err
	}
	d, err := deps.Store.LoadDescriptor(conv, req.DescId.TwincodeOutboundId, req.DescId.SequenceId)
	if err != nil {
		return nil, nil
	}
	base := d.Base()
	if req.UpdateFlags&UpdateFlagMessage != 0 {
		if obj, ok := d.(*descriptor.Object); ok {
			obj.Message = req.NewMessage
			base.Flags |= descriptor.FlagUpdated
		}
	}
	if req.UpdateFlags&UpdateFlagCopyAllowed != 0 {
		if req.CopyAllowed {
			base.Flags |= descriptor.FlagCopyAllowed
		} else {
			base.Flags &^= descriptor.FlagCopyAllowed
		}
	}
	if req.UpdateFlags&UpdateFlagExpiration != 0 {
		base.ExpireTimeout = req.ExpireTimeout
	}
	if _, err := deps.Store.InsertOrUpdateDescriptor(d); err != nil {
		return nil, err
	}
	if deps.Bus != nil {
		deps.Bus.Publish(events.Event{Type: events.DescriptorUpdated, Conv: conv, DescId: req.DescId, PeerInitiated: true})
	}
	return nil, nil
}

// handleUpdateAnnotations applies a peer's annotation add/remove to our
// own copy of the referenced descriptor (spec.md §4.4 type 14).
func handleUpdateAnnotations(conv descriptor.DatabaseId, reqId int64, payload []byte, deps ExecDeps) ([]byte, error) {
	req, err := DecodeUpdateAnnotationsReq(payload)
	if err != nil {
		return nil, err
	}
	peer := deps.OurTwincode
	if req.Remove {
		if err := deps.Store.RemoveAnnotation(conv, req.DescId, &peer, req.Kind); err != nil {
			return nil, err
		}
	} else {
		a := descriptor.Annotation{
			ConversationDbId:       conv,
			PeerTwincodeOutboundId: &peer,
			Kind:                   req.Kind,
			Value:                  req.Value,
			CreationDate:           deps.Now(),
		}
		if err := deps.Store.UpsertAnnotation(conv, req.DescId, a); err != nil {
			return nil, err
		}
	}
	return NewOnUpdateAnnotationsResp(reqId, Success).Encode(), nil
}
