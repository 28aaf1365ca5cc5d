package iq

import (
	"context"
	"os"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
	"github.com/petervdpas/conversation-engine/internal/util"
)

// fileAttachmentOf extracts the shared FileAttachment from whichever
// file-bearing variant d holds (spec.md §4.2's File/Image/Audio/Video/
// NamedFile group), since Descriptor carries no common accessor for it.
func fileAttachmentOf(d descriptor.Descriptor) (*descriptor.FileAttachment, bool) {
	switch v := d.(type) {
	case *descriptor.File:
		return &v.FileAttachment, true
	case *descriptor.Image:
		return &v.FileAttachment, true
	case *descriptor.Audio:
		return &v.FileAttachment, true
	case *descriptor.Video:
		return &v.FileAttachment, true
	case *descriptor.NamedFile:
		return &v.FileAttachment, true
	default:
		return nil, false
	}
}

// pushFileOp backs PushFile (type 4): delivers a file-bearing
// descriptor's metadata, then streams its bytes as a burst of
// PushFileChunkReq messages bounded by DataWindowSize (spec.md §4.3).
// It spans several request/response round trips on the same link, so it
// carries mutable transfer state between Execute and successive
// HandleResponse calls.
type pushFileOp struct {
	row store.Operation

	path       string
	length     int64
	chunkStart int64 // durable high-water mark, mirrored to the operation row
	sentOffset int64 // in-memory high-water mark, lost on reconnect
}

func (o *pushFileOp) Row() store.Operation { return o.row }

func (o *pushFileOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return 0, Expired
	}
	if !d.Base().Type.IsFileBearing() {
		return 0, BadRequest
	}
	att, ok := fileAttachmentOf(d)
	if !ok {
		return 0, BadRequest
	}
	if conn.FilesDir() == "" {
		// No local files directory: this link cannot carry file
		// transfers, even though its name suggests only a version gate
		// (spec.md §9 open question resolution).
		_ = markFailed(deps, d)
		return 0, FeatureNotSupportedByPeer
	}
	if !PeerSupports(conn, KindPushFile) {
		_ = markFailed(deps, d)
		return 0, FeatureNotSupportedByPeer
	}
	o.path = util.ResolvePath(conn.FilesDir(), att.LocalPath)
	o.length = att.Length

	reqId := conn.NewRequestId()
	if o.row.ChunkStart == nil {
		msg := NewPushFileReq(reqId, d, nil)
		if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
			return 0, Transient
		}
		return reqId, Queued
	}

	// Resuming after a reconnect: don't trust our durable chunkStart
	// blindly, probe the peer's actual receive position first.
	o.chunkStart = *o.row.ChunkStart
	o.sentOffset = NotInitialized
	probe := NewPushFileChunkReq(reqId, *o.row.DescId, NotInitialized, nil)
	if err := conn.SendPacket(ctx, probe.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *pushFileOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	kind, _, ok := PeekKind(payload)
	if !ok {
		return true, BadRequest, 0
	}
	switch kind {
	case KindOnPushFile:
		resp, err := DecodeOnPushFileResp(payload)
		if err != nil {
			return true, BadRequest, 0
		}
		o.chunkStart = resp.NextChunkStart
		o.sentOffset = resp.NextChunkStart
		if err := deps.Store.UpdateOperationChunkStart(o.row.Id, o.chunkStart); err != nil {
			return true, DatabaseError, 0
		}
		return o.burst(ctx, conn)
	case KindOnPushFileChunk:
		resp, err := DecodeOnPushFileChunkResp(payload)
		if err != nil {
			return true, BadRequest, 0
		}
		o.chunkStart = resp.NextChunkStart
		if o.sentOffset == NotInitialized {
			// Reply to the resume probe: stream on from the peer's position.
			o.sentOffset = o.chunkStart
		}
		if err := deps.Store.UpdateOperationChunkStart(o.row.Id, o.chunkStart); err != nil {
			return true, DatabaseError, 0
		}
		if o.chunkStart >= o.length {
			return true, Success, 0
		}
		return o.burst(ctx, conn)
	default:
		return true, BadRequest, 0
	}
}

// burst sends as many PushFileChunkReq messages as the sliding window
// allows, returning the last request id sent so the caller can
// correlate the next ack to this operation (spec.md §4.3: "a burst of
// chunk IQs", not strict stop-and-wait per chunk).
func (o *pushFileOp) burst(ctx context.Context, conn transport.PeerConnection) (bool, ErrorCode, int64) {
	f, err := os.Open(o.path)
	if err != nil {
		return true, Fatal, 0
	}
	defer f.Close()

	chunkSize := ChunkSizeFor(conn.BestChunkSize())
	var lastReqId int64
	for IsReadyToSend(o.sentOffset, o.chunkStart, o.length) {
		n := int64(chunkSize)
		if remaining := o.length - o.sentOffset; remaining < n {
			n = remaining
		}
		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, o.sentOffset); err != nil {
			return true, Fatal, 0
		}
		descId, err := o.descId()
		if err != nil {
			return true, BadRequest, 0
		}
		reqId := conn.NewRequestId()
		msg := NewPushFileChunkReq(reqId, descId, o.sentOffset, buf)
		if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
			return true, Transient, 0
		}
		o.sentOffset += n
		lastReqId = reqId
	}
	if lastReqId == 0 {
		// Nothing left to send and nothing outstanding: the transfer
		// completed exactly on the last ack.
		return true, Success, 0
	}
	return false, Queued, lastReqId
}

func (o *pushFileOp) descId() (descriptor.Id, error) {
	if o.row.DescId == nil {
		return descriptor.Id{}, ErrWrongVariant
	}
	return *o.row.DescId, nil
}
