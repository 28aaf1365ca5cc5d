package iq

import (
	"context"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
)

// pushObjectOp backs operation type 2.
type pushObjectOp struct{ row store.Operation }

func (o *pushObjectOp) Row() store.Operation { return o.row }

func (o *pushObjectOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return 0, Expired
	}
	obj, ok := d.(*descriptor.Object)
	if !ok {
		return 0, BadRequest
	}
	if !PeerSupports(conn, KindPushObject) {
		_ = markFailed(deps, obj)
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewPushObjectReq(reqId, obj)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *pushObjectOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnPushObjectResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return true, Expired, 0
	}
	d.Base().SentTimestamp = resp.ReceivedTimestamp
	if _, err := deps.Store.InsertOrUpdateDescriptor(d); err != nil {
		return true, DatabaseError, 0
	}
	return true, Success, 0
}

// pushGeolocationOp backs operation type 11.
type pushGeolocationOp struct{ row store.Operation }

func (o *pushGeolocationOp) Row() store.Operation { return o.row }

func (o *pushGeolocationOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return 0, Expired
	}
	geo, ok := d.(*descriptor.Geolocation)
	if !ok {
		return 0, BadRequest
	}
	if !PeerSupports(conn, KindPushGeolocation) {
		_ = markFailed(deps, geo)
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewPushGeolocationReq(reqId, geo)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *pushGeolocationOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnPushGeolocationResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return true, Expired, 0
	}
	d.Base().SentTimestamp = resp.ReceivedTimestamp
	if _, err := deps.Store.InsertOrUpdateDescriptor(d); err != nil {
		return true, DatabaseError, 0
	}
	return true, Success, 0
}

// pushTwincodeOp backs operation type 12.
type pushTwincodeOp struct{ row store.Operation }

func (o *pushTwincodeOp) Row() store.Operation { return o.row }

func (o *pushTwincodeOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return 0, Expired
	}
	tc, ok := d.(*descriptor.Twincode)
	if !ok {
		return 0, BadRequest
	}
	if !PeerSupports(conn, KindPushTwincode) {
		_ = markFailed(deps, tc)
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewPushTwincodeReq(reqId, tc)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *pushTwincodeOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	resp, err := DecodeOnPushTwincodeResp(payload)
	if err != nil {
		return true, BadRequest, 0
	}
	d, err := loadDescriptor(deps, o.row)
	if err != nil {
		return true, Expired, 0
	}
	d.Base().SentTimestamp = resp.ReceivedTimestamp
	if _, err := deps.Store.InsertOrUpdateDescriptor(d); err != nil {
		return true, DatabaseError, 0
	}
	return true, Success, 0
}

// pushTransientOp backs operation type 3: fire-and-forget, no response
// correlation registered (spec.md §9 open question resolution).
type pushTransientOp struct {
	row     store.Operation
	content TransientContent
}

func (o *pushTransientOp) Row() store.Operation { return o.row }

func (o *pushTransientOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	reqId := conn.NewRequestId()
	msg := NewPushTransientObjectReq(reqId, o.content.Kind, o.content.Payload)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return 0, Success
}

func (o *pushTransientOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	return true, Success, 0
}

// pushCommandOp backs operation type 13: a transient sidecar, persisted
// only long enough to survive an enqueue-to-dispatch race.
type pushCommandOp struct {
	row     store.Operation
	content TransientContent
}

func (o *pushCommandOp) Row() store.Operation { return o.row }

func (o *pushCommandOp) Execute(ctx context.Context, conn transport.PeerConnection, deps ExecDeps) (int64, ErrorCode) {
	if !PeerSupports(conn, KindPushCommand) {
		return 0, FeatureNotSupportedByPeer
	}
	reqId := conn.NewRequestId()
	msg := NewPushCommandReq(reqId, o.content.Kind, o.content.Payload)
	if err := conn.SendPacket(ctx, msg.Encode()); err != nil {
		return 0, Transient
	}
	return reqId, Queued
}

func (o *pushCommandOp) HandleResponse(ctx context.Context, payload []byte, conn transport.PeerConnection, deps ExecDeps) (bool, ErrorCode, int64) {
	if _, err := DecodeOnPushCommandResp(payload); err != nil {
		return true, BadRequest, 0
	}
	return true, Success, 0
}
