package iq

import (
	"testing"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

func TestPushObjectRoundTrip(t *testing.T) {
	obj := &descriptor.Object{
		Envelope: descriptor.Envelope{
			Id:           descriptor.Id{TwincodeOutboundId: uuid.New(), SequenceId: 7},
			CreationDate: 1000,
		},
		Message: "hello there",
	}
	req := NewPushObjectReq(42, obj)
	decoded, err := DecodePushObjectReq(req.Encode())
	if err != nil {
		t.Fatalf("DecodePushObjectReq: %v", err)
	}
	if decoded.RequestId != 42 {
		t.Fatalf("RequestId = %d, want 42", decoded.RequestId)
	}
	if decoded.Descriptor.Message != "hello there" {
		t.Fatalf("Message = %q", decoded.Descriptor.Message)
	}
	if decoded.Descriptor.Id.SequenceId != 7 {
		t.Fatalf("SequenceId = %d", decoded.Descriptor.Id.SequenceId)
	}

	resp := NewOnPushObjectResp(42, 5000)
	decodedResp, err := DecodeOnPushObjectResp(resp.Encode())
	if err != nil {
		t.Fatalf("DecodeOnPushObjectResp: %v", err)
	}
	if decodedResp.ReceivedTimestamp != 5000 {
		t.Fatalf("ReceivedTimestamp = %d", decodedResp.ReceivedTimestamp)
	}
}

func TestPushFileReqRejectsNonFileVariant(t *testing.T) {
	obj := &descriptor.Object{Envelope: descriptor.Envelope{Id: descriptor.Id{TwincodeOutboundId: uuid.New()}}}
	w := NewPushFileReq(1, obj, nil)
	if _, err := DecodePushFileReq(w.Encode()); err != ErrWrongVariant {
		t.Fatalf("err = %v, want ErrWrongVariant", err)
	}
}

func TestPeekKindIdentifiesFamily(t *testing.T) {
	req := NewResetConversationReq(1, 100, nil, false)
	kind, reqId, ok := PeekKind(req.Encode())
	if !ok || kind != KindResetConversation || reqId != 1 {
		t.Fatalf("PeekKind = %v, %v, %v", kind, reqId, ok)
	}
}

func TestPeekKindRejectsUnknownSchema(t *testing.T) {
	garbage := []byte{0xff, 0x01, 0x02, 0x03}
	if _, _, ok := PeekKind(garbage); ok {
		t.Fatalf("PeekKind accepted garbage payload")
	}
}

func TestIsReadyToSendRespectsWindow(t *testing.T) {
	cases := []struct {
		name                          string
		sentOffset, chunkStart, length int64
		want                          bool
	}{
		{"fresh start", 0, 0, 1000, true},
		{"caught up to length", 1000, 1000, 1000, false},
		{"window full", DataWindowSize, 0, 10_000_000, false},
		{"window has room", DataWindowSize - 1, 0, 10_000_000, true},
		{"uninitialized offset", NotInitialized, 0, 1000, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsReadyToSend(c.sentOffset, c.chunkStart, c.length); got != c.want {
				t.Fatalf("IsReadyToSend(%d,%d,%d) = %v, want %v", c.sentOffset, c.chunkStart, c.length, got, c.want)
			}
		})
	}
}

func TestChunkSizeForClampsToCeiling(t *testing.T) {
	if got := ChunkSizeFor(1 << 20); got != MaxChunkBytes {
		t.Fatalf("ChunkSizeFor(huge) = %d, want %d", got, MaxChunkBytes)
	}
	if got := ChunkSizeFor(0); got != MaxChunkBytes {
		t.Fatalf("ChunkSizeFor(0) = %d, want %d", got, MaxChunkBytes)
	}
	if got := ChunkSizeFor(1024); got != 2048 {
		t.Fatalf("ChunkSizeFor(1024) = %d, want 2048", got)
	}
}

func TestResetContentRoundTrip(t *testing.T) {
	peer := uuid.New()
	c := ResetContent{MinSeq: 42, PeerMinSeq: map[uuid.UUID]int64{peer: 7}, ResetMembers: true}
	decoded, err := DecodeResetContent(EncodeResetContent(c))
	if err != nil {
		t.Fatalf("DecodeResetContent: %v", err)
	}
	if decoded.MinSeq != 42 || !decoded.ResetMembers || decoded.PeerMinSeq[peer] != 7 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestGroupMembershipContentRoundTrip(t *testing.T) {
	member := uuid.New()
	c := GroupMembershipContent{
		GroupId: 9, MemberId: member, Permissions: 0x3, Key: []byte{1, 2}, Secret: []byte{3, 4},
		SignedOff: true, Signature: []byte{5, 6, 7},
	}
	decoded, err := DecodeGroupMembershipContent(EncodeGroupMembershipContent(c))
	if err != nil {
		t.Fatalf("DecodeGroupMembershipContent: %v", err)
	}
	if decoded.GroupId != 9 || decoded.MemberId != member || decoded.Permissions != 0x3 || !decoded.SignedOff {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestVersionGating(t *testing.T) {
	if requiredVersion(KindPushObject) != MinVersionCore {
		t.Fatalf("PushObject should require MinVersionCore")
	}
	if requiredVersion(KindJoinGroup) != MinVersionGroupAndShare {
		t.Fatalf("JoinGroup should require MinVersionGroupAndShare")
	}
	if requiredVersion(KindUpdateAnnotations) != MinVersionAnnotations {
		t.Fatalf("UpdateAnnotations should require MinVersionAnnotations")
	}
	if requiredVersion(KindUpdateDescriptor) != MinVersionUpdateObject {
		t.Fatalf("UpdateDescriptor should require MinVersionUpdateObject")
	}
}

func TestErrorCodeTerminal(t *testing.T) {
	terminal := []ErrorCode{Success, Expired, BadRequest, FeatureNotSupportedByPeer, DatabaseError}
	for _, c := range terminal {
		if !c.Terminal() {
			t.Fatalf("%v should be terminal", c)
		}
	}
	retryable := []ErrorCode{Queued, Transient, Fatal}
	for _, c := range retryable {
		if c.Terminal() {
			t.Fatalf("%v should not be terminal", c)
		}
	}
}
