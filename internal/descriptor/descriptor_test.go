package descriptor

import (
	"testing"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

func sampleId() Id {
	return Id{DatabaseId: 7, TwincodeOutboundId: uuid.New(), SequenceId: 42}
}

// roundTrip encodes d with Encode, decodes it back with Decode, and
// returns the result for the caller to compare field-by-field.
func roundTrip(t *testing.T, d Descriptor, version int) Descriptor {
	t.Helper()
	w := codec.NewWriter(codec.Compact)
	Encode(w, d, version)

	r := codec.NewReader(codec.Compact, w.Bytes())
	out, err := Decode(r, version)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !r.Done() {
		t.Fatalf("Decode left %d bytes unread", r.Remaining())
	}
	return out
}

func TestObjectRoundTrip(t *testing.T) {
	id := sampleId()
	orig := NewObject(id, 3, 1000, "hello world")

	for _, v := range []int{EnvelopeVersionV3, EnvelopeVersionV4} {
		got := roundTrip(t, orig, v)
		obj, ok := got.(*Object)
		if !ok {
			t.Fatalf("version %d: got %T, want *Object", v, got)
		}
		if obj.Message != orig.Message {
			t.Errorf("version %d: Message = %q, want %q", v, obj.Message, orig.Message)
		}
		if obj.Id.TwincodeOutboundId != id.TwincodeOutboundId || obj.Id.SequenceId != id.SequenceId {
			t.Errorf("version %d: Id mismatch: got %+v, want twincode=%s seq=%d", v, obj.Id, id.TwincodeOutboundId, id.SequenceId)
		}
		if obj.SchemaHeader() != orig.SchemaHeader() {
			t.Errorf("version %d: schema header mismatch", v)
		}
	}
}

func TestEnvelopeV4RoundTripsExpireSendToReplyTo(t *testing.T) {
	id := sampleId()
	orig := NewObject(id, 3, 1000, "hi")
	sendTo := uuid.New()
	orig.ExpireTimeout = 5000
	orig.SendTo = &sendTo
	orig.ReplyTo = &Id{TwincodeOutboundId: uuid.New(), SequenceId: 9}

	got := roundTrip(t, orig, EnvelopeVersionV4).(*Object)
	if got.ExpireTimeout != orig.ExpireTimeout {
		t.Errorf("ExpireTimeout = %d, want %d", got.ExpireTimeout, orig.ExpireTimeout)
	}
	if got.SendTo == nil || *got.SendTo != sendTo {
		t.Errorf("SendTo = %v, want %v", got.SendTo, sendTo)
	}
	if got.ReplyTo == nil || *got.ReplyTo != *orig.ReplyTo {
		t.Errorf("ReplyTo = %v, want %v", got.ReplyTo, orig.ReplyTo)
	}
}

func TestEnvelopeV3OmitsExpireSendToReplyTo(t *testing.T) {
	id := sampleId()
	orig := NewObject(id, 3, 1000, "hi")
	sendTo := uuid.New()
	orig.ExpireTimeout = 5000
	orig.SendTo = &sendTo

	got := roundTrip(t, orig, EnvelopeVersionV3).(*Object)
	if got.ExpireTimeout != 0 {
		t.Errorf("v3 ExpireTimeout = %d, want 0 (not on wire)", got.ExpireTimeout)
	}
	if got.SendTo != nil {
		t.Errorf("v3 SendTo = %v, want nil (not on wire)", got.SendTo)
	}
}

func TestFileBearingVariantsRoundTrip(t *testing.T) {
	id := sampleId()
	att := FileAttachment{Name: "a.jpg", Extension: "jpg", Length: 1234, HasThumbnail: true, ContentFormat: "image/jpeg"}

	cases := []Descriptor{
		NewFile(id, 1, 10, att),
		NewImage(id, 1, 10, att, 640, 480),
		NewAudio(id, 1, 10, att, 5000),
		NewVideo(id, 1, 10, att, 640, 480, 9000),
		NewNamedFile(id, 1, 10, att, "vacation.jpg"),
	}

	for _, orig := range cases {
		got := roundTrip(t, orig, EnvelopeVersionV4)
		if got.SchemaHeader() != orig.SchemaHeader() {
			t.Errorf("%T: schema header mismatch", orig)
		}
		if got.Base().Type != orig.Base().Type {
			t.Errorf("%T: type = %v, want %v", orig, got.Base().Type, orig.Base().Type)
		}
	}
}

func TestInvitationCannotForward(t *testing.T) {
	id := sampleId()
	inv := NewInvitation(id, 1, 10, "friends", []byte("pub"), uuid.New(), uuid.New())

	if _, err := inv.Forward(); err != ErrCannotForwardInvitation {
		t.Fatalf("Forward() err = %v, want ErrCannotForwardInvitation", err)
	}

	got := roundTrip(t, inv, EnvelopeVersionV4).(*Invitation)
	if got.GroupName != inv.GroupName || got.Status != inv.Status {
		t.Errorf("invitation fields mismatch: got %+v, want %+v", got, inv)
	}
}

func TestCallOutcomeFlagPacking(t *testing.T) {
	id := sampleId()
	c := NewCall(id, 1, 10, true, CallMissed, 0)

	if c.Outcome() != CallMissed {
		t.Fatalf("Outcome() = %v, want CallMissed", c.Outcome())
	}
	if c.Flags&FlagCopyAllowed == 0 {
		t.Fatalf("expected FlagCopyAllowed to survive outcome packing")
	}

	got := roundTrip(t, c, EnvelopeVersionV4).(*Call)
	if got.Outcome() != CallMissed {
		t.Errorf("after round trip: Outcome() = %v, want CallMissed", got.Outcome())
	}
}

func TestGeolocationRoundTrip(t *testing.T) {
	id := sampleId()
	orig := NewGeolocation(id, 1, 10, 51.5074, -0.1278, 12.5)

	got := roundTrip(t, orig, EnvelopeVersionV4).(*Geolocation)
	if got.Latitude != orig.Latitude || got.Longitude != orig.Longitude || got.Accuracy != orig.Accuracy {
		t.Errorf("geolocation mismatch: got %+v, want %+v", got, orig)
	}
}

func TestDecodeUnknownSchemaReturnsError(t *testing.T) {
	w := codec.NewWriter(codec.Compact)
	w.WriteSchemaHeader(codec.SchemaHeader{ID: uuid.New(), Version: 99})
	EncodeEnvelope(w, Envelope{Type: TypeObject, Id: sampleId()}, EnvelopeVersionV4)
	w.WriteString("payload for a schema nobody registered")

	r := codec.NewReader(codec.Compact, w.Bytes())
	if _, err := Decode(r, EnvelopeVersionV4); err != ErrUnknownSchema {
		t.Fatalf("Decode err = %v, want ErrUnknownSchema", err)
	}
}

func TestExpiredRule(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		now  int64
		want bool
	}{
		{"never read, no timeout", Envelope{ReadTimestamp: 0}, 100, false},
		{"read failed sentinel", Envelope{ReadTimestamp: -1}, 100, true},
		{"read, no timeout configured", Envelope{ReadTimestamp: 50}, 1000, false},
		{"read, within timeout", Envelope{ReadTimestamp: 50, ExpireTimeout: 100}, 120, false},
		{"read, past timeout", Envelope{ReadTimestamp: 50, ExpireTimeout: 100}, 200, true},
	}
	for _, c := range cases {
		if got := c.env.Expired(c.now); got != c.want {
			t.Errorf("%s: Expired(%d) = %v, want %v", c.name, c.now, got, c.want)
		}
	}
}

func TestMonotoneOK(t *testing.T) {
	ok := Envelope{CreationDate: 1, SentTimestamp: 2, ReceivedTimestamp: 3, ReadTimestamp: 4}
	if !ok.MonotoneOK() {
		t.Errorf("expected monotone envelope to pass")
	}
	bad := Envelope{CreationDate: 10, SentTimestamp: 2, ReceivedTimestamp: 3, ReadTimestamp: 4}
	if bad.MonotoneOK() {
		t.Errorf("expected out-of-order envelope to fail")
	}
	skipping := Envelope{CreationDate: 1, ReadTimestamp: 4} // sent/received never happened
	if !skipping.MonotoneOK() {
		t.Errorf("expected envelope with unset intermediate stages to still pass")
	}
}

func TestCreateForwardResetsTimestampsAndIdentity(t *testing.T) {
	origId := sampleId()
	orig := NewObject(origId, 1, 10, "hi")
	orig.SentTimestamp = 20
	orig.ReceivedTimestamp = 30
	orig.ReadTimestamp = 40

	newId := Id{TwincodeOutboundId: uuid.New(), SequenceId: 99}
	sendTo := uuid.New()

	fwd, err := CreateForward(orig, newId, 5, 100, 60_000, &sendTo, false)
	if err != nil {
		t.Fatalf("CreateForward: %v", err)
	}
	base := fwd.Base()
	if base.Id != newId || base.ConversationDbId != 5 {
		t.Errorf("identity not rewritten: %+v", base)
	}
	if base.CreationDate != 100 {
		t.Errorf("CreationDate = %d, want 100", base.CreationDate)
	}
	if base.SentTimestamp != TimestampUnset || base.ReceivedTimestamp != TimestampUnset || base.ReadTimestamp != TimestampUnset {
		t.Errorf("expected timestamps reset, got sent=%d recv=%d read=%d", base.SentTimestamp, base.ReceivedTimestamp, base.ReadTimestamp)
	}
	if base.Flags&FlagCopyAllowed != 0 {
		t.Errorf("expected FlagCopyAllowed cleared")
	}
	if base.SendTo == nil || *base.SendTo != sendTo {
		t.Errorf("SendTo not set on forward")
	}
}

func TestCreateForwardRejectsInvitation(t *testing.T) {
	inv := NewInvitation(sampleId(), 1, 10, "friends", nil, uuid.New(), uuid.New())
	if _, err := CreateForward(inv, sampleId(), 2, 20, 0, nil, true); err != ErrCannotForwardInvitation {
		t.Fatalf("CreateForward err = %v, want ErrCannotForwardInvitation", err)
	}
}
