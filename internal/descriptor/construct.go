package descriptor

import "github.com/google/uuid"

// newEnvelope builds the common envelope shared by every freshly-created
// (not yet decoded) outgoing descriptor: creationDate = now, every other
// timestamp unset, copy allowed by default.
func newEnvelope(id Id, convId DatabaseId, typ Type, now int64) Envelope {
	return Envelope{
		Id:               id,
		ConversationDbId: convId,
		Type:             typ,
		CreationDate:     now,
		Flags:            FlagCopyAllowed,
	}
}

// NewFile constructs a freshly-created File descriptor.
func NewFile(id Id, convId DatabaseId, now int64, att FileAttachment) *File {
	return &File{Envelope: newEnvelope(id, convId, TypeFile, now), FileAttachment: att}
}

// NewImage constructs a freshly-created Image descriptor.
func NewImage(id Id, convId DatabaseId, now int64, att FileAttachment, width, height int32) *Image {
	return &Image{Envelope: newEnvelope(id, convId, TypeImage, now), FileAttachment: att, Width: width, Height: height}
}

// NewAudio constructs a freshly-created Audio descriptor.
func NewAudio(id Id, convId DatabaseId, now int64, att FileAttachment, durationMs int64) *Audio {
	return &Audio{Envelope: newEnvelope(id, convId, TypeAudio, now), FileAttachment: att, DurationMs: durationMs}
}

// NewVideo constructs a freshly-created Video descriptor.
func NewVideo(id Id, convId DatabaseId, now int64, att FileAttachment, width, height int32, durationMs int64) *Video {
	return &Video{
		Envelope:       newEnvelope(id, convId, TypeVideo, now),
		FileAttachment: att,
		Width:          width,
		Height:         height,
		DurationMs:     durationMs,
	}
}

// NewNamedFile constructs a freshly-created NamedFile descriptor.
func NewNamedFile(id Id, convId DatabaseId, now int64, att FileAttachment, displayName string) *NamedFile {
	return &NamedFile{Envelope: newEnvelope(id, convId, TypeNamedFile, now), FileAttachment: att, DisplayName: displayName}
}

// NewInvitation constructs a freshly-created, Pending Invitation descriptor.
func NewInvitation(id Id, convId DatabaseId, now int64, groupName string, groupPubKey []byte, inviter, member uuid.UUID) *Invitation {
	return &Invitation{
		Envelope:    newEnvelope(id, convId, TypeInvitation, now),
		Status:      InvitationPending,
		GroupName:   groupName,
		GroupPubKey: groupPubKey,
		InviterTcId: inviter,
		MemberTcId:  member,
	}
}

// NewGeolocation constructs a freshly-created Geolocation descriptor.
func NewGeolocation(id Id, convId DatabaseId, now int64, lat, lon, accuracy float64) *Geolocation {
	return &Geolocation{Envelope: newEnvelope(id, convId, TypeGeolocation, now), Latitude: lat, Longitude: lon, Accuracy: accuracy}
}

// NewTwincode constructs a freshly-created Twincode descriptor.
func NewTwincode(id Id, convId DatabaseId, now int64, tc uuid.UUID, displayName string) *Twincode {
	return &Twincode{Envelope: newEnvelope(id, convId, TypeTwincode, now), TwincodeOutboundId: tc, DisplayName: displayName}
}

// NewCall constructs a freshly-created Call descriptor.
func NewCall(id Id, convId DatabaseId, now int64, outgoing bool, outcome CallOutcome, durationMs int64) *Call {
	c := &Call{Envelope: newEnvelope(id, convId, TypeCall, now), DurationMs: durationMs, Outgoing: outgoing}
	c.SetOutcome(outcome)
	return c
}

// NewClear constructs a freshly-created Clear descriptor.
func NewClear(id Id, convId DatabaseId, now, clearBefore int64) *Clear {
	return &Clear{Envelope: newEnvelope(id, convId, TypeClear, now), ClearBefore: clearBefore}
}
