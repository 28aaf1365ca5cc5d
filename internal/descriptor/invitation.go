package descriptor

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
)

// InvitationStatus is the persisted status code for a group Invitation
// descriptor (spec.md §4.2). Value carries the status; an invitation's
// lifecycle only moves Pending -> {Joined, Withdrawn, Accepted}.
type InvitationStatus int32

const (
	InvitationPending   InvitationStatus = 0
	InvitationJoined    InvitationStatus = 1
	InvitationWithdrawn InvitationStatus = 2
	InvitationAccepted  InvitationStatus = 3
)

// Invitation is a group-membership invitation descriptor. It cannot be
// forwarded: Forward always returns ErrCannotForwardInvitation.
type Invitation struct {
	Envelope
	Status        InvitationStatus
	GroupName     string
	GroupPubKey   []byte
	InviterTcId   uuid.UUID
	MemberTcId    uuid.UUID
}

var invitationSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0007")

const invitationSchemaVersion = 1

func init() { RegisterSchema(invitationSchemaID, invitationSchemaVersion, decodeInvitation) }

func (d *Invitation) Base() *Envelope { return &d.Envelope }
func (d *Invitation) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: invitationSchemaID, Version: invitationSchemaVersion}
}

func (d *Invitation) Encode(w *codec.Writer) {
	w.WriteInt32(int32(d.Status))
	w.WriteString(d.GroupName)
	w.WriteBytes(d.GroupPubKey)
	w.WriteUUID(d.InviterTcId)
	w.WriteUUID(d.MemberTcId)
}

// Forward always fails: spec.md §4.2 states invitations cannot be
// forwarded, since membership is bound to the specific invitee.
func (d *Invitation) Forward() (Descriptor, error) {
	return nil, ErrCannotForwardInvitation
}

func decodeInvitation(r *codec.Reader, env Envelope) (Descriptor, error) {
	status, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	pub, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	inviter, err := r.ReadUUID()
	if err != nil {
		return nil, err
	}
	member, err := r.ReadUUID()
	if err != nil {
		return nil, err
	}
	return &Invitation{
		Envelope:    env,
		Status:      InvitationStatus(status),
		GroupName:   name,
		GroupPubKey: pub,
		InviterTcId: inviter,
		MemberTcId:  member,
	}, nil
}
