package iq

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// The functions below encode/decode each operation type's persisted
// content blob (spec.md §4.4's content-encoding column), using the
// compact (unpadded) codec framing since this is storage, not wire.

// ResetContent is operation type 0's content: (minSeq, peerMinSeq,
// resetMembers?).
type ResetContent struct {
	MinSeq       int64
	PeerMinSeq   map[uuid.UUID]int64
	ResetMembers bool
}

func EncodeResetContent(c ResetContent) []byte {
	w := codec.NewWriter(codec.Compact)
	w.WriteLong(c.MinSeq)
	w.WriteBool(c.ResetMembers)
	w.WriteInt32(int32(len(c.PeerMinSeq)))
	for tc, seq := range c.PeerMinSeq {
		w.WriteUUID(tc)
		w.WriteLong(seq)
	}
	return w.Bytes()
}

func DecodeResetContent(b []byte) (ResetContent, error) {
	var c ResetContent
	r := codec.NewReader(codec.Compact, b)
	var err error
	if c.MinSeq, err = r.ReadLong(); err != nil {
		return c, err
	}
	if c.ResetMembers, err = r.ReadBool(); err != nil {
		return c, err
	}
	n, err := r.ReadInt32()
	if err != nil {
		return c, err
	}
	c.PeerMinSeq = make(map[uuid.UUID]int64, n)
	for i := int32(0); i < n; i++ {
		tc, err := r.ReadUUID()
		if err != nil {
			return c, err
		}
		seq, err := r.ReadLong()
		if err != nil {
			return c, err
		}
		c.PeerMinSeq[tc] = seq
	}
	return c, nil
}

// TimestampContent is operation type 5's content: (kind, descriptorId,
// timestamp).
type TimestampContent struct {
	Kind      TimestampKind
	DescId    descriptor.Id
	Timestamp int64
}

func EncodeTimestampContent(c TimestampContent) []byte {
	w := codec.NewWriter(codec.Compact)
	w.WriteInt32(int32(c.Kind))
	w.WriteUUID(c.DescId.TwincodeOutboundId)
	w.WriteLong(c.DescId.SequenceId)
	w.WriteLong(c.Timestamp)
	return w.Bytes()
}

func DecodeTimestampContent(b []byte) (TimestampContent, error) {
	var c TimestampContent
	r := codec.NewReader(codec.Compact, b)
	k, err := r.ReadInt32()
	if err != nil {
		return c, err
	}
	c.Kind = TimestampKind(k)
	tc, err := r.ReadUUID()
	if err != nil {
		return c, err
	}
	seq, err := r.ReadLong()
	if err != nil {
		return c, err
	}
	c.DescId = descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
	if c.Timestamp, err = r.ReadLong(); err != nil {
		return c, err
	}
	return c, nil
}

// GroupMembershipContent covers JoinGroup (type 8), LeaveGroup (type 9),
// UpdateGroupMember (type 10), and the server-brokered Invoke{Join,Leave,
// AddMember}Group variants (types 15-17), which all share the same
// (groupId, memberId, permissions, key?, secret?, signedOff?, signature?)
// shape even though each type only populates the fields its protocol
// entry names (spec.md §4.4).
type GroupMembershipContent struct {
	GroupId     descriptor.DatabaseId
	MemberId    uuid.UUID
	Permissions uint32
	Key         []byte
	Secret      []byte
	SignedOff   bool
	Signature   []byte
}

func EncodeGroupMembershipContent(c GroupMembershipContent) []byte {
	w := codec.NewWriter(codec.Compact)
	w.WriteLong(int64(c.GroupId))
	w.WriteUUID(c.MemberId)
	w.WriteInt32(int32(c.Permissions))
	w.WriteBytes(c.Key)
	w.WriteBytes(c.Secret)
	w.WriteBool(c.SignedOff)
	w.WriteBytes(c.Signature)
	return w.Bytes()
}

func DecodeGroupMembershipContent(b []byte) (GroupMembershipContent, error) {
	var c GroupMembershipContent
	r := codec.NewReader(codec.Compact, b)
	gid, err := r.ReadLong()
	if err != nil {
		return c, err
	}
	c.GroupId = descriptor.DatabaseId(gid)
	if c.MemberId, err = r.ReadUUID(); err != nil {
		return c, err
	}
	perm, err := r.ReadInt32()
	if err != nil {
		return c, err
	}
	c.Permissions = uint32(perm)
	if c.Key, err = r.ReadBytes(); err != nil {
		return c, err
	}
	if c.Secret, err = r.ReadBytes(); err != nil {
		return c, err
	}
	if c.SignedOff, err = r.ReadBool(); err != nil {
		return c, err
	}
	if c.Signature, err = r.ReadBytes(); err != nil {
		return c, err
	}
	return c, nil
}

// UpdateObjectContent is operation type 18's content: updateFlags (bit0
// message, bit1 copyAllowed, bit2 expiration) plus the new values.
type UpdateObjectContent struct {
	UpdateFlags   uint32
	NewMessage    string
	CopyAllowed   bool
	ExpireTimeout int64
}

func EncodeUpdateObjectContent(c UpdateObjectContent) []byte {
	w := codec.NewWriter(codec.Compact)
	w.WriteInt32(int32(c.UpdateFlags))
	w.WriteString(c.NewMessage)
	w.WriteBool(c.CopyAllowed)
	w.WriteLong(c.ExpireTimeout)
	return w.Bytes()
}

func DecodeUpdateObjectContent(b []byte) (UpdateObjectContent, error) {
	var c UpdateObjectContent
	r := codec.NewReader(codec.Compact, b)
	flags, err := r.ReadInt32()
	if err != nil {
		return c, err
	}
	c.UpdateFlags = uint32(flags)
	if c.NewMessage, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.CopyAllowed, err = r.ReadBool(); err != nil {
		return c, err
	}
	if c.ExpireTimeout, err = r.ReadLong(); err != nil {
		return c, err
	}
	return c, nil
}

// AnnotationContent is operation type 14's content: (descriptorId, kind,
// value, remove?).
type AnnotationContent struct {
	DescId descriptor.Id
	Kind   descriptor.AnnotationKind
	Value  int32
	Remove bool
}

func EncodeAnnotationContent(c AnnotationContent) []byte {
	w := codec.NewWriter(codec.Compact)
	w.WriteUUID(c.DescId.TwincodeOutboundId)
	w.WriteLong(c.DescId.SequenceId)
	w.WriteInt32(int32(c.Kind))
	w.WriteInt32(c.Value)
	w.WriteBool(c.Remove)
	return w.Bytes()
}

func DecodeAnnotationContent(b []byte) (AnnotationContent, error) {
	var c AnnotationContent
	r := codec.NewReader(codec.Compact, b)
	tc, err := r.ReadUUID()
	if err != nil {
		return c, err
	}
	seq, err := r.ReadLong()
	if err != nil {
		return c, err
	}
	c.DescId = descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
	kind, err := r.ReadInt32()
	if err != nil {
		return c, err
	}
	c.Kind = descriptor.AnnotationKind(kind)
	if c.Value, err = r.ReadInt32(); err != nil {
		return c, err
	}
	if c.Remove, err = r.ReadBool(); err != nil {
		return c, err
	}
	return c, nil
}

// TransientContent is the in-memory-only payload for PushTransientObject
// (type 3) and PushCommand (type 13), neither of which is durably
// persisted (spec.md §4.4).
type TransientContent struct {
	Kind    string
	Payload []byte
}

func EncodeTransientContent(c TransientContent) []byte {
	w := codec.NewWriter(codec.Compact)
	w.WriteString(c.Kind)
	w.WriteBytes(c.Payload)
	return w.Bytes()
}

func DecodeTransientContent(b []byte) (TransientContent, error) {
	var c TransientContent
	r := codec.NewReader(codec.Compact, b)
	var err error
	if c.Kind, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.Payload, err = r.ReadBytes(); err != nil {
		return c, err
	}
	return c, nil
}
