package descriptor

import "github.com/google/uuid"

// CreateForward clones d's variant payload into a new descriptor addressed
// at newId/newConvId, per spec.md §4.2's createForward contract. now is the
// forwarding device's current time, used as the new descriptor's
// CreationDate (a forward is a fresh send, not a copy of history).
func CreateForward(d Descriptor, newId Id, newConvId DatabaseId, now int64, expire int64, sendTo *uuid.UUID, copyAllowed bool) (Descriptor, error) {
	clone, err := d.Forward()
	if err != nil {
		return nil, err
	}

	base := clone.Base()
	base.Id = newId
	base.ConversationDbId = newConvId
	base.CreationDate = now
	base.SentTimestamp = TimestampUnset
	base.ReceivedTimestamp = TimestampUnset
	base.ReadTimestamp = TimestampUnset
	base.UpdatedTimestamp = TimestampUnset
	base.PeerDeletedTimestamp = TimestampUnset
	base.DeletedTimestamp = TimestampUnset
	base.ExpireTimeout = expire
	base.SendTo = sendTo
	base.ReplyTo = nil
	base.Annotations = nil

	if copyAllowed {
		base.Flags |= FlagCopyAllowed
	} else {
		base.Flags &^= FlagCopyAllowed
	}

	return clone, nil
}
