package store

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// InvitationRow links an Invitation descriptor to the group it creates,
// for cascading delete when we leave that group (spec.md §3.2).
type InvitationRow struct {
	DescId        descriptor.Id
	DescConv      descriptor.DatabaseId
	GroupDbId     descriptor.DatabaseId
	InviterMember uuid.UUID
	JoinedMember  *uuid.UUID
}

// CreateInvitationRow records the group-membership row for an Invitation
// descriptor that was just created (spec.md §4.1, invitation table).
func (s *Store) CreateInvitationRow(r InvitationRow) error {
	_, err := s.exec(`
		INSERT INTO invitation (descId, descCid, descTwincode, descSequence, groupId, inviterMember, joinedMember)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		descriptorRowId(&descriptor.Envelope{Id: r.DescId}), int64(r.DescConv), r.DescId.TwincodeOutboundId.String(),
		r.DescId.SequenceId, int64(r.GroupDbId), r.InviterMember.String(), nullableUUIDString(r.JoinedMember))
	return err
}

// SetInvitationJoined records that an invitation was accepted by member.
func (s *Store) SetInvitationJoined(descConv descriptor.DatabaseId, descId descriptor.Id, member uuid.UUID) error {
	_, err := s.exec(`UPDATE invitation SET joinedMember = ? WHERE descCid = ? AND descTwincode = ? AND descSequence = ?`,
		member.String(), int64(descConv), descId.TwincodeOutboundId.String(), descId.SequenceId)
	return err
}

// DeleteInvitationsForGroup removes every invitation row for groupId,
// called when we leave that group (cascading delete, spec.md §3.2).
func (s *Store) DeleteInvitationsForGroup(groupId descriptor.DatabaseId) error {
	_, err := s.exec(`DELETE FROM invitation WHERE groupId = ?`, int64(groupId))
	return err
}

// ListInvitationsForGroup returns every invitation row tied to groupId.
func (s *Store) ListInvitationsForGroup(groupId descriptor.DatabaseId) ([]InvitationRow, error) {
	rows, err := s.query(`SELECT descCid, descTwincode, descSequence, groupId, inviterMember, joinedMember
		FROM invitation WHERE groupId = ?`, int64(groupId))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvitationRow
	for rows.Next() {
		var descCid, groupDbId int64
		var descTwincode, inviterMember string
		var descSequence int64
		var joinedMember *string
		if err := rows.Scan(&descCid, &descTwincode, &descSequence, &groupDbId, &inviterMember, &joinedMember); err != nil {
			return nil, err
		}
		tc, err := uuid.Parse(descTwincode)
		if err != nil {
			continue
		}
		inviter, err := uuid.Parse(inviterMember)
		if err != nil {
			continue
		}
		row := InvitationRow{
			DescId:        descriptor.Id{TwincodeOutboundId: tc, SequenceId: descSequence},
			DescConv:      descriptor.DatabaseId(descCid),
			GroupDbId:     descriptor.DatabaseId(groupDbId),
			InviterMember: inviter,
		}
		if joinedMember != nil {
			if jm, err := uuid.Parse(*joinedMember); err == nil {
				row.JoinedMember = &jm
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
