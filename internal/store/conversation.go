package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// MaxGroupMembers bounds active membership + pending invitations in a
// group conversation (spec.md §3.2, §8 boundary test).
const MaxGroupMembers = 256

// ConversationKind distinguishes 1-to-1 contact conversations from
// groups (spec.md §3.2).
type ConversationKind int

const (
	KindContact ConversationKind = iota
	KindGroup
)

// GroupState is the lifecycle state of a group conversation.
type GroupState int

const (
	StateNone GroupState = iota
	StateInvited
	StateJoined
	StateLeaving
	StateLeft
)

// Conversation is one row of the conversation table.
type Conversation struct {
	DbId                 descriptor.DatabaseId
	GroupDbId            *descriptor.DatabaseId
	Uuid                 string
	CreationDate         int64
	Subject              string
	InvitedContact       *descriptor.DatabaseId
	PeerTwincodeOutbound string
	ResourceId           string
	PeerResourceId       string
	Permissions          uint32
	JoinPermissions      uint32
	LastConnectDate      *int64
	LastRetryDate        *int64
	Flags                uint32
	State                GroupState
}

// ErrGroupFull is returned by CreateGroupMember when the group has
// reached MaxGroupMembers active members plus pending invitations.
var ErrGroupFull = errors.New("store: group is at MaxGroupMembers capacity")

// CreateConversation returns the existing Contact conversation for uuid,
// or inserts and returns a new one (spec.md §4.1 createConversation).
func (s *Store) CreateConversation(uuid, subject, resourceId string, now int64) (*Conversation, error) {
	var conv *Conversation
	err := s.withTx(func(tx *sql.Tx) error {
		existing, err := scanConversationByUUID(tx, uuid)
		if err == nil {
			conv = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res, err := tx.Exec(`
			INSERT INTO conversation (uuid, creationDate, subject, resourceId, permissions, joinPermissions, flags, state)
			VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
			uuid, now, subject, resourceId)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		conv = &Conversation{DbId: descriptor.DatabaseId(id), Uuid: uuid, CreationDate: now, Subject: subject, ResourceId: resourceId}
		return nil
	})
	return conv, err
}

// CreateGroupConversation is CreateConversation's group analogue: the
// returned conversation's DbId also serves as its groupId (spec.md §4.1).
func (s *Store) CreateGroupConversation(uuid, subject, resourceId string, now int64) (*Conversation, error) {
	conv, err := s.CreateConversation(uuid, subject, resourceId, now)
	if err != nil {
		return nil, err
	}
	if conv.GroupDbId == nil {
		gid := conv.DbId
		if _, err := s.exec(`UPDATE conversation SET groupId = ? WHERE id = ?`, int64(gid), int64(conv.DbId)); err != nil {
			return nil, fmt.Errorf("set groupId: %w", err)
		}
		conv.GroupDbId = &gid
		conv.State = StateJoined
		if _, err := s.exec(`UPDATE conversation SET state = ? WHERE id = ?`, int64(StateJoined), int64(conv.DbId)); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// CreateGroupMember returns the existing member conversation for
// memberTwincodeId in group (updating its permissions), or inserts a new
// one. Rejects with ErrGroupFull when active member count plus pending
// invitations has reached MaxGroupMembers (spec.md §4.1, §8).
func (s *Store) CreateGroupMember(group descriptor.DatabaseId, memberUuid, memberTwincodeId string, permissions uint32, invitedContact *descriptor.DatabaseId, now int64) (*Conversation, error) {
	var member *Conversation
	err := s.withTx(func(tx *sql.Tx) error {
		existing, err := scanConversationByUUID(tx, memberUuid)
		if err == nil {
			if _, err := tx.Exec(`UPDATE conversation SET permissions = ? WHERE id = ?`, permissions, int64(existing.DbId)); err != nil {
				return err
			}
			existing.Permissions = permissions
			member = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM conversation WHERE groupId = ? AND id != ?`, int64(group), int64(group)).Scan(&count); err != nil {
			return err
		}
		if count >= MaxGroupMembers {
			return ErrGroupFull
		}

		var invited sql.NullInt64
		if invitedContact != nil {
			invited = sql.NullInt64{Int64: int64(*invitedContact), Valid: true}
		}
		res, err := tx.Exec(`
			INSERT INTO conversation (groupId, uuid, creationDate, subject, invitedContact, peerTwincodeOutbound, resourceId, permissions, state)
			VALUES (?, ?, ?, '', ?, ?, '', ?, ?)`,
			int64(group), memberUuid, now, invited, memberTwincodeId, permissions, int64(StateInvited))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		gid := group
		member = &Conversation{
			DbId: descriptor.DatabaseId(id), GroupDbId: &gid, Uuid: memberUuid,
			CreationDate: now, PeerTwincodeOutbound: memberTwincodeId,
			Permissions: permissions, InvitedContact: invitedContact, State: StateInvited,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// LoadConversation loads one conversation by its local DatabaseId.
func (s *Store) LoadConversation(id descriptor.DatabaseId) (*Conversation, error) {
	row := s.queryRow(conversationSelectCols+` WHERE id = ?`, int64(id))
	return scanConversationRow(row)
}

// DeleteConversation removes a conversation and every operation and
// connection-relevant row tied to it (spec.md §4.5 removal guarantees);
// descriptors/annotations cascade via deleteDescriptors before this call.
func (s *Store) DeleteConversation(id descriptor.DatabaseId) error {
	err := s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM operation WHERE cid = ?`, int64(id)); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM annotation WHERE cid = ?`, int64(id)); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM descriptor WHERE cid = ?`, int64(id)); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM conversation WHERE id = ?`, int64(id))
		return err
	})
	if err == nil {
		s.cache.InvalidateConversation(id)
	}
	return err
}

const conversationSelectCols = `SELECT id, groupId, uuid, creationDate, subject, invitedContact, peerTwincodeOutbound, resourceId, peerResourceId, permissions, joinPermissions, lastConnectDate, lastRetryDate, flags, state FROM conversation`

func scanConversationByUUID(tx *sql.Tx, uuid string) (*Conversation, error) {
	row := tx.QueryRow(conversationSelectCols+` WHERE uuid = ?`, uuid)
	return scanConversationRow(row)
}

func scanConversationRow(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var groupId, invitedContact, lastConnect, lastRetry sql.NullInt64
	var peerTwincode, peerResourceId sql.NullString
	var permissions, joinPermissions, flags, state int64
	var id int64

	if err := row.Scan(&id, &groupId, &c.Uuid, &c.CreationDate, &c.Subject, &invitedContact,
		&peerTwincode, &c.ResourceId, &peerResourceId, &permissions, &joinPermissions,
		&lastConnect, &lastRetry, &flags, &state); err != nil {
		return nil, err
	}

	c.DbId = descriptor.DatabaseId(id)
	if groupId.Valid {
		g := descriptor.DatabaseId(groupId.Int64)
		c.GroupDbId = &g
	}
	if invitedContact.Valid {
		ic := descriptor.DatabaseId(invitedContact.Int64)
		c.InvitedContact = &ic
	}
	c.PeerTwincodeOutbound = peerTwincode.String
	c.PeerResourceId = peerResourceId.String
	c.Permissions = uint32(permissions)
	c.JoinPermissions = uint32(joinPermissions)
	if lastConnect.Valid {
		c.LastConnectDate = &lastConnect.Int64
	}
	if lastRetry.Valid {
		c.LastRetryDate = &lastRetry.Int64
	}
	c.Flags = uint32(flags)
	c.State = GroupState(state)
	return &c, nil
}
