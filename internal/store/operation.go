package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// OperationExpiry is the maximum age of a persisted operation before the
// load-path sweep treats it as expired (spec.md §3.3, §4.5).
const OperationExpiry = 14 * 24 * 60 * 60 * 1000 // 14 days, in milliseconds

// OperationType is the persisted type code for a queued outgoing action
// (spec.md §4.4).
type OperationType int

const (
	OpResetConversation        OperationType = 0
	OpSynchronizeConversation  OperationType = 1
	OpPushObject               OperationType = 2
	OpPushTransientObject      OperationType = 3
	OpPushFile                 OperationType = 4
	OpUpdateDescriptorTimestamp OperationType = 5
	OpInviteGroup              OperationType = 6
	OpWithdrawInviteGroup      OperationType = 7
	OpJoinGroup                OperationType = 8
	OpLeaveGroup               OperationType = 9
	OpUpdateGroupMember        OperationType = 10
	OpPushGeolocation          OperationType = 11
	OpPushTwincode             OperationType = 12
	OpPushCommand              OperationType = 13
	OpUpdateAnnotations        OperationType = 14
	OpInvokeJoinGroup          OperationType = 15
	OpInvokeLeaveGroup         OperationType = 16
	OpInvokeAddMemberGroup     OperationType = 17
	OpUpdateObject             OperationType = 18
)

// Operation is one row of the operation table: a durable outgoing intent
// (spec.md §3.2).
type Operation struct {
	Id           int64
	CreationDate int64
	ConvDbId     descriptor.DatabaseId
	Type         OperationType
	DescId       *descriptor.Id
	ChunkStart   *int64
	Content      []byte
}

// EnqueueOperation persists a new operation row and returns its assigned
// id (spec.md §4.1 operation table; invariant: the descriptor it points
// at, if any, must already exist locally).
func (s *Store) EnqueueOperation(op Operation) (int64, error) {
	var descTwincode, descSeq any
	if op.DescId != nil {
		descTwincode = op.DescId.TwincodeOutboundId.String()
		descSeq = op.DescId.SequenceId
	}
	res, err := s.exec(`
		INSERT INTO operation (creationDate, cid, type, descCid, descTwincode, descSequence, chunkStart, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.CreationDate, int64(op.ConvDbId), int(op.Type), int64(op.ConvDbId), descTwincode, descSeq,
		nullableIntPtr(op.ChunkStart), op.Content,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateOperationChunkStart persists sliding-window progress for a file
// operation (spec.md §3.2: chunkStart is durable, sentOffset is not).
func (s *Store) UpdateOperationChunkStart(opId int64, chunkStart int64) error {
	_, err := s.exec(`UPDATE operation SET chunkStart = ? WHERE id = ?`, chunkStart, opId)
	return err
}

// DeleteOperation removes one completed or fatally-failed operation.
func (s *Store) DeleteOperation(opId int64) error {
	_, err := s.exec(`DELETE FROM operation WHERE id = ?`, opId)
	return err
}

// DeleteOperations removes a batch of operation ids in one statement, as
// used when DeleteDescriptors reports operations tied to deleted
// descriptors (spec.md §4.5 removal guarantees).
func (s *Store) DeleteOperations(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM operation WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadOperations loads every persisted operation, bucketed by
// conversation, applying the 14-day expiration sweep: any operation
// older than OperationExpiry is dropped and (for push-* kinds whose
// descriptor still exists) that descriptor is marked "will not deliver"
// (send/read/receive = -1) before its operation row is deleted (spec.md
// §3.3, §4.5).
func (s *Store) LoadOperations(now int64) (map[descriptor.DatabaseId][]Operation, error) {
	rows, err := s.query(`SELECT id, creationDate, cid, type, descTwincode, descSequence, chunkStart, content FROM operation ORDER BY cid, creationDate`)
	if err != nil {
		return nil, err
	}

	var all []Operation
	var expiredIds []int64
	for rows.Next() {
		var op Operation
		var convId int64
		var typ int
		var descTwincode sql.NullString
		var descSeq sql.NullInt64
		var chunkStart sql.NullInt64
		if err := rows.Scan(&op.Id, &op.CreationDate, &convId, &typ, &descTwincode, &descSeq, &chunkStart, &op.Content); err != nil {
			rows.Close()
			return nil, err
		}
		op.ConvDbId = descriptor.DatabaseId(convId)
		op.Type = OperationType(typ)
		if descTwincode.Valid && descSeq.Valid {
			if tc, err := uuid.Parse(descTwincode.String); err == nil {
				op.DescId = &descriptor.Id{TwincodeOutboundId: tc, SequenceId: descSeq.Int64}
			}
		}
		if chunkStart.Valid {
			v := chunkStart.Int64
			op.ChunkStart = &v
		}

		if now-op.CreationDate > OperationExpiry {
			expiredIds = append(expiredIds, op.Id)
			if op.DescId != nil && isPushOperation(op.Type) {
				_, _ = s.exec(`UPDATE descriptor SET sendDate = -1, receiveDate = -1, readDate = -1
					WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
					convId, op.DescId.TwincodeOutboundId.String(), op.DescId.SequenceId)
				s.cache.Invalidate(op.ConvDbId, *op.DescId)
			}
			continue
		}
		all = append(all, op)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(expiredIds) > 0 {
		if err := s.DeleteOperations(expiredIds); err != nil {
			return nil, err
		}
	}

	byConv := make(map[descriptor.DatabaseId][]Operation)
	for _, op := range all {
		byConv[op.ConvDbId] = append(byConv[op.ConvDbId], op)
	}
	return byConv, nil
}

func isPushOperation(t OperationType) bool {
	switch t {
	case OpPushObject, OpPushFile, OpPushGeolocation, OpPushTwincode, OpPushCommand, OpPushTransientObject:
		return true
	default:
		return false
	}
}
