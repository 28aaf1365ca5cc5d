package store

import (
	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// UpsertAnnotation inserts or replaces one annotation row, keyed by
// (conversationDbId, descriptorId, peerTwincodeOutbound|NULL, kind)
// (spec.md §3.2). descId supplies the descriptor's natural key since
// descriptor.Annotation itself only carries an opaque DatabaseId.
func (s *Store) UpsertAnnotation(conv descriptor.DatabaseId, descId descriptor.Id, a descriptor.Annotation) error {
	peer := nullableUUIDString(a.PeerTwincodeOutboundId)
	_, err := s.exec(`
		INSERT INTO annotation (cid, descriptorCid, descriptorTwincode, descriptorSequence, peerTwincodeOutbound, kind, value, creationDate, notificationId)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid, descriptorCid, descriptorTwincode, descriptorSequence, peerTwincodeOutbound, kind)
		DO UPDATE SET value = excluded.value, creationDate = excluded.creationDate, notificationId = excluded.notificationId`,
		int64(conv), int64(conv), descId.TwincodeOutboundId.String(), descId.SequenceId,
		peer, int(a.Kind), a.Value, a.CreationDate, nullableIntPtr(a.NotificationId),
	)
	return err
}

// RemoveAnnotation deletes one annotation row by its full key.
func (s *Store) RemoveAnnotation(conv descriptor.DatabaseId, descId descriptor.Id, peer *uuid.UUID, kind descriptor.AnnotationKind) error {
	_, err := s.exec(`
		DELETE FROM annotation
		WHERE cid = ? AND descriptorCid = ? AND descriptorTwincode = ? AND descriptorSequence = ?
		  AND (peerTwincodeOutbound IS ?) AND kind = ?`,
		int64(conv), int64(conv), descId.TwincodeOutboundId.String(), descId.SequenceId,
		nullableUUIDString(peer), int(kind))
	return err
}

// loadAnnotationSummary aggregates annotation rows for one descriptor
// grouped by (kind, value) with a count, matching spec.md §4.1's "second
// aggregated query" load-path contract and the §8 testable property that
// the summary equals Σ over stored rows.
func (s *Store) loadAnnotationSummary(conv descriptor.DatabaseId, twincode uuid.UUID, sequenceId int64) ([]descriptor.AnnotationSummary, error) {
	rows, err := s.query(`
		SELECT kind, value, COUNT(*) FROM annotation
		WHERE cid = ? AND descriptorTwincode = ? AND descriptorSequence = ?
		GROUP BY kind, value
		ORDER BY kind, value`,
		int64(conv), twincode.String(), sequenceId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descriptor.AnnotationSummary
	for rows.Next() {
		var kind int
		var value int32
		var count int
		if err := rows.Scan(&kind, &value, &count); err != nil {
			return nil, err
		}
		out = append(out, descriptor.AnnotationSummary{Kind: descriptor.AnnotationKind(kind), Value: value, Count: count})
	}
	return out, rows.Err()
}

func nullableIntPtr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
