package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/codec"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// InsertResult is the outcome of InsertOrUpdateDescriptor (spec.md §4.1).
type InsertResult int

const (
	ResultStored InsertResult = iota
	ResultUpdated
	ResultError
)

// nextSequenceId allocates the next per-twincode sequence id for a
// conversation, inside the caller's transaction.
func nextSequenceId(tx *sql.Tx, cid descriptor.DatabaseId, twincode uuid.UUID) (int64, error) {
	var max sql.NullInt64
	err := tx.QueryRow(`SELECT MAX(sequenceId) FROM descriptor WHERE cid = ? AND twincodeOutbound = ?`,
		int64(cid), twincode.String()).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// CreateDescriptor allocates a fresh (descriptorDbId, sequenceId) pair
// for conv inside one transaction and calls factory to materialize the
// variant, then persists it with default outgoing timestamps (spec.md
// §4.1, §4.2: creation = now, send/read/receive = -1 until dispatched).
func (s *Store) CreateDescriptor(conv descriptor.DatabaseId, ourTwincode uuid.UUID, now int64,
	factory func(id descriptor.Id) descriptor.Descriptor) (descriptor.Descriptor, error) {

	var result descriptor.Descriptor
	err := s.withTx(func(tx *sql.Tx) error {
		seq, err := nextSequenceId(tx, conv, ourTwincode)
		if err != nil {
			return err
		}
		id := descriptor.Id{TwincodeOutboundId: ourTwincode, SequenceId: seq}
		d := factory(id)
		base := d.Base()
		base.Id = id
		base.ConversationDbId = conv
		base.CreationDate = now
		base.SentTimestamp = -1
		base.ReceivedTimestamp = -1
		base.ReadTimestamp = -1

		if err := insertDescriptorRow(tx, d); err != nil {
			return err
		}
		result = d
		return nil
	})
	if err == nil {
		s.cache.Put(conv, result.Base().Id, result)
	}
	return result, err
}

// InsertOrUpdateDescriptor dedupes a received descriptor by
// (cid, sequenceId, twincodeOutbound): an existing row is updated in
// place (ResultUpdated), a new one is inserted (ResultStored).
func (s *Store) InsertOrUpdateDescriptor(d descriptor.Descriptor) (InsertResult, error) {
	base := d.Base()
	var result InsertResult
	err := s.withTx(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT 1 FROM descriptor WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
			int64(base.ConversationDbId), base.Id.TwincodeOutboundId.String(), base.Id.SequenceId).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			if err := insertDescriptorRow(tx, d); err != nil {
				return err
			}
			result = ResultStored
			return nil
		case err != nil:
			return err
		default:
			if err := updateDescriptorRow(tx, d); err != nil {
				return err
			}
			result = ResultUpdated
			return nil
		}
	})
	if err != nil {
		return ResultError, err
	}
	s.cache.Put(base.ConversationDbId, base.Id, d)
	return result, nil
}

func insertDescriptorRow(tx *sql.Tx, d descriptor.Descriptor) error {
	base := d.Base()
	w := codec.NewWriter(codec.Compact)
	descriptor.Encode(w, d, descriptor.CurrentEnvelopeVersion)
	header := d.SchemaHeader()

	_, err := tx.Exec(`
		INSERT INTO descriptor (
			id, cid, sequenceId, twincodeOutbound, sendTo, replyToTwincode, replyToSequence,
			descriptorType, creationDate, sendDate, receiveDate, readDate, updateDate,
			peerDeleteDate, deleteDate, expireTimeout, flags, schemaId, schemaVersion, value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		descriptorRowId(base), int64(base.ConversationDbId), base.Id.SequenceId, base.Id.TwincodeOutboundId.String(),
		nullableUUIDString(base.SendTo), replyToTwincode(base), replyToSequence(base),
		int(base.Type), base.CreationDate, nullableInt(base.SentTimestamp), nullableInt(base.ReceivedTimestamp),
		nullableInt(base.ReadTimestamp), nullableInt(base.UpdatedTimestamp), nullableInt(base.PeerDeletedTimestamp),
		nullableInt(base.DeletedTimestamp), base.ExpireTimeout, base.Flags, header.ID.String(), header.Version, w.Bytes(),
	)
	return err
}

func updateDescriptorRow(tx *sql.Tx, d descriptor.Descriptor) error {
	base := d.Base()
	w := codec.NewWriter(codec.Compact)
	descriptor.Encode(w, d, descriptor.CurrentEnvelopeVersion)
	header := d.SchemaHeader()

	_, err := tx.Exec(`
		UPDATE descriptor SET
			sendTo = ?, replyToTwincode = ?, replyToSequence = ?, descriptorType = ?,
			creationDate = ?, sendDate = ?, receiveDate = ?, readDate = ?, updateDate = ?,
			peerDeleteDate = ?, deleteDate = ?, expireTimeout = ?, flags = ?,
			schemaId = ?, schemaVersion = ?, value = ?
		WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
		nullableUUIDString(base.SendTo), replyToTwincode(base), replyToSequence(base), int(base.Type),
		base.CreationDate, nullableInt(base.SentTimestamp), nullableInt(base.ReceivedTimestamp),
		nullableInt(base.ReadTimestamp), nullableInt(base.UpdatedTimestamp), nullableInt(base.PeerDeletedTimestamp),
		nullableInt(base.DeletedTimestamp), base.ExpireTimeout, base.Flags, header.ID.String(), header.Version, w.Bytes(),
		int64(base.ConversationDbId), base.Id.TwincodeOutboundId.String(), base.Id.SequenceId,
	)
	return err
}

// descriptorTimestampCols is the SELECT fragment for the six dedicated
// timestamp columns that live outside the persisted value blob (spec.md
// §3.2): sendDate/receiveDate/readDate/updateDate/peerDeleteDate/
// deleteDate. insertDescriptorRow/updateDescriptorRow write them; every
// load path must read them back and hydrate the decoded Descriptor's
// Base(), or a reload silently loses delivery/read state.
const descriptorTimestampCols = `sendDate, receiveDate, readDate, updateDate, peerDeleteDate, deleteDate`

// descriptorTimestamps holds one row's scan of descriptorTimestampCols.
type descriptorTimestamps struct {
	sent, received, read, updated, peerDeleted, deleted sql.NullInt64
}

func (t *descriptorTimestamps) dests() []any {
	return []any{&t.sent, &t.received, &t.read, &t.updated, &t.peerDeleted, &t.deleted}
}

// apply hydrates the dedicated-column timestamps onto a freshly decoded
// envelope; the value blob itself carries only Type, Id, CreationDate,
// Flags and (v4) expire/sendTo/replyTo.
func (t descriptorTimestamps) apply(base *descriptor.Envelope) {
	base.SentTimestamp = t.sent.Int64
	base.ReceivedTimestamp = t.received.Int64
	base.ReadTimestamp = t.read.Int64
	base.UpdatedTimestamp = t.updated.Int64
	base.PeerDeletedTimestamp = t.peerDeleted.Int64
	base.DeletedTimestamp = t.deleted.Int64
}

// LoadDescriptor loads one descriptor by (cid, twincode, sequenceId),
// hydrates its variant (including the dedicated-column timestamps), and
// attaches the aggregated annotation summary (spec.md §4.1: load path
// runs a second aggregated query over annotation grouped by kind/value
// with a count).
func (s *Store) LoadDescriptor(cid descriptor.DatabaseId, twincode uuid.UUID, sequenceId int64) (descriptor.Descriptor, error) {
	id := descriptor.Id{TwincodeOutboundId: twincode, SequenceId: sequenceId}

	d, ok := s.cache.Get(cid, id)
	if !ok {
		row := s.queryRow(`SELECT value, `+descriptorTimestampCols+` FROM descriptor WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
			int64(cid), twincode.String(), sequenceId)

		var blob []byte
		var ts descriptorTimestamps
		if err := row.Scan(append([]any{&blob}, ts.dests()...)...); err != nil {
			return nil, err
		}
		decoded, err := decodeDescriptorBlob(blob)
		if err != nil {
			return nil, err
		}
		ts.apply(decoded.Base())
		d = decoded
		s.cache.Put(cid, id, d)
	}

	summary, err := s.loadAnnotationSummary(cid, twincode, sequenceId)
	if err != nil {
		return nil, err
	}
	d.Base().Annotations = summary
	return d, nil
}

func decodeDescriptorBlob(blob []byte) (descriptor.Descriptor, error) {
	r := codec.NewReader(codec.Compact, blob)
	return descriptor.Decode(r, descriptor.CurrentEnvelopeVersion)
}

// ListLastDescriptors returns, for each distinct (twincode) in conv, the
// most recent descriptor — the "last message per conversation" list used
// by a conversation summary view. callsMode, when true, restricts the
// result to Call-type descriptors only.
func (s *Store) ListLastDescriptors(conv descriptor.DatabaseId, callsMode bool) ([]descriptor.Descriptor, error) {
	query := `
		SELECT value, ` + descriptorTimestampCols + ` FROM descriptor d
		WHERE cid = ? AND creationDate = (
			SELECT MAX(creationDate) FROM descriptor WHERE cid = d.cid AND twincodeOutbound = d.twincodeOutbound
		)`
	args := []any{int64(conv)}
	if callsMode {
		query += ` AND descriptorType = ?`
		args = append(args, int(descriptor.TypeCall))
	}

	rows, err := s.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descriptor.Descriptor
	for rows.Next() {
		var blob []byte
		var ts descriptorTimestamps
		if err := rows.Scan(append([]any{&blob}, ts.dests()...)...); err != nil {
			return nil, err
		}
		d, err := decodeDescriptorBlob(blob)
		if err != nil {
			continue // unknown schema: dropped, not fatal (spec.md §9)
		}
		ts.apply(d.Base())
		out = append(out, d)
	}
	return out, rows.Err()
}

// SearchDescriptors finds Object descriptors across convs whose message
// text contains text, created strictly before the before timestamp,
// newest first, capped at limit rows.
func (s *Store) SearchDescriptors(convs []descriptor.DatabaseId, text string, before int64, limit int) ([]descriptor.Descriptor, error) {
	if len(convs) == 0 || limit <= 0 {
		return nil, nil
	}
	placeholders := ""
	args := []any{}
	for i, c := range convs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, int64(c))
	}
	args = append(args, before, limit)

	rows, err := s.query(fmt.Sprintf(`
		SELECT value, `+descriptorTimestampCols+` FROM descriptor
		WHERE cid IN (%s) AND descriptorType = %d AND creationDate < ?
		ORDER BY creationDate DESC
		LIMIT ?`, placeholders, int(descriptor.TypeObject)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descriptor.Descriptor
	for rows.Next() {
		var blob []byte
		var ts descriptorTimestamps
		if err := rows.Scan(append([]any{&blob}, ts.dests()...)...); err != nil {
			return nil, err
		}
		d, err := decodeDescriptorBlob(blob)
		if err != nil {
			continue
		}
		ts.apply(d.Base())
		obj, ok := d.(*descriptor.Object)
		if !ok || !containsFold(obj.Message, text) {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	hl, nl := []rune(haystack), []rune(needle)
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	hl, nl = toLower(hl), toLower(nl)
	if len(nl) > len(hl) {
		return false
	}
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if hl[i+j] != nl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// MemberCutoff pairs a group member's twincode with the highest
// sequenceId to delete (inclusive), for DeleteDescriptors.
type MemberCutoff struct {
	Twincode   uuid.UUID
	MaxSeqId   int64
}

// keepMediaTypes are retained (with media zeroed) when keepMediaMessages
// is set on DeleteDescriptors (spec.md §4.1).
var keepMediaTypes = map[descriptor.Type]bool{
	descriptor.TypeObject:     true,
	descriptor.TypeImage:      true,
	descriptor.TypeVideo:      true,
	descriptor.TypeInvitation: true,
	descriptor.TypeTwincode:   true,
}

// zeroMediaSize loads the victim's current value blob, zeroes its media
// length when the variant carries a FileAttachment (Image, Video among
// keepMediaTypes), and writes the re-encoded blob back. Variants with no
// attached media (Object, Invitation, Twincode) are left untouched: the
// row survives, there is simply no media size to reclaim. Operates on
// the value blob itself, since that is where a file-bearing variant's
// Length actually lives (the descriptor table's content column is never
// populated on insert and carries no media bytes to null out).
func zeroMediaSize(tx *sql.Tx, conv descriptor.DatabaseId, twincode string, seq int64) error {
	row := tx.QueryRow(`SELECT value FROM descriptor WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
		int64(conv), twincode, seq)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		return err
	}
	d, err := decodeDescriptorBlob(blob)
	if err != nil {
		return err
	}

	changed := true
	switch v := d.(type) {
	case *descriptor.Image:
		v.Length = 0
	case *descriptor.Video:
		v.Length = 0
	default:
		changed = false
	}
	if !changed {
		return nil
	}

	w := codec.NewWriter(codec.Compact)
	descriptor.Encode(w, d, descriptor.CurrentEnvelopeVersion)
	_, err = tx.Exec(`UPDATE descriptor SET value = ? WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
		w.Bytes(), int64(conv), twincode, seq)
	return err
}

// DeleteDescriptors deletes, per member cutoff, every descriptor in conv
// at or below that member's sequenceId. When keepMediaMessages is set,
// descriptors of a keepMediaTypes kind are retained with their media
// blob's length zeroed rather than deleted outright. Returns the ids of
// operations that referenced a deleted descriptor, for the scheduler to
// evict from its in-memory queues (spec.md §4.1, §4.5).
func (s *Store) DeleteDescriptors(conv descriptor.DatabaseId, cutoffs []MemberCutoff, keepMediaMessages bool) ([]int64, error) {
	var deletedOps []int64
	err := s.withTx(func(tx *sql.Tx) error {
		for _, c := range cutoffs {
			rows, err := tx.Query(`SELECT twincodeOutbound, sequenceId, descriptorType FROM descriptor
				WHERE cid = ? AND twincodeOutbound = ? AND sequenceId <= ?`,
				int64(conv), c.Twincode.String(), c.MaxSeqId)
			if err != nil {
				return err
			}
			type victim struct {
				twincode string
				seq      int64
				typ      descriptor.Type
			}
			var victims []victim
			for rows.Next() {
				var v victim
				var typ int
				if err := rows.Scan(&v.twincode, &v.seq, &typ); err != nil {
					rows.Close()
					return err
				}
				v.typ = descriptor.Type(typ)
				victims = append(victims, v)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			for _, v := range victims {
				if keepMediaMessages && keepMediaTypes[v.typ] {
					if err := zeroMediaSize(tx, conv, v.twincode, v.seq); err != nil {
						return err
					}
					if tc, parseErr := uuid.Parse(v.twincode); parseErr == nil {
						s.cache.Invalidate(conv, descriptor.Id{TwincodeOutboundId: tc, SequenceId: v.seq})
					}
					continue
				}

				opRows, err := tx.Query(`SELECT id FROM operation WHERE cid = ? AND descTwincode = ? AND descSequence = ?`,
					int64(conv), v.twincode, v.seq)
				if err != nil {
					return err
				}
				for opRows.Next() {
					var opId int64
					if err := opRows.Scan(&opId); err != nil {
						opRows.Close()
						return err
					}
					deletedOps = append(deletedOps, opId)
				}
				opRows.Close()
				if err := opRows.Err(); err != nil {
					return err
				}

				if _, err := tx.Exec(`DELETE FROM operation WHERE cid = ? AND descTwincode = ? AND descSequence = ?`,
					int64(conv), v.twincode, v.seq); err != nil {
					return err
				}
				if _, err := tx.Exec(`DELETE FROM annotation WHERE cid = ? AND descriptorTwincode = ? AND descriptorSequence = ?`,
					int64(conv), v.twincode, v.seq); err != nil {
					return err
				}
				if _, err := tx.Exec(`DELETE FROM descriptor WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
					int64(conv), v.twincode, v.seq); err != nil {
					return err
				}
				if tc, parseErr := uuid.Parse(v.twincode); parseErr == nil {
					s.cache.Invalidate(conv, descriptor.Id{TwincodeOutboundId: tc, SequenceId: v.seq})
				}
			}
		}
		return nil
	})
	return deletedOps, err
}

// DeleteMediaDescriptors finds file-bearing descriptors in conv created
// before beforeDate. It returns three disjoint id sets: ones we can
// delete locally outright (already peer-deleted or not ours), ones that
// are ours and still need a peer-delete operation queued, and peer ids
// to acknowledge with resetDate (spec.md §4.1).
func (s *Store) DeleteMediaDescriptors(conv descriptor.DatabaseId, ourTwincode uuid.UUID, beforeDate, resetDate int64) (locallyDeletable, needsPeerDeleteOp, peersToAck []descriptor.Id, err error) {
	rows, err := s.query(`
		SELECT twincodeOutbound, sequenceId, peerDeleteDate FROM descriptor
		WHERE cid = ? AND creationDate < ? AND descriptorType IN (?, ?, ?, ?, ?)`,
		int64(conv), beforeDate, int(descriptor.TypeFile), int(descriptor.TypeImage),
		int(descriptor.TypeAudio), int(descriptor.TypeVideo), int(descriptor.TypeNamedFile))
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var twincodeStr string
		var seq int64
		var peerDeleteDate sql.NullInt64
		if err := rows.Scan(&twincodeStr, &seq, &peerDeleteDate); err != nil {
			return nil, nil, nil, err
		}
		tc, parseErr := uuid.Parse(twincodeStr)
		if parseErr != nil {
			continue
		}
		id := descriptor.Id{TwincodeOutboundId: tc, SequenceId: seq}
		switch {
		case tc != ourTwincode:
			locallyDeletable = append(locallyDeletable, id)
		case peerDeleteDate.Valid:
			locallyDeletable = append(locallyDeletable, id)
		default:
			needsPeerDeleteOp = append(needsPeerDeleteOp, id)
			peersToAck = append(peersToAck, id)
		}
	}
	return locallyDeletable, needsPeerDeleteOp, peersToAck, rows.Err()
}

// MarkDescriptorDeleted applies a peer-initiated clear at clearDate,
// setting peerDeleteDate for every descriptor from peerTwincodeId created
// before resetDate. Returns the ids now removed on both sides (i.e. we
// had already locally deleted them before the peer's clear arrived).
func (s *Store) MarkDescriptorDeleted(conv descriptor.DatabaseId, clearDate, resetDate int64, peerTwincodeId uuid.UUID, keepMedia bool) ([]descriptor.Id, error) {
	var removedBoth []descriptor.Id
	err := s.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT sequenceId, deleteDate, descriptorType FROM descriptor
			WHERE cid = ? AND twincodeOutbound = ? AND creationDate < ?`,
			int64(conv), peerTwincodeId.String(), resetDate)
		if err != nil {
			return err
		}
		type row struct {
			seq        int64
			deleted    bool
			descType   descriptor.Type
		}
		var toUpdate []row
		for rows.Next() {
			var seq int64
			var deleteDate sql.NullInt64
			var typ int
			if err := rows.Scan(&seq, &deleteDate, &typ); err != nil {
				rows.Close()
				return err
			}
			toUpdate = append(toUpdate, row{seq: seq, deleted: deleteDate.Valid, descType: descriptor.Type(typ)})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range toUpdate {
			if keepMedia && keepMediaTypes[r.descType] {
				if _, err := tx.Exec(`UPDATE descriptor SET peerDeleteDate = ? WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
					clearDate, int64(conv), peerTwincodeId.String(), r.seq); err != nil {
					return err
				}
				if err := zeroMediaSize(tx, conv, peerTwincodeId.String(), r.seq); err != nil {
					return err
				}
				s.cache.Invalidate(conv, descriptor.Id{TwincodeOutboundId: peerTwincodeId, SequenceId: r.seq})
				continue
			}
			if _, err := tx.Exec(`UPDATE descriptor SET peerDeleteDate = ? WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
				clearDate, int64(conv), peerTwincodeId.String(), r.seq); err != nil {
				return err
			}
			s.cache.Invalidate(conv, descriptor.Id{TwincodeOutboundId: peerTwincodeId, SequenceId: r.seq})
			if r.deleted {
				removedBoth = append(removedBoth, descriptor.Id{TwincodeOutboundId: peerTwincodeId, SequenceId: r.seq})
				if _, err := tx.Exec(`DELETE FROM descriptor WHERE cid = ? AND twincodeOutbound = ? AND sequenceId = ?`,
					int64(conv), peerTwincodeId.String(), r.seq); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return removedBoth, err
}

func descriptorRowId(e *descriptor.Envelope) string {
	return fmt.Sprintf("%s:%d", e.Id.TwincodeOutboundId.String(), e.Id.SequenceId)
}

func nullableUUIDString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func replyToTwincode(e *descriptor.Envelope) any {
	if e.ReplyTo == nil {
		return nil
	}
	return e.ReplyTo.TwincodeOutboundId.String()
}

func replyToSequence(e *descriptor.Envelope) any {
	if e.ReplyTo == nil {
		return nil
	}
	return e.ReplyTo.SequenceId
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
