package store

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conversation.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateConversationIsIdempotentByUUID(t *testing.T) {
	s := openTestStore(t)
	c1, err := s.CreateConversation("conv-uuid-1", "subject-blob", "resource-1", 1000)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	c2, err := s.CreateConversation("conv-uuid-1", "subject-blob", "resource-1", 2000)
	if err != nil {
		t.Fatalf("CreateConversation (again): %v", err)
	}
	if c1.DbId != c2.DbId {
		t.Errorf("expected same conversation, got DbId %d and %d", c1.DbId, c2.DbId)
	}
}

func TestCreateGroupMemberRejectsOverCapacity(t *testing.T) {
	s := openTestStore(t)
	group, err := s.CreateGroupConversation("group-uuid", "group-subject", "resource-1", 1000)
	if err != nil {
		t.Fatalf("CreateGroupConversation: %v", err)
	}

	for i := 0; i < MaxGroupMembers; i++ {
		uuidStr := uuid.New().String()
		if _, err := s.CreateGroupMember(group.DbId, uuidStr, uuid.New().String(), 0, nil, 1000); err != nil {
			t.Fatalf("member %d: %v", i, err)
		}
	}

	_, err = s.CreateGroupMember(group.DbId, uuid.New().String(), uuid.New().String(), 0, nil, 1000)
	if err != ErrGroupFull {
		t.Fatalf("expected ErrGroupFull at capacity, got %v", err)
	}
}

func TestCreateAndLoadDescriptor(t *testing.T) {
	s := openTestStore(t)
	conv, err := s.CreateConversation("conv-1", "subject", "resource-1", 1000)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	ourTwincode := uuid.New()

	d, err := s.CreateDescriptor(conv.DbId, ourTwincode, 5000, func(id descriptor.Id) descriptor.Descriptor {
		return descriptor.NewObject(id, conv.DbId, 5000, "hello")
	})
	if err != nil {
		t.Fatalf("CreateDescriptor: %v", err)
	}
	base := d.Base()
	if base.SentTimestamp != -1 || base.ReceivedTimestamp != -1 || base.ReadTimestamp != -1 {
		t.Errorf("expected unsent sentinel timestamps, got %+v", base)
	}

	loaded, err := s.LoadDescriptor(conv.DbId, base.Id.TwincodeOutboundId, base.Id.SequenceId)
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	obj, ok := loaded.(*descriptor.Object)
	if !ok || obj.Message != "hello" {
		t.Errorf("loaded descriptor mismatch: %+v", loaded)
	}
}

func TestInsertOrUpdateDescriptorDedupes(t *testing.T) {
	s := openTestStore(t)
	conv, _ := s.CreateConversation("conv-2", "subject", "resource-1", 1000)
	peerTwincode := uuid.New()
	id := descriptor.Id{TwincodeOutboundId: peerTwincode, SequenceId: 1}

	obj := descriptor.NewObject(id, conv.DbId, 1000, "first")
	result, err := s.InsertOrUpdateDescriptor(obj)
	if err != nil || result != ResultStored {
		t.Fatalf("first insert: result=%v err=%v", result, err)
	}

	obj2 := descriptor.NewObject(id, conv.DbId, 1000, "updated")
	result, err = s.InsertOrUpdateDescriptor(obj2)
	if err != nil || result != ResultUpdated {
		t.Fatalf("second insert: result=%v err=%v", result, err)
	}

	loaded, err := s.LoadDescriptor(conv.DbId, peerTwincode, 1)
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	if loaded.(*descriptor.Object).Message != "updated" {
		t.Errorf("expected deduped row to carry updated content")
	}
}

func TestAnnotationSummaryAggregates(t *testing.T) {
	s := openTestStore(t)
	conv, _ := s.CreateConversation("conv-3", "subject", "resource-1", 1000)
	ourTwincode := uuid.New()
	d, err := s.CreateDescriptor(conv.DbId, ourTwincode, 1000, func(id descriptor.Id) descriptor.Descriptor {
		return descriptor.NewObject(id, conv.DbId, 1000, "hi")
	})
	if err != nil {
		t.Fatalf("CreateDescriptor: %v", err)
	}
	descId := d.Base().Id

	peer1, peer2 := uuid.New(), uuid.New()
	anns := []descriptor.Annotation{
		{Kind: descriptor.AnnotationLike, Value: 1, PeerTwincodeOutboundId: &peer1, CreationDate: 10},
		{Kind: descriptor.AnnotationLike, Value: 1, PeerTwincodeOutboundId: &peer2, CreationDate: 11},
		{Kind: descriptor.AnnotationLike, Value: 2, PeerTwincodeOutboundId: nil, CreationDate: 12},
	}
	for _, a := range anns {
		if err := s.UpsertAnnotation(conv.DbId, descId, a); err != nil {
			t.Fatalf("UpsertAnnotation: %v", err)
		}
	}

	loaded, err := s.LoadDescriptor(conv.DbId, descId.TwincodeOutboundId, descId.SequenceId)
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	summary := loaded.Base().Annotations
	if len(summary) != 2 {
		t.Fatalf("expected 2 summary rows (kind,value) groups, got %d: %+v", len(summary), summary)
	}
	var likeValue1Count int
	for _, s := range summary {
		if s.Kind == descriptor.AnnotationLike && s.Value == 1 {
			likeValue1Count = s.Count
		}
	}
	if likeValue1Count != 2 {
		t.Errorf("expected count 2 for (Like, 1), got %d", likeValue1Count)
	}
}

func TestLoadOperationsExpiresOldRows(t *testing.T) {
	s := openTestStore(t)
	conv, _ := s.CreateConversation("conv-4", "subject", "resource-1", 1000)

	recentId, err := s.EnqueueOperation(Operation{CreationDate: 900_000, ConvDbId: conv.DbId, Type: OpPushObject})
	if err != nil {
		t.Fatalf("enqueue recent: %v", err)
	}
	_, err = s.EnqueueOperation(Operation{CreationDate: 0, ConvDbId: conv.DbId, Type: OpPushObject})
	if err != nil {
		t.Fatalf("enqueue old: %v", err)
	}

	now := int64(OperationExpiry) + 500_000
	byConv, err := s.LoadOperations(now)
	if err != nil {
		t.Fatalf("LoadOperations: %v", err)
	}
	ops := byConv[conv.DbId]
	if len(ops) != 1 || ops[0].Id != recentId {
		t.Fatalf("expected only the recent operation to survive, got %+v", ops)
	}
}

func TestDescriptorTimestampsSurviveReload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conversation.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	conv, err := s.CreateConversation("conv-reload", "subject", "resource-1", 1000)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	ourTwincode := uuid.New()
	d, err := s.CreateDescriptor(conv.DbId, ourTwincode, 1000, func(id descriptor.Id) descriptor.Descriptor {
		return descriptor.NewObject(id, conv.DbId, 1000, "hi")
	})
	if err != nil {
		t.Fatalf("CreateDescriptor: %v", err)
	}
	descId := d.Base().Id

	d.Base().SentTimestamp = 1_700_000_000_000
	d.Base().ReceivedTimestamp = 1_700_000_000_100
	d.Base().ReadTimestamp = 1_700_000_000_200
	if _, err := s.InsertOrUpdateDescriptor(d); err != nil {
		t.Fatalf("InsertOrUpdateDescriptor: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen at the same path with a fresh (empty) cache, so the load
	// below can only be satisfied by the database columns, not by an
	// in-process cache entry surviving from the first Store.
	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { s2.Close() })

	loaded, err := s2.LoadDescriptor(conv.DbId, descId.TwincodeOutboundId, descId.SequenceId)
	if err != nil {
		t.Fatalf("LoadDescriptor after reload: %v", err)
	}
	base := loaded.Base()
	if base.SentTimestamp != 1_700_000_000_000 {
		t.Errorf("expected sentTimestamp to survive reload, got %d", base.SentTimestamp)
	}
	if base.ReceivedTimestamp != 1_700_000_000_100 {
		t.Errorf("expected receivedTimestamp to survive reload, got %d", base.ReceivedTimestamp)
	}
	if base.ReadTimestamp != 1_700_000_000_200 {
		t.Errorf("expected readTimestamp to survive reload, got %d", base.ReadTimestamp)
	}
}

func TestDescriptorCacheEvictsAtCapacity(t *testing.T) {
	c := NewDescriptorCache(2)
	conv := descriptor.DatabaseId(1)
	id1 := descriptor.Id{TwincodeOutboundId: uuid.New(), SequenceId: 1}
	id2 := descriptor.Id{TwincodeOutboundId: uuid.New(), SequenceId: 2}
	id3 := descriptor.Id{TwincodeOutboundId: uuid.New(), SequenceId: 3}

	c.Put(conv, id1, descriptor.NewObject(id1, conv, 1, "a"))
	c.Put(conv, id2, descriptor.NewObject(id2, conv, 1, "b"))
	c.Put(conv, id3, descriptor.NewObject(id3, conv, 1, "c"))

	if c.Len() > 2 {
		t.Fatalf("expected cache bounded at 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get(conv, id1); ok {
		t.Errorf("expected oldest entry evicted")
	}
	if _, ok := c.Get(conv, id3); !ok {
		t.Errorf("expected most recently inserted entry to survive")
	}
}
