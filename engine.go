// Package engine is the public façade of the conversation engine: it
// wires the persistence provider (internal/store), the descriptor model
// (internal/descriptor), the IQ/operation set (internal/iq) and the
// scheduler (internal/scheduler) into one object per spec.md §2's data
// flow ("external caller → E (enqueue) → B (persist) → E picks up when
// online → D builds an IQ via A → transport delivers"). It mirrors the
// shape of goop2's App/Node construction in main.go and
// internal/p2p/node.go: one object owns every subsystem's lifecycle and
// exposes a small, typed API to callers instead of letting them reach
// into internal packages directly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/config"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/events"
	"github.com/petervdpas/conversation-engine/internal/iq"
	"github.com/petervdpas/conversation-engine/internal/scheduler"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
)

// Engine is one running conversation-engine instance: the persistence
// provider, the operation scheduler/connection manager, and the event
// bus, all bound to a single local identity (spec.md §9 "one engine
// instance per process").
type Engine struct {
	store       *store.Store
	sched       *scheduler.Scheduler
	bus         *events.Bus
	cfg         config.Config
	ourTwincode uuid.UUID
	now         func() int64

	cancel context.CancelFunc
}

// Clock lets callers (tests, the demo CLI) substitute a deterministic
// time source; it defaults to time.Now in milliseconds.
type Clock = func() int64

func defaultClock() int64 { return time.Now().UnixMilli() }

// Open opens (or creates) the database at cfg.Storage.DatabasePath,
// constructs the scheduler bound to opener, and returns a ready-to-Run
// Engine. ourTwincode is this device's own outbound twincode identity,
// opaque to the engine beyond string comparisons (spec.md §4.5
// canAcceptIncoming tie-break).
func Open(cfg config.Config, ourTwincode uuid.UUID, opener scheduler.ConnectionOpener, clock Clock) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	if clock == nil {
		clock = defaultClock
	}

	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	deps := iq.ExecDeps{Store: st, OurTwincode: ourTwincode, Now: clock, Bus: bus}
	sched := scheduler.New(st, opener, bus, cfg.Scheduler, deps)

	e := &Engine{
		store:       st,
		sched:       sched,
		bus:         bus,
		cfg:         cfg,
		ourTwincode: ourTwincode,
		now:         clock,
	}
	if err := sched.Load(); err != nil {
		st.Close()
		return nil, fmt.Errorf("engine: load operations: %w", err)
	}
	return e, nil
}

// Run starts the scheduler's background scheduling-cycle goroutine. ctx
// governs its lifetime; Close also stops it.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.sched.Run(ctx)
}

// Close stops the scheduler and closes the underlying database handle.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.sched.Stop()
	return e.store.Close()
}

// Events returns a channel of lifecycle events (spec.md §6.3). Each call
// registers a new independent subscriber.
func (e *Engine) Events() <-chan events.Event {
	return e.bus.Subscribe()
}

// OurTwincode returns this engine's own outbound twincode identity.
func (e *Engine) OurTwincode() uuid.UUID {
	return e.ourTwincode
}

// EnterForeground/EnterBackground forward the host process's lifecycle
// transition to the scheduler, which tunes connection limits, idle
// timeouts, and deferred-operation promotion accordingly (spec.md §4.5).
func (e *Engine) EnterForeground() { e.sched.EnterForeground() }
func (e *Engine) EnterBackground() { e.sched.EnterBackground() }

// OnTwinlifeOnline signals that the transport has come online, deferring
// the first scheduling pass when backgrounded (spec.md §4.5 step 3).
func (e *Engine) OnTwinlifeOnline() { e.sched.OnTwinlifeOnline() }

// --- Conversations -------------------------------------------------

// OpenContact returns the existing 1-to-1 conversation for peerUuid, or
// creates it, and binds its peer twincode to the scheduler so the
// connection manager knows how to dial it (spec.md §4.1
// createConversation, §4.5 SetPeer).
func (e *Engine) OpenContact(peerUuid, subject, resourceId, peerTwincode string) (*store.Conversation, error) {
	conv, err := e.store.CreateConversation(peerUuid, subject, resourceId, e.now())
	if err != nil {
		return nil, err
	}
	e.sched.SetPeer(conv.DbId, peerTwincode)
	return conv, nil
}

// OpenGroup returns the existing group conversation for groupUuid, or
// creates it (spec.md §4.1 createGroupConversation).
func (e *Engine) OpenGroup(groupUuid, subject, resourceId string) (*store.Conversation, error) {
	return e.store.CreateGroupConversation(groupUuid, subject, resourceId, e.now())
}

// AddGroupMember returns the existing member conversation for
// memberUuid within group, or creates it, rejecting when the group is at
// capacity (spec.md §4.1 createGroupMember, store.ErrGroupFull).
func (e *Engine) AddGroupMember(group descriptor.DatabaseId, memberUuid, memberTwincodeId string, permissions uint32, invitedContact *descriptor.DatabaseId) (*store.Conversation, error) {
	member, err := e.store.CreateGroupMember(group, memberUuid, memberTwincodeId, permissions, invitedContact, e.now())
	if err != nil {
		return nil, err
	}
	e.sched.SetPeer(member.DbId, memberTwincodeId)
	return member, nil
}

// SetConversationPeer (re)binds the twincode the scheduler dials for
// conv, e.g. once a contact's peer twincode is (re)resolved.
func (e *Engine) SetConversationPeer(conv descriptor.DatabaseId, peerTwincode string) {
	e.sched.SetPeer(conv, peerTwincode)
}

// CloseConversation removes conv's operations and connection handle
// atomically and deletes its persisted rows (spec.md §4.5 removal
// guarantees, §4.1 lifecycle).
func (e *Engine) CloseConversation(conv descriptor.DatabaseId) error {
	e.sched.RemoveConversation(conv)
	return e.store.DeleteConversation(conv)
}

// --- Sending ---------------------------------------------------------

// SendMessage creates an Object descriptor, persists it, and enqueues a
// PushObject operation to deliver it (spec.md §4.4 type 2). deferrable
// delays delivery until the conversation's link is already open or the
// host backgrounds (spec.md §4.5 "deferrable operations").
func (e *Engine) SendMessage(conv descriptor.DatabaseId, message string, deferrable bool) (*descriptor.Object, int64, error) {
	d, err := e.store.CreateDescriptor(conv, e.ourTwincode, e.now(), func(id descriptor.Id) descriptor.Descriptor {
		return descriptor.NewObject(id, conv, e.now(), message)
	})
	if err != nil {
		return nil, 0, err
	}
	obj := d.(*descriptor.Object)

	opId, err := e.sched.Enqueue(conv, store.Operation{
		CreationDate: e.now(),
		Type:         store.OpPushObject,
		DescId:       &obj.Id,
	}, deferrable)
	if err != nil {
		return nil, 0, err
	}
	return obj, opId, nil
}

// SendFile creates a File descriptor pointing at localPath (already
// placed under the engine's files directory by the caller) and enqueues
// a PushFile operation to stream it in 262,144-byte windows (spec.md
// §4.3, §4.4 type 4).
func (e *Engine) SendFile(conv descriptor.DatabaseId, att descriptor.FileAttachment, deferrable bool) (*descriptor.File, int64, error) {
	d, err := e.store.CreateDescriptor(conv, e.ourTwincode, e.now(), func(id descriptor.Id) descriptor.Descriptor {
		return descriptor.NewFile(id, conv, e.now(), att)
	})
	if err != nil {
		return nil, 0, err
	}
	file := d.(*descriptor.File)

	chunkStart := iq.NotInitialized
	opId, err := e.sched.Enqueue(conv, store.Operation{
		CreationDate: e.now(),
		Type:         store.OpPushFile,
		DescId:       &file.Id,
		ChunkStart:   &chunkStart,
	}, deferrable)
	if err != nil {
		return nil, 0, err
	}
	return file, opId, nil
}

// ResetConversation enqueues a ResetConversation operation asking the
// peer (and, for groups, each member) to delete everything at or below
// the given sequence ids (spec.md §4.4 type 0, §8 scenario 3).
func (e *Engine) ResetConversation(conv descriptor.DatabaseId, minSeq int64, peerMinSeq map[uuid.UUID]int64, resetMembers bool) (int64, error) {
	content := iq.EncodeResetContent(iq.ResetContent{MinSeq: minSeq, PeerMinSeq: peerMinSeq, ResetMembers: resetMembers})
	return e.sched.Enqueue(conv, store.Operation{
		CreationDate: e.now(),
		Type:         store.OpResetConversation,
		Content:      content,
	}, false)
}

// --- Incoming links --------------------------------------------------

// CanAcceptIncoming applies the scheduler's tie-break so the transport
// layer knows whether to accept or reject an inbound link attempt
// (spec.md §4.5).
func (e *Engine) CanAcceptIncoming(conv descriptor.DatabaseId, peerTwincode string) bool {
	return e.sched.CanAcceptIncoming(conv, e.ourTwincode.String(), peerTwincode)
}

// AcceptIncoming registers a transport-accepted inbound link with the
// scheduler.
func (e *Engine) AcceptIncoming(conv descriptor.DatabaseId, peerTwincode string, conn transport.PeerConnection) {
	e.sched.AcceptIncoming(conv, peerTwincode, conn)
}

// Store exposes the persistence provider directly for reads that have
// no scheduler side effect (listing conversations, loading descriptors,
// searching); every mutation that needs to touch the in-memory operation
// queues goes through a typed Engine method instead.
func (e *Engine) Store() *store.Store {
	return e.store
}
