// Package scheduler is the operation queue and connection manager of
// spec.md §4.5: it holds every waiting and in-flight operation bucketed
// by conversation, opens and closes peer links through a bounded pool,
// and dispatches each conversation's operations one at a time onto its
// link, correlating responses back to the Operation that sent the
// request. It is grounded on internal/group.Manager's mutex+map
// connection bookkeeping and internal/state.PeerTable's time-threshold
// idle sweep, generalized from per-group connections to per-conversation
// operation queues.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/petervdpas/conversation-engine/internal/config"
	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/events"
	"github.com/petervdpas/conversation-engine/internal/iq"
	"github.com/petervdpas/conversation-engine/internal/store"
	"github.com/petervdpas/conversation-engine/internal/transport"
)

// ConnectionOpener dials a new outgoing link for one conversation. The
// concrete transport (internal/transport/libp2p.Manager, adapted by the
// engine façade) resolves peerTwincode to whatever address scheme it
// needs; the scheduler only ever depends on this abstraction, never a
// concrete transport package (spec.md §4.5, §6.1).
type ConnectionOpener interface {
	Open(ctx context.Context, conv descriptor.DatabaseId, peerTwincode string) (transport.PeerConnection, error)
}

// convState is one conversation's bookkeeping, held entirely under
// Scheduler.mu (spec.md §4.5: "state held under a single lock").
type convState struct {
	conv         descriptor.DatabaseId
	peerTwincode string
	hasPeer      bool

	conn        transport.PeerConnection
	active      iq.Operation
	activeReqId int64
	fileBusy    bool

	waiting  []store.Operation // ordered by (creationDate, id); front is next to dispatch
	deferred []store.Operation // queued while closed, promoted on link-open or background

	backoffIdx  int
	nextAttempt int64 // unix millis; dial attempts before this are skipped
	lastActivity int64 // unix millis, drives idle detection
}

// Scheduler implements spec.md §4.5 in full: load-path expiry sweep,
// connection lifecycle (canAcceptIncoming/startOutgoing tie-break,
// backoff table), the scheduling cycle, per-connection dispatch, idle
// detection, and deferrable-operation promotion.
type Scheduler struct {
	mu sync.Mutex

	store  *store.Store
	opener ConnectionOpener
	bus    *events.Bus
	cfg    config.Scheduler
	deps   iq.ExecDeps
	now    func() int64

	conversations map[descriptor.DatabaseId]*convState
	foreground    bool
	backoffTable  []int

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler. deps.Now supplies the clock used for
// idle/backoff timestamps everywhere in this package.
func New(st *store.Store, opener ConnectionOpener, bus *events.Bus, cfg config.Scheduler, deps iq.ExecDeps) *Scheduler {
	return &Scheduler{
		store:         st,
		opener:        opener,
		bus:           bus,
		cfg:           cfg,
		deps:          deps,
		now:           deps.Now,
		conversations: make(map[descriptor.DatabaseId]*convState),
		foreground:    true,
		backoffTable:  backoffSeconds(cfg),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
}

func backoffSeconds(cfg config.Scheduler) []int {
	if len(cfg.BackoffSeconds) > 0 {
		return cfg.BackoffSeconds
	}
	return config.DefaultBackoffSeconds
}

func (s *Scheduler) convStateLocked(conv descriptor.DatabaseId) *convState {
	cs, ok := s.conversations[conv]
	if !ok {
		cs = &convState{conv: conv}
		s.conversations[conv] = cs
	}
	return cs
}

// Load runs the 14-day expiry sweep and buckets every surviving
// operation by conversation (spec.md §4.5 "Load path").
func (s *Scheduler) Load() error {
	byConv, err := s.store.LoadOperations(s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conv, ops := range byConv {
		cs := s.convStateLocked(conv)
		cs.waiting = append(cs.waiting, ops...)
	}
	return nil
}

// SetPeer records which twincode a conversation's link should dial,
// needed because a row loaded by Load only carries a conversation id,
// not a peer address (spec.md §9: twincode resolution is an engine
// façade concern, not this package's).
func (s *Scheduler) SetPeer(conv descriptor.DatabaseId, peerTwincode string) {
	s.mu.Lock()
	cs := s.convStateLocked(conv)
	cs.peerTwincode = peerTwincode
	cs.hasPeer = peerTwincode != ""
	s.mu.Unlock()
	s.Wake()
}

// Enqueue persists op and queues it for delivery. A deferrable
// operation added while the conversation has no open link sits in
// deferredOperations until promoted (spec.md §4.5).
func (s *Scheduler) Enqueue(conv descriptor.DatabaseId, op store.Operation, deferrable bool) (int64, error) {
	op.ConvDbId = conv
	id, err := s.store.EnqueueOperation(op)
	if err != nil {
		return 0, err
	}
	op.Id = id

	s.mu.Lock()
	cs := s.convStateLocked(conv)
	if deferrable && cs.conn == nil {
		cs.deferred = append(cs.deferred, op)
	} else {
		cs.waiting = append(cs.waiting, op)
	}
	s.mu.Unlock()

	s.bus.Publish(events.Event{Type: events.OperationQueued, Conv: conv, OperationId: id})
	s.Wake()
	return id, nil
}

// Run starts the scheduling-cycle goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the scheduling loop without closing open links.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// Wake requests an immediate scheduling cycle rather than waiting for
// the next tick (spec.md §4.5 step 2: "arm a single job").
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.IdleCheckIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.wake:
			s.cycle(ctx)
		}
	}
}

// cycle is one scheduling pass (spec.md §4.5 "Scheduling cycle"):
// harvest conversations ready to dial, dispatch operations on links
// already open, and close links that have gone idle.
func (s *Scheduler) cycle(ctx context.Context) {
	now := s.now()
	var toOpen []*convState
	var toDispatch []*convState
	var toClose []*convState

	s.mu.Lock()
	for _, cs := range s.conversations {
		if !cs.hasPeer {
			continue
		}
		if cs.conn != nil && cs.conn.State() == transport.Open {
			switch {
			case cs.active == nil && len(cs.waiting) > 0:
				toDispatch = append(toDispatch, cs)
			case cs.active == nil && len(cs.waiting) == 0 && s.idleLocked(cs, now):
				toClose = append(toClose, cs)
			}
			continue
		}
		if cs.conn == nil && len(cs.waiting) > 0 && now >= cs.nextAttempt {
			toOpen = append(toOpen, cs)
		}
	}
	limit := s.activeLimitLocked()
	if limit < len(toOpen) {
		toOpen = toOpen[:limit]
	}
	s.mu.Unlock()

	for i, cs := range toOpen {
		go s.dial(ctx, cs, time.Duration(i*50)*time.Millisecond)
	}
	for _, cs := range toDispatch {
		s.runOperations(ctx, cs)
	}
	for _, cs := range toClose {
		s.closeConversation(cs, transport.ReasonSuccess)
	}
}

// activeLimitLocked returns how many more links may be opened this
// cycle under the foreground/background connection cap (spec.md §4.5).
func (s *Scheduler) activeLimitLocked() int {
	max := s.cfg.MaxActiveConnectionsForeground
	if !s.foreground {
		max = s.cfg.MaxActiveConnectionsBackground
	}
	open := 0
	for _, cs := range s.conversations {
		if cs.conn != nil && cs.conn.State() == transport.Open {
			open++
		}
	}
	if remaining := max - open; remaining > 0 {
		return remaining
	}
	return 0
}

// idleLocked reports whether cs's open, otherwise-quiescent link has
// been idle past its threshold (spec.md §4.5 "Idle detection").
func (s *Scheduler) idleLocked(cs *convState, now int64) bool {
	threshold := s.cfg.IdleTimeoutForegroundSec
	if !s.foreground {
		threshold = s.cfg.IdleTimeoutBackgroundSec
	}
	if cs.fileBusy {
		threshold *= 2
	}
	if cs.conn.PeerDeviceState()&transport.DeviceHasOperations != 0 {
		threshold += 5
	}
	return now-cs.lastActivity > int64(threshold)*1000
}

// CanAcceptIncoming applies the per-conversation tie-break of spec.md
// §4.5: defer to an already-open link; otherwise the lower twincode
// outbound accepts, letting the other side's outgoing dial win.
func (s *Scheduler) CanAcceptIncoming(conv descriptor.DatabaseId, ourTwincode, peerTwincode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.convStateLocked(conv)
	if cs.conn != nil {
		return false
	}
	return ourTwincode < peerTwincode
}

// AcceptIncoming registers an inbound link accepted via CanAcceptIncoming.
func (s *Scheduler) AcceptIncoming(conv descriptor.DatabaseId, peerTwincode string, conn transport.PeerConnection) {
	s.mu.Lock()
	cs := s.convStateLocked(conv)
	cs.peerTwincode = peerTwincode
	cs.hasPeer = true
	cs.conn = conn
	cs.backoffIdx = 0
	cs.nextAttempt = 0
	cs.lastActivity = s.now()
	s.mu.Unlock()

	s.wireConnection(conv, conn)
	s.bus.Publish(events.Event{Type: events.ConversationConnected, Conv: conv})
	s.promoteDeferred(conv)
	s.Wake()
}

// StartOutgoing clears any pending backoff delay for conv so the next
// cycle dials immediately (spec.md §4.5 "startOutgoing: ... reset
// per-conversation backoff").
func (s *Scheduler) StartOutgoing(conv descriptor.DatabaseId) {
	s.mu.Lock()
	cs := s.convStateLocked(conv)
	if cs.conn == nil {
		cs.backoffIdx = 0
		cs.nextAttempt = 0
	}
	s.mu.Unlock()
	s.Wake()
}

// OnTwinlifeOnline defers the first scheduling pass by
// DelayAfterOnlineMillis when backgrounded, so inbound links get a
// chance to land first and avoid BUSY collisions (spec.md §4.5 step 3).
func (s *Scheduler) OnTwinlifeOnline() {
	s.mu.Lock()
	fg := s.foreground
	s.mu.Unlock()
	if fg {
		s.Wake()
		return
	}
	delay := time.Duration(s.cfg.DelayAfterOnlineMillis) * time.Millisecond
	time.AfterFunc(delay, s.Wake)
}

// EnterBackground marks the host process backgrounded and promotes
// every conversation's deferred operations, since the app is signaling
// it won't produce more near-term writes (spec.md §4.5).
func (s *Scheduler) EnterBackground() {
	s.mu.Lock()
	s.foreground = false
	convs := make([]descriptor.DatabaseId, 0, len(s.conversations))
	for c := range s.conversations {
		convs = append(convs, c)
	}
	s.mu.Unlock()
	for _, c := range convs {
		s.promoteDeferred(c)
	}
}

// EnterForeground marks the host process foregrounded.
func (s *Scheduler) EnterForeground() {
	s.mu.Lock()
	s.foreground = true
	s.mu.Unlock()
	s.Wake()
}

func (s *Scheduler) promoteDeferred(conv descriptor.DatabaseId) {
	s.mu.Lock()
	cs, ok := s.conversations[conv]
	if !ok || len(cs.deferred) == 0 {
		s.mu.Unlock()
		return
	}
	cs.waiting = append(cs.waiting, cs.deferred...)
	cs.deferred = nil
	s.mu.Unlock()
	s.Wake()
}

func (s *Scheduler) wireConnection(conv descriptor.DatabaseId, conn transport.PeerConnection) {
	conn.OnReceive(func(payload []byte) {
		s.handleIncoming(conv, payload)
	})
	conn.OnStateChange(func(state transport.State, reason transport.CloseReason) {
		if state == transport.Closed {
			s.handleClosed(conv, reason)
		}
	})
}

func (s *Scheduler) dial(ctx context.Context, cs *convState, delay time.Duration) {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.stop:
			return
		}
	}
	conn, err := s.opener.Open(ctx, cs.conv, cs.peerTwincode)
	if err != nil {
		s.mu.Lock()
		s.advanceBackoffLocked(cs, transport.ReasonConnectivityError)
		s.mu.Unlock()
		log.Printf("[scheduler] dial conversation %d: %v", cs.conv, err)
		return
	}

	s.mu.Lock()
	cs.conn = conn
	cs.backoffIdx = 0
	cs.nextAttempt = 0
	cs.lastActivity = s.now()
	s.mu.Unlock()

	s.wireConnection(cs.conv, conn)
	s.bus.Publish(events.Event{Type: events.ConversationConnected, Conv: cs.conv})
	s.promoteDeferred(cs.conv)
	s.Wake()
}

func (s *Scheduler) advanceBackoffLocked(cs *convState, reason transport.CloseReason) {
	cs.backoffIdx = nextBackoffIndex(cs.backoffIdx, reason, len(s.backoffTable))
	cs.nextAttempt = s.now() + int64(s.backoffTable[cs.backoffIdx])*1000
}

func (s *Scheduler) closeConversation(cs *convState, reason transport.CloseReason) {
	s.mu.Lock()
	conn := cs.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(reason)
	}
}

func (s *Scheduler) handleClosed(conv descriptor.DatabaseId, reason transport.CloseReason) {
	s.mu.Lock()
	cs, ok := s.conversations[conv]
	if !ok {
		s.mu.Unlock()
		return
	}
	cs.conn = nil
	cs.active = nil
	cs.activeReqId = 0
	cs.fileBusy = false
	s.advanceBackoffLocked(cs, reason)
	s.mu.Unlock()

	s.bus.Publish(events.Event{Type: events.ConversationDisconnected, Conv: conv, DisconnectReason: closeReasonString(reason)})
	s.Wake()
}

// runOperations dispatches waiting operations on cs's open link one at
// a time, advancing past any that complete (or fail terminally)
// synchronously, until one goes in flight or the queue empties (spec.md
// §4.5 "Per-connection work").
func (s *Scheduler) runOperations(ctx context.Context, cs *convState) {
	for {
		s.mu.Lock()
		if cs.active != nil || len(cs.waiting) == 0 || cs.conn == nil {
			s.mu.Unlock()
			return
		}
		row := cs.waiting[0]
		conn := cs.conn
		s.mu.Unlock()

		op, err := iq.Build(row)
		if err != nil {
			log.Printf("[scheduler] build operation %d: %v", row.Id, err)
			s.mu.Lock()
			cs.waiting = removeOperation(cs.waiting, row.Id)
			s.mu.Unlock()
			_ = s.store.DeleteOperation(row.Id)
			continue
		}

		reqId, code := op.Execute(ctx, conn, s.deps)

		s.mu.Lock()
		cs.lastActivity = s.now()
		if code == iq.Queued && reqId != 0 {
			cs.active = op
			cs.activeReqId = reqId
			cs.fileBusy = row.Type == store.OpPushFile
			s.mu.Unlock()
			return
		}
		s.finishOperationLocked(cs, op, code)
		needsClose := code == iq.Transient || code == iq.Fatal
		s.mu.Unlock()

		if needsClose {
			s.closeConversation(cs, closeReasonFor(code))
			return
		}
	}
}

// handleIncoming correlates an inbound payload to cs's in-flight
// operation by requestId and feeds it to HandleResponse (spec.md §4.5,
// §5 "responses ... correlated via (conversationDbId, requestId)"). A
// payload that doesn't correlate to an operation this engine sent is a
// fresh request arriving from the peer, routed to the inbound IQ
// dispatcher instead (spec.md §2's "peer applies, persists via B,
// answers via A" half of the data flow, which Execute/HandleResponse
// alone never exercise).
func (s *Scheduler) handleIncoming(conv descriptor.DatabaseId, payload []byte) {
	_, reqId, ok := iq.PeekKind(payload)
	if !ok {
		return
	}

	s.mu.Lock()
	cs, exists := s.conversations[conv]
	if !exists {
		s.mu.Unlock()
		return
	}
	if cs.active == nil || cs.activeReqId != reqId {
		conn := cs.conn
		s.mu.Unlock()
		if conn != nil {
			s.handleInboundRequest(conv, payload, conn)
		}
		return
	}
	op := cs.active
	conn := cs.conn
	s.mu.Unlock()

	done, code, nextReqId := op.HandleResponse(context.Background(), payload, conn, s.deps)

	s.mu.Lock()
	cs.lastActivity = s.now()
	if !done && nextReqId != 0 {
		cs.activeReqId = nextReqId
		s.mu.Unlock()
		return
	}
	s.finishOperationLocked(cs, op, code)
	needsClose := code == iq.Transient || code == iq.Fatal
	s.mu.Unlock()

	if needsClose {
		s.closeConversation(cs, closeReasonFor(code))
	}
	s.Wake()
}

// handleInboundRequest applies a peer-initiated IQ request through
// internal/iq's inbound dispatcher and sends back whatever reply it
// produces. A ResetConversationReq additionally evicts any operations
// that referenced a now-deleted descriptor from every in-memory queue
// (spec.md §4.1, §4.5).
func (s *Scheduler) handleInboundRequest(conv descriptor.DatabaseId, payload []byte, conn transport.PeerConnection) {
	resp, reset, err := iq.HandleInboundWithResult(context.Background(), conv, payload, conn, s.deps)
	if err != nil {
		log.Printf("[scheduler] inbound request on conversation %d: %v", conv, err)
		return
	}
	if resp != nil {
		if err := conn.SendPacket(context.Background(), resp); err != nil {
			log.Printf("[scheduler] reply to conversation %d: %v", conv, err)
		}
	}
	if reset != nil && len(reset.DeletedOperationIds) > 0 {
		s.EvictOperations(reset.DeletedOperationIds)
	}

	s.mu.Lock()
	if cs, ok := s.conversations[conv]; ok {
		cs.lastActivity = s.now()
	}
	s.mu.Unlock()
	s.Wake()
}

// finishOperationLocked applies the outcome of spec.md §7's taxonomy to
// a completed or terminally-failed operation: Success and the other
// terminal codes delete the row and emit an event; Transient/Fatal leave
// it queued for retry, and DatabaseError is logged and also left queued,
// with no event emitted.
func (s *Scheduler) finishOperationLocked(cs *convState, op iq.Operation, code iq.ErrorCode) {
	row := op.Row()
	cs.active = nil
	cs.activeReqId = 0
	cs.fileBusy = false

	switch code {
	case iq.Transient, iq.Fatal:
		return
	case iq.DatabaseError:
		log.Printf("[scheduler] operation %d: database error", row.Id)
		return
	}

	if err := s.store.DeleteOperation(row.Id); err != nil {
		log.Printf("[scheduler] delete operation %d: %v", row.Id, err)
	}
	cs.waiting = removeOperation(cs.waiting, row.Id)

	if code == iq.Success {
		s.bus.Publish(events.Event{Type: events.OperationCompleted, Conv: cs.conv, OperationId: row.Id})
	} else {
		s.bus.Publish(events.Event{Type: events.OperationFailed, Conv: cs.conv, OperationId: row.Id, ErrorCode: code.String()})
	}
}

// RemoveConversation removes a conversation's operations and connection
// handle atomically (spec.md §4.5 "Removal guarantees").
func (s *Scheduler) RemoveConversation(conv descriptor.DatabaseId) {
	s.mu.Lock()
	cs, ok := s.conversations[conv]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conversations, conv)
	conn := cs.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(transport.ReasonSuccess)
	}
}

// EvictOperations drops the given operation ids from every in-memory
// queue, used after store.DeleteDescriptors reports the operation rows
// it removed as part of a descriptor-deletion transaction (spec.md
// §4.5 "Removal guarantees").
func (s *Scheduler) EvictOperations(ids []int64) {
	if len(ids) == 0 {
		return
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.conversations {
		cs.waiting = filterOutIds(cs.waiting, set)
		cs.deferred = filterOutIds(cs.deferred, set)
		if cs.active != nil && set[cs.active.Row().Id] {
			cs.active = nil
			cs.activeReqId = 0
		}
	}
}

func closeReasonFor(code iq.ErrorCode) transport.CloseReason {
	if code == iq.Fatal {
		return transport.ReasonGone
	}
	return transport.ReasonConnectivityError
}

func closeReasonString(reason transport.CloseReason) string {
	switch reason {
	case transport.ReasonSuccess:
		return "success"
	case transport.ReasonBusy:
		return "busy"
	case transport.ReasonDisconnected:
		return "disconnected"
	case transport.ReasonTimeout:
		return "timeout"
	case transport.ReasonConnectivityError:
		return "connectivityError"
	case transport.ReasonNotAuthorized:
		return "notAuthorized"
	case transport.ReasonRevoked:
		return "revoked"
	case transport.ReasonGone:
		return "gone"
	default:
		return "unknown"
	}
}
