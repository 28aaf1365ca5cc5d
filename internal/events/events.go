// Package events is the engine's lifecycle event bus (spec.md §6.3):
// operation and descriptor state transitions, connection lifecycle, and
// group membership changes, fanned out to local subscribers the way
// internal/group.Manager and internal/state.PeerTable fan out to SSE
// listeners.
package events

import (
	"sync"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
)

// Type identifies which lifecycle transition an Event carries.
type Type string

const (
	OperationQueued    Type = "operationQueued"
	OperationCompleted Type = "operationCompleted"
	OperationFailed    Type = "operationFailed"

	DescriptorReceived Type = "descriptorReceived"
	DescriptorUpdated  Type = "descriptorUpdated"
	DescriptorDeleted  Type = "descriptorDeleted"

	ConversationConnected    Type = "conversationConnected"
	ConversationDisconnected Type = "conversationDisconnected"

	GroupInvited Type = "groupInvited"
	GroupJoined  Type = "groupJoined"
	GroupLeft    Type = "groupLeft"
)

// Event is one lifecycle notification (spec.md §6.3). Only the fields
// relevant to Type are populated; the rest stay at their zero value.
type Event struct {
	Type Type
	Conv descriptor.DatabaseId

	OperationId int64
	ErrorCode   string // string form so this package doesn't depend on internal/iq

	Descriptor    descriptor.Descriptor
	DescId        descriptor.Id
	PeerInitiated bool

	DisconnectReason string

	Invitation *descriptor.Invitation
	GroupId    int64
	MemberId   string
	Roster     []string
}

// Bus fans out Events to local subscribers. It never blocks a publisher:
// a subscriber too slow to keep up drops events rather than stall the
// scheduler (mirrors group.Manager.notifyListeners's best-effort send).
type Bus struct {
	mu          sync.Mutex
	subscribers []chan Event
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives every future Publish call.
// The channel is buffered; callers that fall behind miss events rather
// than block the publisher.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 64)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish fans evt out to every subscriber registered via Subscribe.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
