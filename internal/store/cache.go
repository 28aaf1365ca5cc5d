package store

import (
	"sync"

	"github.com/petervdpas/conversation-engine/internal/descriptor"
	"github.com/petervdpas/conversation-engine/internal/util"
)

// DefaultCacheCapacity is the default bound on DescriptorCache's live
// entries. See DESIGN.md's "descriptor cache eviction" open-question
// resolution for why this is a bounded LRU rather than true weak
// references.
const DefaultCacheCapacity = 2048

type cacheKey struct {
	conv     descriptor.DatabaseId
	twincode string
	seq      int64
}

// DescriptorCache is an in-memory DescriptorId -> Descriptor cache with
// bounded-LRU eviction (spec.md §4.1: "an entry may be evicted when no
// live reference remains"; lookups accept either a filled databaseId or
// the (twincode, sequenceId) pair). Built on util.RingBuffer, adapted
// from its teacher use as a recency log, repurposed here as an access-
// order CLOCK: the ring records the order entries were touched, and
// eviction walks it oldest-first, skipping any id already removed or
// re-touched since.
//
// Locking: its own mutex, held only over map/ring operations, never
// across I/O (spec.md §5 shared-resources rule).
type DescriptorCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]descriptor.Descriptor
	order    *util.RingBuffer[cacheKey]
}

// NewDescriptorCache builds a cache bounded at capacity entries.
func NewDescriptorCache(capacity int) *DescriptorCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &DescriptorCache{
		capacity: capacity,
		entries:  make(map[cacheKey]descriptor.Descriptor, capacity),
		order:    util.NewRingBuffer[cacheKey](capacity * 2),
	}
}

// Get looks up a cached descriptor by (conv, id). id's TwincodeOutboundId
// and SequenceId are always used as the key (databaseId is not part of
// the cache key: spec.md's lookup-by-either-form requirement is honored
// one level up, by the store resolving a bare databaseId to an Id before
// calling Get).
func (c *DescriptorCache) Get(conv descriptor.DatabaseId, id descriptor.Id) (descriptor.Descriptor, bool) {
	k := cacheKey{conv: conv, twincode: id.TwincodeOutboundId.String(), seq: id.SequenceId}
	c.mu.Lock()
	d, ok := c.entries[k]
	if ok {
		c.order.Push(k)
	}
	c.mu.Unlock()
	return d, ok
}

// Put inserts or refreshes a cached descriptor, evicting the
// least-recently-touched entry if the cache is at capacity.
func (c *DescriptorCache) Put(conv descriptor.DatabaseId, id descriptor.Id, d descriptor.Descriptor) {
	k := cacheKey{conv: conv, twincode: id.TwincodeOutboundId.String(), seq: id.SequenceId}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		c.evictOneLocked()
	}
	c.entries[k] = d
	c.order.Push(k)
}

// Invalidate drops one entry, e.g. after a local delete.
func (c *DescriptorCache) Invalidate(conv descriptor.DatabaseId, id descriptor.Id) {
	k := cacheKey{conv: conv, twincode: id.TwincodeOutboundId.String(), seq: id.SequenceId}
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
}

// InvalidateConversation drops every cached entry for conv, e.g. after
// its conversation row (and all its descriptors) is deleted.
func (c *DescriptorCache) InvalidateConversation(conv descriptor.DatabaseId) {
	c.mu.Lock()
	for k := range c.entries {
		if k.conv == conv {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len reports the number of live entries.
func (c *DescriptorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOneLocked removes the least-recently-touched entry still present in
// the cache, walking the access-order ring oldest-first and skipping any
// occurrence of an id that was touched again later. Must be called with
// c.mu held.
func (c *DescriptorCache) evictOneLocked() {
	snap := c.order.Snapshot()
	last := make(map[cacheKey]int, len(snap))
	for i, k := range snap {
		last[k] = i
	}
	for i, k := range snap {
		if _, ok := c.entries[k]; ok && last[k] == i {
			delete(c.entries, k)
			return
		}
	}
}
