// Package fdcache implements the cache coordinator from spec.md §4.3: a
// fixed-size, direct-mapped, timestamp-validated memo that every
// container above it (list, vector, area, stream, b-tree) uses to avoid
// re-invoking a client's read callback. Design note 3 in spec.md §9
// ("From dynamic dispatch + void* values to generic element types")
// applies here too: Cache is generic over the payload type V instead of
// storing interface{} with a manual free function.
package fdcache

import "github.com/gaby/fdata/internal/fderrors"

// Identifier is the triple a cache slot is validated against on every
// lookup: (file_index, offset, timestamp). A mismatch on any field,
// including a stale timestamp, is a miss (spec.md §4.3 "Hit test").
type Identifier struct {
	FileIndex int32
	Offset    int64
	Timestamp int64
}

// Value is one occupied cache slot: an identifier plus its payload.
// There is no free_fn/MANAGED flag the way spec.md's C-shaped Value has
// one — V is a plain Go value (or a pointer the caller manages), so
// there is nothing for the cache itself to free.
type Value[V any] struct {
	id      Identifier
	payload V
}

func (v *Value[V]) Identifier() Identifier { return v.id }
func (v *Value[V]) Payload() V             { return v.payload }

// Cache is the (values, capacity) pair from spec.md §4.3. Slot selection
// is always the caller's responsibility (index mod capacity); Cache
// itself is just indexed storage plus the identifier-match rule.
type Cache[V any] struct {
	slots []*Value[V]
}

// New allocates a cache with the given number of slots. Capacity 0 is a
// legal "caching disabled" configuration (spec.md supplement on the
// single-buffer-cached-all fast path): every lookup against it is
// simply always a miss, it does not panic.
func New[V any](capacity int) *Cache[V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache[V]{slots: make([]*Value[V], capacity)}
}

// NumberOfEntries returns the cache's fixed slot count.
func (c *Cache[V]) NumberOfEntries() int { return len(c.slots) }

// NumberOfCacheValues returns how many slots are currently occupied.
func (c *Cache[V]) NumberOfCacheValues() int {
	n := 0
	for _, s := range c.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// ValueByIndex returns the slot's value, or nil if empty. An
// out-of-range index is an error.
func (c *Cache[V]) ValueByIndex(i int) (*Value[V], error) {
	if i < 0 || i >= len(c.slots) {
		return nil, fderrors.New("fdcache.Cache.ValueByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return c.slots[i], nil
}

// SetValueByIndex replaces slot i's contents. Since V has no owned
// foreign resource to free, replacing a slot — even with the exact same
// payload — is always safe; spec.md's "must not double-free" rule is
// vacuous in this Go rendition and left only as a comment for fidelity.
func (c *Cache[V]) SetValueByIndex(i int, id Identifier, payload V) error {
	if i < 0 || i >= len(c.slots) {
		return fderrors.New("fdcache.Cache.SetValueByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	c.slots[i] = &Value[V]{id: id, payload: payload}
	return nil
}

// Clear empties every slot.
func (c *Cache[V]) Clear() {
	for i := range c.slots {
		c.slots[i] = nil
	}
}

// Lookup implements spec.md §4.3's hit test: a slot at index `slot`
// (already computed by the caller as element/segment index mod
// capacity) is a hit iff occupied and its identifier exactly matches
// want. A capacity-0 cache (or an out-of-range slot) is always a miss,
// never an error — callers fall through to invoking the read callback.
func (c *Cache[V]) Lookup(slot int, want Identifier) (V, bool) {
	var zero V
	if slot < 0 || slot >= len(c.slots) {
		return zero, false
	}
	v := c.slots[slot]
	if v == nil || v.id != want {
		return zero, false
	}
	return v.payload, true
}

// Slot computes the direct-mapped slot for a given zero-based index,
// per spec.md §4.3's "Slot-selection policy": element_or_segment_index
// mod capacity. A capacity of 0 maps every index to slot -1, an always-
// invalid slot, so Lookup/SetValueByIndex against it are unconditional
// misses/errors rather than a division by zero.
func Slot(index int, capacity int) int {
	if capacity <= 0 {
		return -1
	}
	m := index % capacity
	if m < 0 {
		m += capacity
	}
	return m
}
