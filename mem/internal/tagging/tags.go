// Package tagging implements the generic set-associative tag store shared
// by the TLB, the page-walk caches, and the data-cache hierarchy. It is the
// one allocation-free hot-path primitive that every other cache-shaped
// component in this module builds on: LRU replacement, dirty tracking, and
// a write-back eviction sink, parametrised over the stored value type.
package tagging

import "fmt"

// IndexFunc maps a tag to a set index. Every cache built on this package
// pre-extracts whatever bit-slice of the original address it cares about
// and hands Cache the already-sliced tag, so a single "tag & (numSets-1)"
// implementation serves the TLB, the PWC, and the data caches alike.
type IndexFunc func(tag uint64, numSets int) int

// DefaultIndex is the index function used by every cache in this module.
// numSets is always validated to be a power of two at construction time,
// so "tag mod numSets" and "tag & (numSets-1)" are the same operation;
// this module always spells it as a mask.
func DefaultIndex(tag uint64, numSets int) int {
	return int(tag & uint64(numSets-1))
}

// EvictionSink receives the tag and value of a block evicted from the
// cache while it was dirty. A clean eviction never calls the sink.
type EvictionSink[V any] interface {
	OnDirtyEviction(tag uint64, value V)
}

// entry is one way within one set.
type entry[V any] struct {
	tag      uint64
	value    V
	valid    bool
	dirty    bool
	lruStamp uint64
}

// Cache is a generic N-set, W-way, LRU set-associative tag store.
//
// Cache never interprets the tag or the value; callers decide what a tag
// derives from (a virtual page number, a high-bit vaddr slice, a physical
// address) and what the value means (a frame number, a PWC sub-table, an
// opaque cache line placeholder).
type Cache[V any] struct {
	Name    string
	NumSets int
	NumWays int

	// Writebacks counts dirty-victim evictions produced by this cache,
	// regardless of whether a sink is attached.
	Writebacks uint64

	// Accesses and Hits are only advanced by Lookup; Insert never counts.
	Accesses uint64
	Hits     uint64

	sets       [][]entry[V]
	lruCounter uint64
	indexFn    IndexFunc
	sink       EvictionSink[V]
}

// New creates a cache with numSets sets and numWays ways per set. numSets
// must be a power of two; violating this is a configuration bug and is
// fatal at construction time, matching the fail-fast-at-construct-time
// contract used throughout this module. sink may be nil if dirty evictions
// from this cache have nowhere to go (e.g. the last level before memory).
func New[V any](name string, numSets, numWays int, indexFn IndexFunc, sink EvictionSink[V]) *Cache[V] {
	if numSets <= 0 || numSets&(numSets-1) != 0 {
		panic(fmt.Sprintf("tagging: %s: numSets %d is not a power of two", name, numSets))
	}
	if numWays <= 0 {
		panic(fmt.Sprintf("tagging: %s: numWays must be positive, got %d", name, numWays))
	}
	if indexFn == nil {
		indexFn = DefaultIndex
	}

	sets := make([][]entry[V], numSets)
	for i := range sets {
		sets[i] = make([]entry[V], numWays)
	}

	return &Cache[V]{
		Name:    name,
		NumSets: numSets,
		NumWays: numWays,
		sets:    sets,
		indexFn: indexFn,
		sink:    sink,
	}
}

// Lookup scans the set for tag, counting the access. On a hit it refreshes
// the entry's LRU stamp and returns the stored value.
func (c *Cache[V]) Lookup(tag uint64) (value V, hit bool) {
	c.Accesses++

	setIdx := c.indexFn(tag, c.NumSets)
	way, ok := c.findWay(tag)
	if !ok {
		return value, false
	}

	c.Hits++
	c.lruCounter++
	c.sets[setIdx][way].lruStamp = c.lruCounter

	return c.sets[setIdx][way].value, true
}

// Peek behaves like Lookup but never advances Accesses/Hits or the LRU
// stamp. It exists for callers (the PWC's TOC sub-table, in particular)
// that need to read the current value attached to a tag in order to
// mutate it in place before re-inserting, without perturbing the
// replacement state or the reported hit rate.
func (c *Cache[V]) Peek(tag uint64) (value V, found bool) {
	setIdx := c.indexFn(tag, c.NumSets)
	way, ok := c.findWay(tag)
	if !ok {
		return value, false
	}

	return c.sets[setIdx][way].value, true
}

// Insert installs tag/value into the cache. If tag is already present in a
// valid way, the value is overwritten in place, dirty is OR-ed with
// isWrite, and the LRU stamp is refreshed (MarkDirty is the other way an
// entry becomes dirty once valid). Otherwise a victim way is chosen (first
// invalid way, else the way with the minimum LRU stamp, ties broken by
// lowest way index) and overwritten; if the victim was valid and dirty,
// the eviction sink is invoked exactly once with the victim's old tag and
// value.
func (c *Cache[V]) Insert(tag uint64, value V, isWrite bool) {
	setIdx := c.indexFn(tag, c.NumSets)
	set := c.sets[setIdx]

	if way, ok := c.findWay(tag); ok {
		c.lruCounter++
		set[way].value = value
		set[way].dirty = set[way].dirty || isWrite
		set[way].lruStamp = c.lruCounter
		return
	}

	victim := c.selectVictim(set)
	old := set[victim]

	c.lruCounter++
	set[victim] = entry[V]{
		tag:      tag,
		value:    value,
		valid:    true,
		dirty:    isWrite,
		lruStamp: c.lruCounter,
	}

	if old.valid && old.dirty {
		c.Writebacks++
		if c.sink != nil {
			c.sink.OnDirtyEviction(old.tag, old.value)
		}
	}
}

// MarkDirty sets the dirty bit on tag's entry without touching its LRU
// stamp or any counter. It exists so a write that hits the cache produces
// exactly one dirty-set per hit: the caller has already called Lookup (one
// access, one stamp refresh) and uses MarkDirty to record the write
// instead of a second Insert, which would otherwise bump the stamp twice
// for the same reference. A tag not currently valid is a silent no-op.
func (c *Cache[V]) MarkDirty(tag uint64) {
	setIdx := c.indexFn(tag, c.NumSets)
	if way, ok := c.findWay(tag); ok {
		c.sets[setIdx][way].dirty = true
	}
}

// findWay returns the way index holding a valid entry for tag in its set,
// if any.
func (c *Cache[V]) findWay(tag uint64) (way int, found bool) {
	set := c.sets[c.indexFn(tag, c.NumSets)]
	for i := range set {
		if set[i].valid && set[i].tag == tag {
			return i, true
		}
	}
	return 0, false
}

// selectVictim picks the way to evict: the first invalid way if one
// exists, otherwise the valid way with the smallest LRU stamp (lowest way
// index wins ties, which also covers the cold-start case where every
// stamp is zero).
func (c *Cache[V]) selectVictim(set []entry[V]) int {
	for i := range set {
		if !set[i].valid {
			return i
		}
	}

	victim := 0
	minStamp := set[0].lruStamp
	for i := 1; i < len(set); i++ {
		if set[i].lruStamp < minStamp {
			minStamp = set[i].lruStamp
			victim = i
		}
	}
	return victim
}

// VictimIsWayZero reports whether the current LRU victim for tag's set is
// way zero. The data-cache miss classifier (spec'd as advisory accounting
// only) uses this to distinguish a capacity miss from a conflict miss
// without threading replacement decisions back into Insert.
func (c *Cache[V]) VictimIsWayZero(tag uint64) bool {
	set := c.sets[c.indexFn(tag, c.NumSets)]
	return c.selectVictim(set) == 0
}

// SetFull reports whether every way in tag's set currently holds a valid
// entry.
func (c *Cache[V]) SetFull(tag uint64) bool {
	set := c.sets[c.indexFn(tag, c.NumSets)]
	for i := range set {
		if !set[i].valid {
			return false
		}
	}
	return true
}

// HitRate returns Hits/Accesses, or 0 when there have been no accesses.
func (c *Cache[V]) HitRate() float64 {
	if c.Accesses == 0 {
		return 0
	}
	return float64(c.Hits) / float64(c.Accesses)
}
