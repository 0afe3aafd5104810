// Package dcache implements the three-level inclusive data-cache
// hierarchy that backs both demand memory references and the physical
// reads a page-table walk issues against its own entries. Every level
// wraps the generic set-associative cache in mem/internal/tagging;
// L1 -> L2 -> L3 -> main memory forms the fixed eviction-forwarding chain
// described in this module's ownership notes.
package dcache

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/pagewalk/mem/internal/tagging"
)

// MissClass classifies a demand miss for the advisory accounting report.
type MissClass int

const (
	Cold MissClass = iota
	Capacity
	Conflict
)

// MemoryController counts accesses to main memory: reads on an L3 demand
// or translation miss, and writebacks on a dirty L3 eviction.
type MemoryController struct {
	Accesses uint64
}

// memorySink is the eviction sink attached to L3's cache; main memory has
// no cache structure of its own to insert into, so a dirty eviction
// reaching it is simply counted.
type memorySink struct {
	mem *MemoryController
}

func (m *memorySink) OnDirtyEviction(tag uint64, value uint64) {
	m.mem.Accesses++
}

// Level is one cache level in the hierarchy.
type Level struct {
	Name string

	cache      *tagging.Cache[uint64]
	offsetBits uint
	numSets    int
	numWays    int

	// Demand-path counters, split by read/write, independent of the
	// translation-path counters below even though both paths share the
	// same underlying cache array.
	ReadAccesses, ReadHits   uint64
	WriteAccesses, WriteHits uint64

	// Translation-path counters (§4.6): page-walk entry reads enter at
	// L2, so L1 never has these.
	TransAccesses, TransHits uint64

	ColdMisses, CapacityMisses, ConflictMisses uint64
}

// Config describes one level's geometry: total capacity and line size in
// bytes, and associativity.
type Config struct {
	TotalBytes, Ways, LineBytes int
}

func newLevel(name string, cfg Config, sink tagging.EvictionSink[uint64]) *Level {
	if cfg.LineBytes <= 0 || cfg.LineBytes&(cfg.LineBytes-1) != 0 {
		panic(fmt.Sprintf("dcache: %s: line size %d is not a power of two", name, cfg.LineBytes))
	}
	if cfg.Ways <= 0 || cfg.TotalBytes%(cfg.Ways*cfg.LineBytes) != 0 {
		panic(fmt.Sprintf("dcache: %s: totalBytes %d not divisible by ways*line", name, cfg.TotalBytes))
	}
	numSets := cfg.TotalBytes / (cfg.Ways * cfg.LineBytes)
	if numSets&(numSets-1) != 0 {
		panic(fmt.Sprintf("dcache: %s: numSets %d is not a power of two", name, numSets))
	}

	l := &Level{
		Name:       name,
		offsetBits: uint(bits.TrailingZeros(uint(cfg.LineBytes))),
		numSets:    numSets,
		numWays:    cfg.Ways,
	}
	l.cache = tagging.New[uint64](name, numSets, cfg.Ways, nil, sink)
	return l
}

// OnDirtyEviction accepts a dirty block forwarded from the level above as
// a write-allocate insert, per this module's write-back propagation rule.
func (l *Level) OnDirtyEviction(tag uint64, value uint64) {
	l.cache.Insert(tag, value, true)
}

func (l *Level) tagOf(paddr uint64) uint64 {
	return paddr >> l.offsetBits
}

func (l *Level) recordDemand(isWrite, hit bool) {
	if isWrite {
		l.WriteAccesses++
		if hit {
			l.WriteHits++
		}
	} else {
		l.ReadAccesses++
		if hit {
			l.ReadHits++
		}
	}
}

func (l *Level) recordTranslation(hit bool) {
	l.TransAccesses++
	if hit {
		l.TransHits++
	}
}

// classifyMiss must be called after Lookup has reported a miss for tag and
// before any Insert mutates tag's set: cold if fewer than numSets*numWays
// accesses have reached this level so far (warm-up), else capacity if the
// current LRU victim is not way zero, else conflict. This is advisory
// accounting only; it never feeds back into replacement.
func (l *Level) classifyMiss(tag uint64) {
	capacity := uint64(l.numSets * l.numWays)
	if l.cache.Accesses-1 < capacity {
		l.ColdMisses++
		return
	}
	if !l.cache.VictimIsWayZero(tag) {
		l.CapacityMisses++
		return
	}
	l.ConflictMisses++
}

// HitRate returns ReadHits+WriteHits over ReadAccesses+WriteAccesses for
// this level's demand path, or 0 with no demand accesses yet.
func (l *Level) HitRate() float64 {
	acc := l.ReadAccesses + l.WriteAccesses
	if acc == 0 {
		return 0
	}
	return float64(l.ReadHits+l.WriteHits) / float64(acc)
}

// Writebacks is the count of dirty-victim evictions this level has
// produced, regardless of where they were forwarded.
func (l *Level) Writebacks() uint64 { return l.cache.Writebacks }

// Hierarchy bundles the three levels and the shared memory counter.
type Hierarchy struct {
	L1, L2, L3 *Level
	Memory     *MemoryController
}

// New builds the L1/L2/L3 chain, wiring each level's eviction sink to the
// next and L3's to main memory.
func New(l1, l2, l3 Config) *Hierarchy {
	mem := &MemoryController{}
	l3Level := newLevel("l3", l3, &memorySink{mem: mem})
	l2Level := newLevel("l2", l2, l3Level)
	l1Level := newLevel("l1", l1, l2Level)

	return &Hierarchy{L1: l1Level, L2: l2Level, L3: l3Level, Memory: mem}
}

// Access is the demand entry point: a load or store at paddr. It walks
// L1 -> L2 -> L3 -> memory, filling every level it skipped over on the way
// back down, and reports whether the reference hit in any cache level
// (false means it went to main memory).
func (h *Hierarchy) Access(paddr uint64, isWrite bool) (hit bool) {
	tag1 := h.L1.tagOf(paddr)
	if _, ok := h.L1.cache.Lookup(tag1); ok {
		h.L1.recordDemand(isWrite, true)
		if isWrite {
			h.L1.cache.MarkDirty(tag1)
		}
		return true
	}
	h.L1.recordDemand(isWrite, false)
	h.L1.classifyMiss(tag1)

	tag2 := h.L2.tagOf(paddr)
	if value, ok := h.L2.cache.Lookup(tag2); ok {
		h.L2.recordDemand(isWrite, true)
		h.L1.cache.Insert(tag1, value, isWrite)
		if isWrite {
			h.L2.cache.MarkDirty(tag2)
		}
		return true
	}
	h.L2.recordDemand(isWrite, false)
	h.L2.classifyMiss(tag2)

	tag3 := h.L3.tagOf(paddr)
	if value, ok := h.L3.cache.Lookup(tag3); ok {
		h.L3.recordDemand(isWrite, true)
		h.L2.cache.Insert(tag2, value, false)
		h.L1.cache.Insert(tag1, value, isWrite)
		return true
	}
	h.L3.recordDemand(isWrite, false)
	h.L3.classifyMiss(tag3)

	h.Memory.Accesses++
	const placeholder = uint64(0)
	h.L3.cache.Insert(tag3, placeholder, false)
	h.L2.cache.Insert(tag2, placeholder, false)
	h.L1.cache.Insert(tag1, placeholder, isWrite)
	return false
}

// TranslateLookup is the page-walk entry point: it bypasses L1 so walk
// traffic never pollutes the demand working set, entering directly at L2.
func (h *Hierarchy) TranslateLookup(paddr uint64) (hit bool) {
	tag2 := h.L2.tagOf(paddr)
	if _, ok := h.L2.cache.Lookup(tag2); ok {
		h.L2.recordTranslation(true)
		return true
	}
	h.L2.recordTranslation(false)

	tag3 := h.L3.tagOf(paddr)
	if value, ok := h.L3.cache.Lookup(tag3); ok {
		h.L3.recordTranslation(true)
		h.L2.cache.Insert(tag2, value, false)
		return true
	}
	h.L3.recordTranslation(false)

	h.Memory.Accesses++
	const placeholder = uint64(0)
	h.L3.cache.Insert(tag3, placeholder, false)
	h.L2.cache.Insert(tag2, placeholder, false)
	return false
}
