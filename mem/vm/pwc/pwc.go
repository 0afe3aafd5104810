// Package pwc implements the three-level page-walk cache (PGD, PUD, PMD)
// that shortcuts a radix page-table walk by remembering the next-level
// table frame for a high-order slice of the virtual address. Each level
// wraps the generic set-associative cache, with an optional table-of-
// contents (TOC) extension that multiplies one entry's effective reach by
// attaching an inline sub-table of next-table pointers to it.
package pwc

import (
	"fmt"

	"github.com/sarchlab/pagewalk/mem/internal/tagging"
)

const highBit = 47

// slot is one TOC sub-table entry.
type slot struct {
	valid   bool
	nextPFN uint64
}

// subTable is the value stored per cache entry. Without TOC it always has
// exactly one slot, so the plain and TOC code paths share one
// implementation.
type subTable struct {
	slots []slot
}

// Level is one PWC level (PGD, PUD, or PMD).
type Level struct {
	Name string

	cache    *tagging.Cache[*subTable]
	shift    uint
	tocBits  uint
	tocWidth int

	// Accesses and Hits reflect the sub-slot outcome, which on
	// TOC-enabled levels differs from the underlying cache's own
	// tag-hit counters: a tag hit with an invalid sub-slot is still a
	// miss for reporting purposes.
	Accesses uint64
	Hits     uint64
}

// Config describes one PWC level.
type Config struct {
	Size, Ways int
	// Shift is the bit position immediately below this level's tag
	// (pgdShift/pudShift/pmdShift in the page-table's index math).
	Shift uint
	// TOCEnabled and TOCSize configure the optional table-of-contents
	// extension. TOCSize must be a power of two when enabled.
	TOCEnabled bool
	TOCSize    int
}

// New validates Config and builds one PWC level.
func New(name string, cfg Config) *Level {
	if cfg.Ways <= 0 || cfg.Size%cfg.Ways != 0 {
		panic(fmt.Sprintf("pwc: %s: size %d is not divisible by ways %d", name, cfg.Size, cfg.Ways))
	}
	numSets := cfg.Size / cfg.Ways
	if numSets&(numSets-1) != 0 {
		panic(fmt.Sprintf("pwc: %s: size/ways=%d is not a power of two", name, numSets))
	}

	tocBits := uint(0)
	tocWidth := 1
	if cfg.TOCEnabled {
		if cfg.TOCSize <= 1 || cfg.TOCSize&(cfg.TOCSize-1) != 0 {
			panic(fmt.Sprintf("pwc: %s: TOC size %d is not a power of two greater than one", name, cfg.TOCSize))
		}
		tocWidth = cfg.TOCSize
		for (1 << tocBits) < cfg.TOCSize {
			tocBits++
		}
	}

	return &Level{
		Name:     name,
		cache:    tagging.New[*subTable](name, numSets, cfg.Ways, nil, nil),
		shift:    cfg.Shift,
		tocBits:  tocBits,
		tocWidth: tocWidth,
	}
}

// tagOf extracts this level's tag. With TOC enabled, the tag boundary
// moves up by tocBits so that the bits immediately below it become the
// sub-index instead of part of the tag -- this is what lets one tag-level
// entry cover T times the address range at constant tag-storage cost.
func (l *Level) tagOf(vaddr uint64) uint64 {
	shift := l.shift + l.tocBits
	width := highBit - shift + 1
	mask := uint64(1)<<width - 1
	return (vaddr >> shift) & mask
}

func (l *Level) subIndexOf(vaddr uint64) int {
	if l.tocBits == 0 {
		return 0
	}
	return int((vaddr >> l.shift) & uint64(l.tocWidth-1))
}

// Lookup resolves vaddr against this level. On a TOC-enabled level, the
// reported hit/access counters reflect the sub-slot outcome: a tag hit
// whose sub-slot has never been written is still a miss.
func (l *Level) Lookup(vaddr uint64) (nextPFN uint64, hit bool) {
	tag := l.tagOf(vaddr)
	l.Accesses++

	st, tagHit := l.cache.Lookup(tag)
	if !tagHit {
		return 0, false
	}

	idx := l.subIndexOf(vaddr)
	if idx >= len(st.slots) {
		panic(fmt.Sprintf("pwc: %s: TOC index %d out of bounds for width %d", l.Name, idx, len(st.slots)))
	}

	sl := st.slots[idx]
	if !sl.valid {
		return 0, false
	}

	l.Hits++
	return sl.nextPFN, true
}

// Insert records nextPFN for vaddr's tag/sub-index pair. On a fresh tag
// (no matching entry yet) a zeroed sub-table is allocated; on an existing
// tag only the targeted sub-slot changes and the other slots are kept.
// Either way the entry's LRU stamp is refreshed.
func (l *Level) Insert(vaddr, nextPFN uint64) {
	tag := l.tagOf(vaddr)

	st, ok := l.cache.Peek(tag)
	if !ok {
		st = &subTable{slots: make([]slot, l.tocWidth)}
	}

	idx := l.subIndexOf(vaddr)
	st.slots[idx] = slot{valid: true, nextPFN: nextPFN}

	l.cache.Insert(tag, st, false) // PWC entries are never dirty.
}

// HitRate returns Hits/Accesses, or 0 when there have been no accesses.
func (l *Level) HitRate() float64 {
	if l.Accesses == 0 {
		return 0
	}
	return float64(l.Hits) / float64(l.Accesses)
}

// PWC bundles the three page-walk cache levels.
type PWC struct {
	PGD *Level
	PUD *Level
	PMD *Level
}

// New3Level builds the PGD/PUD/PMD trio from their individual configs.
func New3Level(pgd, pud, pmd Config) *PWC {
	return &PWC{
		PGD: New("pwc-pgd", pgd),
		PUD: New("pwc-pud", pud),
		PMD: New("pwc-pmd", pmd),
	}
}
