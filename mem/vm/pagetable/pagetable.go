// Package pagetable implements the four-level radix page table: on-demand
// allocation of table pages, configurable per-level fan-out, and
// configurable per-entry width (8, 4, 2, or 1 bytes). It exposes only the
// structural primitives -- index extraction, entry reads, and allocate-and-
// link -- so the translation walker in mem/vm/walk can interleave them with
// TLB, PWC, and data-cache accesses at each level transition.
package pagetable

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/sarchlab/pagewalk/mem/vm/falloc"
)

const pageShift = 12
const pageSize = 1 << pageShift

// Level identifies one of the four radix levels, most- to least-significant.
type Level int

const (
	PGD Level = iota
	PUD
	PMD
	PTE
	numLevels
)

func (l Level) String() string {
	switch l {
	case PGD:
		return "pgd"
	case PUD:
		return "pud"
	case PMD:
		return "pmd"
	case PTE:
		return "pte"
	default:
		return "?"
	}
}

// Config describes the table's shape: entry count and entry width (in
// bytes -- 8, 4, 2, or 1) at each of the four levels.
type Config struct {
	PGDEntries, PUDEntries, PMDEntries, PTEEntries int
	PGDWidth, PUDWidth, PMDWidth, PTEWidth         int
}

func (c Config) entries(l Level) int {
	switch l {
	case PGD:
		return c.PGDEntries
	case PUD:
		return c.PUDEntries
	case PMD:
		return c.PMDEntries
	default:
		return c.PTEEntries
	}
}

func (c Config) width(l Level) int {
	switch l {
	case PGD:
		return c.PGDWidth
	case PUD:
		return c.PUDWidth
	case PMD:
		return c.PMDWidth
	default:
		return c.PTEWidth
	}
}

// LevelStats accumulates the counters §6's report groups by page-table
// level: Entries is the number of entries written at this level so far,
// Allocations the number of new table pages created to back entries one
// level up that pointed here.
type LevelStats struct {
	Accesses    uint64
	Entries     uint64
	Allocations uint64
}

// FillPercent returns Entries as a fraction of total addressable slots at
// this level, for the report's "average fill" column.
func (s LevelStats) FillPercent(totalEntries int) float64 {
	if totalEntries == 0 {
		return 0
	}
	return 100 * float64(s.Entries) / float64(totalEntries)
}

// page is one 4 KiB page-table page, viewed as a byte buffer and sliced by
// the level's entry width.
type page struct {
	buf [pageSize]byte
}

func (p *page) readEntry(width, index int) uint64 {
	off := index * width
	switch width {
	case 8:
		return binary.LittleEndian.Uint64(p.buf[off:])
	case 4:
		return uint64(binary.LittleEndian.Uint32(p.buf[off:]))
	case 2:
		return uint64(binary.LittleEndian.Uint16(p.buf[off:]))
	default:
		return uint64(p.buf[off])
	}
}

func (p *page) writeEntry(width, index int, v uint64) {
	off := index * width
	switch width {
	case 8:
		binary.LittleEndian.PutUint64(p.buf[off:], v)
	case 4:
		binary.LittleEndian.PutUint32(p.buf[off:], uint32(v))
	case 2:
		binary.LittleEndian.PutUint16(p.buf[off:], uint16(v))
	default:
		p.buf[off] = byte(v)
	}
}

// PageTable is the four-level radix table plus its on-demand-allocated
// pages. It owns every page-table page it has ever created; pages are
// never freed during a run.
type PageTable struct {
	cfg  Config
	CR3  uint64
	alloc falloc.Allocator

	pages map[uint64]*page // keyed by a table page's byte address (pfn*pageSize)

	Stats [numLevels]LevelStats

	shift [numLevels]uint // bit position of the low edge of this level's index field
}

// New validates cfg and constructs an empty table rooted at a freshly
// allocated PGD page. alloc is the frame allocator backing every on-demand
// table and data-frame allocation the walker performs through this table.
func New(cfg Config, alloc falloc.Allocator) *PageTable {
	levels := []Level{PGD, PUD, PMD, PTE}
	totalIndexBits := 0
	for _, l := range levels {
		n := cfg.entries(l)
		if n <= 0 || n&(n-1) != 0 {
			panic(fmt.Sprintf("pagetable: %s entries %d is not a power of two", l, n))
		}
		totalIndexBits += bits.TrailingZeros(uint(n))

		switch cfg.width(l) {
		case 8, 4, 2, 1:
		default:
			panic(fmt.Sprintf("pagetable: %s entry width %d is not one of 8/4/2/1", l, cfg.width(l)))
		}
	}
	if totalIndexBits+pageShift != 48 {
		panic(fmt.Sprintf("pagetable: level index bits sum to %d, want 36 (48 - page shift %d)", totalIndexBits, pageShift))
	}

	pt := &PageTable{
		cfg:   cfg,
		alloc: alloc,
		pages: make(map[uint64]*page),
	}

	// Shifts accumulate from PTE upward: pteShift = pageShift,
	// pmdShift = pteShift + log2(pteEntries), and so on.
	shift := uint(pageShift)
	pt.shift[PTE] = shift
	shift += uint(bits.TrailingZeros(uint(cfg.PTEEntries)))
	pt.shift[PMD] = shift
	shift += uint(bits.TrailingZeros(uint(cfg.PMDEntries)))
	pt.shift[PUD] = shift
	shift += uint(bits.TrailingZeros(uint(cfg.PUDEntries)))
	pt.shift[PGD] = shift

	rootFrame := alloc.AllocateFrame(0, 8)
	pt.CR3 = rootFrame * pageSize
	pt.pages[pt.CR3] = &page{}

	return pt
}

// Shift returns the bit position immediately below level l's index field,
// i.e. the value the PWC levels key their tags on.
func (pt *PageTable) Shift(l Level) uint { return pt.shift[l] }

// Index extracts the zero-based index into level l's table for vaddr.
func (pt *PageTable) Index(l Level, vaddr uint64) int {
	n := pt.cfg.entries(l)
	return int((vaddr >> pt.shift[l]) & uint64(n-1))
}

// EntryAddr returns the byte address of level l's entry for vaddr within
// tableAddr (the byte address of that level's table page).
func (pt *PageTable) EntryAddr(l Level, tableAddr, vaddr uint64) uint64 {
	return tableAddr + uint64(pt.Index(l, vaddr)*pt.cfg.width(l))
}

// CacheAddr rounds entryAddr down to the 8-byte-aligned address the walker
// issues its cache access against, per this module's cache-interaction
// rule: narrower entries still share their containing 8-byte word's cache
// line with neighbouring entries.
func CacheAddr(entryAddr uint64) uint64 {
	return entryAddr &^ 7
}

// ReadEntry reads level l's entry at index idx within tableAddr, decoding
// its present bit and target frame regardless of entry width.
func (pt *PageTable) ReadEntry(l Level, tableAddr uint64, idx int) (present bool, targetAddr uint64, entryAddr uint64) {
	width := pt.cfg.width(l)
	entryAddr = tableAddr + uint64(idx*width)
	pt.Stats[l].Accesses++

	pg, ok := pt.pages[tableAddr]
	if !ok {
		panic(fmt.Sprintf("pagetable: read from non-existent table page at %#x", tableAddr))
	}
	raw := pg.readEntry(width, idx)

	if width == 8 {
		var pfn uint64
		present, _, _, pfn = decode8(raw)
		if present {
			targetAddr = pfn * pageSize
		}
		return present, targetAddr, entryAddr
	}

	var tinyPointer uint8
	present, _, tinyPointer = decodeNarrow(width, raw)
	if present {
		_, tpBits := narrowLayout(width)
		pfn := pt.alloc.DecodeFrame(entryAddr, tinyPointer, tpBits)
		targetAddr = pfn * pageSize
	}
	return present, targetAddr, entryAddr
}

// AllocateAndLink allocates a fresh frame for level l's entry at index idx
// within tableAddr (a next-level table page for PGD/PUD/PMD, or the final
// data frame for PTE), writes the entry, and -- for PGD/PUD/PMD -- creates
// the backing page for the newly linked table. It returns the new target's
// byte address. Per this module's accounting rule, the current level's
// Entries counter and (for non-PTE levels) the next level's Allocations
// counter both advance.
func (pt *PageTable) AllocateAndLink(l Level, tableAddr uint64, idx int) (targetAddr, entryAddr uint64) {
	width := pt.cfg.width(l)
	entryAddr = tableAddr + uint64(idx*width)

	pg, ok := pt.pages[tableAddr]
	if !ok {
		panic(fmt.Sprintf("pagetable: allocate into non-existent table page at %#x", tableAddr))
	}

	var pfn uint64
	if width == 8 {
		pfn = pt.alloc.AllocateFrame(entryAddr, 8)
		pg.writeEntry(width, idx, encode8(true, true, true, pfn))
	} else {
		_, tpBits := narrowLayout(width)
		tp, allocatedPFN := pt.alloc.AllocateFrameWithTinyPointer(entryAddr, tpBits)
		pfn = allocatedPFN
		pg.writeEntry(width, idx, encodeNarrow(width, true, 0, tp))
	}

	targetAddr = pfn * pageSize
	pt.Stats[l].Entries++

	if l != PTE {
		pt.pages[targetAddr] = &page{}
		pt.Stats[l+1].Allocations++
	}

	return targetAddr, entryAddr
}

// EntriesPerLevel returns the configured entry count for l, for the
// report's average-fill denominator.
func (pt *PageTable) EntriesPerLevel(l Level) int { return pt.cfg.entries(l) }

// TableCount returns the number of level-l table pages that exist so far:
// one (the root) for PGD plus however many PGD/PUD/PMD allocations have
// linked a new one in, for every other level.
func (pt *PageTable) TableCount(l Level) int {
	n := pt.Stats[l].Allocations
	if l == PGD {
		n++
	}
	return int(n)
}
