// Package walk implements the translation algorithm that ties the TLB,
// the three-level page-walk cache, the radix page table, and the
// translation side of the data-cache hierarchy together into the single
// per-reference lookup described by this module's walker design: L1 TLB,
// then L2 TLB, then PMD/PUD/PGD page-walk caches in that order, falling
// back to a full walk from cr3 only when every shortcut misses.
package walk

import (
	"github.com/sarchlab/pagewalk/mem/vm/pagetable"
	"github.com/sarchlab/pagewalk/mem/vm/pwc"
	"github.com/sarchlab/pagewalk/mem/vm/tlb"
)

const pageShift = 12
const pageSize = 1 << pageShift

// TranslationCache is the capability the walker needs from the data-cache
// hierarchy: a translation-path lookup that enters below L1 and fills on
// miss. mem/dcache.Hierarchy satisfies this.
type TranslationCache interface {
	TranslateLookup(paddr uint64) (hit bool)
}

// Stats holds the translation-path counters from this module's walker
// section. Their sum across a run equals the number of references
// translated.
type Stats struct {
	L1TLBHits    uint64
	L2TLBHits    uint64
	PMDCacheHits uint64
	PUDCacheHits uint64
	PGDCacheHits uint64
	FullWalks    uint64

	// UpperEntryHits/Misses lump PGD/PUD/PMD-level entry reads together;
	// PTEEntryHits/Misses are tallied separately, matching this module's
	// cache-interaction rule.
	UpperEntryHits, UpperEntryMisses uint64
	PTEEntryHits, PTEEntryMisses     uint64
}

// Total returns the sum of the six translation-path outcome counters,
// which must equal the number of references translated so far.
func (s Stats) Total() uint64 {
	return s.L1TLBHits + s.L2TLBHits + s.PMDCacheHits + s.PUDCacheHits + s.PGDCacheHits + s.FullWalks
}

// Walker resolves virtual addresses to physical addresses, consulting and
// updating the TLB, PWC, and page table at every step, and issuing a
// translation-path cache access for every page-table entry it reads.
type Walker struct {
	TLB *tlb.TLB
	PWC *pwc.PWC
	PT  *pagetable.PageTable

	Cache       TranslationCache
	PTECachable bool

	Stats Stats
}

// New builds a Walker over already-constructed TLB, PWC, page table, and
// cache components. pteCachable mirrors the page-table configuration
// group's pteCachable flag: when false, every level's entry reads -- PGD,
// PUD, and PMD as well as PTE -- bypass the data cache entirely and are
// never counted.
func New(t *tlb.TLB, p *pwc.PWC, pt *pagetable.PageTable, cache TranslationCache, pteCachable bool) *Walker {
	return &Walker{TLB: t, PWC: p, PT: pt, Cache: cache, PTECachable: pteCachable}
}

// Translate resolves vaddr to a physical address, trying the TLB, then
// each PWC level from PMD up to PGD, and finally a full walk from cr3.
// Every path that resolves below the TLB installs unconditionally into
// both TLB levels before returning.
func (w *Walker) Translate(vaddr uint64) (paddr uint64) {
	vpn := vaddr >> pageShift
	offset := vaddr & (pageSize - 1)

	if pfn, level := w.TLB.Lookup(vpn); level != tlb.Miss {
		switch level {
		case tlb.L1Hit:
			w.Stats.L1TLBHits++
		case tlb.L2Hit:
			w.Stats.L2TLBHits++
		}
		return pfn*pageSize + offset
	}

	if pmdPFN, hit := w.PWC.PMD.Lookup(vaddr); hit {
		w.Stats.PMDCacheHits++
		// Refresh the level that just hit, per this module's design
		// notes: a PWC hit keeps its own entry warm even though it
		// wasn't the level that changed.
		w.PWC.PMD.Insert(vaddr, pmdPFN)
		paddr = w.walkFromPTE(pmdPFN*pageSize, vaddr, offset)
		w.TLB.Install(vpn, paddr>>pageShift)
		return paddr
	}

	if pudPFN, hit := w.PWC.PUD.Lookup(vaddr); hit {
		w.Stats.PUDCacheHits++
		w.PWC.PUD.Insert(vaddr, pudPFN)
		paddr = w.walkFromPMD(pudPFN*pageSize, vaddr, offset)
		w.TLB.Install(vpn, paddr>>pageShift)
		return paddr
	}

	if pgdPFN, hit := w.PWC.PGD.Lookup(vaddr); hit {
		w.Stats.PGDCacheHits++
		w.PWC.PGD.Insert(vaddr, pgdPFN)
		paddr = w.walkFromPUD(pgdPFN*pageSize, vaddr, offset)
		w.TLB.Install(vpn, paddr>>pageShift)
		return paddr
	}

	w.Stats.FullWalks++
	paddr = w.fullWalk(vaddr, offset)
	w.TLB.Install(vpn, paddr>>pageShift)
	return paddr
}

// fullWalk resolves vaddr from the page-table root, installing all three
// PWC levels as it descends.
func (w *Walker) fullWalk(vaddr, offset uint64) uint64 {
	pudTableAddr := w.step(pagetable.PGD, w.PT.CR3, vaddr)
	w.PWC.PGD.Insert(vaddr, pudTableAddr/pageSize)
	return w.walkFromPUD(pudTableAddr, vaddr, offset)
}

// walkFromPUD resolves vaddr starting from a known PUD table, installing
// the PUD and (via walkFromPMD) PMD PWC levels.
func (w *Walker) walkFromPUD(pudTableAddr, vaddr, offset uint64) uint64 {
	pmdTableAddr := w.step(pagetable.PUD, pudTableAddr, vaddr)
	w.PWC.PUD.Insert(vaddr, pmdTableAddr/pageSize)
	return w.walkFromPMD(pmdTableAddr, vaddr, offset)
}

// walkFromPMD resolves vaddr starting from a known PMD table, installing
// the PMD PWC level.
func (w *Walker) walkFromPMD(pmdTableAddr, vaddr, offset uint64) uint64 {
	pteTableAddr := w.step(pagetable.PMD, pmdTableAddr, vaddr)
	w.PWC.PMD.Insert(vaddr, pteTableAddr/pageSize)
	return w.walkFromPTE(pteTableAddr, vaddr, offset)
}

// walkFromPTE resolves vaddr's final data frame starting from a known PTE
// table.
func (w *Walker) walkFromPTE(pteTableAddr, vaddr, offset uint64) uint64 {
	dataFrameAddr := w.step(pagetable.PTE, pteTableAddr, vaddr)
	return dataFrameAddr + offset
}

// step reads (or, on a miss, allocates) level l's entry for vaddr within
// tableAddr and issues the corresponding translation-path cache access,
// returning the entry's target address (the next-level table, or the
// final data frame at PTE level).
func (w *Walker) step(l pagetable.Level, tableAddr, vaddr uint64) (targetAddr uint64) {
	idx := w.PT.Index(l, vaddr)

	present, target, entryAddr := w.PT.ReadEntry(l, tableAddr, idx)
	if !present {
		target, entryAddr = w.PT.AllocateAndLink(l, tableAddr, idx)
	}

	w.issueEntryAccess(l, entryAddr)
	return target
}

// issueEntryAccess records the translation-path cache access for the
// entry just consulted at level l. Every level's entry reads bypass the
// cache entirely, uncounted, when PTECachable is false -- it gates page-
// table entry reads at PGD/PUD/PMD exactly as it gates PTE.
func (w *Walker) issueEntryAccess(l pagetable.Level, entryAddr uint64) {
	if !w.PTECachable {
		return
	}

	addr := pagetable.CacheAddr(entryAddr)

	if l == pagetable.PTE {
		if w.Cache.TranslateLookup(addr) {
			w.Stats.PTEEntryHits++
		} else {
			w.Stats.PTEEntryMisses++
		}
		return
	}

	if w.Cache.TranslateLookup(addr) {
		w.Stats.UpperEntryHits++
	} else {
		w.Stats.UpperEntryMisses++
	}
}
