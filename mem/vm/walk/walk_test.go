package walk_test

import (
	"testing"

	"github.com/sarchlab/pagewalk/mem/dcache"
	"github.com/sarchlab/pagewalk/mem/vm/falloc"
	"github.com/sarchlab/pagewalk/mem/vm/pagetable"
	"github.com/sarchlab/pagewalk/mem/vm/pwc"
	"github.com/sarchlab/pagewalk/mem/vm/tlb"
	"github.com/sarchlab/pagewalk/mem/vm/walk"
	"github.com/stretchr/testify/require"
)

func defaultPageTable(alloc falloc.Allocator, pudWidth int) *pagetable.PageTable {
	return pagetable.New(pagetable.Config{
		PGDEntries: 512, PUDEntries: 512, PMDEntries: 512, PTEEntries: 512,
		PGDWidth: 8, PUDWidth: pudWidth, PMDWidth: 8, PTEWidth: 8,
	}, alloc)
}

func walkerWithCachable(pteCachable bool) *walk.Walker {
	t := tlb.New(tlb.Config{L1Size: 64, L1Ways: 4, L2Size: 1024, L2Ways: 8})
	pt := defaultPageTable(falloc.NewSequential(1<<24), 8)

	p := pwc.New3Level(
		pwc.Config{Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PGD)},
		pwc.Config{Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PUD)},
		pwc.Config{Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PMD)},
	)

	cache := dcache.New(
		dcache.Config{TotalBytes: 32 * 1024, Ways: 8, LineBytes: 64},
		dcache.Config{TotalBytes: 256 * 1024, Ways: 16, LineBytes: 64},
		dcache.Config{TotalBytes: 8 * 1024 * 1024, Ways: 16, LineBytes: 64},
	)

	return walk.New(t, p, pt, cache, pteCachable)
}

// defaultWalker mirrors internal/config.Default()'s PTECachable value.
func defaultWalker() *walk.Walker {
	return walkerWithCachable(false)
}

// S1 (TLB hit): single reference then repeat.
func TestTLBHitOnRepeatedVaddr(t *testing.T) {
	w := defaultWalker()

	w.Translate(0x400000)
	require.EqualValues(t, 1, w.Stats.FullWalks)
	require.EqualValues(t, 0, w.Stats.L1TLBHits)

	w.Translate(0x400000)
	require.EqualValues(t, 1, w.Stats.FullWalks)
	require.EqualValues(t, 1, w.Stats.L1TLBHits)
}

// S2 (PWC promotion): 64 references sharing one PMD entry after the first
// full walk; subsequent distinct pages within it hit the PMD PWC.
func TestPMDPromotionAcrossSharedPMDEntry(t *testing.T) {
	w := defaultWalker()

	for i := 0; i < 64; i++ {
		w.Translate(0x400000 + uint64(i)*0x1000)
	}

	require.EqualValues(t, 1, w.Stats.FullWalks)
	require.EqualValues(t, 0, w.Stats.PGDCacheHits)
	require.EqualValues(t, 0, w.Stats.PUDCacheHits)
	require.EqualValues(t, 63, w.Stats.PMDCacheHits)
}

func TestTranslationPathCountersSumToReferenceCount(t *testing.T) {
	w := defaultWalker()

	vaddrs := []uint64{0x400000, 0x400000, 0x401000, 0x800000, 0x400000}
	for _, v := range vaddrs {
		w.Translate(v)
	}

	require.Equal(t, uint64(len(vaddrs)), w.Stats.Total())
}

func TestTranslateReturnsConsistentOffsetWithinPage(t *testing.T) {
	w := defaultWalker()

	paddr := w.Translate(0x400123)
	require.EqualValues(t, 0x123, paddr&0xFFF)
}

func TestRepeatedTranslateIsStableAcrossPWCAndFullWalk(t *testing.T) {
	w := defaultWalker()

	first := w.Translate(0x400000)
	second := w.Translate(0x400000)

	require.Equal(t, first, second)
}

// S6-like: narrow PUD entries must resolve identically to the wide
// control for the same vaddr sequence.
func TestNarrowPUDEntriesMatchWideControlPFNs(t *testing.T) {
	buildWalker := func(pudWidth int, alloc falloc.Allocator) *walk.Walker {
		t := tlb.New(tlb.Config{L1Size: 64, L1Ways: 4, L2Size: 1024, L2Ways: 8})
		pt := defaultPageTable(alloc, pudWidth)
		p := pwc.New3Level(
			pwc.Config{Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PGD)},
			pwc.Config{Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PUD)},
			pwc.Config{Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PMD)},
		)

		cache := dcache.New(
			dcache.Config{TotalBytes: 32 * 1024, Ways: 8, LineBytes: 64},
			dcache.Config{TotalBytes: 256 * 1024, Ways: 16, LineBytes: 64},
			dcache.Config{TotalBytes: 8 * 1024 * 1024, Ways: 16, LineBytes: 64},
		)

		return walk.New(t, p, pt, cache, true)
	}

	wide := buildWalker(8, falloc.NewSequential(1<<24))
	narrow := buildWalker(4, falloc.NewTwoChoice(1<<24))

	vaddrs := []uint64{0x400000, 0x401000, 0x800000, 0x123456000, 0x400000}
	for _, v := range vaddrs {
		require.Equal(t, wide.Translate(v), narrow.Translate(v))
	}
}

// Under the default pteCachable=false, every level's entry reads -- PGD,
// PUD, and PMD alongside PTE -- bypass the cache entirely, leaving all four
// entry counters at zero regardless of how many references are translated.
func TestPTEUncachableBypassesCacheAtEveryLevel(t *testing.T) {
	w := walkerWithCachable(false)

	for i := 0; i < 4; i++ {
		w.Translate(0x400000 + uint64(i)*0x1000)
	}
	w.Translate(0x800000)

	require.Zero(t, w.Stats.UpperEntryHits)
	require.Zero(t, w.Stats.UpperEntryMisses)
	require.Zero(t, w.Stats.PTEEntryHits)
	require.Zero(t, w.Stats.PTEEntryMisses)
}

// With pteCachable=true, entry reads at every level are counted: the first
// full walk from cr3 touches a fresh PGD, PUD, and PMD entry (three upper
// misses) plus a fresh PTE entry (one PTE miss).
func TestPTECachableCountsEntryReadsAtEveryLevel(t *testing.T) {
	w := walkerWithCachable(true)

	w.Translate(0x400000)

	require.EqualValues(t, 3, w.Stats.UpperEntryMisses)
	require.Zero(t, w.Stats.UpperEntryHits)
	require.EqualValues(t, 1, w.Stats.PTEEntryMisses)
	require.Zero(t, w.Stats.PTEEntryHits)
}
