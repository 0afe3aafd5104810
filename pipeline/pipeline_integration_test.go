package pipeline_test

import (
	"github.com/sarchlab/pagewalk/mem/dcache"
	"github.com/sarchlab/pagewalk/mem/vm/falloc"
	"github.com/sarchlab/pagewalk/mem/vm/pagetable"
	"github.com/sarchlab/pagewalk/mem/vm/pwc"
	"github.com/sarchlab/pagewalk/mem/vm/tlb"
	"github.com/sarchlab/pagewalk/mem/vm/walk"
	"github.com/sarchlab/pagewalk/pipeline"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("L1 dirty eviction", func() {
	// L1 at the reporting default geometry -- 32 KiB, 8-way, 64 B lines --
	// has 64 sets. Nine stores sharing a set (tags that are multiples of
	// the set count) fill all eight ways and then evict the LRU line,
	// which forwards exactly one dirty block to L2 and no further.
	It("forwards exactly one writeback to L2 and none past it", func() {
		h := dcache.New(
			dcache.Config{TotalBytes: 32 * 1024, Ways: 8, LineBytes: 64},
			dcache.Config{TotalBytes: 256 * 1024, Ways: 16, LineBytes: 64},
			dcache.Config{TotalBytes: 8 * 1024 * 1024, Ways: 16, LineBytes: 64},
		)

		for i := uint64(0); i < 9; i++ {
			h.Access(i*4096, true)
		}

		Expect(h.L1.Writebacks()).To(BeEquivalentTo(1))
		Expect(h.L2.Writebacks()).To(BeEquivalentTo(0))
		Expect(h.L3.Writebacks()).To(BeEquivalentTo(0))
	})
})

var _ = Describe("L3 writeback accounting", func() {
	// Caches small enough that 1000 distinct-tag stores fit no level:
	// every access is a demand miss at every level, so memory traffic
	// outgrows the reference count, and L3's miss-plus-writeback sum
	// still accounts for every memory access exactly.
	It("keeps memory accesses equal to L3 misses plus writebacks", func() {
		h := dcache.New(
			dcache.Config{TotalBytes: 512, Ways: 2, LineBytes: 64},
			dcache.Config{TotalBytes: 2048, Ways: 4, LineBytes: 64},
			dcache.Config{TotalBytes: 8192, Ways: 4, LineBytes: 64},
		)

		for tag := uint64(0); tag < 1000; tag++ {
			h.Access(tag*8192, true)
		}

		l3Misses := h.L3.ReadAccesses + h.L3.WriteAccesses - (h.L3.ReadHits + h.L3.WriteHits)

		Expect(h.Memory.Accesses).To(BeNumerically(">", 1000))
		Expect(h.Memory.Accesses).To(Equal(l3Misses + h.L3.Writebacks()))
	})
})

var _ = Describe("PMD page-walk cache TOC reach", func() {
	// A PMD PWC of 16 entries (4 sets, 4 ways) with a TOC of size 16 holds
	// 16 tags times 16 sub-slots, exactly 256 distinct 2 MiB regions --
	// the same reach a plain 256-entry PWC would need, at 1/16th the
	// tag storage. A TLB too small to retain any of them forces every
	// lookup down to the PWC on the second pass.
	It("serves the second pass entirely from the PMD cache", func() {
		tl := tlb.New(tlb.Config{L1Size: 1, L1Ways: 1, L2Size: 1, L2Ways: 1})
		pt := pagetable.New(pagetable.Config{
			PGDEntries: 512, PUDEntries: 512, PMDEntries: 512, PTEEntries: 512,
			PGDWidth: 8, PUDWidth: 8, PMDWidth: 8, PTEWidth: 8,
		}, falloc.NewSequential(1<<24))

		p := pwc.New3Level(
			pwc.Config{Size: 1, Ways: 1, Shift: pt.Shift(pagetable.PGD)},
			pwc.Config{Size: 1, Ways: 1, Shift: pt.Shift(pagetable.PUD)},
			pwc.Config{
				Size: 16, Ways: 4, Shift: pt.Shift(pagetable.PMD),
				TOCEnabled: true, TOCSize: 16,
			},
		)

		cache := dcache.New(
			dcache.Config{TotalBytes: 32 * 1024, Ways: 8, LineBytes: 64},
			dcache.Config{TotalBytes: 256 * 1024, Ways: 16, LineBytes: 64},
			dcache.Config{TotalBytes: 8 * 1024 * 1024, Ways: 16, LineBytes: 64},
		)

		w := walk.New(tl, p, pt, cache, true)
		orch := pipeline.New(w, cache)

		const regions = 256
		const regionBytes = uint64(1) << 21 // 2 MiB, this schema's PMD span
		const base = uint64(0x40000000)     // one PUD entry covers the whole sweep

		// A strided (not sequential) visitation order, still a full
		// permutation of the 256 regions, per each pass.
		order := make([]int, regions)
		for i := range order {
			order[i] = (i * 17) % regions
		}

		for _, idx := range order {
			orch.Process(pipeline.Reference{Vaddr: base + uint64(idx)*regionBytes})
		}

		// Only the first reference walks from cr3; the single PUD PWC entry
		// it installs covers every later region of the first pass.
		before := orch.Walker.Stats
		Expect(before.FullWalks).To(BeEquivalentTo(1))

		for _, idx := range order {
			orch.Process(pipeline.Reference{Vaddr: base + uint64(idx)*regionBytes})
		}

		after := orch.Walker.Stats
		Expect(after.PMDCacheHits - before.PMDCacheHits).To(BeEquivalentTo(regions))
		Expect(after.FullWalks - before.FullWalks).To(BeEquivalentTo(0))
	})
})
