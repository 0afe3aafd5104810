package config

import (
	"github.com/sarchlab/pagewalk/mem/dcache"
	"github.com/sarchlab/pagewalk/mem/vm/falloc"
	"github.com/sarchlab/pagewalk/mem/vm/pagetable"
	"github.com/sarchlab/pagewalk/mem/vm/pwc"
	"github.com/sarchlab/pagewalk/mem/vm/tlb"
	"github.com/sarchlab/pagewalk/mem/vm/walk"
	"github.com/sarchlab/pagewalk/pipeline"
)

// Builder assembles a complete Orchestrator from a validated Config,
// substituting a two-choice frame allocator only when the page table's
// entry widths require one.
type Builder struct {
	cfg   Config
	alloc falloc.Allocator
}

// NewBuilder returns a Builder seeded from cfg. cfg is re-validated at
// Build time, so callers may still mutate the groups they hold before
// building.
func NewBuilder(cfg Config) Builder {
	return Builder{cfg: cfg}
}

// WithAllocator overrides the frame allocator the page table is built
// over. When unset, Build picks Sequential if every configured entry
// width is 8 bytes, and TwoChoice otherwise.
func (b Builder) WithAllocator(a falloc.Allocator) Builder {
	b.alloc = a
	return b
}

// Build constructs the TLB, PWC, page table, data-cache hierarchy, and
// walker described by b's Config, and returns the Orchestrator that
// drives references through them.
func (b Builder) Build() *pipeline.Orchestrator {
	b.cfg.Validate()

	t := tlb.New(tlb.Config{
		L1Size: b.cfg.TLB.L1Size, L1Ways: b.cfg.TLB.L1Ways,
		L2Size: b.cfg.TLB.L2Size, L2Ways: b.cfg.TLB.L2Ways,
	})

	alloc := b.alloc
	if alloc == nil {
		alloc = b.defaultAllocator()
	}

	pt := pagetable.New(pagetable.Config{
		PGDEntries: b.cfg.PageTable.PGDEntries, PUDEntries: b.cfg.PageTable.PUDEntries,
		PMDEntries: b.cfg.PageTable.PMDEntries, PTEEntries: b.cfg.PageTable.PTEEntries,
		PGDWidth: b.cfg.PageTable.PGDWidth, PUDWidth: b.cfg.PageTable.PUDWidth,
		PMDWidth: b.cfg.PageTable.PMDWidth, PTEWidth: b.cfg.PageTable.PTEWidth,
	}, alloc)

	p := pwc.New3Level(
		pwc.Config{
			Size: b.cfg.PWC.PGDSize, Ways: b.cfg.PWC.PGDWays, Shift: pt.Shift(pagetable.PGD),
			TOCEnabled: b.cfg.PWCTOC.Enabled, TOCSize: b.cfg.PWCTOC.Size,
		},
		pwc.Config{
			Size: b.cfg.PWC.PUDSize, Ways: b.cfg.PWC.PUDWays, Shift: pt.Shift(pagetable.PUD),
			TOCEnabled: b.cfg.PWCTOC.Enabled, TOCSize: b.cfg.PWCTOC.Size,
		},
		pwc.Config{
			Size: b.cfg.PWC.PMDSize, Ways: b.cfg.PWC.PMDWays, Shift: pt.Shift(pagetable.PMD),
			TOCEnabled: b.cfg.PWCTOC.Enabled, TOCSize: b.cfg.PWCTOC.Size,
		},
	)

	cache := dcache.New(
		dcache.Config{TotalBytes: b.cfg.Cache.L1Size, Ways: b.cfg.Cache.L1Ways, LineBytes: b.cfg.Cache.L1Line},
		dcache.Config{TotalBytes: b.cfg.Cache.L2Size, Ways: b.cfg.Cache.L2Ways, LineBytes: b.cfg.Cache.L2Line},
		dcache.Config{TotalBytes: b.cfg.Cache.L3Size, Ways: b.cfg.Cache.L3Ways, LineBytes: b.cfg.Cache.L3Line},
	)

	w := walk.New(t, p, pt, cache, b.cfg.PageTable.PTECachable)

	return pipeline.New(w, cache)
}

func (b Builder) defaultAllocator() falloc.Allocator {
	totalFrames := uint64(b.cfg.Memory.PhysMemGiB) << 30 >> 12

	if b.cfg.PageTable.PGDWidth == 8 && b.cfg.PageTable.PUDWidth == 8 && b.cfg.PageTable.PMDWidth == 8 && b.cfg.PageTable.PTEWidth == 8 {
		return falloc.NewSequential(totalFrames)
	}
	return falloc.NewTwoChoice(totalFrames)
}
