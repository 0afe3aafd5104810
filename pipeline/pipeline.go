// Package pipeline implements the per-reference translate-then-access
// orchestrator and the aggregate statistics it produces. It is the one
// place that owns every other component for the duration of a run: the
// page table, the TLBs, the PWCs, the frame allocator, and the data-cache
// hierarchy all live behind the Orchestrator's single call stack, matching
// this module's single-threaded, no-reordering execution model.
package pipeline

import (
	"github.com/sarchlab/pagewalk/mem/dcache"
	"github.com/sarchlab/pagewalk/mem/vm/pagetable"
	"github.com/sarchlab/pagewalk/mem/vm/walk"
)

// Reference is one memory-access record fed through the pipeline.
type Reference struct {
	PC      uint64
	Vaddr   uint64
	Size    uint32
	IsWrite bool
}

// Orchestrator drives references through the walker and then the data
// cache, in order, with no reordering, batching, or speculation.
type Orchestrator struct {
	Walker *walk.Walker
	Cache  *dcache.Hierarchy

	ReferenceCount uint64
}

// New builds an Orchestrator over an already-wired walker and cache
// hierarchy.
func New(w *walk.Walker, c *dcache.Hierarchy) *Orchestrator {
	return &Orchestrator{Walker: w, Cache: c}
}

// Process resolves ref's virtual address and issues the resulting demand
// access, advancing the global reference counter exactly once.
func (o *Orchestrator) Process(ref Reference) {
	paddr := o.Walker.Translate(ref.Vaddr)
	o.Cache.Access(paddr, ref.IsWrite)
	o.ReferenceCount++
}

// Run drives every reference in refs through the pipeline in order.
func (o *Orchestrator) Run(refs []Reference) {
	for _, ref := range refs {
		o.Process(ref)
	}
}

// Stats snapshots the derived, report-facing statistics for a completed
// (or in-progress) run, gathered from the orchestrator's owned components.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		References:     o.ReferenceCount,
		Walk:           o.Walker.Stats,
		L1:             levelStats(o.Cache.L1),
		L2:             levelStats(o.Cache.L2),
		L3:             levelStats(o.Cache.L3),
		MemoryAccesses: o.Cache.Memory.Accesses,
		PageTable: [4]PageTableLevelStats{
			pageTableLevelStats(o.Walker.PT, pagetable.PGD),
			pageTableLevelStats(o.Walker.PT, pagetable.PUD),
			pageTableLevelStats(o.Walker.PT, pagetable.PMD),
			pageTableLevelStats(o.Walker.PT, pagetable.PTE),
		},
		PWC: [3]PWCLevelStats{
			pwcLevelStats("pgd", o.Walker.PWC.PGD),
			pwcLevelStats("pud", o.Walker.PWC.PUD),
			pwcLevelStats("pmd", o.Walker.PWC.PMD),
		},
	}
}

// PageTableLevelStats is the report-facing snapshot of one radix level:
// accesses, allocations, entries written, and average fill percent across
// every table page that exists at this level so far.
type PageTableLevelStats struct {
	Level       string
	Accesses    uint64
	Allocations uint64
	Entries     uint64
	FillPercent float64
}

func pageTableLevelStats(pt *pagetable.PageTable, l pagetable.Level) PageTableLevelStats {
	stats := pt.Stats[l]
	tables := pt.TableCount(l)
	total := tables * pt.EntriesPerLevel(l)

	fill := 0.0
	if total > 0 {
		fill = 100 * float64(stats.Entries) / float64(total)
	}

	return PageTableLevelStats{
		Level:       l.String(),
		Accesses:    stats.Accesses,
		Allocations: stats.Allocations,
		Entries:     stats.Entries,
		FillPercent: fill,
	}
}
