// Package tlb implements the two-level translation lookaside buffer: L1 is
// consulted first, L2 on an L1 miss, and an L2 hit is promoted into L1
// before the translation is returned. Both levels wrap the generic
// set-associative cache in mem/internal/tagging, keyed by virtual
// page number, holding a physical frame number. TLB entries are never
// dirty, so callers always insert with isWrite=false.
package tlb

import (
	"fmt"

	"github.com/sarchlab/pagewalk/mem/internal/tagging"
)

// HitLevel identifies which structure resolved a translation.
type HitLevel int

const (
	// Miss means neither L1 nor L2 held the VPN.
	Miss HitLevel = iota
	// L1Hit means the translation was found in L1.
	L1Hit
	// L2Hit means the translation was found in L2 (and has now been
	// installed into L1).
	L2Hit
)

// TLB bundles the L1 and L2 levels.
type TLB struct {
	L1 *tagging.Cache[uint64]
	L2 *tagging.Cache[uint64]
}

// Config carries the size/associativity of both levels, in entries.
type Config struct {
	L1Size, L1Ways int
	L2Size, L2Ways int
}

// New validates Config and builds both levels. Size must be evenly
// divisible by its ways, and the resulting set count must be a power of
// two; either violation is a configuration bug and is fatal.
func New(cfg Config) *TLB {
	l1Sets := setsOrPanic("tlb-l1", cfg.L1Size, cfg.L1Ways)
	l2Sets := setsOrPanic("tlb-l2", cfg.L2Size, cfg.L2Ways)

	return &TLB{
		L1: tagging.New[uint64]("tlb-l1", l1Sets, cfg.L1Ways, nil, nil),
		L2: tagging.New[uint64]("tlb-l2", l2Sets, cfg.L2Ways, nil, nil),
	}
}

func setsOrPanic(name string, size, ways int) int {
	if ways <= 0 || size%ways != 0 {
		panic(fmt.Sprintf("tlb: %s: size %d is not divisible by ways %d", name, size, ways))
	}
	sets := size / ways
	if sets&(sets-1) != 0 {
		panic(fmt.Sprintf("tlb: %s: size/ways=%d is not a power of two", name, sets))
	}
	return sets
}

// Lookup resolves vpn, checking L1 then L2. An L2 hit is promoted into L1
// (read-only insert, so L1 never reports a translation dirty) before
// returning.
func (t *TLB) Lookup(vpn uint64) (pfn uint64, level HitLevel) {
	if pfn, hit := t.L1.Lookup(vpn); hit {
		return pfn, L1Hit
	}

	if pfn, hit := t.L2.Lookup(vpn); hit {
		t.L1.Insert(vpn, pfn, false)
		return pfn, L2Hit
	}

	return 0, Miss
}

// Install records a freshly resolved translation into both levels. Every
// path that resolves a translation below the TLB (PWC hit or full walk)
// installs unconditionally, even when nothing evicts -- a later lookup of
// the same vpn must then hit at the highest-installed level.
func (t *TLB) Install(vpn, pfn uint64) {
	t.L1.Insert(vpn, pfn, false)
	t.L2.Insert(vpn, pfn, false)
}
