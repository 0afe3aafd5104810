package dcache_test

import (
	"testing"

	"github.com/sarchlab/pagewalk/mem/dcache"
	"github.com/stretchr/testify/require"
)

func small() *dcache.Hierarchy {
	return dcache.New(
		dcache.Config{TotalBytes: 512, Ways: 2, LineBytes: 64},
		dcache.Config{TotalBytes: 2048, Ways: 4, LineBytes: 64},
		dcache.Config{TotalBytes: 8192, Ways: 4, LineBytes: 64},
	)
}

func TestFirstAccessMissesAllLevelsAndHitsMemory(t *testing.T) {
	h := small()

	hit := h.Access(0x1000, false)

	require.False(t, hit)
	require.EqualValues(t, 1, h.Memory.Accesses)
	require.EqualValues(t, 1, h.L1.ColdMisses)
}

func TestSecondAccessHitsL1(t *testing.T) {
	h := small()
	h.Access(0x1000, false)

	hit := h.Access(0x1000, false)

	require.True(t, hit)
	require.EqualValues(t, 1, h.L1.ReadHits)
}

func TestWriteHitMarksDirtyWithoutDoubleLRUTouch(t *testing.T) {
	h := small()
	h.Access(0x1000, false)

	hit := h.Access(0x1000, true)

	require.True(t, hit)
	require.EqualValues(t, 1, h.L1.WriteHits)

	// Two more tags in L1 set 0 evict 0x1000's line; it was marked dirty
	// by the write hit, so the eviction is a writeback.
	h.Access(0x1100, false)
	h.Access(0x1200, false)
	require.EqualValues(t, 1, h.L1.Writebacks())
}

func TestDirtyL1EvictionWritesBackToL2Only(t *testing.T) {
	h := small()

	// L1 is 512B/2-way/64B line = 4 sets. Fill both ways of set 0 with
	// writes, then a third tag to the same set evicts the LRU way.
	lineBytes := uint64(64)
	numSets := uint64(4)

	addrA := 0 * numSets * lineBytes
	addrB := 1 * numSets * lineBytes
	addrC := 2 * numSets * lineBytes

	h.Access(addrA, true)
	h.Access(addrB, true)
	h.Access(addrC, true) // evicts addrA's dirty line from L1's set 0

	require.EqualValues(t, 1, h.L1.Writebacks())
	require.EqualValues(t, 0, h.L3.Writebacks())
}

func TestTranslateLookupBypassesL1(t *testing.T) {
	h := small()

	hit := h.TranslateLookup(0x2000)
	require.False(t, hit)
	require.EqualValues(t, 0, h.L1.ReadAccesses)
	require.EqualValues(t, 1, h.L2.TransAccesses)

	hit = h.TranslateLookup(0x2000)
	require.True(t, hit)
	require.EqualValues(t, 1, h.L2.TransHits)
	require.EqualValues(t, 0, h.L1.ReadHits)
}

func TestMemoryAccessesEqualsL3MissesPlusWritebacks(t *testing.T) {
	h := small()

	for tag := uint64(0); tag < 1000; tag++ {
		h.Access(tag*8192, true) // distinct tag in L3 set 0 per iteration, forces eviction pressure
	}

	l3Misses := h.L3.ReadAccesses + h.L3.WriteAccesses - (h.L3.ReadHits + h.L3.WriteHits)
	require.Equal(t, h.Memory.Accesses, l3Misses+h.L3.Writebacks())
}

func TestNewPanicsOnNonPowerOfTwoSets(t *testing.T) {
	require.Panics(t, func() {
		dcache.New(
			dcache.Config{TotalBytes: 500, Ways: 2, LineBytes: 64},
			dcache.Config{TotalBytes: 2048, Ways: 4, LineBytes: 64},
			dcache.Config{TotalBytes: 8192, Ways: 4, LineBytes: 64},
		)
	})
}
