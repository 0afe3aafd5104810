package falloc_test

import (
	"testing"

	"github.com/sarchlab/pagewalk/mem/vm/pagetable"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// TestAllocateAndLinkCallsAllocatorWithEntryAddrAndWidth verifies the page
// table calls through the Allocator capability exactly as the walker's
// allocate-on-miss path requires, without depending on either concrete
// allocator's real bin/counter behavior.
func TestAllocateAndLinkCallsAllocatorWithEntryAddrAndWidth(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAlloc := NewMockAllocator(ctrl)

	// New itself allocates the root PGD frame before the test issues any
	// explicit AllocateAndLink calls.
	mockAlloc.EXPECT().AllocateFrame(uint64(0), 8).Return(uint64(0)).Times(1)
	// The root lands on frame 0, so the PUD entry at index 0 sits at byte
	// address 0 and the PMD entry at index 0 at the start of frame 1.
	mockAlloc.EXPECT().AllocateFrame(uint64(0), 8).Return(uint64(1)).Times(1)
	mockAlloc.EXPECT().AllocateFrame(uint64(1*4096), 8).Return(uint64(2)).Times(1)

	pt := pagetable.New(pagetable.Config{
		PGDEntries: 512, PUDEntries: 512, PMDEntries: 512, PTEEntries: 512,
		PGDWidth: 8, PUDWidth: 8, PMDWidth: 8, PTEWidth: 8,
	}, mockAlloc)

	targetAddr, _ := pt.AllocateAndLink(pagetable.PUD, pt.CR3, 0)
	require.EqualValues(t, 1*4096, targetAddr)

	targetAddr2, _ := pt.AllocateAndLink(pagetable.PMD, targetAddr, 0)
	require.EqualValues(t, 2*4096, targetAddr2)
}

// TestAllocateAndLinkPropagatesAllocatorExhaustionPanic verifies that a
// frame allocator's fatal resource-exhaustion panic (this module's §7
// taxonomy: fatal at the site) surfaces unchanged through the page table,
// rather than being caught or translated into a different failure.
func TestAllocateAndLinkPropagatesAllocatorExhaustionPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAlloc := NewMockAllocator(ctrl)

	mockAlloc.EXPECT().AllocateFrame(uint64(0), 8).Return(uint64(0)).Times(1)
	mockAlloc.EXPECT().AllocateFrame(gomock.Any(), 8).
		DoAndReturn(func(uint64, int) uint64 {
			panic("falloc: frame space exhausted")
		})

	pt := pagetable.New(pagetable.Config{
		PGDEntries: 512, PUDEntries: 512, PMDEntries: 512, PTEEntries: 512,
		PGDWidth: 8, PUDWidth: 8, PMDWidth: 8, PTEWidth: 8,
	}, mockAlloc)

	require.Panics(t, func() {
		pt.AllocateAndLink(pagetable.PUD, pt.CR3, 0)
	})
}
