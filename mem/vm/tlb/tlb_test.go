package tlb_test

import (
	"testing"

	"github.com/sarchlab/pagewalk/mem/vm/tlb"
	"github.com/stretchr/testify/require"
)

func defaultTLB() *tlb.TLB {
	return tlb.New(tlb.Config{L1Size: 64, L1Ways: 4, L2Size: 1024, L2Ways: 8})
}

func TestLookupMissesOnEmptyTLB(t *testing.T) {
	tb := defaultTLB()

	_, level := tb.Lookup(0x400)

	require.Equal(t, tlb.Miss, level)
}

func TestInstallThenLookupHitsL1(t *testing.T) {
	tb := defaultTLB()

	tb.Install(0x400, 7)
	pfn, level := tb.Lookup(0x400)

	require.Equal(t, tlb.L1Hit, level)
	require.EqualValues(t, 7, pfn)
}

func TestL2HitPromotesIntoL1(t *testing.T) {
	tb := defaultTLB()
	tb.L2.Insert(0x400, 9, false)

	pfn, level := tb.Lookup(0x400)
	require.Equal(t, tlb.L2Hit, level)
	require.EqualValues(t, 9, pfn)

	// Second lookup must now hit in L1.
	pfn, level = tb.Lookup(0x400)
	require.Equal(t, tlb.L1Hit, level)
	require.EqualValues(t, 9, pfn)
}

func TestNewPanicsOnBadSizeWaysRatio(t *testing.T) {
	require.Panics(t, func() {
		tlb.New(tlb.Config{L1Size: 10, L1Ways: 3, L2Size: 1024, L2Ways: 8})
	})
}
