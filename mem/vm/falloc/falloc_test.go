package falloc_test

import (
	"testing"

	"github.com/sarchlab/pagewalk/mem/vm/falloc"
	"github.com/stretchr/testify/require"
)

func TestSequentialAllocatesIncreasingFrames(t *testing.T) {
	a := falloc.NewSequential(1024)

	f1 := a.AllocateFrame(0, 8)
	f2 := a.AllocateFrame(0, 8)

	require.EqualValues(t, 1, f1)
	require.EqualValues(t, 2, f2)
}

func TestSequentialExhaustionPanics(t *testing.T) {
	a := falloc.NewSequential(2) // frame 0 reserved, frame 1 the only one available

	a.AllocateFrame(0, 8)

	require.Panics(t, func() {
		a.AllocateFrame(0, 8)
	})
}

func TestSequentialTinyPointerUnsupported(t *testing.T) {
	a := falloc.NewSequential(1024)

	require.Panics(t, func() {
		a.AllocateFrameWithTinyPointer(0, 8)
	})
}

func TestTwoChoiceRoundTripsTinyPointer(t *testing.T) {
	a := falloc.NewTwoChoice(1024 * 127)

	for key := uint64(0); key < 10000; key++ {
		tp, pfn := a.AllocateFrameWithTinyPointer(key, 8)
		decoded := a.DecodeFrame(key, tp, 8)
		require.Equal(t, pfn, decoded, "key=%d tp=%#x", key, tp)
	}
}

func TestTwoChoiceNeverReturnsReservedTinyPointers(t *testing.T) {
	a := falloc.NewTwoChoice(1024 * 127)

	for key := uint64(0); key < 5000; key++ {
		tp, _ := a.AllocateFrameWithTinyPointer(key, 8)
		require.NotEqual(t, uint8(0x00), tp)
		require.NotEqual(t, uint8(0xFF), tp)
	}
}

func TestTwoChoiceRespectsNarrowTinyPointerWidth(t *testing.T) {
	a := falloc.NewTwoChoice(64 * 127)

	for key := uint64(0); key < 500; key++ {
		tp, pfn := a.AllocateFrameWithTinyPointer(key, 6)
		require.Zero(t, tp&0xC0, "tiny pointer %#x uses bits outside a 6-bit field", tp)
		decoded := a.DecodeFrame(key, tp, 6)
		require.Equal(t, pfn, decoded)
	}
}

func TestTwoChoiceNeverAllocatesReservedNullFrame(t *testing.T) {
	a := falloc.NewTwoChoice(32 * 127)

	for key := uint64(0); key < 2000; key++ {
		_, pfn := a.AllocateFrameWithTinyPointer(key, 8)
		require.NotZero(t, pfn)
	}
}
