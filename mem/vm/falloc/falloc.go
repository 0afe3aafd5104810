// Package falloc implements the physical frame allocator contract: a
// sequential variant for classical 8-byte page-table entries that store a
// PFN directly, and a two-choice hashed variant for narrow entries that can
// only carry a small side-band "tiny pointer" instead of a full frame
// number.
package falloc

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Allocator is the capability set every frame allocator exposes. Not every
// implementation supports the tiny-pointer operations; the sequential
// variant panics if they are called, matching the "never implements the
// tiny-pointer operations" contract.
type Allocator interface {
	// AllocateFrame issues a new frame for key. keyWidth is the width, in
	// bytes, of the page-table entry that will store the result.
	AllocateFrame(key uint64, keyWidth int) (pfn uint64)

	// AllocateFrameWithTinyPointer issues a new frame and returns the
	// side-band pointer needed to recover it later via DecodeFrame.
	// tinyPointerBits is the number of bits available in the entry for
	// the tiny pointer itself (8 for 4- and 2-byte entries, 6 for
	// 1-byte entries, per the PTE layouts in this module's page-table
	// package). The hash-selector bit always sits at bit
	// (tinyPointerBits-1) of the returned value, so narrower fields
	// never lose it to truncation.
	AllocateFrameWithTinyPointer(key uint64, tinyPointerBits int) (tinyPointer uint8, pfn uint64)

	// DecodeFrame recovers the PFN a tiny pointer was bound to for key.
	// tinyPointerBits must match the value passed to the allocating
	// call; callers always know it, since it is a property of the
	// page-table entry width they just read the tiny pointer from.
	DecodeFrame(key uint64, tinyPointer uint8, tinyPointerBits int) (pfn uint64)
}

// Reserved tiny-pointer values, scaled to a tinyPointerBits-wide field:
// zero (null) and all-ones (overflow). Neither is ever returned by a
// successful allocation.
func reservedNull() uint8 { return 0x00 }

func reservedOverflow(tinyPointerBits int) uint8 {
	return uint8((1 << uint(tinyPointerBits)) - 1)
}

// ---------------------------------------------------------------------------
// Sequential allocator
// ---------------------------------------------------------------------------

// Sequential hands out frames in increasing order starting at 1 (frame 0
// is reserved as the null frame) and fails fatally once exhausted. It
// never implements the tiny-pointer operations.
type Sequential struct {
	totalFrames uint64
	nextFrame   uint64
}

// NewSequential creates a sequential allocator over totalFrames frames
// (frame 0 reserved).
func NewSequential(totalFrames uint64) *Sequential {
	return &Sequential{totalFrames: totalFrames, nextFrame: 1}
}

// AllocateFrame returns and increments nextFrame. keyWidth is unused; the
// sequential allocator never needs a tiny pointer.
func (s *Sequential) AllocateFrame(key uint64, keyWidth int) uint64 {
	if s.nextFrame >= s.totalFrames {
		panic(fmt.Sprintf("falloc: sequential allocator exhausted at frame %d of %d", s.nextFrame, s.totalFrames))
	}
	pfn := s.nextFrame
	s.nextFrame++
	return pfn
}

// AllocateFrameWithTinyPointer is never supported by the sequential
// allocator.
func (s *Sequential) AllocateFrameWithTinyPointer(key uint64, tinyPointerBits int) (uint8, uint64) {
	panic("falloc: sequential allocator does not support tiny pointers")
}

// DecodeFrame is never supported by the sequential allocator.
func (s *Sequential) DecodeFrame(key uint64, tinyPointer uint8, tinyPointerBits int) uint64 {
	panic("falloc: sequential allocator does not support tiny pointers")
}

// ---------------------------------------------------------------------------
// Two-choice allocator
// ---------------------------------------------------------------------------

const binCapacity = 127

// bin is a fixed-capacity pool of frame slots with an explicit singly
// linked free list of next-free slot indices, per this module's design
// notes: the keyWidth walk is a bounded traversal of that chain, not
// pointer chasing across memory.
type bin struct {
	pfn      [binCapacity]uint64
	occupied [binCapacity]bool
	nextFree [binCapacity]int // -1 terminates the chain
	freeHead int
	freeLen  int
}

func newBin(binIndex int, frameBase uint64) *bin {
	b := &bin{freeHead: 0, freeLen: binCapacity}
	for i := 0; i < binCapacity; i++ {
		b.pfn[i] = frameBase + uint64(i)
		if i == binCapacity-1 {
			b.nextFree[i] = -1
		} else {
			b.nextFree[i] = i + 1
		}
	}

	if binIndex == 0 {
		// slot 0 of bin 0 would decode to physical frame 0, which is
		// reserved as the null frame; take it out of circulation
		// permanently so the decode formula in DecodeFrame never
		// needs a special case.
		b.remove(0)
		b.occupied[0] = true
	}

	return b
}

// allocate removes and returns the first free slot index no greater than
// maxSlot (0-based), walking the free chain in order. maxSlot implements
// the keyWidth-constrained reachability rule.
func (b *bin) allocate(maxSlot int) (slot int, ok bool) {
	prev := -1
	cur := b.freeHead
	for cur != -1 {
		if cur <= maxSlot {
			if prev == -1 {
				b.freeHead = b.nextFree[cur]
			} else {
				b.nextFree[prev] = b.nextFree[cur]
			}
			b.freeLen--
			b.occupied[cur] = true
			return cur, true
		}
		prev = cur
		cur = b.nextFree[cur]
	}
	return 0, false
}

func (b *bin) remove(slot int) {
	prev := -1
	cur := b.freeHead
	for cur != -1 {
		if cur == slot {
			if prev == -1 {
				b.freeHead = b.nextFree[cur]
			} else {
				b.nextFree[prev] = b.nextFree[cur]
			}
			b.freeLen--
			return
		}
		prev = cur
		cur = b.nextFree[cur]
	}
}

// TwoChoice is the frame allocator used whenever page-table entries are
// narrower than 8 bytes. The frame space is split into fixed bins of 127
// frames; two independent 64-bit hashes of the key select two candidate
// bins, and the new frame lands in whichever of the two is less full, at
// that bin's free-list head.
type TwoChoice struct {
	bins []*bin
}

// NewTwoChoice creates a two-choice allocator over totalFrames frames,
// reserving frame 0.
func NewTwoChoice(totalFrames uint64) *TwoChoice {
	numBins := int(totalFrames / binCapacity)
	if numBins == 0 {
		numBins = 1
	}

	t := &TwoChoice{bins: make([]*bin, numBins)}
	for i := range t.bins {
		t.bins[i] = newBin(i, uint64(i)*binCapacity)
	}
	return t
}

// hash0 and hash1 are two independent 64-bit hashes of the same key,
// distinguished by a one-byte seed prefix, per this module's design notes
// on using fast 64-bit hashes with distinct seeds rather than two
// unrelated hash families.
func (t *TwoChoice) hash0(key uint64) uint64 {
	var buf [9]byte
	buf[0] = 0x5A
	putUint64(buf[1:], key)
	return xxhash.Sum64(buf[:])
}

func (t *TwoChoice) hash1(key uint64) uint64 {
	var buf [9]byte
	buf[0] = 0xA5
	putUint64(buf[1:], key)
	return xxhash.Sum64(buf[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (t *TwoChoice) binFor(h uint64) int {
	return int(h % uint64(len(t.bins)))
}

// AllocateFrame allocates a frame without returning a tiny pointer,
// choosing the less-full of the two candidate bins and using the full
// 127-slot range.
func (t *TwoChoice) AllocateFrame(key uint64, keyWidth int) uint64 {
	_, pfn := t.allocate(key, binCapacity)
	return pfn
}

// AllocateFrameWithTinyPointer allocates a frame and returns the tiny
// pointer needed to recover it. The hash-selector bit sits at bit
// (tinyPointerBits-1) of the result, so the whole value fits losslessly
// in a tinyPointerBits-wide page-table-entry field; this constrains the
// usable slot range to 2^(tinyPointerBits-1)-2, one slot short of the
// selector bit's own weight so the all-ones overflow sentinel is never
// produced.
func (t *TwoChoice) AllocateFrameWithTinyPointer(key uint64, tinyPointerBits int) (uint8, uint64) {
	hashBit := uint8(1) << uint(tinyPointerBits-1)
	maxSlot := int(hashBit) - 3
	if maxSlot > binCapacity-1 {
		maxSlot = binCapacity - 1
	}

	which, pfn, slot, binIdx := t.allocateWithSlot(key, maxSlot)

	tp := uint8(slot+1) & (hashBit - 1)
	if which == 1 {
		tp |= hashBit
	}

	if tp == reservedNull() || tp == reservedOverflow(tinyPointerBits) {
		panic(fmt.Sprintf("falloc: two-choice allocator produced a reserved tiny pointer %#x for key %#x in bin %d", tp, key, binIdx))
	}

	return tp, pfn
}

// allocate is AllocateFrame's shared core; it returns the chosen hash
// index and the resulting PFN without the tiny-pointer encoding.
func (t *TwoChoice) allocate(key uint64, maxSlot int) (which int, pfn uint64) {
	which, pfn, _, _ = t.allocateWithSlot(key, maxSlot)
	return which, pfn
}

func (t *TwoChoice) allocateWithSlot(key uint64, maxSlot int) (which int, pfn uint64, slot int, binIdx int) {
	bin0Idx := t.binFor(t.hash0(key))
	bin1Idx := t.binFor(t.hash1(key))

	bin0, bin1 := t.bins[bin0Idx], t.bins[bin1Idx]

	choice, chosenIdx := 0, bin0Idx
	chosen := bin0
	if bin1.freeLen > bin0.freeLen {
		choice, chosenIdx, chosen = 1, bin1Idx, bin1
	}

	s, ok := chosen.allocate(maxSlot)
	if !ok {
		// The natural choice has nothing representable; fall back to
		// the other bin before failing outright.
		other := bin0
		otherIdx := bin0Idx
		if choice == 0 {
			other, otherIdx = bin1, bin1Idx
			choice = 1
		} else {
			choice = 0
		}

		s, ok = other.allocate(maxSlot)
		if !ok {
			panic(fmt.Sprintf(
				"falloc: two-choice allocator exhausted representable slots (<=%d) for key %#x in bins %d and %d",
				maxSlot, key, bin0Idx, bin1Idx))
		}
		chosen, chosenIdx = other, otherIdx
		if choice == 0 {
			which = 0
		} else {
			which = 1
		}
	} else {
		which = choice
	}

	return which, chosen.pfn[s], s, chosenIdx
}

// DecodeFrame recovers the PFN previously bound to key/tinyPointer. It
// must be the exact inverse of AllocateFrameWithTinyPointer for any
// matching pair; tinyPointerBits must be the same value passed to that
// call, since it fixes where the hash-selector bit sits.
func (t *TwoChoice) DecodeFrame(key uint64, tinyPointer uint8, tinyPointerBits int) uint64 {
	if tinyPointer == reservedNull() || tinyPointer == reservedOverflow(tinyPointerBits) {
		panic(fmt.Sprintf("falloc: cannot decode reserved tiny pointer %#x", tinyPointer))
	}

	hashBit := uint8(1) << uint(tinyPointerBits-1)

	which := 0
	slotNumber := tinyPointer
	if tinyPointer&hashBit != 0 {
		which = 1
		slotNumber &^= hashBit
	}

	var binIdx int
	if which == 0 {
		binIdx = t.binFor(t.hash0(key))
	} else {
		binIdx = t.binFor(t.hash1(key))
	}

	slot := int(slotNumber) - 1
	if slot < 0 || slot >= binCapacity {
		panic(fmt.Sprintf("falloc: tiny pointer %#x decodes to out-of-range slot %d", tinyPointer, slot))
	}

	return t.bins[binIdx].pfn[slot]
}
