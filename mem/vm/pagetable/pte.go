package pagetable

import "fmt"

// narrowLayout gives the (controlBits, tinyPointerBits) split for each
// sub-8-byte entry width, per this module's design notes on PTE layouts.
func narrowLayout(width int) (controlBits, tinyPointerBits int) {
	switch width {
	case 4:
		return 23, 8
	case 2:
		return 7, 8
	case 1:
		return 1, 6
	default:
		panic(fmt.Sprintf("pagetable: unsupported narrow entry width %d", width))
	}
}

// encode8 packs a classical 8-byte entry: present:1, writable:1, user:1,
// pfn:52, unused:9.
func encode8(present, writable, user bool, pfn uint64) uint64 {
	var v uint64
	if present {
		v |= 1 << 63
	}
	if writable {
		v |= 1 << 62
	}
	if user {
		v |= 1 << 61
	}
	v |= (pfn & (1<<52 - 1)) << 9
	return v
}

func decode8(v uint64) (present, writable, user bool, pfn uint64) {
	present = v&(1<<63) != 0
	writable = v&(1<<62) != 0
	user = v&(1<<61) != 0
	pfn = (v >> 9) & (1<<52 - 1)
	return
}

// encodeNarrow packs a sub-8-byte entry: present:1, controlBits:k,
// tinyPointer:p, most-significant bit first within the entry's width.
func encodeNarrow(width int, present bool, controlBits uint32, tinyPointer uint8) uint64 {
	_, tpBits := narrowLayout(width)
	totalBits := uint(width * 8)

	var v uint64
	if present {
		v |= 1 << (totalBits - 1)
	}
	v |= uint64(controlBits) << uint(tpBits)
	v |= uint64(tinyPointer) & (1<<uint(tpBits) - 1)
	return v
}

func decodeNarrow(width int, v uint64) (present bool, controlBits uint32, tinyPointer uint8) {
	kBits, tpBits := narrowLayout(width)
	totalBits := uint(width * 8)

	present = v&(1<<(totalBits-1)) != 0
	controlBits = uint32((v >> uint(tpBits)) & (1<<uint(kBits) - 1))
	tinyPointer = uint8(v & (1<<uint(tpBits) - 1))
	return
}
