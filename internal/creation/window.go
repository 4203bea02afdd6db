package creation

import "math"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Window returns the i-th scan window of size blocks starting at start:
// [start + i*size, start + size*(i+1) - 1]. ok is false when the window
// does not fit in uint64.
func Window(start, size uint64, i int) (BlockRange, bool) {
	if size == 0 || i < 0 {
		return BlockRange{}, false
	}
	idx := uint64(i)
	if idx > (math.MaxUint64-start)/size {
		return BlockRange{}, false
	}
	from := start + idx*size
	if size-1 > math.MaxUint64-from {
		return BlockRange{}, false
	}
	return BlockRange{From: from, To: from + size - 1}, true
}
