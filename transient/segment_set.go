package transient

import (
	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/gogpu/framegraph/gpucore"
)

// Segment is a byte range inside a memory block.
type Segment struct {
	Block  *Block
	Offset uint64
	Size   uint64
}

// End returns the first byte past the segment.
func (s Segment) End() uint64 { return s.Offset + s.Size }

func segmentByAddress(a, b Segment) bool {
	if a.Block.id != b.Block.id {
		return a.Block.id < b.Block.id
	}
	return a.Offset < b.Offset
}

func segmentBySize(a, b Segment) bool {
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return segmentByAddress(a, b)
}

// SegmentSet tracks free segments across the memory blocks of one bucket.
// Adjacent free segments of the same block are always merged.
//
// SegmentSet is not safe for concurrent use.
type SegmentSet struct {
	byAddress *btree.BTreeG[Segment]
	bySize    *btree.BTreeG[Segment]
}

// NewSegmentSet creates an empty set.
func NewSegmentSet() *SegmentSet {
	return &SegmentSet{
		byAddress: btree.NewG(16, segmentByAddress),
		bySize:    btree.NewG(16, segmentBySize),
	}
}

// Len returns the number of free segments.
func (s *SegmentSet) Len() int { return s.byAddress.Len() }

// Allocate carves size bytes aligned to alignment out of the smallest free
// segment that can hold them. Padding in front of the aligned offset and the
// unused tail stay free.
func (s *SegmentSet) Allocate(size, alignment uint64) (Segment, bool) {
	if size == 0 {
		return Segment{}, false
	}
	if alignment == 0 {
		alignment = 1
	}

	var (
		found   Segment
		aligned uint64
		ok      bool
	)
	pivot := Segment{Block: &Block{}, Size: size}
	s.bySize.AscendGreaterOrEqual(pivot, func(seg Segment) bool {
		a := gpucore.AlignUp(seg.Offset, alignment)
		if a+size <= seg.End() {
			found, aligned, ok = seg, a, true
			return false
		}
		return true
	})
	if !ok {
		return Segment{}, false
	}

	s.remove(found)
	if aligned > found.Offset {
		s.insert(Segment{Block: found.Block, Offset: found.Offset, Size: aligned - found.Offset})
	}
	if tail := found.End() - (aligned + size); tail > 0 {
		s.insert(Segment{Block: found.Block, Offset: aligned + size, Size: tail})
	}
	return Segment{Block: found.Block, Offset: aligned, Size: size}, true
}

// Free returns seg to the set, merging it with free neighbors in the same
// block. Freeing a segment that overlaps free space panics.
func (s *SegmentSet) Free(seg Segment) {
	if seg.Size == 0 {
		return
	}

	var prev, next Segment
	var hasPrev, hasNext bool
	s.byAddress.DescendLessOrEqual(seg, func(item Segment) bool {
		if item.Block == seg.Block {
			prev, hasPrev = item, true
		}
		return false
	})
	s.byAddress.AscendGreaterOrEqual(seg, func(item Segment) bool {
		if item.Block == seg.Block && item.Offset > seg.Offset {
			next, hasNext = item, true
			return false
		}
		return item.Block == seg.Block && item.Offset == seg.Offset
	})

	if (hasPrev && prev.End() > seg.Offset) || (hasNext && next.Offset < seg.End()) {
		panic(errors.AssertionFailedf("transient: freed segment [%d, %d) of block %d overlaps free space",
			seg.Offset, seg.End(), seg.Block.id))
	}

	merged := seg
	if hasPrev && prev.End() == seg.Offset {
		s.remove(prev)
		merged.Offset = prev.Offset
		merged.Size += prev.Size
	}
	if hasNext && next.Offset == seg.End() {
		s.remove(next)
		merged.Size += next.Size
	}
	s.insert(merged)
}

// Segments calls fn for every free segment in address order.
func (s *SegmentSet) Segments(fn func(Segment) bool) {
	s.byAddress.Ascend(fn)
}

func (s *SegmentSet) insert(seg Segment) {
	s.byAddress.ReplaceOrInsert(seg)
	s.bySize.ReplaceOrInsert(seg)
}

func (s *SegmentSet) remove(seg Segment) {
	s.byAddress.Delete(seg)
	s.bySize.Delete(seg)
}
