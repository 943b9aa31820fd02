package rangeset

import (
	"iter"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// Index is a position in the managed range.
type Index = uint32

// NIL is returned by Allocate when no free range can satisfy a request.
const NIL Index = math.MaxUint32

// Policy selects which free range an allocation is carved from.
type Policy uint8

const (
	// BestFit picks the smallest free range whose size is at least the request.
	BestFit Policy = iota

	// Largest picks the largest free range.
	Largest
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case BestFit:
		return "BestFit"
	case Largest:
		return "Largest"
	default:
		return "Unknown"
	}
}

// btreeDegree is the B-tree node degree used for both indexes.
const btreeDegree = 16

// span is one free range.
type span struct {
	offset Index
	size   Index
}

func (s span) end() Index { return s.offset + s.size }

func byOffset(a, b span) bool { return a.offset < b.offset }

func bySize(a, b span) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.offset < b.offset
}

// Set is a coalescing free-range allocator.
//
// The zero value is not usable; create sets with [New] or [NewRange].
type Set struct {
	byOffset *btree.BTreeG[span]
	bySize   *btree.BTreeG[span]
	free     uint64
}

// New creates a set whose free space is [0, end).
func New(end Index) *Set {
	return NewRange(0, end)
}

// NewRange creates a set whose free space is [begin, end).
// An empty range creates an empty set.
func NewRange(begin, end Index) *Set {
	s := &Set{
		byOffset: btree.NewG(btreeDegree, byOffset),
		bySize:   btree.NewG(btreeDegree, bySize),
	}
	if begin < end {
		s.insert(span{offset: begin, size: end - begin})
	}
	return s
}

// Allocate reserves size units and returns the first index of the reserved
// range, or NIL if no free range is large enough. A zero size always fails.
func (s *Set) Allocate(size Index, policy Policy) Index {
	if size == 0 {
		return NIL
	}
	var (
		found span
		ok    bool
	)
	switch policy {
	case Largest:
		found, ok = s.bySize.Max()
		ok = ok && found.size >= size
	default:
		s.bySize.AscendGreaterOrEqual(span{size: size}, func(item span) bool {
			found, ok = item, true
			return false
		})
	}
	if !ok {
		return NIL
	}
	s.carve(found, found.offset, size)
	return found.offset
}

// AllocateAligned reserves size units starting at a multiple of alignment.
// Padding skipped in front of the returned index stays free.
// An alignment of 0 or 1 behaves like Allocate.
func (s *Set) AllocateAligned(size, alignment Index, policy Policy) Index {
	if alignment <= 1 {
		return s.Allocate(size, policy)
	}
	if size == 0 {
		return NIL
	}
	var (
		found   span
		aligned Index
		ok      bool
	)
	fits := func(item span) bool {
		a := alignUp(item.offset, alignment)
		if a < item.offset || uint64(a)+uint64(size) > uint64(item.end()) {
			return false
		}
		found, aligned, ok = item, a, true
		return true
	}
	switch policy {
	case Largest:
		max, has := s.bySize.Max()
		if !has || max.size < size {
			return NIL
		}
		s.bySize.DescendLessOrEqual(max, func(item span) bool {
			if item.size < size {
				return false
			}
			return !fits(item)
		})
	default:
		s.bySize.AscendGreaterOrEqual(span{size: size}, func(item span) bool {
			return !fits(item)
		})
	}
	if !ok {
		return NIL
	}
	s.carve(found, aligned, size)
	return aligned
}

// carve removes [at, at+size) from the free range r, reinserting what is left
// on either side.
func (s *Set) carve(r span, at, size Index) {
	s.remove(r)
	if at > r.offset {
		s.insert(span{offset: r.offset, size: at - r.offset})
	}
	if rest := r.end() - (at + size); rest > 0 {
		s.insert(span{offset: at + size, size: rest})
	}
}

// Free returns [begin, end) to the set, merging it with adjacent free ranges.
//
// Only ranges previously obtained from Allocate (or unions of them) may be
// freed. Freeing a range that overlaps free space panics.
func (s *Set) Free(begin, end Index) {
	if begin >= end {
		return
	}

	prev, hasPrev := s.floor(begin)
	if hasPrev && prev.end() > begin {
		panic(errors.AssertionFailedf("rangeset: free [%d, %d) overlaps free range [%d, %d)",
			begin, end, prev.offset, prev.end()))
	}
	next, hasNext := s.ceil(begin)
	if hasNext && next.offset < end {
		panic(errors.AssertionFailedf("rangeset: free [%d, %d) overlaps free range [%d, %d)",
			begin, end, next.offset, next.end()))
	}

	merged := span{offset: begin, size: end - begin}
	if hasPrev && prev.end() == begin {
		s.remove(prev)
		merged.offset = prev.offset
		merged.size += prev.size
	}
	if hasNext && next.offset == end {
		s.remove(next)
		merged.size += next.size
	}
	s.insert(merged)
}

// FreeSpace returns the total number of free units.
func (s *Set) FreeSpace() uint64 {
	return s.free
}

// Len returns the number of disjoint free ranges.
func (s *Set) Len() int {
	return s.byOffset.Len()
}

// Largest returns the size of the largest free range, or 0 if the set is full.
func (s *Set) Largest() Index {
	if m, ok := s.bySize.Max(); ok {
		return m.size
	}
	return 0
}

// Ranges yields every free range as (begin, end) in ascending order.
// The set must not be modified during iteration.
func (s *Set) Ranges() iter.Seq2[Index, Index] {
	return func(yield func(Index, Index) bool) {
		s.byOffset.Ascend(func(item span) bool {
			return yield(item.offset, item.end())
		})
	}
}

// Validate checks that both indexes describe the same coalesced ranges.
// It returns nil for a consistent set.
func (s *Set) Validate() error {
	if s.byOffset.Len() != s.bySize.Len() {
		return errors.Newf("offset index holds %d ranges but size index holds %d",
			s.byOffset.Len(), s.bySize.Len())
	}
	var (
		err   error
		total uint64
		last  span
		first = true
	)
	s.byOffset.Ascend(func(item span) bool {
		if item.size == 0 {
			err = errors.Newf("empty range at offset %d", item.offset)
			return false
		}
		if !s.bySize.Has(item) {
			err = errors.Newf("range [%d, %d) missing from size index", item.offset, item.end())
			return false
		}
		if !first && last.end() >= item.offset {
			err = errors.Newf("ranges [%d, %d) and [%d, %d) overlap or touch",
				last.offset, last.end(), item.offset, item.end())
			return false
		}
		total += uint64(item.size)
		last, first = item, false
		return true
	})
	if err != nil {
		return err
	}
	if total != s.free {
		return errors.Newf("free space counter is %d but ranges sum to %d", s.free, total)
	}
	return nil
}

func (s *Set) insert(r span) {
	s.byOffset.ReplaceOrInsert(r)
	s.bySize.ReplaceOrInsert(r)
	s.free += uint64(r.size)
}

func (s *Set) remove(r span) {
	s.byOffset.Delete(r)
	s.bySize.Delete(r)
	s.free -= uint64(r.size)
}

// floor returns the free range with the greatest offset <= at.
func (s *Set) floor(at Index) (found span, ok bool) {
	s.byOffset.DescendLessOrEqual(span{offset: at}, func(item span) bool {
		found, ok = item, true
		return false
	})
	return found, ok
}

// ceil returns the free range with the smallest offset > at.
func (s *Set) ceil(at Index) (found span, ok bool) {
	s.byOffset.AscendGreaterOrEqual(span{offset: at}, func(item span) bool {
		if item.offset == at {
			return true
		}
		found, ok = item, true
		return false
	})
	return found, ok
}

func alignUp(v, alignment Index) Index {
	return (v + alignment - 1) / alignment * alignment
}
