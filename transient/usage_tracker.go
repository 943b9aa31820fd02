package transient

import (
	"slices"

	"github.com/google/btree"
)

// interval is a byte range of a block last occupied by one resource.
type interval struct {
	begin, end uint64
	owner      int
}

// usageTracker remembers which resource last occupied each byte range of
// each memory block during one Pool.Allocate call. Placing a resource over
// ranges owned by others reports those owners as aliasing predecessors.
type usageTracker struct {
	blocks map[uint64]*btree.BTreeG[interval]
}

func newUsageTracker() *usageTracker {
	return &usageTracker{blocks: make(map[uint64]*btree.BTreeG[interval])}
}

// place records owner over [offset, offset+size) of block and returns the
// distinct previous owners of any overlapped range, in ascending order.
func (t *usageTracker) place(block *Block, offset, size uint64, owner int) []int {
	tree, ok := t.blocks[block.id]
	if !ok {
		tree = btree.NewG(8, func(a, b interval) bool { return a.begin < b.begin })
		t.blocks[block.id] = tree
	}

	begin, end := offset, offset+size
	var overlapped []interval
	tree.DescendLessOrEqual(interval{begin: begin}, func(iv interval) bool {
		if iv.end > begin {
			overlapped = append(overlapped, iv)
		}
		return false
	})
	tree.AscendGreaterOrEqual(interval{begin: begin}, func(iv interval) bool {
		if iv.begin >= end {
			return false
		}
		if iv.begin > begin || len(overlapped) == 0 || overlapped[0] != iv {
			overlapped = append(overlapped, iv)
		}
		return true
	})

	var prevs []int
	for _, iv := range overlapped {
		tree.Delete(iv)
		if iv.begin < begin {
			tree.ReplaceOrInsert(interval{begin: iv.begin, end: begin, owner: iv.owner})
		}
		if iv.end > end {
			tree.ReplaceOrInsert(interval{begin: end, end: iv.end, owner: iv.owner})
		}
		if iv.owner != owner && !slices.Contains(prevs, iv.owner) {
			prevs = append(prevs, iv.owner)
		}
	}
	tree.ReplaceOrInsert(interval{begin: begin, end: end, owner: owner})
	slices.Sort(prevs)
	return prevs
}
