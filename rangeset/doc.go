// Package rangeset provides a free-space allocator over a one-dimensional
// integer range.
//
// A [Set] tracks the free ranges of some index space (descriptor slots,
// bytes inside a heap, entries of a fixed-capacity table). Allocation picks a
// free range by policy and returns its lowest index; freeing returns a range
// and merges it with its neighbors, so the set never holds two touching
// ranges.
//
//	s := rangeset.New(1024)
//	off := s.Allocate(16, rangeset.BestFit)
//	if off == rangeset.NIL {
//	    // out of space
//	}
//	s.Free(off, off+16)
//
// # Policies
//
//   - [BestFit] takes the smallest free range that can hold the request.
//   - [Largest] takes the largest free range and fails if even that is too small.
//
// # Indexes
//
// Free ranges are kept in two B-trees: one ordered by offset, used to find the
// neighbors of a freed range, and one ordered by (size, offset), used for
// best-fit lookups. Both are updated together by every operation.
//
// # Thread Safety
//
// Set is not safe for concurrent use. Callers that share a Set between
// goroutines must serialize access.
package rangeset
