// Package bindless manages slots of a growable descriptor array shared by
// bindless shaders.
//
// A Table hands out contiguous slot ranges. When no free range is large
// enough, the array doubles in size up to a maximum and the OnResize hook
// lets the owner rebuild its binding group. Freed ranges become reusable
// only after the frame that last referenced them has finished on the GPU.
//
//	tab := bindless.New[gpucore.Texture](device, bindless.Config{})
//	e, err := tab.Allocate(1)
//	e.Set(0, albedo)
//	shaderIndex := e.Offset()
//	...
//	e.Free()
package bindless

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/rangeset"
)

// Table errors.
var (
	// ErrFull is returned when the array is at its maximum size and no
	// free range can hold the request.
	ErrFull = errors.New("bindless: descriptor array is full")

	// ErrZeroCount is returned for an allocation of zero slots.
	ErrZeroCount = errors.New("bindless: zero slot count")
)

// Default sizes.
const (
	DefaultInitialSlots = 64
	DefaultMaxSlots     = 4096
)

// Config holds configuration for creating a Table.
type Config struct {
	// InitialSize is the starting array size.
	// Defaults to DefaultInitialSlots if 0.
	InitialSize uint32

	// MaxSize bounds array growth.
	// Defaults to DefaultMaxSlots if 0, and is raised to InitialSize if smaller.
	MaxSize uint32

	// OnResize is called with the old and new array sizes whenever the
	// array grows. It runs with the table locked and must not call back
	// into the table.
	OnResize func(oldSize, newSize uint32)
}

// Table is a growable array of T with range allocation.
//
// Table is safe for concurrent use.
type Table[T any] struct {
	frames gpucore.FrameCompleter

	mu       sync.RWMutex
	free     *rangeset.Set
	slots    []T
	size     uint32
	max      uint32
	onResize func(oldSize, newSize uint32)
}

// New creates a table whose frees are deferred through frames.
func New[T any](frames gpucore.FrameCompleter, cfg Config) *Table[T] {
	if cfg.InitialSize == 0 {
		cfg.InitialSize = DefaultInitialSlots
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSlots
	}
	cfg.MaxSize = max(cfg.MaxSize, cfg.InitialSize)
	return &Table[T]{
		frames:   frames,
		free:     rangeset.New(cfg.InitialSize),
		slots:    make([]T, cfg.InitialSize),
		size:     cfg.InitialSize,
		max:      cfg.MaxSize,
		onResize: cfg.OnResize,
	}
}

// Size returns the current array size.
func (t *Table[T]) Size() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// FreeSlots returns the number of slots available for allocation.
func (t *Table[T]) FreeSlots() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.free.FreeSpace()
}

// Get returns the value bound at slot i.
func (t *Table[T]) Get(i uint32) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[i]
}

// Allocate reserves count contiguous slots, growing the array if needed.
func (t *Table[T]) Allocate(count uint32) (*Entry[T], error) {
	if count == 0 {
		return nil, ErrZeroCount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		offset := t.free.Allocate(count, rangeset.BestFit)
		if offset != rangeset.NIL {
			return &Entry[T]{table: t, offset: offset, count: count}, nil
		}
		if err := t.expand(); err != nil {
			return nil, errors.Wrapf(err, "allocate %d slots", count)
		}
	}
}

func (t *Table[T]) expand() error {
	newSize := min(t.size<<1, t.max)
	if newSize == t.size {
		return ErrFull
	}
	if t.onResize != nil {
		t.onResize(t.size, newSize)
	}
	t.free.Free(t.size, newSize)
	t.slots = append(t.slots, make([]T, newSize-t.size)...)
	t.size = newSize
	return nil
}

func (t *Table[T]) release(offset, count uint32) {
	t.mu.Lock()
	var zero T
	for i := offset; i < offset+count; i++ {
		t.slots[i] = zero
	}
	t.mu.Unlock()

	t.frames.OnFrameComplete(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.free.Free(offset, offset+count)
	})
}

// Entry is a contiguous range of slots returned by Table.Allocate.
type Entry[T any] struct {
	table  *Table[T]
	offset uint32
	count  uint32
	once   sync.Once
}

// Offset returns the index of the first slot, as seen by shaders.
func (e *Entry[T]) Offset() uint32 { return e.offset }

// Count returns the number of slots.
func (e *Entry[T]) Count() uint32 { return e.count }

// Set binds v to slot i of the entry.
func (e *Entry[T]) Set(i uint32, v T) {
	e.check(i)
	e.table.mu.Lock()
	defer e.table.mu.Unlock()
	e.table.slots[e.offset+i] = v
}

// Clear unbinds slot i of the entry.
func (e *Entry[T]) Clear(i uint32) {
	var zero T
	e.Set(i, zero)
}

// Free unbinds every slot and returns the range to the table once the
// current frame has finished. Calling Free more than once has no effect.
func (e *Entry[T]) Free() {
	e.once.Do(func() { e.table.release(e.offset, e.count) })
}

func (e *Entry[T]) check(i uint32) {
	if i >= e.count {
		panic(errors.AssertionFailedf("bindless: slot %d out of range [0, %d)", i, e.count))
	}
}
