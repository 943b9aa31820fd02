package bindless

import (
	"errors"
	"testing"
)

type frames struct{ pending []func() }

func (f *frames) OnFrameComplete(fn func()) { f.pending = append(f.pending, fn) }

func (f *frames) complete() {
	for _, fn := range f.pending {
		fn()
	}
	f.pending = nil
}

func TestAllocate(t *testing.T) {
	f := &frames{}
	tab := New[string](f, Config{InitialSize: 8, MaxSize: 8})

	a, err := tab.Allocate(3)
	if err != nil {
		t.Fatalf("Allocate(3) error = %v", err)
	}
	b, err := tab.Allocate(5)
	if err != nil {
		t.Fatalf("Allocate(5) error = %v", err)
	}
	if a.Offset() != 0 || b.Offset() != 3 {
		t.Errorf("offsets = (%d, %d), want (0, 3)", a.Offset(), b.Offset())
	}
	if b.Count() != 5 {
		t.Errorf("Count() = %d, want 5", b.Count())
	}
	if _, err := tab.Allocate(1); !errors.Is(err, ErrFull) {
		t.Errorf("Allocate() on full table error = %v, want %v", err, ErrFull)
	}
	if _, err := tab.Allocate(0); !errors.Is(err, ErrZeroCount) {
		t.Errorf("Allocate(0) error = %v, want %v", err, ErrZeroCount)
	}
}

// TestExpand tests doubling growth bounded by the maximum size.
func TestExpand(t *testing.T) {
	var resizes [][2]uint32
	tab := New[int](&frames{}, Config{
		InitialSize: 4,
		MaxSize:     12,
		OnResize:    func(o, n uint32) { resizes = append(resizes, [2]uint32{o, n}) },
	})

	if _, err := tab.Allocate(4); err != nil {
		t.Fatal(err)
	}
	e, err := tab.Allocate(6)
	if err != nil {
		t.Fatalf("Allocate(6) error = %v", err)
	}
	if e.Offset() != 4 {
		t.Errorf("Offset() = %d, want 4", e.Offset())
	}
	if got := tab.Size(); got != 12 {
		t.Errorf("Size() = %d, want 12", got)
	}
	want := [][2]uint32{{4, 8}, {8, 12}}
	if len(resizes) != len(want) || resizes[0] != want[0] || resizes[1] != want[1] {
		t.Errorf("resizes = %v, want %v", resizes, want)
	}
	if got := tab.FreeSlots(); got != 2 {
		t.Errorf("FreeSlots() = %d, want 2", got)
	}
}

// TestDeferredFree tests that freed slots are reused only after the frame
// completes.
func TestDeferredFree(t *testing.T) {
	f := &frames{}
	tab := New[string](f, Config{InitialSize: 4, MaxSize: 4})

	e, _ := tab.Allocate(4)
	e.Set(2, "albedo")
	if got := tab.Get(2); got != "albedo" {
		t.Errorf("Get(2) = %q, want %q", got, "albedo")
	}

	e.Free()
	e.Free()
	if got := tab.Get(2); got != "" {
		t.Errorf("Get(2) after Free = %q, want empty", got)
	}
	if _, err := tab.Allocate(1); !errors.Is(err, ErrFull) {
		t.Errorf("Allocate() before frame completion error = %v, want %v", err, ErrFull)
	}
	if len(f.pending) != 1 {
		t.Fatalf("pending callbacks = %d, want 1", len(f.pending))
	}

	f.complete()
	if got := tab.FreeSlots(); got != 4 {
		t.Errorf("FreeSlots() after completion = %d, want 4", got)
	}
	if _, err := tab.Allocate(4); err != nil {
		t.Errorf("Allocate(4) after completion error = %v", err)
	}
}

func TestEntryClearAndRange(t *testing.T) {
	tab := New[int](&frames{}, Config{})
	if got := tab.Size(); got != DefaultInitialSlots {
		t.Errorf("Size() = %d, want %d", got, DefaultInitialSlots)
	}
	e, _ := tab.Allocate(2)
	e.Set(1, 42)
	e.Clear(1)
	if got := tab.Get(e.Offset() + 1); got != 0 {
		t.Errorf("Get() after Clear = %d, want 0", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("Set() out of range did not panic")
		}
	}()
	e.Set(2, 1)
}
