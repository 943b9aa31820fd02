package subresource

import "testing"

// TestEnumerate tests that every coordinate is visited exactly once with the
// mip level varying fastest.
func TestEnumerate(t *testing.T) {
	tests := []struct {
		name   string
		mips   uint32
		layers uint32
	}{
		{"3x2", 3, 2},
		{"1x1", 1, 1},
		{"1x6", 1, 6},
		{"empty", 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[Index]int)
			var order []Index
			for i := range Enumerate(tt.mips, tt.layers) {
				seen[i]++
				order = append(order, i)
			}
			if got, want := len(order), int(tt.mips*tt.layers); got != want {
				t.Fatalf("visited %d coordinates, want %d", got, want)
			}
			for m := uint32(0); m < tt.mips; m++ {
				for a := uint32(0); a < tt.layers; a++ {
					if n := seen[Index{m, a}]; n != 1 {
						t.Errorf("(%d, %d) visited %d times, want 1", m, a, n)
					}
				}
			}
			for k := 1; k < len(order); k++ {
				prev, cur := order[k-1], order[k]
				if cur.Layer == prev.Layer && cur.Mip != prev.Mip+1 {
					t.Errorf("order[%d] = %v after %v, mip must vary fastest", k, cur, prev)
				}
			}
		})
	}
}

// TestEnumerateRestartable tests that the sequence can be ranged over twice
// and stopped early.
func TestEnumerateRestartable(t *testing.T) {
	seq := Enumerate(3, 2)
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 6 || b != 6 {
		t.Errorf("counts = %d, %d, want 6, 6", a, b)
	}

	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("early stop visited %d, want 2", n)
	}
}

// TestMap tests indexed access, fill and clone.
func TestMap(t *testing.T) {
	m := New[int](3, 2)
	if m.Len() != 6 || m.MipLevels() != 3 || m.ArrayLayers() != 2 {
		t.Fatalf("dims = %d (%d x %d), want 6 (3 x 2)", m.Len(), m.MipLevels(), m.ArrayLayers())
	}

	for i := range Enumerate(3, 2) {
		m.Set(i.Mip, i.Layer, int(i.Mip*10+i.Layer))
	}
	if got := m.At(2, 1); got != 21 {
		t.Errorf("At(2, 1) = %d, want 21", got)
	}
	*m.Ptr(1, 0) = 99
	if got := m.Get(Index{Mip: 1}); got != 99 {
		t.Errorf("Get(1, 0) = %d, want 99", got)
	}

	c := m.Clone()
	c.Set(0, 0, -1)
	if m.At(0, 0) == -1 {
		t.Error("Clone shares storage with original")
	}

	m.Fill(7)
	for i, v := range m.All() {
		if v != 7 {
			t.Errorf("All() %v = %d, want 7", i, v)
		}
	}
	if !m.Uniform(func(a, b int) bool { return a == b }) {
		t.Error("Uniform() = false after Fill")
	}

	f := NewFilled(2, 2, "x")
	if f.At(1, 1) != "x" {
		t.Errorf("NewFilled At(1, 1) = %q, want %q", f.At(1, 1), "x")
	}
}

// TestMapOutOfRange tests that out-of-range access panics.
func TestMapOutOfRange(t *testing.T) {
	tests := []struct {
		name       string
		mip, layer uint32
	}{
		{"mip", 3, 0},
		{"layer", 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New[int](3, 2)
			defer func() {
				if recover() == nil {
					t.Errorf("At(%d, %d) did not panic", tt.mip, tt.layer)
				}
			}()
			_ = m.At(tt.mip, tt.layer)
		})
	}
}
