package transient

import (
	"testing"
)

func collect(s *SegmentSet) []Segment {
	var out []Segment
	s.Segments(func(seg Segment) bool {
		out = append(out, seg)
		return true
	})
	return out
}

// TestSegmentSetAllocate tests best-fit selection and alignment padding.
func TestSegmentSetAllocate(t *testing.T) {
	b1 := &Block{id: 1, Size: 1024}
	b2 := &Block{id: 2, Size: 1024}

	tests := []struct {
		name       string
		free       []Segment
		size       uint64
		alignment  uint64
		wantOK     bool
		wantBlock  *Block
		wantOffset uint64
		wantFree   int
	}{
		{
			name:      "empty",
			size:      16,
			alignment: 16,
		},
		{
			name:       "exact fit",
			free:       []Segment{{Block: b1, Offset: 0, Size: 256}},
			size:       256,
			alignment:  256,
			wantOK:     true,
			wantBlock:  b1,
			wantOffset: 0,
			wantFree:   0,
		},
		{
			name: "smallest segment wins",
			free: []Segment{
				{Block: b1, Offset: 0, Size: 1024},
				{Block: b2, Offset: 512, Size: 256},
			},
			size:       128,
			alignment:  128,
			wantOK:     true,
			wantBlock:  b2,
			wantOffset: 512,
			wantFree:   2,
		},
		{
			name:       "aligned inside segment",
			free:       []Segment{{Block: b1, Offset: 100, Size: 500}},
			size:       256,
			alignment:  256,
			wantOK:     true,
			wantBlock:  b1,
			wantOffset: 256,
			wantFree:   2,
		},
		{
			name: "alignment skips segment",
			free: []Segment{
				{Block: b1, Offset: 100, Size: 300},
				{Block: b2, Offset: 0, Size: 512},
			},
			size:       256,
			alignment:  256,
			wantOK:     true,
			wantBlock:  b2,
			wantOffset: 0,
			wantFree:   2,
		},
		{
			name:      "too large",
			free:      []Segment{{Block: b1, Offset: 0, Size: 1024}},
			size:      2048,
			alignment: 1,
			wantFree:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSegmentSet()
			for _, seg := range tt.free {
				s.Free(seg)
			}
			seg, ok := s.Allocate(tt.size, tt.alignment)
			if ok != tt.wantOK {
				t.Fatalf("Allocate() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				if seg.Block != tt.wantBlock || seg.Offset != tt.wantOffset || seg.Size != tt.size {
					t.Errorf("Allocate() = {block %d, offset %d, size %d}, want {block %d, offset %d, size %d}",
						seg.Block.id, seg.Offset, seg.Size, tt.wantBlock.id, tt.wantOffset, tt.size)
				}
			}
			if got := s.Len(); got != tt.wantFree {
				t.Errorf("Len() = %d, want %d", got, tt.wantFree)
			}
		})
	}
}

// TestSegmentSetFreeCoalesces tests merging with neighbors of the same block only.
func TestSegmentSetFreeCoalesces(t *testing.T) {
	b1 := &Block{id: 1, Size: 1024}
	b2 := &Block{id: 2, Size: 1024}
	s := NewSegmentSet()

	s.Free(Segment{Block: b1, Offset: 0, Size: 256})
	s.Free(Segment{Block: b1, Offset: 512, Size: 512})
	s.Free(Segment{Block: b2, Offset: 0, Size: 256})
	if got := s.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	s.Free(Segment{Block: b1, Offset: 256, Size: 256})
	got := collect(s)
	if len(got) != 2 {
		t.Fatalf("Segments() = %d segments, want 2", len(got))
	}
	if got[0].Block != b1 || got[0].Offset != 0 || got[0].Size != 1024 {
		t.Errorf("merged segment = {%d, %d, %d}, want {1, 0, 1024}", got[0].Block.id, got[0].Offset, got[0].Size)
	}
	if got[1].Block != b2 || got[1].Size != 256 {
		t.Errorf("second segment = {%d, %d, %d}, want {2, 0, 256}", got[1].Block.id, got[1].Offset, got[1].Size)
	}
}

func TestSegmentSetRoundTrip(t *testing.T) {
	b := &Block{id: 1, Size: 4096}
	s := NewSegmentSet()
	s.Free(Segment{Block: b, Size: b.Size})

	var segs []Segment
	for range 4 {
		seg, ok := s.Allocate(1000, 256)
		if !ok {
			t.Fatal("Allocate() failed with free space left")
		}
		segs = append(segs, seg)
	}
	if _, ok := s.Allocate(1000, 256); ok {
		t.Error("Allocate() succeeded on a full block")
	}
	for _, i := range []int{2, 0, 3, 1} {
		s.Free(segs[i])
	}
	got := collect(s)
	if len(got) != 1 || got[0].Offset != 0 || got[0].Size != 4096 {
		t.Errorf("Segments() after freeing everything = %v, want one 4096-byte segment", got)
	}
}

func TestSegmentSetFreeOverlapPanics(t *testing.T) {
	b := &Block{id: 1, Size: 1024}
	s := NewSegmentSet()
	s.Free(Segment{Block: b, Offset: 0, Size: 512})
	defer func() {
		if recover() == nil {
			t.Error("Free() of an overlapping segment did not panic")
		}
	}()
	s.Free(Segment{Block: b, Offset: 256, Size: 512})
}
