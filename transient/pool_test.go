package transient

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/recording"
)

func sampledTexture(w, h uint32) gpucore.TextureDesc {
	return gpucore.TextureDesc{
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  w,
		Height: h,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding,
	}
}

func newTestPool(t *testing.T, caps gpucore.Capabilities) (*recording.Device, *Pool) {
	t.Helper()
	dev := recording.NewDevice(recording.Config{Capabilities: caps})
	p := NewPool(dev, PoolConfig{BlockSizeHint: testHint})
	t.Cleanup(p.Close)
	return dev, p
}

// TestAllocateAliasing tests memory sharing between resources with disjoint
// pass ranges.
func TestAllocateAliasing(t *testing.T) {
	tests := []struct {
		name        string
		decls       []Decl
		wantSame    bool
		wantAliases []AliasPair
	}{
		{
			name: "disjoint ranges alias",
			decls: []Decl{
				TextureDecl(sampledTexture(256, 256), "a", 0, 1),
				TextureDecl(sampledTexture(256, 256), "b", 2, 3),
			},
			wantSame:    true,
			wantAliases: []AliasPair{{Prev: 0, Next: 1}},
		},
		{
			name: "overlapping ranges",
			decls: []Decl{
				TextureDecl(sampledTexture(256, 256), "a", 0, 1),
				TextureDecl(sampledTexture(256, 256), "b", 1, 3),
			},
			wantSame: false,
		},
		{
			name: "same single pass",
			decls: []Decl{
				TextureDecl(sampledTexture(256, 256), "a", 2, 2),
				TextureDecl(sampledTexture(256, 256), "b", 2, 2),
			},
			wantSame: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, p := newTestPool(t, gpucore.Capabilities{})
			alloc, err := p.Allocate(tt.decls)
			if err != nil {
				t.Fatalf("Allocate() error = %v", err)
			}
			defer alloc.Release(dev)

			a, b := alloc.Placements[0].Segment, alloc.Placements[1].Segment
			same := a.Block == b.Block && a.Offset == b.Offset
			if same != tt.wantSame {
				t.Errorf("shared placement = %v, want %v (a = %d@%d, b = %d@%d)",
					same, tt.wantSame, a.Block.ID(), a.Offset, b.Block.ID(), b.Offset)
			}
			if len(alloc.Aliases) != len(tt.wantAliases) {
				t.Fatalf("Aliases = %v, want %v", alloc.Aliases, tt.wantAliases)
			}
			for i := range tt.wantAliases {
				if alloc.Aliases[i] != tt.wantAliases[i] {
					t.Errorf("Aliases[%d] = %v, want %v", i, alloc.Aliases[i], tt.wantAliases[i])
				}
			}
		})
	}
}

// TestAllocateCategories tests that resource kinds land in separate heaps
// unless the device has a general heap.
func TestAllocateCategories(t *testing.T) {
	rt := sampledTexture(64, 64)
	rt.Usage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	depth := gpucore.TextureDesc{
		Format: gputypes.TextureFormatDepth24PlusStencil8, Width: 64, Height: 64,
	}
	decls := []Decl{
		BufferDecl(gpucore.BufferDesc{Size: 4096}, "buf", 0, 0),
		TextureDecl(rt, "rt", 0, 0),
		TextureDecl(sampledTexture(64, 64), "tex", 0, 0),
		TextureDecl(depth, "depth", 0, 0),
	}

	tests := []struct {
		name string
		caps gpucore.Capabilities
		want []gpucore.HeapCategory
	}{
		{
			name: "split heaps",
			want: []gpucore.HeapCategory{
				gpucore.HeapBuffer, gpucore.HeapRTDSTexture, gpucore.HeapNonRTDSTexture, gpucore.HeapRTDSTexture,
			},
		},
		{
			name: "general heap",
			caps: gpucore.Capabilities{GeneralHeap: true},
			want: []gpucore.HeapCategory{
				gpucore.HeapGeneral, gpucore.HeapGeneral, gpucore.HeapGeneral, gpucore.HeapGeneral,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, p := newTestPool(t, tt.caps)
			alloc, err := p.Allocate(decls)
			if err != nil {
				t.Fatalf("Allocate() error = %v", err)
			}
			for i, want := range tt.want {
				if got := alloc.Placements[i].Segment.Block.Category; got != want {
					t.Errorf("%s category = %v, want %v", decls[i].Label, got, want)
				}
			}
			if n := dev.Live(); n.Buffers != 1 || n.Textures != 3 {
				t.Errorf("Live() = %+v, want 1 buffer and 3 textures", n)
			}
			alloc.Release(dev)
			if n := dev.Live(); n.Buffers != 0 || n.Textures != 0 {
				t.Errorf("Live() after Release = %+v, want no resources", n)
			}
		})
	}
}

func TestTextureCategoryMSAA(t *testing.T) {
	desc := sampledTexture(64, 64)
	desc.SampleCount = 4
	if _, a := TextureCategory(desc, false); a != gpucore.AlignMSAA {
		t.Errorf("TextureCategory() alignment = %v, want %v", a, gpucore.AlignMSAA)
	}
	desc.SampleCount = 1
	if _, a := TextureCategory(desc, false); a != gpucore.AlignRegular {
		t.Errorf("TextureCategory() alignment = %v, want %v", a, gpucore.AlignRegular)
	}
}

// TestAllocateReusesBlocksAcrossFrames tests that a second frame with the
// same declarations creates no new memory blocks.
func TestAllocateReusesBlocksAcrossFrames(t *testing.T) {
	dev, p := newTestPool(t, gpucore.Capabilities{})
	decls := []Decl{
		TextureDecl(sampledTexture(256, 256), "a", 0, 2),
		BufferDecl(gpucore.BufferDesc{Size: 1 << 16}, "b", 1, 3),
	}

	first, err := p.Allocate(decls)
	if err != nil {
		t.Fatal(err)
	}
	first.Release(dev)
	blocks := dev.Live().Blocks

	p.StartHostSynchronizationSession()
	second, err := p.Allocate(decls)
	if err != nil {
		t.Fatal(err)
	}
	second.Release(dev)

	if got := dev.Live().Blocks; got != blocks {
		t.Errorf("live blocks after second frame = %d, want %d", got, blocks)
	}
	if s := p.Blocks().Stats(); s.Reused != uint64(blocks) {
		t.Errorf("Stats().Reused = %d, want %d", s.Reused, blocks)
	}
}

func TestAllocateLargeResource(t *testing.T) {
	dev, p := newTestPool(t, gpucore.Capabilities{})
	alloc, err := p.Allocate([]Decl{
		TextureDecl(sampledTexture(1024, 1024), "big", 0, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer alloc.Release(dev)
	if got := alloc.Placements[0].Segment.Block.Size; got != 4*testHint {
		t.Errorf("block size = %d, want %d", got, 4*testHint)
	}
}

func TestAllocateInvalidDecl(t *testing.T) {
	tests := []struct {
		name string
		decl Decl
	}{
		{"neither buffer nor texture", Decl{Label: "x"}},
		{"both", Decl{Label: "x", Buffer: &gpucore.BufferDesc{Size: 4}, Texture: &gpucore.TextureDesc{Width: 4}}},
		{"reversed range", BufferDecl(gpucore.BufferDesc{Size: 4}, "x", 3, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := newTestPool(t, gpucore.Capabilities{})
			if _, err := p.Allocate([]Decl{tt.decl}); err == nil {
				t.Error("Allocate() should fail")
			}
		})
	}
}

func TestAllocateOutOfMemoryReleases(t *testing.T) {
	dev := recording.NewDevice(recording.Config{MemoryBudget: testHint})
	p := NewPool(dev, PoolConfig{BlockSizeHint: testHint})
	defer p.Close()

	_, err := p.Allocate([]Decl{
		TextureDecl(sampledTexture(64, 64), "fits", 0, 0),
		BufferDecl(gpucore.BufferDesc{Size: 4096}, "needs second block", 0, 0),
	})
	if err == nil {
		t.Fatal("Allocate() over budget should fail")
	}
	if n := dev.Live(); n.Textures != 0 || n.Buffers != 0 {
		t.Errorf("Live() after failed Allocate = %+v, want no resources", n)
	}
}

func TestUsageTrackerPlace(t *testing.T) {
	b := &Block{id: 7, Size: 1024}
	tr := newUsageTracker()

	tests := []struct {
		offset, size uint64
		owner        int
		want         []int
	}{
		{0, 256, 0, nil},
		{256, 256, 1, nil},
		{128, 256, 2, []int{0, 1}},
		{0, 1024, 3, []int{0, 1, 2}},
		{512, 512, 4, []int{3}},
	}
	for _, tt := range tests {
		got := tr.place(b, tt.offset, tt.size, tt.owner)
		if len(got) != len(tt.want) {
			t.Errorf("place(%d, %d, %d) = %v, want %v", tt.offset, tt.size, tt.owner, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("place(%d, %d, %d) = %v, want %v", tt.offset, tt.size, tt.owner, got, tt.want)
				break
			}
		}
	}
}
