package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

func TestDeviceImplementsInterfaces(t *testing.T) {
	var _ gpucore.Device = (*Device)(nil)
	var _ gpucore.Queue = (*Queue)(nil)
	var _ gpucore.Fence = (*Fence)(nil)
	var _ gpucore.CommandBuffer = (*Recorder)(nil)
	var _ backend.Backend = Backend{}
}

// TestTextureAllocationInfo tests placement sizes of textures.
func TestTextureAllocationInfo(t *testing.T) {
	dev := NewDevice(Config{})
	tests := []struct {
		name      string
		desc      gpucore.TextureDesc
		wantSize  uint64
		wantAlign uint64
	}{
		{
			name:      "small rgba8",
			desc:      gpucore.TextureDesc{Format: gputypes.TextureFormatRGBA8Unorm, Width: 16, Height: 16},
			wantSize:  64 << 10,
			wantAlign: 64 << 10,
		},
		{
			name:      "256x256 rgba16f",
			desc:      gpucore.TextureDesc{Format: gputypes.TextureFormatRGBA16Float, Width: 256, Height: 256},
			wantSize:  512 << 10,
			wantAlign: 64 << 10,
		},
		{
			name: "msaa",
			desc: gpucore.TextureDesc{
				Format: gputypes.TextureFormatRGBA8Unorm, Width: 64, Height: 64, SampleCount: 4,
			},
			wantSize:  4 << 20,
			wantAlign: 4 << 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := dev.TextureAllocationInfo(tt.desc)
			if info.Size != tt.wantSize || info.Alignment != tt.wantAlign {
				t.Errorf("TextureAllocationInfo() = %+v, want size %d alignment %d",
					info, tt.wantSize, tt.wantAlign)
			}
		})
	}
}

func TestBufferAllocationInfo(t *testing.T) {
	dev := NewDevice(Config{})
	info := dev.BufferAllocationInfo(gpucore.BufferDesc{Size: 300})
	if info.Size != 512 || info.Alignment != 256 {
		t.Errorf("BufferAllocationInfo(300) = %+v, want {512 256}", info)
	}
}

func TestMemoryBudget(t *testing.T) {
	dev := NewDevice(Config{MemoryBudget: 1 << 20})
	b1, err := dev.CreateMemoryBlock(gpucore.MemoryBlockDesc{Size: 768 << 10})
	if err != nil {
		t.Fatalf("CreateMemoryBlock() error = %v", err)
	}
	if _, err := dev.CreateMemoryBlock(gpucore.MemoryBlockDesc{Size: 512 << 10}); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("CreateMemoryBlock() over budget error = %v, want %v", err, ErrOutOfMemory)
	}
	dev.DestroyMemoryBlock(b1)
	if _, err := dev.CreateMemoryBlock(gpucore.MemoryBlockDesc{Size: 512 << 10}); err != nil {
		t.Errorf("CreateMemoryBlock() after destroy error = %v", err)
	}
	if got := dev.Live(); got.Blocks != 1 || got.BlockBytes != 512<<10 {
		t.Errorf("Live() = %+v, want 1 block of %d bytes", got, 512<<10)
	}
}

// TestPlacement tests placed resource validation.
func TestPlacement(t *testing.T) {
	dev := NewDevice(Config{})
	block, err := dev.CreateMemoryBlock(gpucore.MemoryBlockDesc{Size: 1024})
	if err != nil {
		t.Fatal(err)
	}
	other := NewDevice(Config{})
	foreign, _ := other.CreateMemoryBlock(gpucore.MemoryBlockDesc{Size: 1024})

	tests := []struct {
		name    string
		block   gpucore.MemoryBlock
		offset  uint64
		size    uint64
		wantErr bool
	}{
		{"fits", block, 0, 1024, false},
		{"tail", block, 768, 256, false},
		{"overflow", block, 768, 512, true},
		{"misaligned", block, 100, 16, true},
		{"foreign block", foreign, 0, 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := dev.CreatePlacedBuffer(tt.block, tt.offset, gpucore.BufferDesc{Size: tt.size}, tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreatePlacedBuffer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidPlacement) {
					t.Errorf("CreatePlacedBuffer() error = %v, want %v", err, ErrInvalidPlacement)
				}
				return
			}
			m, off := buf.(*Buffer).Placement()
			if m != tt.block || off != tt.offset {
				t.Errorf("Placement() = (%v, %d), want (%v, %d)", m, off, tt.block, tt.offset)
			}
			dev.DestroyBuffer(buf)
		})
	}
}

// TestSubmitSessions tests session bookkeeping across fences and WaitIdle.
func TestSubmitSessions(t *testing.T) {
	dev := NewDevice(Config{})
	q := dev.Queue()
	ctx := context.Background()

	fence, _ := dev.CreateFence(false)
	if err := fence.Wait(ctx, 0); !errors.Is(err, ErrFenceNotPending) {
		t.Errorf("Wait() on unsubmitted fence error = %v, want %v", err, ErrFenceNotPending)
	}

	if err := q.Submit(gpucore.SubmitInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit(gpucore.SubmitInfo{Fence: fence}); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit(gpucore.SubmitInfo{}); err != nil {
		t.Fatal(err)
	}

	if got := q.CurrentSession(); got != 3 {
		t.Errorf("CurrentSession() = %d, want 3", got)
	}
	if got := q.SynchronizedSession(); got != 0 {
		t.Errorf("SynchronizedSession() = %d, want 0", got)
	}
	if fence.Signaled() {
		t.Error("fence signaled before wait")
	}

	if err := fence.Wait(ctx, 0); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := q.SynchronizedSession(); got != 2 {
		t.Errorf("SynchronizedSession() after fence = %d, want 2", got)
	}
	if !fence.Signaled() {
		t.Error("fence not signaled after wait")
	}

	if err := q.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if got := q.SynchronizedSession(); got != 3 {
		t.Errorf("SynchronizedSession() after WaitIdle = %d, want 3", got)
	}

	_ = fence.Reset()
	if fence.Signaled() {
		t.Error("fence signaled after Reset")
	}
	if got := len(dev.Submissions()); got != 3 {
		t.Errorf("len(Submissions()) = %d, want 3", got)
	}
}

func TestSubmitRecordsCommands(t *testing.T) {
	dev := NewDevice(Config{})
	tex, _ := dev.CreateTexture(gpucore.TextureDesc{Width: 4, Height: 4}, "color")
	cb, err := dev.CreateCommandBuffer(dev.Queue())
	if err != nil {
		t.Fatal(err)
	}
	_ = cb.Begin()
	cb.ExecuteBarriers(nil, []gpucore.TextureBarrier{{
		Texture:      tex,
		BeforeLayout: gpucore.LayoutUndefined,
		AfterLayout:  gpucore.LayoutColorAttachment,
	}}, nil)
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Queue().Submit(gpucore.SubmitInfo{CommandBuffer: cb}); err != nil {
		t.Fatal(err)
	}
	if err := dev.Queue().Submit(gpucore.SubmitInfo{CommandBuffer: cb}); err == nil {
		t.Error("second Submit() of the same command buffer should fail")
	}

	subs := dev.Submissions()
	if len(subs) != 1 {
		t.Fatalf("len(Submissions()) = %d, want 1", len(subs))
	}
	barriers := subs[0].Barriers()
	if len(barriers) != 1 || barriers[0].Count() != 1 {
		t.Fatalf("Barriers() = %v, want one batch of one barrier", barriers)
	}
	if got := barriers[0].Textures[0].AfterLayout; got != gpucore.LayoutColorAttachment {
		t.Errorf("AfterLayout = %v, want %v", got, gpucore.LayoutColorAttachment)
	}

	dev.Reset()
	if got := len(dev.Submissions()); got != 0 {
		t.Errorf("len(Submissions()) after Reset = %d, want 0", got)
	}
}

func TestCommandBufferForeignQueue(t *testing.T) {
	a, b := NewDevice(Config{}), NewDevice(Config{})
	if _, err := a.CreateCommandBuffer(b.Queue()); err == nil {
		t.Error("CreateCommandBuffer() with a foreign queue should fail")
	}
	compute := a.NewQueue(gpucore.QueueCompute)
	cb, err := a.CreateCommandBuffer(compute)
	if err != nil {
		t.Fatal(err)
	}
	_ = cb.Begin()
	_ = cb.End()
	if err := a.Queue().Submit(gpucore.SubmitInfo{CommandBuffer: cb}); err == nil {
		t.Error("Submit() on a different queue should fail")
	}
}

func TestOnFrameComplete(t *testing.T) {
	dev := NewDevice(Config{})
	ran := 0
	dev.OnFrameComplete(func() { ran++ })
	if ran != 0 {
		t.Fatal("callback ran before WaitIdle")
	}
	if err := dev.Synchronizer().WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if ran != 1 {
		t.Errorf("callback ran %d times, want 1", ran)
	}
}

func TestLiveCounts(t *testing.T) {
	dev := NewDevice(Config{})
	buf, _ := dev.CreateBuffer(gpucore.BufferDesc{Size: 64}, "b")
	tex, _ := dev.CreateTexture(gpucore.TextureDesc{Width: 8, Height: 8}, "t")
	sem, _ := dev.CreateSemaphore("s")
	fence, _ := dev.CreateFence(true)

	want := LiveCounts{Buffers: 1, Textures: 1, Fences: 1, Semaphores: 1}
	if got := dev.Live(); got != want {
		t.Errorf("Live() = %+v, want %+v", got, want)
	}

	dev.DestroyBuffer(buf)
	dev.DestroyTexture(tex)
	dev.DestroySemaphore(sem)
	dev.DestroyFence(fence)
	if got := dev.Live(); got != (LiveCounts{}) {
		t.Errorf("Live() after destroy = %+v, want zero", got)
	}
}

func TestRegisteredBackend(t *testing.T) {
	dev, q, err := backend.Open(backend.BackendRecording, nil)
	if err != nil {
		t.Fatalf("backend.Open() error = %v", err)
	}
	if _, ok := dev.(*Device); !ok {
		t.Errorf("backend.Open() device = %T, want *Device", dev)
	}
	if q.Type() != gpucore.QueueGraphics {
		t.Errorf("queue type = %v, want %v", q.Type(), gpucore.QueueGraphics)
	}
}
