package gpucore

import (
	"context"
	"time"
)

// Buffer is a backend buffer object.
type Buffer interface {
	Desc() BufferDesc
	Label() string
}

// Texture is a backend texture object.
type Texture interface {
	Desc() TextureDesc
	Label() string
}

// MemoryBlock is a raw device memory allocation that placed resources are
// created in.
type MemoryBlock interface {
	Desc() MemoryBlockDesc
}

// Fence is a host-waitable completion signal.
type Fence interface {
	// Wait blocks until the fence is signaled, ctx is done, or timeout
	// elapses. A zero timeout waits without limit.
	Wait(ctx context.Context, timeout time.Duration) error

	// Reset returns the fence to the unsignaled state.
	Reset() error

	// Signaled reports whether the fence is signaled.
	Signaled() bool
}

// Semaphore is a GPU-side signal between submissions.
type Semaphore interface {
	Label() string
}

// SemaphoreOp is a semaphore wait or signal on a set of pipeline stages.
type SemaphoreOp struct {
	Semaphore Semaphore
	Stages    PipelineStage
}

// CommandBuffer records GPU commands for one submission.
type CommandBuffer interface {
	Begin() error
	End() error

	// Discard abandons the recorded commands. The command buffer must not
	// be submitted afterwards.
	Discard()

	// ExecuteBarriers records a barrier batch. global may be nil.
	ExecuteBarriers(global *GlobalBarrier, textures []TextureBarrier, buffers []BufferBarrier)

	BeginDebugEvent(name string)
	EndDebugEvent()
}

// QueueType is the capability class of a queue.
type QueueType uint8

// Queue types.
const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
)

// String returns the queue type name.
func (t QueueType) String() string {
	switch t {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	case QueueTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// SubmitInfo is one queue submission.
//
// Wait and Signal carry the swapchain acquire and present semaphores; Waits
// and Signals carry any further semaphores. Nil fields are skipped.
type SubmitInfo struct {
	Wait          *SemaphoreOp
	Waits         []SemaphoreOp
	CommandBuffer CommandBuffer
	Signal        *SemaphoreOp
	Signals       []SemaphoreOp
	Fence         Fence
}

// Queue submits command buffers and tracks submission sessions.
type Queue interface {
	Type() QueueType
	Submit(info SubmitInfo) error

	// CurrentSession returns the session of the latest submission.
	CurrentSession() QueueSession

	// SynchronizedSession returns the newest session whose GPU work is
	// known to be complete.
	SynchronizedSession() QueueSession

	WaitIdle() error
}

// Capabilities describes optional device behavior the compiler adapts to.
type Capabilities struct {
	// GeneralHeap allows buffers and all textures to share memory blocks.
	GeneralHeap bool

	// GlobalBarrier reports that global memory barriers are cheap and
	// may replace batches of resource barriers.
	GlobalBarrier bool

	// AvailableVisible reports that a barrier makes prior writes both
	// available and visible, so read-only "before" accesses and write-only
	// "after" accesses can be dropped from barriers.
	AvailableVisible bool
}

// FrameCompleter runs callbacks once the GPU work of the current frame is
// known to be finished.
type FrameCompleter interface {
	OnFrameComplete(fn func())
}

// Device creates backend objects.
type Device interface {
	FrameCompleter

	Capabilities() Capabilities

	CreateMemoryBlock(desc MemoryBlockDesc) (MemoryBlock, error)
	DestroyMemoryBlock(block MemoryBlock)

	BufferAllocationInfo(desc BufferDesc) AllocationInfo
	TextureAllocationInfo(desc TextureDesc) AllocationInfo

	// CreatePlacedBuffer creates a buffer at offset inside block.
	CreatePlacedBuffer(block MemoryBlock, offset uint64, desc BufferDesc, label string) (Buffer, error)

	// CreatePlacedTexture creates a texture at offset inside block.
	CreatePlacedTexture(block MemoryBlock, offset uint64, desc TextureDesc, label string) (Texture, error)

	CreateBuffer(desc BufferDesc, label string) (Buffer, error)
	CreateTexture(desc TextureDesc, label string) (Texture, error)
	DestroyBuffer(buf Buffer)
	DestroyTexture(tex Texture)

	CreateCommandBuffer(queue Queue) (CommandBuffer, error)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	CreateSemaphore(label string) (Semaphore, error)
	DestroySemaphore(s Semaphore)
}
