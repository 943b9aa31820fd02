package recording

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/hostsync"
)

// Device errors.
var (
	// ErrOutOfMemory is returned when a memory block would exceed the budget.
	ErrOutOfMemory = errors.New("recording: out of device memory")

	// ErrFenceNotPending is returned when waiting on a fence that is
	// neither signaled nor attached to a submission.
	ErrFenceNotPending = errors.New("recording: fence is not signaled and no submission will signal it")

	// ErrInvalidPlacement is returned when a placed resource does not fit
	// its memory block or is misaligned.
	ErrInvalidPlacement = errors.New("recording: invalid placement")
)

// Config holds configuration for creating a Device.
type Config struct {
	// Capabilities are reported verbatim by Device.Capabilities.
	Capabilities gpucore.Capabilities

	// MemoryBudget caps the total size of live memory blocks.
	// Zero means unlimited.
	MemoryBudget uint64

	// Sync configures the device's host synchronizer.
	Sync hostsync.Config
}

// Submission is one recorded queue submission.
type Submission struct {
	Queue    *Queue
	Session  gpucore.QueueSession
	Info     gpucore.SubmitInfo
	Commands []Command
}

// Barriers returns the barrier batches of the submission in order.
func (s Submission) Barriers() []BarrierCommand {
	var out []BarrierCommand
	for _, c := range s.Commands {
		if b, ok := c.(BarrierCommand); ok {
			out = append(out, b)
		}
	}
	return out
}

// Device is a gpucore.Device that performs no GPU work and records every
// submission. GPU work is considered finished when a fence covering it is
// waited on or when the queue is waited idle.
//
// Device is safe for concurrent use.
type Device struct {
	cfg   Config
	pool  *ResourcePool
	sync  *hostsync.Synchronizer
	queue *Queue

	mu          sync.Mutex
	submissions []Submission
}

// NewDevice creates a device with one graphics queue.
func NewDevice(cfg Config) *Device {
	d := &Device{cfg: cfg, pool: NewResourcePool()}
	d.queue = d.NewQueue(gpucore.QueueGraphics)
	d.sync = hostsync.New(d, d.queue, cfg.Sync)
	return d
}

// Queue returns the device's graphics queue.
func (d *Device) Queue() *Queue { return d.queue }

// NewQueue creates an additional queue of type t.
func (d *Device) NewQueue(t gpucore.QueueType) *Queue {
	return &Queue{device: d, typ: t}
}

// Synchronizer returns the host synchronizer behind OnFrameComplete.
func (d *Device) Synchronizer() *hostsync.Synchronizer { return d.sync }

// Live returns the number of live objects.
func (d *Device) Live() LiveCounts { return d.pool.Live() }

// Submissions returns every submission so far, across all queues.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// Reset forgets recorded submissions.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissions = nil
}

// Capabilities implements gpucore.Device.
func (d *Device) Capabilities() gpucore.Capabilities { return d.cfg.Capabilities }

// OnFrameComplete implements gpucore.FrameCompleter.
func (d *Device) OnFrameComplete(fn func()) { d.sync.OnFrameComplete(fn) }

// CreateMemoryBlock implements gpucore.Device.
func (d *Device) CreateMemoryBlock(desc gpucore.MemoryBlockDesc) (gpucore.MemoryBlock, error) {
	m := &MemoryBlock{desc: desc}
	if !d.pool.addBlock(m, d.cfg.MemoryBudget) {
		return nil, errors.Wrapf(ErrOutOfMemory, "block of %d bytes", desc.Size)
	}
	return m, nil
}

// DestroyMemoryBlock implements gpucore.Device.
func (d *Device) DestroyMemoryBlock(block gpucore.MemoryBlock) {
	if m, ok := block.(*MemoryBlock); ok {
		d.pool.remove(m)
	}
}

// BufferAllocationInfo implements gpucore.Device. Buffers are placed at
// 256-byte granularity.
func (d *Device) BufferAllocationInfo(desc gpucore.BufferDesc) gpucore.AllocationInfo {
	return gpucore.EstimateBufferAllocation(desc)
}

// TextureAllocationInfo implements gpucore.Device. Textures take their
// full mip chain and are aligned to their heap alignment class.
func (d *Device) TextureAllocationInfo(desc gpucore.TextureDesc) gpucore.AllocationInfo {
	return gpucore.EstimateTextureAllocation(desc)
}

func (d *Device) checkPlacement(block gpucore.MemoryBlock, offset uint64, info gpucore.AllocationInfo) (*MemoryBlock, error) {
	m, ok := block.(*MemoryBlock)
	if !ok || !d.pool.hasBlock(m) {
		return nil, errors.Wrap(ErrInvalidPlacement, "unknown memory block")
	}
	if offset%info.Alignment != 0 {
		return nil, errors.Wrapf(ErrInvalidPlacement, "offset %d not aligned to %d", offset, info.Alignment)
	}
	if offset+info.Size > m.desc.Size {
		return nil, errors.Wrapf(ErrInvalidPlacement, "[%d, %d) exceeds block of %d bytes",
			offset, offset+info.Size, m.desc.Size)
	}
	return m, nil
}

// CreatePlacedBuffer implements gpucore.Device.
func (d *Device) CreatePlacedBuffer(block gpucore.MemoryBlock, offset uint64, desc gpucore.BufferDesc, label string) (gpucore.Buffer, error) {
	m, err := d.checkPlacement(block, offset, d.BufferAllocationInfo(desc))
	if err != nil {
		return nil, err
	}
	return d.pool.addBuffer(&Buffer{label: label, desc: desc, block: m, offset: offset}), nil
}

// CreatePlacedTexture implements gpucore.Device.
func (d *Device) CreatePlacedTexture(block gpucore.MemoryBlock, offset uint64, desc gpucore.TextureDesc, label string) (gpucore.Texture, error) {
	m, err := d.checkPlacement(block, offset, d.TextureAllocationInfo(desc))
	if err != nil {
		return nil, err
	}
	return d.pool.addTexture(&Texture{label: label, desc: desc.Normalized(), block: m, offset: offset}), nil
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc, label string) (gpucore.Buffer, error) {
	return d.pool.addBuffer(&Buffer{label: label, desc: desc}), nil
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc gpucore.TextureDesc, label string) (gpucore.Texture, error) {
	return d.pool.addTexture(&Texture{label: label, desc: desc.Normalized()}), nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	if b, ok := buf.(*Buffer); ok {
		d.pool.remove(b)
	}
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(tex gpucore.Texture) {
	if t, ok := tex.(*Texture); ok {
		d.pool.remove(t)
	}
}

// CreateCommandBuffer implements gpucore.Device.
func (d *Device) CreateCommandBuffer(queue gpucore.Queue) (gpucore.CommandBuffer, error) {
	q, ok := queue.(*Queue)
	if !ok || q.device != d {
		return nil, errors.New("recording: queue does not belong to this device")
	}
	d.pool.mu.Lock()
	id := d.pool.id()
	d.pool.mu.Unlock()
	return &Recorder{id: id, queue: q}, nil
}

// CreateFence implements gpucore.Device.
func (d *Device) CreateFence(signaled bool) (gpucore.Fence, error) {
	return d.pool.addFence(&Fence{signaled: signaled}), nil
}

// DestroyFence implements gpucore.Device.
func (d *Device) DestroyFence(f gpucore.Fence) {
	if fence, ok := f.(*Fence); ok {
		d.pool.remove(fence)
	}
}

// CreateSemaphore implements gpucore.Device.
func (d *Device) CreateSemaphore(label string) (gpucore.Semaphore, error) {
	return d.pool.addSemaphore(&Semaphore{label: label}), nil
}

// DestroySemaphore implements gpucore.Device.
func (d *Device) DestroySemaphore(s gpucore.Semaphore) {
	if sem, ok := s.(*Semaphore); ok {
		d.pool.remove(sem)
	}
}

// Queue is a recorded gpucore.Queue.
type Queue struct {
	device *Device
	typ    gpucore.QueueType

	mu           sync.Mutex
	current      gpucore.QueueSession
	synchronized gpucore.QueueSession
	submitErr    error
}

// Type implements gpucore.Queue.
func (q *Queue) Type() gpucore.QueueType { return q.typ }

// FailSubmits makes every following Submit return err without recording
// anything. A nil err restores normal submission.
func (q *Queue) FailSubmits(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitErr = err
}

// Submit implements gpucore.Queue. A nil command buffer submits only the
// semaphore operations and fence.
func (q *Queue) Submit(info gpucore.SubmitInfo) error {
	q.mu.Lock()
	err := q.submitErr
	q.mu.Unlock()
	if err != nil {
		return err
	}
	var commands []Command
	if info.CommandBuffer != nil {
		r, ok := info.CommandBuffer.(*Recorder)
		if !ok || r.queue != q {
			return errors.New("recording: command buffer was not created for this queue")
		}
		r.mu.Lock()
		if r.state != stateExecutable {
			r.mu.Unlock()
			return errors.Newf("recording: submit of command buffer %d that is not executable", r.id)
		}
		r.state = stateSubmitted
		commands = append([]Command(nil), r.commands...)
		r.mu.Unlock()
	}

	q.mu.Lock()
	q.current++
	session := q.current
	q.mu.Unlock()

	if f, ok := info.Fence.(*Fence); ok {
		f.attach(q, session)
	}

	q.device.mu.Lock()
	q.device.submissions = append(q.device.submissions, Submission{
		Queue:    q,
		Session:  session,
		Info:     info,
		Commands: commands,
	})
	q.device.mu.Unlock()
	return nil
}

// CurrentSession implements gpucore.Queue.
func (q *Queue) CurrentSession() gpucore.QueueSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// SynchronizedSession implements gpucore.Queue.
func (q *Queue) SynchronizedSession() gpucore.QueueSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.synchronized
}

// WaitIdle implements gpucore.Queue. Every submission so far is retired.
func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.synchronized = q.current
	return nil
}

func (q *Queue) retire(session gpucore.QueueSession) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if session > q.synchronized {
		q.synchronized = session
	}
}

// Fence is a recorded gpucore.Fence. It is signaled once a submission it is
// attached to is waited on.
type Fence struct {
	mu       sync.Mutex
	signaled bool
	queue    *Queue
	session  gpucore.QueueSession
}

func (f *Fence) attach(q *Queue, session gpucore.QueueSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue, f.session = q, session
}

// Wait implements gpucore.Fence. Waiting on a pending fence retires its
// submission immediately.
func (f *Fence) Wait(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		return nil
	}
	if f.queue == nil {
		return ErrFenceNotPending
	}
	f.queue.retire(f.session)
	f.signaled = true
	return nil
}

// Reset implements gpucore.Fence.
func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
	f.queue = nil
	return nil
}

// Signaled implements gpucore.Fence.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		return true
	}
	return f.queue != nil && f.queue.SynchronizedSession() >= f.session
}
