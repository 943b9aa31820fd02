package wgpu

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

// Queue errors.
var (
	// ErrFenceNotPending is returned when waiting on a fence that is
	// neither signaled nor attached to a submission.
	ErrFenceNotPending = errors.New("wgpu: fence is not signaled and no submission will signal it")

	// ErrFenceTimeout is returned when a fence wait times out.
	ErrFenceTimeout = errors.New("wgpu: fence wait timed out")

	// ErrSemaphoreNotSignaled is returned when a submission waits on a
	// semaphore no earlier submission signals.
	ErrSemaphoreNotSignaled = errors.New("wgpu: wait on a semaphore that is never signaled")
)

type pendingSubmit struct {
	session gpucore.QueueSession
	index   uint64
}

// Queue is a gpucore.Queue on the device's hal queue.
type Queue struct {
	device *Device
	typ    gpucore.QueueType

	mu           sync.Mutex
	current      gpucore.QueueSession
	synchronized gpucore.QueueSession
	pending      []pendingSubmit
}

// Type implements gpucore.Queue.
func (q *Queue) Type() gpucore.QueueType { return q.typ }

// Submit implements gpucore.Queue. A nil command buffer submits only the
// semaphore operations and fence.
//
// Submissions without swapchain semaphores suppress the hal swapchain
// binding, so offscreen sections do not consume the acquire and present
// semaphores of the frame.
func (q *Queue) Submit(info gpucore.SubmitInfo) error {
	var cb *CommandBuffer
	if info.CommandBuffer != nil {
		var ok bool
		cb, ok = info.CommandBuffer.(*CommandBuffer)
		if !ok || cb.queue != q {
			return errors.Wrap(ErrForeignObject, "command buffer")
		}
	}
	for _, w := range info.Waits {
		sem, ok := w.Semaphore.(*Semaphore)
		if !ok {
			return errors.Wrap(ErrForeignObject, "semaphore")
		}
		if !sem.consume() {
			return errors.Wrapf(ErrSemaphoreNotSignaled, "%q", sem.label)
		}
	}
	var bufs []hal.CommandBuffer
	if cb != nil {
		halCB, err := cb.submit()
		if err != nil {
			return err
		}
		bufs = []hal.CommandBuffer{halCB}
	}

	d := q.device
	d.submitMu.Lock()
	if info.Wait == nil && info.Signal == nil {
		d.halQueue.SetSwapchainSuppressed(true)
	}
	index, err := d.halQueue.Submit(bufs)
	if info.Wait == nil && info.Signal == nil {
		d.halQueue.SetSwapchainSuppressed(false)
	}
	if err != nil {
		d.submitMu.Unlock()
		return errors.Wrap(err, "wgpu: submit")
	}
	q.mu.Lock()
	q.current++
	session := q.current
	q.pending = append(q.pending, pendingSubmit{session: session, index: index})
	q.mu.Unlock()
	d.submitMu.Unlock()

	for _, s := range info.Signals {
		if sem, ok := s.Semaphore.(*Semaphore); ok {
			sem.signal()
		}
	}
	if f, ok := info.Fence.(*Fence); ok {
		f.attach(q, session)
	}
	if cb != nil {
		d.OnFrameComplete(cb.release)
	}
	slogger().Debug("wgpu: submitted", "queue", q.typ, "session", session, "index", index)
	return nil
}

// CurrentSession implements gpucore.Queue.
func (q *Queue) CurrentSession() gpucore.QueueSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// SynchronizedSession implements gpucore.Queue. It polls the hal queue for
// completed submissions.
func (q *Queue) SynchronizedSession() gpucore.QueueSession {
	completed := q.device.halQueue.PollCompleted()
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, p := range q.pending {
		if p.index > completed {
			break
		}
		q.synchronized = p.session
		n++
	}
	q.pending = q.pending[n:]
	return q.synchronized
}

// WaitIdle implements gpucore.Queue. The hal device has a single queue, so
// this waits for the whole device.
func (q *Queue) WaitIdle() error {
	if err := q.device.hal.WaitIdle(); err != nil {
		return errors.Wrap(err, "wgpu: wait idle")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.synchronized = q.current
	q.pending = q.pending[:0]
	return nil
}

// Fence is a gpucore.Fence that is signaled once the session it is
// attached to is synchronized.
type Fence struct {
	poll time.Duration

	mu       sync.Mutex
	signaled bool
	queue    *Queue
	session  gpucore.QueueSession
}

func (f *Fence) attach(q *Queue, session gpucore.QueueSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
	f.queue, f.session = q, session
}

// Wait implements gpucore.Fence by polling the hal queue.
func (f *Fence) Wait(ctx context.Context, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()
	for {
		f.mu.Lock()
		pending := f.queue != nil
		f.mu.Unlock()
		if f.Signaled() {
			return nil
		}
		if !pending {
			return ErrFenceNotPending
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrFenceTimeout
		case <-ticker.C:
		}
	}
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
	q, session := f.queue, f.session
	if f.signaled {
		f.mu.Unlock()
		return true
	}
	f.mu.Unlock()
	if q == nil || q.SynchronizedSession() < session {
		return false
	}
	f.mu.Lock()
	f.signaled = true
	f.mu.Unlock()
	return true
}
