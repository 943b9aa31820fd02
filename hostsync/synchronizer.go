// Package hostsync paces the host against the GPU with a ring of
// frames-in-flight fences and runs deferred callbacks once the GPU work of
// a frame is known to be finished.
//
// Typical render loop:
//
//	s := hostsync.New(device, queue, hostsync.Config{FramesInFlight: 2})
//	_ = s.BeginRenderLoop(0)
//	for running {
//	    _ = s.WaitForOldFrame(ctx) // runs callbacks of the frame that used this slot
//	    _ = s.BeginNewFrame()
//	    // ... build and execute a graph whose complete fence is s.FrameFence()
//	}
//	_ = s.EndRenderLoop()
//
// Outside a render loop, callbacks registered with OnFrameComplete run on
// the next WaitIdle.
package hostsync

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph/gpucore"
)

// Synchronizer errors.
var (
	// ErrNotInRenderLoop is returned by frame operations outside a render loop.
	ErrNotInRenderLoop = errors.New("hostsync: not in a render loop")

	// ErrInRenderLoop is returned by BeginRenderLoop when a loop is running.
	ErrInRenderLoop = errors.New("hostsync: render loop already running")

	// ErrClosed is returned after End.
	ErrClosed = errors.New("hostsync: synchronizer closed")
)

// Default settings.
const (
	// DefaultFramesInFlight is the default fence ring size.
	DefaultFramesInFlight = 2

	// DefaultFenceTimeout bounds a single fence wait.
	DefaultFenceTimeout = 5 * time.Second
)

// FenceSource creates and destroys fences.
type FenceSource interface {
	CreateFence(signaled bool) (gpucore.Fence, error)
	DestroyFence(f gpucore.Fence)
}

// Idler waits for all submitted GPU work to finish.
type Idler interface {
	WaitIdle() error
}

// Config holds configuration for creating a Synchronizer.
type Config struct {
	// FramesInFlight is the fence ring size used by BeginRenderLoop(0).
	// Defaults to DefaultFramesInFlight if <= 0.
	FramesInFlight int

	// FenceTimeout bounds each fence wait.
	// Defaults to DefaultFenceTimeout if <= 0.
	FenceTimeout time.Duration
}

type frameRecord struct {
	fence     gpucore.Fence
	callbacks []func()
}

// Synchronizer is a frames-in-flight host synchronizer.
//
// Synchronizer is safe for concurrent use. Callbacks run on the goroutine
// that triggers them, without internal locks held.
type Synchronizer struct {
	mu sync.Mutex

	fences FenceSource
	queue  Idler
	cfg    Config

	frames []frameRecord
	index  int

	// loose holds callbacks registered outside a render loop.
	loose []func()

	batchEvents map[uint64]func()
	nextKey     uint64

	closed bool
}

// New creates a synchronizer. No render loop is running initially.
func New(fences FenceSource, queue Idler, cfg Config) *Synchronizer {
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}
	return &Synchronizer{
		fences:      fences,
		queue:       queue,
		cfg:         cfg,
		batchEvents: make(map[uint64]func()),
	}
}

// InRenderLoop reports whether a render loop is running.
func (s *Synchronizer) InRenderLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) > 0
}

// FramesInFlight returns the fence ring size of the running loop, or 0.
func (s *Synchronizer) FramesInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// OnFrameComplete registers fn to run once the current frame's GPU work is
// finished. Outside a render loop fn runs on the next WaitIdle.
func (s *Synchronizer) OnFrameComplete(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 0 {
		f := &s.frames[s.index]
		f.callbacks = append(f.callbacks, fn)
		return
	}
	s.loose = append(s.loose, fn)
}

// RegisterNewBatchEvent registers fn to run whenever a batch of completed
// frames is processed. The returned key unregisters it.
func (s *Synchronizer) RegisterNewBatchEvent(fn func()) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKey++
	s.batchEvents[s.nextKey] = fn
	return s.nextKey
}

// UnregisterNewBatchEvent removes a callback registered with
// RegisterNewBatchEvent. Unknown keys are ignored.
func (s *Synchronizer) UnregisterNewBatchEvent(key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batchEvents, key)
}

// WaitIdle waits for the queue to drain and runs every pending callback.
func (s *Synchronizer) WaitIdle() error {
	if err := s.queue.WaitIdle(); err != nil {
		return errors.Wrap(err, "hostsync: wait idle")
	}

	s.mu.Lock()
	var callbacks []func()
	for i := range s.frames {
		callbacks = append(callbacks, s.frames[i].callbacks...)
		s.frames[i].callbacks = nil
	}
	callbacks = append(callbacks, s.loose...)
	s.loose = nil
	s.mu.Unlock()

	s.newBatch()
	run(callbacks)
	return nil
}

// BeginRenderLoop drains the queue and creates a ring of n signaled fences.
// n <= 0 selects Config.FramesInFlight.
func (s *Synchronizer) BeginRenderLoop(n int) error {
	if n <= 0 {
		n = s.cfg.FramesInFlight
	}
	s.mu.Lock()
	closed, running := s.closed, len(s.frames) > 0
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if running {
		return ErrInRenderLoop
	}

	if err := s.WaitIdle(); err != nil {
		return err
	}

	frames := make([]frameRecord, n)
	for i := range frames {
		f, err := s.fences.CreateFence(true)
		if err != nil {
			for _, created := range frames[:i] {
				s.fences.DestroyFence(created.fence)
			}
			return errors.Wrapf(err, "hostsync: create frame fence %d", i)
		}
		frames[i].fence = f
	}

	s.mu.Lock()
	s.frames = frames
	s.index = 0
	s.mu.Unlock()

	slogger().Info("hostsync: render loop started", "frames_in_flight", n)
	return nil
}

// EndRenderLoop drains the queue, runs every pending callback and destroys
// the fence ring.
func (s *Synchronizer) EndRenderLoop() error {
	if !s.InRenderLoop() {
		return ErrNotInRenderLoop
	}
	if err := s.WaitIdle(); err != nil {
		return err
	}

	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	s.index = 0
	s.mu.Unlock()

	for _, f := range frames {
		s.fences.DestroyFence(f.fence)
	}
	slogger().Info("hostsync: render loop ended")
	return nil
}

// WaitForOldFrame advances to the next fence slot, waits for the frame that
// last used it and runs that frame's callbacks.
func (s *Synchronizer) WaitForOldFrame(ctx context.Context) error {
	s.mu.Lock()
	if len(s.frames) == 0 {
		s.mu.Unlock()
		return ErrNotInRenderLoop
	}
	s.index = (s.index + 1) % len(s.frames)
	fence := s.frames[s.index].fence
	s.mu.Unlock()

	if err := fence.Wait(ctx, s.cfg.FenceTimeout); err != nil {
		slogger().Warn("hostsync: frame fence wait failed", "err", err)
		return errors.Wrap(err, "hostsync: wait for old frame")
	}

	s.mu.Lock()
	callbacks := s.frames[s.index].callbacks
	s.frames[s.index].callbacks = nil
	s.mu.Unlock()

	s.newBatch()
	run(callbacks)
	return nil
}

// BeginNewFrame resets the current slot's fence so the frame's last
// submission can signal it.
func (s *Synchronizer) BeginNewFrame() error {
	fence := s.FrameFence()
	if fence == nil {
		return ErrNotInRenderLoop
	}
	return errors.Wrap(fence.Reset(), "hostsync: reset frame fence")
}

// FrameFence returns the fence of the current slot, or nil outside a loop.
func (s *Synchronizer) FrameFence() gpucore.Fence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[s.index].fence
}

// End ends any running render loop, drains the queue and runs every
// pending callback. The synchronizer cannot be used afterwards.
func (s *Synchronizer) End() error {
	if s.InRenderLoop() {
		if err := s.EndRenderLoop(); err != nil {
			return err
		}
	} else if err := s.WaitIdle(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) newBatch() {
	s.mu.Lock()
	events := make([]func(), 0, len(s.batchEvents))
	for _, fn := range s.batchEvents {
		events = append(events, fn)
	}
	s.mu.Unlock()
	run(events)
}

func run(callbacks []func()) {
	for _, fn := range callbacks {
		fn()
	}
}
