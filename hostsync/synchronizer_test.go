package hostsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/framegraph/gpucore"
)

type fakeFence struct {
	signaled bool
	waits    int
	err      error
}

func (f *fakeFence) Wait(context.Context, time.Duration) error {
	f.waits++
	if f.err != nil {
		return f.err
	}
	f.signaled = true
	return nil
}

func (f *fakeFence) Reset() error   { f.signaled = false; return nil }
func (f *fakeFence) Signaled() bool { return f.signaled }

type fakeDevice struct {
	created   []*fakeFence
	destroyed int
	idles     int
	failAfter int
}

func (d *fakeDevice) CreateFence(signaled bool) (gpucore.Fence, error) {
	if d.failAfter > 0 && len(d.created) == d.failAfter {
		return nil, errors.New("out of fences")
	}
	f := &fakeFence{signaled: signaled}
	d.created = append(d.created, f)
	return f, nil
}

func (d *fakeDevice) DestroyFence(gpucore.Fence) { d.destroyed++ }

func (d *fakeDevice) WaitIdle() error {
	d.idles++
	return nil
}

func newTestSynchronizer() (*fakeDevice, *Synchronizer) {
	d := &fakeDevice{}
	return d, New(d, d, Config{FramesInFlight: 3})
}

func TestCallbacksOutsideRenderLoop(t *testing.T) {
	d, s := newTestSynchronizer()
	ran := 0
	s.OnFrameComplete(func() { ran++ })
	s.OnFrameComplete(nil)

	if err := s.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if ran != 1 {
		t.Errorf("callback ran %d times, want 1", ran)
	}
	if d.idles != 1 {
		t.Errorf("queue WaitIdle called %d times, want 1", d.idles)
	}
}

// TestRenderLoop tests that a frame's callbacks run once its fence slot
// comes around again.
func TestRenderLoop(t *testing.T) {
	d, s := newTestSynchronizer()
	ctx := context.Background()

	if err := s.BeginRenderLoop(0); err != nil {
		t.Fatalf("BeginRenderLoop() error = %v", err)
	}
	if got := s.FramesInFlight(); got != 3 {
		t.Errorf("FramesInFlight() = %d, want 3", got)
	}
	if !s.InRenderLoop() {
		t.Error("InRenderLoop() = false after BeginRenderLoop")
	}
	if err := s.BeginRenderLoop(2); !errors.Is(err, ErrInRenderLoop) {
		t.Errorf("second BeginRenderLoop() error = %v, want %v", err, ErrInRenderLoop)
	}

	var done []int
	for frame := range 5 {
		if err := s.WaitForOldFrame(ctx); err != nil {
			t.Fatalf("frame %d: WaitForOldFrame() error = %v", frame, err)
		}
		if err := s.BeginNewFrame(); err != nil {
			t.Fatalf("frame %d: BeginNewFrame() error = %v", frame, err)
		}
		if s.FrameFence().Signaled() {
			t.Errorf("frame %d: fence signaled after BeginNewFrame", frame)
		}
		s.OnFrameComplete(func() { done = append(done, frame) })
	}

	// Frames 0 and 1 were waited on when their slots were reused by 3 and 4.
	if len(done) != 2 || done[0] != 0 || done[1] != 1 {
		t.Errorf("completed frames = %v, want [0 1]", done)
	}

	if err := s.EndRenderLoop(); err != nil {
		t.Fatalf("EndRenderLoop() error = %v", err)
	}
	if len(done) != 5 {
		t.Errorf("completed frames after EndRenderLoop = %v, want all 5", done)
	}
	if d.destroyed != 3 {
		t.Errorf("destroyed fences = %d, want 3", d.destroyed)
	}
	if s.FrameFence() != nil {
		t.Error("FrameFence() outside render loop should be nil")
	}
}

func TestFrameOpsOutsideRenderLoop(t *testing.T) {
	_, s := newTestSynchronizer()
	if err := s.WaitForOldFrame(context.Background()); !errors.Is(err, ErrNotInRenderLoop) {
		t.Errorf("WaitForOldFrame() error = %v, want %v", err, ErrNotInRenderLoop)
	}
	if err := s.BeginNewFrame(); !errors.Is(err, ErrNotInRenderLoop) {
		t.Errorf("BeginNewFrame() error = %v, want %v", err, ErrNotInRenderLoop)
	}
	if err := s.EndRenderLoop(); !errors.Is(err, ErrNotInRenderLoop) {
		t.Errorf("EndRenderLoop() error = %v, want %v", err, ErrNotInRenderLoop)
	}
}

func TestWaitForOldFrameError(t *testing.T) {
	d, s := newTestSynchronizer()
	if err := s.BeginRenderLoop(2); err != nil {
		t.Fatal(err)
	}
	lost := errors.New("device lost")
	d.created[1].err = lost

	ran := false
	s.OnFrameComplete(func() { ran = true })
	if err := s.WaitForOldFrame(context.Background()); !errors.Is(err, lost) {
		t.Errorf("WaitForOldFrame() error = %v, want %v", err, lost)
	}
	if ran {
		t.Error("callback of an unfinished frame ran")
	}
}

func TestBeginRenderLoopFenceFailure(t *testing.T) {
	d := &fakeDevice{failAfter: 1}
	s := New(d, d, Config{})
	if err := s.BeginRenderLoop(0); err == nil {
		t.Fatal("BeginRenderLoop() should fail")
	}
	if d.destroyed != 1 {
		t.Errorf("destroyed fences = %d, want 1", d.destroyed)
	}
	if s.InRenderLoop() {
		t.Error("InRenderLoop() = true after failed BeginRenderLoop")
	}
}

func TestNewBatchEvents(t *testing.T) {
	_, s := newTestSynchronizer()
	batches := 0
	key := s.RegisterNewBatchEvent(func() { batches++ })

	_ = s.WaitIdle()
	_ = s.BeginRenderLoop(2)
	_ = s.WaitForOldFrame(context.Background())
	if batches != 3 {
		t.Errorf("batch events = %d, want 3", batches)
	}

	s.UnregisterNewBatchEvent(key)
	s.UnregisterNewBatchEvent(key + 100)
	_ = s.WaitIdle()
	if batches != 3 {
		t.Errorf("batch events after unregister = %d, want 3", batches)
	}
}

func TestEnd(t *testing.T) {
	_, s := newTestSynchronizer()
	_ = s.BeginRenderLoop(0)
	ran := false
	s.OnFrameComplete(func() { ran = true })
	if err := s.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if !ran {
		t.Error("pending callback did not run on End")
	}
	if err := s.BeginRenderLoop(0); !errors.Is(err, ErrClosed) {
		t.Errorf("BeginRenderLoop() after End error = %v, want %v", err, ErrClosed)
	}
}
