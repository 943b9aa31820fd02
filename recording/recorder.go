package recording

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph/gpucore"
)

type recorderState uint8

const (
	stateInitial recorderState = iota
	stateRecording
	stateExecutable
	stateSubmitted
	stateDiscarded
)

// Recorder is a gpucore.CommandBuffer that stores every call as a Command.
//
// Recorder is safe for concurrent use, although a command buffer is
// normally recorded by one goroutine.
type Recorder struct {
	mu       sync.Mutex
	id       uint64
	queue    *Queue
	state    recorderState
	depth    int
	commands []Command
}

// ID returns the recorder's device-unique id.
func (r *Recorder) ID() uint64 { return r.id }

// Begin implements gpucore.CommandBuffer.
func (r *Recorder) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateInitial {
		panic(errors.AssertionFailedf("recording: Begin on command buffer %d in state %d", r.id, r.state))
	}
	r.state = stateRecording
	r.commands = append(r.commands, BeginCommand{})
	return nil
}

// End implements gpucore.CommandBuffer.
func (r *Recorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		return errors.Newf("recording: End on command buffer %d that is not recording", r.id)
	}
	if r.depth != 0 {
		return errors.Newf("recording: command buffer %d ended with %d open debug events", r.id, r.depth)
	}
	r.state = stateExecutable
	r.commands = append(r.commands, EndCommand{})
	return nil
}

// Discard implements gpucore.CommandBuffer.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateDiscarded
	r.commands = append(r.commands, DiscardCommand{})
}

// ExecuteBarriers implements gpucore.CommandBuffer.
func (r *Recorder) ExecuteBarriers(global *gpucore.GlobalBarrier, textures []gpucore.TextureBarrier, buffers []gpucore.BufferBarrier) {
	cmd := BarrierCommand{
		Textures: append([]gpucore.TextureBarrier(nil), textures...),
		Buffers:  append([]gpucore.BufferBarrier(nil), buffers...),
	}
	if global != nil {
		g := *global
		cmd.Global = &g
	}
	r.record(cmd)
}

// BeginDebugEvent implements gpucore.CommandBuffer.
func (r *Recorder) BeginDebugEvent(name string) {
	r.mu.Lock()
	r.depth++
	r.mu.Unlock()
	r.record(BeginDebugEventCommand{Name: name})
}

// EndDebugEvent implements gpucore.CommandBuffer.
func (r *Recorder) EndDebugEvent() {
	r.mu.Lock()
	if r.depth == 0 {
		r.mu.Unlock()
		panic(errors.AssertionFailedf("recording: EndDebugEvent without open event on command buffer %d", r.id))
	}
	r.depth--
	r.mu.Unlock()
	r.record(EndDebugEventCommand{})
}

// Marker records client work under name.
func (r *Recorder) Marker(name string) {
	r.record(MarkerCommand{Name: name})
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

func (r *Recorder) record(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		panic(errors.AssertionFailedf("recording: %s on command buffer %d that is not recording", cmd.Type(), r.id))
	}
	r.commands = append(r.commands, cmd)
}
