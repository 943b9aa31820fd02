package recording

import (
	"strings"
	"testing"

	"github.com/gogpu/framegraph/gpucore"
)

func newRecorder(t *testing.T) (*Device, *Recorder) {
	t.Helper()
	dev := NewDevice(Config{})
	cb, err := dev.CreateCommandBuffer(dev.Queue())
	if err != nil {
		t.Fatal(err)
	}
	return dev, cb.(*Recorder)
}

// TestRecorderCommands tests the order and types of recorded commands.
func TestRecorderCommands(t *testing.T) {
	dev, r := newRecorder(t)
	buf, _ := dev.CreateBuffer(gpucore.BufferDesc{Size: 16}, "params")

	_ = r.Begin()
	r.BeginDebugEvent("Shadow")
	r.ExecuteBarriers(&gpucore.GlobalBarrier{BeforeStages: gpucore.StageAll}, nil, []gpucore.BufferBarrier{{Buffer: buf}})
	r.Marker("draw")
	r.EndDebugEvent()
	if err := r.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	want := []CommandType{CmdBegin, CmdBeginDebugEvent, CmdBarrier, CmdMarker, CmdEndDebugEvent, CmdEnd}
	got := r.Commands()
	if len(got) != len(want) {
		t.Fatalf("len(Commands()) = %d, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Type() != want[i] {
			t.Errorf("Commands()[%d] = %v, want %v", i, c.Type(), want[i])
		}
	}

	b := got[2].(BarrierCommand)
	if b.Count() != 2 {
		t.Errorf("Count() = %d, want 2", b.Count())
	}
	if s := b.String(); !strings.Contains(s, "global") || !strings.Contains(s, "buffer params") {
		t.Errorf("String() = %q, want global and buffer lines", s)
	}
}

func TestRecorderBarrierCopies(t *testing.T) {
	_, r := newRecorder(t)
	_ = r.Begin()
	global := gpucore.GlobalBarrier{AfterStages: gpucore.StageAll}
	textures := []gpucore.TextureBarrier{{AfterLayout: gpucore.LayoutShaderTexture}}
	r.ExecuteBarriers(&global, textures, nil)
	global.AfterStages = gpucore.StageNone
	textures[0].AfterLayout = gpucore.LayoutPresent

	b := r.Commands()[1].(BarrierCommand)
	if b.Global.AfterStages != gpucore.StageAll {
		t.Error("recorded global barrier aliases the caller's value")
	}
	if b.Textures[0].AfterLayout != gpucore.LayoutShaderTexture {
		t.Error("recorded texture barriers alias the caller's slice")
	}
}

func TestRecorderEndWithOpenEvent(t *testing.T) {
	_, r := newRecorder(t)
	_ = r.Begin()
	r.BeginDebugEvent("open")
	if err := r.End(); err == nil {
		t.Error("End() with an open debug event should fail")
	}
}

func TestRecorderMisuse(t *testing.T) {
	tests := []struct {
		name string
		fn   func(r *Recorder)
	}{
		{"record before Begin", func(r *Recorder) { r.Marker("x") }},
		{"Begin twice", func(r *Recorder) { _ = r.Begin(); _ = r.Begin() }},
		{"unbalanced EndDebugEvent", func(r *Recorder) { _ = r.Begin(); r.EndDebugEvent() }},
		{"record after Discard", func(r *Recorder) { _ = r.Begin(); r.Discard(); r.Marker("x") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newRecorder(t)
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic", tt.name)
				}
			}()
			tt.fn(r)
		})
	}
}

func TestDiscardedNotSubmittable(t *testing.T) {
	dev, r := newRecorder(t)
	_ = r.Begin()
	r.Discard()
	if err := dev.Queue().Submit(gpucore.SubmitInfo{CommandBuffer: r}); err == nil {
		t.Error("Submit() of a discarded command buffer should fail")
	}
}

func TestCommandTypeString(t *testing.T) {
	tests := []struct {
		c    CommandType
		want string
	}{
		{CmdBegin, "Begin"},
		{CmdBarrier, "Barrier"},
		{CmdMarker, "Marker"},
		{CommandType(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("CommandType(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}
