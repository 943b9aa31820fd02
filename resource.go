package framegraph

import (
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/subresource"
)

// StatefulBuffer is a long-lived buffer together with its last known GPU
// state. Graphs read the state when they are compiled and write the final
// state back after execution.
//
// The state must not be changed by its owner while a graph that uses the
// buffer is executing.
type StatefulBuffer struct {
	mu     sync.Mutex
	buffer gpucore.Buffer
	state  gpucore.BufferState

	// queue is the queue that state.Session refers to. nil means the
	// queue of the next graph that uses the buffer.
	queue gpucore.Queue
}

// NewStatefulBuffer wraps buf. The initial state is idle.
func NewStatefulBuffer(buf gpucore.Buffer) *StatefulBuffer {
	return &StatefulBuffer{buffer: buf}
}

// Buffer returns the backend buffer.
func (b *StatefulBuffer) Buffer() gpucore.Buffer { return b.buffer }

// State returns the last known state.
func (b *StatefulBuffer) State() gpucore.BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState overrides the last known state.
func (b *StatefulBuffer) SetState(s gpucore.BufferState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.queue = nil
}

func (b *StatefulBuffer) writeBack(s gpucore.BufferState, q gpucore.Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state, b.queue = s, q
}

func (b *StatefulBuffer) stateWithQueue() (gpucore.BufferState, gpucore.Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.queue
}

// StatefulTexture is a long-lived texture together with the last known GPU
// state of each of its subresources.
//
// A texture with a default layout is returned to that layout at the end of
// every graph that uses it, so code outside the graph can rely on it.
type StatefulTexture struct {
	mu            sync.Mutex
	texture       gpucore.Texture
	desc          gpucore.TextureDesc
	states        *subresource.Map[gpucore.TextureState]
	queues        *subresource.Map[gpucore.Queue]
	defaultLayout gpucore.TextureLayout
}

// NewStatefulTexture wraps tex. Every subresource starts idle in the
// Undefined layout.
func NewStatefulTexture(tex gpucore.Texture) *StatefulTexture {
	desc := tex.Desc().Normalized()
	return &StatefulTexture{
		texture: tex,
		desc:    desc,
		states:  subresource.New[gpucore.TextureState](desc.MipLevels, desc.ArraySize),
		queues:  subresource.New[gpucore.Queue](desc.MipLevels, desc.ArraySize),
	}
}

// Texture returns the backend texture.
func (t *StatefulTexture) Texture() gpucore.Texture { return t.texture }

// Desc returns the normalized texture description.
func (t *StatefulTexture) Desc() gpucore.TextureDesc { return t.desc }

// State returns the last known state of subresource (mip, layer).
func (t *StatefulTexture) State(mip, layer uint32) gpucore.TextureState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states.At(mip, layer)
}

// SetState overrides the last known state of subresource (mip, layer).
func (t *StatefulTexture) SetState(mip, layer uint32, s gpucore.TextureState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states.Set(mip, layer, s)
	t.queues.Set(mip, layer, nil)
}

// SetLayout marks every subresource idle in layout l.
func (t *StatefulTexture) SetLayout(l gpucore.TextureLayout) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states.Fill(gpucore.TextureState{Layout: l})
	t.queues.Fill(nil)
}

// DefaultLayout returns the layout the texture is returned to after a
// graph, or LayoutUndefined if it has none.
func (t *StatefulTexture) DefaultLayout() gpucore.TextureLayout {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defaultLayout
}

// SetDefaultLayout sets the layout the texture is returned to after every
// graph that uses it. LayoutUndefined leaves the texture in the layout of
// its last use.
func (t *StatefulTexture) SetDefaultLayout(l gpucore.TextureLayout) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultLayout = l
}

// States returns a copy of every subresource state.
func (t *StatefulTexture) States() *subresource.Map[gpucore.TextureState] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states.Clone()
}

func (t *StatefulTexture) snapshot() (*subresource.Map[gpucore.TextureState], *subresource.Map[gpucore.Queue]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states.Clone(), t.queues.Clone()
}

func (t *StatefulTexture) writeBack(mip, layer uint32, s gpucore.TextureState, q gpucore.Queue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states.Set(mip, layer, s)
	t.queues.Set(mip, layer, q)
}

// BufferResource is a buffer declared in a graph.
type BufferResource struct {
	graph *Graph
	index int
	name  string
	desc  gpucore.BufferDesc

	external *StatefulBuffer
	readOnly bool

	defaultStride      uint64
	defaultTexelFormat gputypes.TextureFormat
}

// Index returns the position of the buffer in its graph.
func (b *BufferResource) Index() int { return b.index }

// Name returns the debug name.
func (b *BufferResource) Name() string { return b.name }

// Desc returns the buffer description.
func (b *BufferResource) Desc() gpucore.BufferDesc { return b.desc }

// IsExternal reports whether the buffer was registered rather than created
// by the graph.
func (b *BufferResource) IsExternal() bool { return b.external != nil }

// DefaultStructStride returns the element stride given to
// CreateStructuredBuffer, or 0.
func (b *BufferResource) DefaultStructStride() uint64 { return b.defaultStride }

// DefaultTexelFormat returns the format given to CreateTexelBuffer, or
// TextureFormatUndefined.
func (b *BufferResource) DefaultTexelFormat() gputypes.TextureFormat { return b.defaultTexelFormat }

// TextureResource is a texture declared in a graph.
type TextureResource struct {
	graph *Graph
	index int
	name  string
	desc  gpucore.TextureDesc

	external  *StatefulTexture
	readOnly  bool
	swapchain bool
}

// Index returns the position of the texture in its graph.
func (t *TextureResource) Index() int { return t.index }

// Name returns the debug name.
func (t *TextureResource) Name() string { return t.name }

// Desc returns the normalized texture description.
func (t *TextureResource) Desc() gpucore.TextureDesc { return t.desc }

// MipLevels returns the number of mip levels.
func (t *TextureResource) MipLevels() uint32 { return t.desc.MipLevels }

// ArrayLayers returns the number of array layers.
func (t *TextureResource) ArrayLayers() uint32 { return t.desc.ArraySize }

// IsExternal reports whether the texture was registered rather than created
// by the graph.
func (t *TextureResource) IsExternal() bool { return t.external != nil }

// IsSwapchain reports whether the texture is the graph's swapchain image.
func (t *TextureResource) IsSwapchain() bool { return t.swapchain }

func (t *TextureResource) defaultLayout() gpucore.TextureLayout {
	if t.swapchain {
		return gpucore.LayoutPresent
	}
	if t.external != nil {
		return t.external.DefaultLayout()
	}
	return gpucore.LayoutUndefined
}
