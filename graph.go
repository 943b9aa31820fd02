package framegraph

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gpucore"
)

// Graph is the description of one frame of GPU work: the resources it
// touches and the passes that touch them. A graph is built once, executed
// once, and then discarded.
//
// Graph is not safe for concurrent use.
type Graph struct {
	queue gpucore.Queue

	buffers  []*BufferResource
	textures []*TextureResource
	passes   []*Pass

	externalBuffers  map[*StatefulBuffer]*BufferResource
	externalTextures map[*StatefulTexture]*TextureResource

	swapchain        *TextureResource
	acquireSemaphore gpucore.Semaphore
	presentSemaphore gpucore.Semaphore

	completeFence gpucore.Fence

	labels   labelStack
	uavDepth int
	uavLast  uavGroup
	uav      uavGroup

	err      error
	executed bool
}

// NewGraph creates an empty graph whose passes run on queue unless they
// select another one with Pass.SetQueue.
func NewGraph(queue gpucore.Queue) *Graph {
	return &Graph{
		queue:            queue,
		externalBuffers:  make(map[*StatefulBuffer]*BufferResource),
		externalTextures: make(map[*StatefulTexture]*TextureResource),
	}
}

// Queue returns the graph's default queue.
func (g *Graph) Queue() gpucore.Queue { return g.queue }

// Passes returns the passes in declaration order.
func (g *Graph) Passes() []*Pass { return g.passes }

// Buffers returns the declared buffers by index.
func (g *Graph) Buffers() []*BufferResource { return g.buffers }

// Textures returns the declared textures by index.
func (g *Graph) Textures() []*TextureResource { return g.textures }

// Err returns the first declaration error, or nil. Compile reports the same
// error.
func (g *Graph) Err() error { return g.err }

func (g *Graph) fail(err error) {
	if g.err == nil {
		g.err = err
		slogger().Debug("framegraph: declaration rejected", "err", err)
	}
}

// CreateBuffer declares an internal buffer. Its memory exists only while
// the graph executes.
func (g *Graph) CreateBuffer(name string, desc gpucore.BufferDesc) *BufferResource {
	b := &BufferResource{graph: g, index: len(g.buffers), name: name, desc: desc}
	g.buffers = append(g.buffers, b)
	return b
}

// CreateStructuredBuffer declares an internal buffer of count elements of
// stride bytes.
func (g *Graph) CreateStructuredBuffer(name string, count, stride uint64, usage gputypes.BufferUsage) *BufferResource {
	b := g.CreateBuffer(name, gpucore.BufferDesc{Size: count * stride, Usage: usage})
	b.defaultStride = stride
	return b
}

// CreateTexelBuffer declares an internal buffer of count texels of format.
func (g *Graph) CreateTexelBuffer(name string, count uint64, format gputypes.TextureFormat, usage gputypes.BufferUsage) *BufferResource {
	b := g.CreateBuffer(name, gpucore.BufferDesc{
		Size:  count * uint64(gpucore.TexelSize(format)),
		Usage: usage,
	})
	b.defaultTexelFormat = format
	return b
}

// CreateTexture declares an internal texture.
func (g *Graph) CreateTexture(name string, desc gpucore.TextureDesc) *TextureResource {
	t := &TextureResource{graph: g, index: len(g.textures), name: name, desc: desc.Normalized()}
	g.textures = append(g.textures, t)
	return t
}

// RegisterBuffer declares an external buffer. Registering the same buffer
// twice returns the same resource.
func (g *Graph) RegisterBuffer(b *StatefulBuffer) *BufferResource {
	return g.registerBuffer(b, false)
}

// RegisterReadOnlyBuffer declares an external buffer that passes may only
// read. Compile rejects graphs that write it.
func (g *Graph) RegisterReadOnlyBuffer(b *StatefulBuffer) *BufferResource {
	return g.registerBuffer(b, true)
}

func (g *Graph) registerBuffer(sb *StatefulBuffer, readOnly bool) *BufferResource {
	if r, ok := g.externalBuffers[sb]; ok {
		if r.readOnly != readOnly {
			g.fail(buildErrorf(ErrInvalidGraph,
				"buffer %q registered both as read-only and as writable", r.name))
		}
		return r
	}
	buf := sb.Buffer()
	r := &BufferResource{
		graph:    g,
		index:    len(g.buffers),
		name:     buf.Label(),
		desc:     buf.Desc(),
		external: sb,
		readOnly: readOnly,
	}
	g.buffers = append(g.buffers, r)
	g.externalBuffers[sb] = r
	return r
}

// RegisterTexture declares an external texture. Registering the same
// texture twice returns the same resource.
func (g *Graph) RegisterTexture(t *StatefulTexture) *TextureResource {
	return g.registerTexture(t, false)
}

// RegisterReadOnlyTexture declares an external texture that passes may only
// sample in the ShaderTexture layout.
func (g *Graph) RegisterReadOnlyTexture(t *StatefulTexture) *TextureResource {
	return g.registerTexture(t, true)
}

func (g *Graph) registerTexture(st *StatefulTexture, readOnly bool) *TextureResource {
	if r, ok := g.externalTextures[st]; ok {
		if r.readOnly != readOnly {
			g.fail(buildErrorf(ErrInvalidGraph,
				"texture %q registered both as read-only and as writable", r.name))
		}
		return r
	}
	r := &TextureResource{
		graph:    g,
		index:    len(g.textures),
		name:     st.Texture().Label(),
		desc:     st.Desc(),
		external: st,
		readOnly: readOnly,
	}
	g.textures = append(g.textures, r)
	g.externalTextures[st] = r
	return r
}

// RegisterSwapchainTexture declares the swapchain image of the frame. The
// first section that uses it waits on acquire, the last one signals
// present, and the image ends the graph in the Present layout. A graph has
// at most one swapchain texture; registering it again returns the same
// resource.
func (g *Graph) RegisterSwapchainTexture(t *StatefulTexture, acquire, present gpucore.Semaphore) *TextureResource {
	if g.swapchain != nil {
		if g.swapchain.external != t {
			g.fail(buildErrorf(ErrInvalidGraph, "graph already has swapchain texture %q", g.swapchain.name))
		}
		return g.swapchain
	}
	r := g.registerTexture(t, false)
	r.swapchain = true
	g.swapchain = r
	g.acquireSemaphore = acquire
	g.presentSemaphore = present
	return r
}

// SetCompleteFence sets a fence signaled once all work of the graph is
// finished on the GPU.
func (g *Graph) SetCompleteFence(f gpucore.Fence) { g.completeFence = f }

// PushPassGroup opens a named group. Passes created until the matching
// PopPassGroup are labeled under it.
func (g *Graph) PushPassGroup(name string) { g.labels.push(name) }

// PopPassGroup closes the innermost group.
func (g *Graph) PopPassGroup() {
	if !g.labels.pop() {
		g.fail(buildErrorf(ErrInvalidGraph, "PopPassGroup without open group"))
	}
}

// BeginUAVOverlap opens a UAV overlap region. Passes created inside it may
// access the same storage resources without barriers between them. Regions
// nest; only the outermost one starts a new group.
func (g *Graph) BeginUAVOverlap() {
	g.uavDepth++
	if g.uavDepth == 1 {
		g.uavLast++
		g.uav = g.uavLast
	}
}

// EndUAVOverlap closes a UAV overlap region.
func (g *Graph) EndUAVOverlap() {
	if g.uavDepth == 0 {
		g.fail(buildErrorf(ErrInvalidGraph, "EndUAVOverlap without BeginUAVOverlap"))
		return
	}
	g.uavDepth--
	if g.uavDepth == 0 {
		g.uav = 0
	}
}

// CreatePass adds a pass named name under the current pass group.
func (g *Graph) CreatePass(name string) *Pass {
	p := &Pass{
		graph:        g,
		index:        len(g.passes),
		name:         name,
		label:        newLabelNode(g.labels.top, name),
		bufferIndex:  make(map[*BufferResource]int),
		textureIndex: make(map[*TextureResource]int),
		prevs:        make(map[int]struct{}),
		succs:        make(map[int]struct{}),
		uav:          g.uav,
	}
	g.passes = append(g.passes, p)
	return p
}
