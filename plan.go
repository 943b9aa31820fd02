package framegraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/subresource"
	"github.com/gogpu/framegraph/transient"
)

// PlannedPass is a pass of a compiled plan with the barriers recorded
// before it.
type PlannedPass struct {
	Pass            *Pass
	GlobalBarrier   *gpucore.GlobalBarrier
	BufferBarriers  []gpucore.BufferBarrier
	TextureBarriers []gpucore.TextureBarrier
}

// BarrierCount returns the number of barriers recorded before the pass,
// counting a global barrier as one.
func (p *PlannedPass) BarrierCount() int {
	n := len(p.BufferBarriers) + len(p.TextureBarriers)
	if p.GlobalBarrier != nil {
		n++
	}
	return n
}

func (p *PlannedPass) hasBarriers() bool { return p.BarrierCount() > 0 }

// QueueWait is a cross-queue dependency of a section on an earlier one.
type QueueWait struct {
	// Section is the index of the producing section.
	Section int
	Stages  gpucore.PipelineStage
}

// Section is a run of passes recorded into one command buffer and
// submitted once.
type Section struct {
	Queue  gpucore.Queue
	Passes []PlannedPass

	// PostTextureBarriers run after the last pass, for example to move the
	// swapchain image to the Present layout.
	PostTextureBarriers []gpucore.TextureBarrier

	// WaitAcquire and SignalPresent are the swapchain semaphore operations.
	WaitAcquire   *gpucore.SemaphoreOp
	SignalPresent *gpucore.SemaphoreOp

	// Waits lists the earlier sections on other queues this one depends on.
	Waits []QueueWait

	SignalFence         gpucore.Fence
	SyncBeforeExecution bool
}

// sectionSpan is the first and last section that use a resource.
type sectionSpan struct {
	first, last int
}

type bufferRecord struct {
	resource *BufferResource
	buffer   gpucore.Buffer
	used     bool
	final    gpucore.BufferState
	queue    gpucore.Queue
	span     sectionSpan
}

type textureRecord struct {
	resource *TextureResource
	texture  gpucore.Texture
	used     *subresource.Map[bool]
	final    *subresource.Map[gpucore.TextureState]
	queues   *subresource.Map[gpucore.Queue]
	spans    *subresource.Map[sectionSpan]
}

// Plan is a compiled graph: ordered sections with their barriers, the
// backend objects of every resource, and the states to write back after
// execution.
//
// A plan owns the backend objects of internal resources. Executing it
// releases them once the GPU has finished the frame; a plan that is never
// executed must be released with Release.
type Plan struct {
	graph *Graph

	Sections      []Section
	CompleteFence gpucore.Fence

	buffers  []bufferRecord
	textures []textureRecord

	device            gpucore.Device
	allocation        *transient.Allocation
	dedicatedBuffers  []gpucore.Buffer
	dedicatedTextures []gpucore.Texture

	releaseOnce sync.Once
	executed    bool
}

// Graph returns the graph the plan was compiled from.
func (p *Plan) Graph() *Graph { return p.graph }

// BarrierCount returns the number of barriers in the plan, including
// section post barriers.
func (p *Plan) BarrierCount() int {
	n := 0
	for i := range p.Sections {
		s := &p.Sections[i]
		for j := range s.Passes {
			n += s.Passes[j].BarrierCount()
		}
		n += len(s.PostTextureBarriers)
	}
	return n
}

// PassOrder returns the pass names in execution order.
func (p *Plan) PassOrder() []string {
	var names []string
	for _, s := range p.Sections {
		for _, pp := range s.Passes {
			names = append(names, pp.Pass.name)
		}
	}
	return names
}

// Buffer returns the backend buffer bound to r, or nil if r is unused.
func (p *Plan) Buffer(r *BufferResource) gpucore.Buffer {
	if r.graph != p.graph {
		return nil
	}
	return p.buffers[r.index].buffer
}

// Texture returns the backend texture bound to r, or nil if r is unused.
func (p *Plan) Texture(r *TextureResource) gpucore.Texture {
	if r.graph != p.graph {
		return nil
	}
	return p.textures[r.index].texture
}

// Release destroys the backend objects of internal resources. It is safe to
// call more than once.
func (p *Plan) Release() {
	p.releaseOnce.Do(func() {
		if p.allocation != nil {
			p.allocation.Release(p.device)
		}
		for _, b := range p.dedicatedBuffers {
			p.device.DestroyBuffer(b)
		}
		for _, t := range p.dedicatedTextures {
			p.device.DestroyTexture(t)
		}
		p.dedicatedBuffers, p.dedicatedTextures = nil, nil
	})
}

// String formats the plan one section, pass and barrier per line.
func (p *Plan) String() string {
	var sb strings.Builder
	for i, s := range p.Sections {
		fmt.Fprintf(&sb, "section %d (%s)", i, s.Queue.Type())
		if s.WaitAcquire != nil {
			fmt.Fprintf(&sb, " wait-acquire[%s]", s.WaitAcquire.Stages)
		}
		for _, w := range s.Waits {
			fmt.Fprintf(&sb, " wait-section[%d %s]", w.Section, w.Stages)
		}
		if s.SignalPresent != nil {
			fmt.Fprintf(&sb, " signal-present[%s]", s.SignalPresent.Stages)
		}
		if s.SignalFence != nil {
			sb.WriteString(" signal-fence")
		}
		sb.WriteByte('\n')
		for _, pp := range s.Passes {
			fmt.Fprintf(&sb, "  pass %s\n", pp.Pass.Path())
			if g := pp.GlobalBarrier; g != nil {
				fmt.Fprintf(&sb, "    global %s/%s -> %s/%s\n",
					g.BeforeStages, g.BeforeAccesses, g.AfterStages, g.AfterAccesses)
			}
			for _, b := range pp.BufferBarriers {
				fmt.Fprintf(&sb, "    buffer %s %s -> %s\n", b.Buffer.Label(), b.BeforeAccesses, b.AfterAccesses)
			}
			for _, b := range pp.TextureBarriers {
				writeTextureBarrier(&sb, "    ", b)
			}
		}
		for _, b := range s.PostTextureBarriers {
			writeTextureBarrier(&sb, "  post ", b)
		}
	}
	return sb.String()
}

func writeTextureBarrier(sb *strings.Builder, prefix string, b gpucore.TextureBarrier) {
	fmt.Fprintf(sb, "%stexture %s[mip %d, layer %d] %s -> %s\n", prefix, b.Texture.Label(),
		b.Range.BaseMip, b.Range.BaseLayer, b.BeforeLayout, b.AfterLayout)
}
