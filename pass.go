package framegraph

import (
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/subresource"
)

// PassCallback records the GPU work of a pass. A non-nil error aborts the
// execution of the whole graph before anything is submitted.
type PassCallback func(pc *PassContext) error

// uavGroup identifies a UAV overlap group. The zero value is no group.
type uavGroup int

func (g uavGroup) valid() bool { return g != 0 }

type bufferUsage struct {
	buffer *BufferResource
	info   gpucore.UseInfo
}

type textureUsage struct {
	texture *TextureResource
	infos   *subresource.Map[*gpucore.UseInfo]
}

// Pass is a node of a graph. It declares the resources it touches and
// optionally records commands through a callback. A pass without callback
// only carries barriers and synchronization.
type Pass struct {
	graph *Graph
	index int
	name  string
	label *labelNode

	buffers      []bufferUsage
	bufferIndex  map[*BufferResource]int
	textures     []textureUsage
	textureIndex map[*TextureResource]int

	prevs map[int]struct{}
	succs map[int]struct{}

	callback    PassCallback
	signalFence gpucore.Fence
	syncBefore  bool
	queue       gpucore.Queue
	uav         uavGroup
}

// Index returns the declaration index of the pass.
func (p *Pass) Index() int { return p.index }

// Name returns the pass name.
func (p *Pass) Name() string { return p.name }

// Path returns the debug label path of the pass, for example
// "Lighting/Shadows/PointLight3".
func (p *Pass) Path() string { return p.label.Path() }

// UseBuffer declares that the pass accesses b. Repeated declarations are
// merged. info.Layout is ignored.
func (p *Pass) UseBuffer(b *BufferResource, info gpucore.UseInfo) *Pass {
	if b == nil || b.graph != p.graph {
		p.graph.fail(buildErrorf(ErrUndeclaredResource, "pass %q uses a buffer of another graph", p.name))
		return p
	}
	if !p.checkAccesses(b.name, info) {
		return p
	}
	info.Layout = gpucore.LayoutUndefined
	if i, ok := p.bufferIndex[b]; ok {
		merged := p.buffers[i].info.Or(info)
		if !p.checkAccesses(b.name, merged) {
			return p
		}
		p.buffers[i].info = merged
		return p
	}
	p.bufferIndex[b] = len(p.buffers)
	p.buffers = append(p.buffers, bufferUsage{buffer: b, info: info})
	return p
}

// UseTexture declares that the pass accesses every subresource of t.
func (p *Pass) UseTexture(t *TextureResource, info gpucore.UseInfo) *Pass {
	if t == nil || t.graph != p.graph {
		p.graph.fail(buildErrorf(ErrUndeclaredResource, "pass %q uses a texture of another graph", p.name))
		return p
	}
	return p.UseTextureRange(t, gpucore.SubresourceRange{
		MipCount:   t.desc.MipLevels,
		LayerCount: t.desc.ArraySize,
	}, info)
}

// UseSubresource declares that the pass accesses one subresource of t.
func (p *Pass) UseSubresource(t *TextureResource, mip, layer uint32, info gpucore.UseInfo) *Pass {
	return p.UseTextureRange(t, gpucore.SubresourceRange{
		BaseMip: mip, MipCount: 1, BaseLayer: layer, LayerCount: 1,
	}, info)
}

// UseTextureRange declares that the pass accesses the subresources of t in
// rng. Every subresource declared more than once must be declared with the
// same layout.
func (p *Pass) UseTextureRange(t *TextureResource, rng gpucore.SubresourceRange, info gpucore.UseInfo) *Pass {
	if t == nil || t.graph != p.graph {
		p.graph.fail(buildErrorf(ErrUndeclaredResource, "pass %q uses a texture of another graph", p.name))
		return p
	}
	mipEnd := uint64(rng.BaseMip) + uint64(rng.MipCount)
	layerEnd := uint64(rng.BaseLayer) + uint64(rng.LayerCount)
	if rng.MipCount == 0 || rng.LayerCount == 0 ||
		mipEnd > uint64(t.desc.MipLevels) || layerEnd > uint64(t.desc.ArraySize) {
		p.graph.fail(buildErrorf(ErrInvalidGraph,
			"pass %q uses mips [%d, %d) layers [%d, %d) of texture %q with %d mips and %d layers",
			p.name, rng.BaseMip, mipEnd, rng.BaseLayer, layerEnd,
			t.name, t.desc.MipLevels, t.desc.ArraySize))
		return p
	}
	if !p.checkAccesses(t.name, info) {
		return p
	}

	i, ok := p.textureIndex[t]
	if !ok {
		i = len(p.textures)
		p.textureIndex[t] = i
		p.textures = append(p.textures, textureUsage{
			texture: t,
			infos:   subresource.New[*gpucore.UseInfo](t.desc.MipLevels, t.desc.ArraySize),
		})
	}
	infos := p.textures[i].infos
	for layer := rng.BaseLayer; layer < rng.BaseLayer+rng.LayerCount; layer++ {
		for mip := rng.BaseMip; mip < rng.BaseMip+rng.MipCount; mip++ {
			slot := infos.Ptr(mip, layer)
			if *slot == nil {
				u := info
				*slot = &u
				continue
			}
			if (*slot).Layout != info.Layout {
				p.graph.fail(buildErrorf(ErrConflictingUsage,
					"pass %q declares texture %q (mip %d, layer %d) as both %s and %s",
					p.name, t.name, mip, layer, (*slot).Layout, info.Layout))
				return p
			}
			merged := (*slot).Or(info)
			if !p.checkAccesses(t.name, merged) {
				return p
			}
			*slot = &merged
		}
	}
	return p
}

// checkAccesses rejects declarations that mix unordered (storage) accesses
// with ordered ones, which no single barrier state can describe.
func (p *Pass) checkAccesses(resource string, info gpucore.UseInfo) bool {
	if info.Accesses.HasUAVAccess() && !info.Accesses.IsUAVOnly() {
		p.graph.fail(buildErrorf(ErrConflictingUsage,
			"pass %q mixes unordered and ordered accesses on %q: %s", p.name, resource, info.Accesses))
		return false
	}
	return true
}

// SetCallback sets the function that records the pass's commands.
func (p *Pass) SetCallback(fn PassCallback) *Pass {
	p.callback = fn
	return p
}

// SetSignalFence makes the submission that contains the pass signal f.
// The pass ends its section.
func (p *Pass) SetSignalFence(f gpucore.Fence) *Pass {
	p.signalFence = f
	return p
}

// SyncQueueBeforeExecution starts a new section at the pass, so work
// submitted before it is flushed to the queue first.
func (p *Pass) SyncQueueBeforeExecution() *Pass {
	p.syncBefore = true
	return p
}

// SetQueue runs the pass on q instead of the graph's queue. Passes on
// different queues are placed in different sections and synchronized with
// semaphores.
func (p *Pass) SetQueue(q gpucore.Queue) *Pass {
	p.queue = q
	return p
}

// ClearUAVOverlapGroup removes the pass from the UAV overlap group it was
// created in.
func (p *Pass) ClearUAVOverlapGroup() *Pass {
	p.uav = 0
	return p
}

func (p *Pass) queueOr(def gpucore.Queue) gpucore.Queue {
	if p.queue != nil {
		return p.queue
	}
	return def
}

// Connect orders tail after head. Both passes must belong to the same graph.
func Connect(head, tail *Pass) {
	if head.graph != tail.graph {
		head.graph.fail(buildErrorf(ErrInvalidGraph,
			"cannot connect pass %q to pass %q of another graph", head.name, tail.name))
		return
	}
	head.succs[tail.index] = struct{}{}
	tail.prevs[head.index] = struct{}{}
}
