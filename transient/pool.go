package transient

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/gpucore"
)

// PoolConfig holds configuration for creating a Pool.
type PoolConfig struct {
	// BlockSizeHint is the size of newly created memory blocks.
	// Defaults to DefaultBlockSizeHint if 0.
	BlockSizeHint uint64

	// GeneralHeap places every resource kind in HeapGeneral blocks.
	// NewPool enables it when the device reports Capabilities.GeneralHeap.
	GeneralHeap bool
}

// Decl declares one transient resource and the sorted pass range
// [BeginPass, EndPass] it is used in.
type Decl struct {
	Label     string
	Buffer    *gpucore.BufferDesc
	Texture   *gpucore.TextureDesc
	BeginPass int
	EndPass   int
}

// BufferDecl declares a transient buffer.
func BufferDecl(desc gpucore.BufferDesc, label string, begin, end int) Decl {
	return Decl{Label: label, Buffer: &desc, BeginPass: begin, EndPass: end}
}

// TextureDecl declares a transient texture.
func TextureDecl(desc gpucore.TextureDesc, label string, begin, end int) Decl {
	return Decl{Label: label, Texture: &desc, BeginPass: begin, EndPass: end}
}

// Placement is where a declared resource was created.
type Placement struct {
	Segment Segment
	Buffer  gpucore.Buffer
	Texture gpucore.Texture
}

// AliasPair reports that resource Next reuses memory last used by Prev.
// Both are indexes into the declaration slice passed to Allocate.
type AliasPair struct {
	Prev, Next int
}

// Allocation is the result of one Pool.Allocate call.
type Allocation struct {
	Placements []Placement
	Aliases    []AliasPair
}

// Release destroys the placed resources. Call it once the GPU no longer
// uses them.
func (a *Allocation) Release(device gpucore.Device) {
	for i := range a.Placements {
		p := &a.Placements[i]
		if p.Buffer != nil {
			device.DestroyBuffer(p.Buffer)
			p.Buffer = nil
		}
		if p.Texture != nil {
			device.DestroyTexture(p.Texture)
			p.Texture = nil
		}
	}
}

// Pool places transient resources into pooled memory blocks, letting
// resources with disjoint pass ranges share memory.
//
// Pool is safe for concurrent use as long as Allocate calls are not
// interleaved with Close.
type Pool struct {
	device      gpucore.Device
	blocks      *BlockPool
	generalHeap bool
}

// NewPool creates a pool backed by device.
func NewPool(device gpucore.Device, cfg PoolConfig) *Pool {
	return &Pool{
		device:      device,
		blocks:      NewBlockPool(device, cfg.BlockSizeHint),
		generalHeap: cfg.GeneralHeap || device.Capabilities().GeneralHeap,
	}
}

// Blocks returns the underlying block pool.
func (p *Pool) Blocks() *BlockPool { return p.blocks }

// StartHostSynchronizationSession forwards to the block pool.
func (p *Pool) StartHostSynchronizationSession() int {
	return p.blocks.StartHostSynchronizationSession()
}

// CompleteHostSynchronizationSession forwards to the block pool.
func (p *Pool) CompleteHostSynchronizationSession(session int) {
	p.blocks.CompleteHostSynchronizationSession(session)
}

// Close destroys all memory blocks.
func (p *Pool) Close() { p.blocks.Close() }

// BufferCategory returns the heap category for buffers.
func BufferCategory(generalHeap bool) gpucore.HeapCategory {
	if generalHeap {
		return gpucore.HeapGeneral
	}
	return gpucore.HeapBuffer
}

// TextureCategory returns the heap category and alignment class of a texture.
func TextureCategory(desc gpucore.TextureDesc, generalHeap bool) (gpucore.HeapCategory, gpucore.HeapAlignment) {
	alignment := gpucore.AlignRegular
	if desc.SampleCount > 1 {
		alignment = gpucore.AlignMSAA
	}
	switch {
	case generalHeap:
		return gpucore.HeapGeneral, alignment
	case desc.Usage.Contains(gputypes.TextureUsageRenderAttachment) || desc.Format.IsDepthStencil():
		return gpucore.HeapRTDSTexture, alignment
	default:
		return gpucore.HeapNonRTDSTexture, alignment
	}
}

type eventKind uint8

const (
	eventAllocate eventKind = iota
	eventRelease
)

type event struct {
	key  int
	kind eventKind
	decl int
}

// Allocate places every declaration and creates its resource.
//
// Resources are processed in pass order: a resource's memory is reserved at
// 2*BeginPass and returned at 2*EndPass+1, so a release at pass n happens
// after every allocation at pass n and before any allocation at pass n+1.
// On error, resources created so far are destroyed.
func (p *Pool) Allocate(decls []Decl) (*Allocation, error) {
	events := make([]event, 0, 2*len(decls))
	for i, d := range decls {
		if (d.Buffer == nil) == (d.Texture == nil) {
			return nil, errors.Newf("transient: declaration %d (%q) must describe exactly one buffer or texture", i, d.Label)
		}
		if d.EndPass < d.BeginPass {
			return nil, errors.Newf("transient: declaration %d (%q) ends at pass %d before it begins at %d",
				i, d.Label, d.EndPass, d.BeginPass)
		}
		events = append(events,
			event{key: 2 * d.BeginPass, kind: eventAllocate, decl: i},
			event{key: 2*d.EndPass + 1, kind: eventRelease, decl: i})
	}
	slices.SortStableFunc(events, func(a, b event) int { return a.key - b.key })

	var sets [gpucore.HeapCategoryCount][gpucore.HeapAlignmentCount]*SegmentSet
	setFor := func(c gpucore.HeapCategory, a gpucore.HeapAlignment) *SegmentSet {
		if sets[c][a] == nil {
			sets[c][a] = NewSegmentSet()
		}
		return sets[c][a]
	}

	tracker := newUsageTracker()
	out := &Allocation{Placements: make([]Placement, len(decls))}
	var blocksUsed int

	for _, ev := range events {
		d := decls[ev.decl]
		if ev.kind == eventRelease {
			seg := out.Placements[ev.decl].Segment
			setFor(seg.Block.Category, seg.Block.Alignment).Free(seg)
			continue
		}

		var (
			category  gpucore.HeapCategory
			alignment gpucore.HeapAlignment
			info      gpucore.AllocationInfo
		)
		if d.Buffer != nil {
			category, alignment = BufferCategory(p.generalHeap), gpucore.AlignRegular
			info = p.device.BufferAllocationInfo(*d.Buffer)
		} else {
			category, alignment = TextureCategory(*d.Texture, p.generalHeap)
			info = p.device.TextureAllocationInfo(*d.Texture)
		}

		seg, ok := setFor(category, alignment).Allocate(info.Size, info.Alignment)
		if !ok && alignment == gpucore.AlignRegular {
			seg, ok = setFor(category, gpucore.AlignMSAA).Allocate(info.Size, info.Alignment)
		}
		if !ok {
			block, err := p.blocks.GetMemoryBlock(category, alignment, info.Size)
			if err != nil {
				out.Release(p.device)
				return nil, err
			}
			blocksUsed++
			seg = Segment{Block: block, Offset: 0, Size: info.Size}
			if block.Size > info.Size {
				setFor(block.Category, block.Alignment).Free(Segment{
					Block:  block,
					Offset: info.Size,
					Size:   block.Size - info.Size,
				})
			}
		}

		for _, prev := range tracker.place(seg.Block, seg.Offset, seg.Size, ev.decl) {
			out.Aliases = append(out.Aliases, AliasPair{Prev: prev, Next: ev.decl})
		}

		pl := &out.Placements[ev.decl]
		pl.Segment = seg
		var err error
		if d.Buffer != nil {
			pl.Buffer, err = p.device.CreatePlacedBuffer(seg.Block.Memory, seg.Offset, *d.Buffer, d.Label)
		} else {
			pl.Texture, err = p.device.CreatePlacedTexture(seg.Block.Memory, seg.Offset, *d.Texture, d.Label)
		}
		if err != nil {
			out.Release(p.device)
			return nil, errors.Wrapf(err, "transient: place %q at offset %d of block %d", d.Label, seg.Offset, seg.Block.id)
		}
	}

	slogger().Debug("transient: resources placed",
		"resources", len(decls),
		"aliases", len(out.Aliases),
		"blocks", blocksUsed)
	return out, nil
}
