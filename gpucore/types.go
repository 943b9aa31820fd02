package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// TextureLayout is the physical arrangement a texture subresource is kept in.
type TextureLayout uint8

// Texture layouts.
const (
	LayoutUndefined TextureLayout = iota
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnlyAttachment
	LayoutShaderTexture
	LayoutShaderRWTexture
	LayoutCopySrc
	LayoutCopyDst
	LayoutResolveSrc
	LayoutResolveDst
	LayoutClearDst
	LayoutPresent
)

var layoutNames = [...]string{
	"Undefined", "ColorAttachment", "DepthStencilAttachment", "DepthStencilReadOnlyAttachment",
	"ShaderTexture", "ShaderRWTexture", "CopySrc", "CopyDst", "ResolveSrc", "ResolveDst",
	"ClearDst", "Present",
}

// String returns the layout name.
func (l TextureLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Unknown(%d)", l)
}

// UseInfo declares how a pass uses a resource. Layout is ignored for buffers.
type UseInfo struct {
	Layout   TextureLayout
	Stages   PipelineStage
	Accesses ResourceAccess
}

// Or merges two declarations. Both must name the same layout.
func (u UseInfo) Or(o UseInfo) UseInfo {
	return UseInfo{Layout: u.Layout, Stages: u.Stages | o.Stages, Accesses: u.Accesses | o.Accesses}
}

// QueueSession identifies one submission batch of a queue. Sessions grow
// monotonically; a queue reports the newest session known to be finished
// on the GPU as its synchronized session.
type QueueSession int64

// InitialSession is the session of a state that has not been touched by any
// submission yet.
const InitialSession QueueSession = 0

// BufferState is the last known GPU state of a buffer.
type BufferState struct {
	Session  QueueSession
	Stages   PipelineStage
	Accesses ResourceAccess
}

// TextureState is the last known GPU state of one texture subresource.
type TextureState struct {
	Session  QueueSession
	Layout   TextureLayout
	Stages   PipelineStage
	Accesses ResourceAccess
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Dimension   gputypes.TextureDimension
	Format      gputypes.TextureFormat
	Width       uint32
	Height      uint32
	ArraySize   uint32
	MipLevels   uint32
	SampleCount uint32
	Usage       gputypes.TextureUsage
}

// Normalized returns d with zero counts replaced by one and an undefined
// dimension replaced by 2D.
func (d TextureDesc) Normalized() TextureDesc {
	if d.Dimension == gputypes.TextureDimensionUndefined {
		d.Dimension = gputypes.TextureDimension2D
	}
	if d.Height == 0 {
		d.Height = 1
	}
	if d.ArraySize == 0 {
		d.ArraySize = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// SubresourceRange selects mip levels and array layers of a texture.
type SubresourceRange struct {
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// TextureBarrier transitions a range of texture subresources.
type TextureBarrier struct {
	Texture        Texture
	Range          SubresourceRange
	BeforeStages   PipelineStage
	BeforeAccesses ResourceAccess
	BeforeLayout   TextureLayout
	AfterStages    PipelineStage
	AfterAccesses  ResourceAccess
	AfterLayout    TextureLayout
}

// BufferBarrier orders accesses to one buffer.
type BufferBarrier struct {
	Buffer         Buffer
	BeforeStages   PipelineStage
	BeforeAccesses ResourceAccess
	AfterStages    PipelineStage
	AfterAccesses  ResourceAccess
}

// GlobalBarrier orders memory accesses without naming a resource.
type GlobalBarrier struct {
	BeforeStages   PipelineStage
	BeforeAccesses ResourceAccess
	AfterStages    PipelineStage
	AfterAccesses  ResourceAccess
}

// Merge ORs o into g.
func (g *GlobalBarrier) Merge(o GlobalBarrier) {
	g.BeforeStages |= o.BeforeStages
	g.BeforeAccesses |= o.BeforeAccesses
	g.AfterStages |= o.AfterStages
	g.AfterAccesses |= o.AfterAccesses
}

// HeapCategory is the kind of resources a memory block may hold.
type HeapCategory uint8

// Heap categories.
const (
	// HeapBuffer holds buffers only.
	HeapBuffer HeapCategory = iota

	// HeapRTDSTexture holds textures usable as render target or depth/stencil.
	HeapRTDSTexture

	// HeapNonRTDSTexture holds all other textures.
	HeapNonRTDSTexture

	// HeapGeneral holds any resource. Only available when the device
	// reports Capabilities.GeneralHeap.
	HeapGeneral

	// HeapCategoryCount is the number of categories.
	HeapCategoryCount
)

// String returns the category name.
func (c HeapCategory) String() string {
	switch c {
	case HeapBuffer:
		return "Buffer"
	case HeapRTDSTexture:
		return "RTDSTexture"
	case HeapNonRTDSTexture:
		return "NonRTDSTexture"
	case HeapGeneral:
		return "General"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// HeapAlignment is the placement alignment class of a memory block.
type HeapAlignment uint8

// Alignment classes.
const (
	// AlignRegular is the alignment of non-multisampled resources.
	AlignRegular HeapAlignment = iota

	// AlignMSAA is the coarser alignment of multisampled textures. An
	// MSAA-aligned block is also regular-aligned.
	AlignMSAA

	// HeapAlignmentCount is the number of alignment classes.
	HeapAlignmentCount
)

// String returns the alignment class name.
func (a HeapAlignment) String() string {
	switch a {
	case AlignRegular:
		return "Regular"
	case AlignMSAA:
		return "MSAA"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// Bytes returns the placement alignment in bytes for the class.
func (a HeapAlignment) Bytes() uint64 {
	if a == AlignMSAA {
		return 4 << 20
	}
	return 64 << 10
}

// MemoryBlockDesc describes a memory block to create.
type MemoryBlockDesc struct {
	Category  HeapCategory
	Alignment HeapAlignment
	Size      uint64
}

// AllocationInfo is the size and alignment a resource needs when placed in
// a memory block.
type AllocationInfo struct {
	Size      uint64
	Alignment uint64
}

// TexelSize returns the size in bytes of one texel (or block) of format.
// Unknown formats report 4.
func TexelSize(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return 1
	case gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint, gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint:
		return 2
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint, gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint:
		return 8
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint, gputypes.TextureFormatRGBA32Sint:
		return 16
	case gputypes.TextureFormatDepth32FloatStencil8:
		return 8
	default:
		return 4
	}
}

// BufferPlacementAlignment is the granularity buffers are placed at by
// EstimateBufferAllocation.
const BufferPlacementAlignment = 256

// EstimateBufferAllocation returns the placement size of a buffer rounded
// up to BufferPlacementAlignment. Backends whose API does not report
// allocation requirements use it.
func EstimateBufferAllocation(desc BufferDesc) AllocationInfo {
	return AllocationInfo{Size: AlignUp(desc.Size, BufferPlacementAlignment), Alignment: BufferPlacementAlignment}
}

// EstimateTextureAllocation returns the placement size of a texture with
// its full mip chain, aligned to the texture's HeapAlignment class.
func EstimateTextureAllocation(desc TextureDesc) AllocationInfo {
	desc = desc.Normalized()
	texel := uint64(TexelSize(desc.Format))
	var size uint64
	for mip := uint32(0); mip < desc.MipLevels; mip++ {
		w := max(uint64(desc.Width>>mip), 1)
		h := max(uint64(desc.Height>>mip), 1)
		size += w * h * texel
	}
	size *= uint64(desc.ArraySize) * uint64(desc.SampleCount)

	class := AlignRegular
	if desc.SampleCount > 1 {
		class = AlignMSAA
	}
	alignment := class.Bytes()
	return AllocationInfo{Size: AlignUp(size, alignment), Alignment: alignment}
}

// AlignUp rounds v up to a multiple of alignment. A zero alignment leaves
// v unchanged.
func AlignUp(v, alignment uint64) uint64 {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}
