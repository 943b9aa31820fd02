package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

// layoutUsage maps a texture layout to the hal usage that keeps a texture
// in that layout.
func layoutUsage(l gpucore.TextureLayout) gputypes.TextureUsage {
	switch l {
	case gpucore.LayoutColorAttachment,
		gpucore.LayoutDepthStencilAttachment,
		gpucore.LayoutDepthStencilReadOnlyAttachment,
		gpucore.LayoutResolveSrc,
		gpucore.LayoutResolveDst:
		return gputypes.TextureUsageRenderAttachment
	case gpucore.LayoutShaderTexture:
		return gputypes.TextureUsageTextureBinding
	case gpucore.LayoutShaderRWTexture:
		return gputypes.TextureUsageStorageBinding
	case gpucore.LayoutCopySrc:
		return gputypes.TextureUsageCopySrc
	case gpucore.LayoutCopyDst, gpucore.LayoutClearDst:
		return gputypes.TextureUsageCopyDst
	default:
		// Undefined and Present.
		return gputypes.TextureUsageNone
	}
}

var bufferAccessUsages = []struct {
	access gpucore.ResourceAccess
	usage  gputypes.BufferUsage
}{
	{gpucore.AccessVertexBufferRead, gputypes.BufferUsageVertex},
	{gpucore.AccessIndexBufferRead, gputypes.BufferUsageIndex},
	{gpucore.AccessConstantBufferRead, gputypes.BufferUsageUniform},
	{gpucore.AccessBufferRead | gpucore.AccessStructuredBufferRead, gputypes.BufferUsageStorage},
	{gpucore.AccessRWBufferRead | gpucore.AccessRWBufferWrite |
		gpucore.AccessRWStructuredBufferRead | gpucore.AccessRWStructuredBufferWrite, gputypes.BufferUsageStorage},
	{gpucore.AccessCopyRead, gputypes.BufferUsageCopySrc},
	{gpucore.AccessCopyWrite, gputypes.BufferUsageCopyDst},
	{gpucore.AccessIndirectCommandRead, gputypes.BufferUsageIndirect},
}

// accessUsage maps buffer accesses to hal buffer usages. AccessAll stands
// for every usage the buffer was created with.
func accessUsage(a gpucore.ResourceAccess, created gputypes.BufferUsage) gputypes.BufferUsage {
	if a&gpucore.AccessAll != 0 {
		return created
	}
	var u gputypes.BufferUsage
	for _, m := range bufferAccessUsages {
		if a&m.access != 0 {
			u |= m.usage
		}
	}
	return u
}

func textureRange(r gpucore.SubresourceRange) hal.TextureRange {
	return hal.TextureRange{
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    r.BaseMip,
		MipLevelCount:   r.MipCount,
		BaseArrayLayer:  r.BaseLayer,
		ArrayLayerCount: r.LayerCount,
	}
}

func textureDescriptor(desc gpucore.TextureDesc, label string) *hal.TextureDescriptor {
	desc = desc.Normalized()
	return &hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.ArraySize,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage,
	}
}
