package framegraph

import "github.com/gogpu/framegraph/gpucore"

// Predefined usage declarations. Combine declarations of the same layout
// with [gpucore.UseInfo.Or].
var (
	ColorAttachment = gpucore.UseInfo{
		Layout:   gpucore.LayoutColorAttachment,
		Stages:   gpucore.StageRenderTarget,
		Accesses: gpucore.AccessRenderTargetRead | gpucore.AccessRenderTargetWrite,
	}
	ColorAttachmentReadOnly = gpucore.UseInfo{
		Layout:   gpucore.LayoutColorAttachment,
		Stages:   gpucore.StageRenderTarget,
		Accesses: gpucore.AccessRenderTargetRead,
	}
	ColorAttachmentWriteOnly = gpucore.UseInfo{
		Layout:   gpucore.LayoutColorAttachment,
		Stages:   gpucore.StageRenderTarget,
		Accesses: gpucore.AccessRenderTargetWrite,
	}
	DepthStencilAttachment = gpucore.UseInfo{
		Layout:   gpucore.LayoutDepthStencilAttachment,
		Stages:   gpucore.StageDepthStencil,
		Accesses: gpucore.AccessDepthStencilRead | gpucore.AccessDepthStencilWrite,
	}
	DepthStencilAttachmentWriteOnly = gpucore.UseInfo{
		Layout:   gpucore.LayoutDepthStencilAttachment,
		Stages:   gpucore.StageDepthStencil,
		Accesses: gpucore.AccessDepthStencilWrite,
	}
	DepthStencilAttachmentReadOnly = gpucore.UseInfo{
		Layout:   gpucore.LayoutDepthStencilReadOnlyAttachment,
		Stages:   gpucore.StageDepthStencil,
		Accesses: gpucore.AccessDepthStencilRead,
	}
	ClearColor = gpucore.UseInfo{
		Layout:   gpucore.LayoutClearDst,
		Stages:   gpucore.StageClear,
		Accesses: gpucore.AccessClearColorWrite,
	}
	ClearDepthStencil = gpucore.UseInfo{
		Layout:   gpucore.LayoutClearDst,
		Stages:   gpucore.StageClear,
		Accesses: gpucore.AccessClearDepthStencilWrite,
	}

	// PSTexture is a sampled texture read by fragment shaders.
	PSTexture = gpucore.UseInfo{
		Layout:   gpucore.LayoutShaderTexture,
		Stages:   gpucore.StageFragmentShader,
		Accesses: gpucore.AccessTextureRead,
	}
	CSTexture = gpucore.UseInfo{
		Layout:   gpucore.LayoutShaderTexture,
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessTextureRead,
	}
	CSRWTexture = gpucore.UseInfo{
		Layout:   gpucore.LayoutShaderRWTexture,
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessRWTextureRead | gpucore.AccessRWTextureWrite,
	}
	CSRWTextureWriteOnly = gpucore.UseInfo{
		Layout:   gpucore.LayoutShaderRWTexture,
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessRWTextureWrite,
	}

	PSConstantBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageVertexShader | gpucore.StageFragmentShader,
		Accesses: gpucore.AccessConstantBufferRead,
	}
	VertexBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageVertexInput,
		Accesses: gpucore.AccessVertexBufferRead,
	}
	IndexBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageIndexInput,
		Accesses: gpucore.AccessIndexBufferRead,
	}
	CSBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessBufferRead,
	}
	CSRWBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessRWBufferRead | gpucore.AccessRWBufferWrite,
	}
	CSRWBufferWriteOnly = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessRWBufferWrite,
	}
	CSStructuredBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessStructuredBufferRead,
	}
	CSRWStructuredBuffer = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessRWStructuredBufferRead | gpucore.AccessRWStructuredBufferWrite,
	}
	CSRWStructuredBufferWriteOnly = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessRWStructuredBufferWrite,
	}

	// CopyDst and CopySrc apply to both buffers and textures. The layout is
	// ignored for buffers.
	CopyDst = gpucore.UseInfo{
		Layout:   gpucore.LayoutCopyDst,
		Stages:   gpucore.StageCopy,
		Accesses: gpucore.AccessCopyWrite,
	}
	CopySrc = gpucore.UseInfo{
		Layout:   gpucore.LayoutCopySrc,
		Stages:   gpucore.StageCopy,
		Accesses: gpucore.AccessCopyRead,
	}
	ResolveSrc = gpucore.UseInfo{
		Layout:   gpucore.LayoutResolveSrc,
		Stages:   gpucore.StageResolve,
		Accesses: gpucore.AccessResolveRead,
	}
	ResolveDst = gpucore.UseInfo{
		Layout:   gpucore.LayoutResolveDst,
		Stages:   gpucore.StageResolve,
		Accesses: gpucore.AccessResolveWrite,
	}

	BuildASOutput = gpucore.UseInfo{
		Stages:   gpucore.StageBuildAS,
		Accesses: gpucore.AccessWriteAS,
	}
	BuildASScratch = gpucore.UseInfo{
		Stages:   gpucore.StageBuildAS,
		Accesses: gpucore.AccessBuildASScratch,
	}
	CSReadAS = gpucore.UseInfo{
		Stages:   gpucore.StageComputeShader,
		Accesses: gpucore.AccessReadAS,
	}
	IndirectDispatchRead = gpucore.UseInfo{
		Stages:   gpucore.StageIndirectCommand,
		Accesses: gpucore.AccessIndirectCommandRead,
	}
)
