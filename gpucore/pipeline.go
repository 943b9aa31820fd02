package gpucore

import "strings"

// PipelineStage is a bit set of GPU pipeline stages that access a resource.
type PipelineStage uint32

// Pipeline stages.
const (
	// StageNone is the empty stage set.
	StageNone PipelineStage = 0

	// StageVertexInput reads vertex buffers.
	StageVertexInput PipelineStage = 1 << 0

	// StageIndexInput reads index buffers.
	StageIndexInput PipelineStage = 1 << 1

	// StageVertexShader is the vertex shader stage.
	StageVertexShader PipelineStage = 1 << 2

	// StageFragmentShader is the fragment (pixel) shader stage.
	StageFragmentShader PipelineStage = 1 << 3

	// StageComputeShader is the compute shader stage.
	StageComputeShader PipelineStage = 1 << 4

	// StageRayTracingShader covers every ray tracing shader stage.
	StageRayTracingShader PipelineStage = 1 << 5

	// StageDepthStencil covers early and late depth/stencil tests.
	StageDepthStencil PipelineStage = 1 << 6

	// StageRenderTarget is color attachment output.
	StageRenderTarget PipelineStage = 1 << 7

	// StageCopy is transfer work.
	StageCopy PipelineStage = 1 << 8

	// StageClear is clear commands outside a render pass.
	StageClear PipelineStage = 1 << 9

	// StageResolve is multisample resolve.
	StageResolve PipelineStage = 1 << 10

	// StageBuildAS builds acceleration structures.
	StageBuildAS PipelineStage = 1 << 11

	// StageCopyAS copies acceleration structures.
	StageCopyAS PipelineStage = 1 << 12

	// StageIndirectCommand reads indirect arguments.
	StageIndirectCommand PipelineStage = 1 << 13

	// StageAll stands for every stage.
	StageAll PipelineStage = 1 << 14
)

var stageNames = []string{
	"VertexInput", "IndexInput", "VertexShader", "FragmentShader", "ComputeShader",
	"RayTracingShader", "DepthStencil", "RenderTarget", "Copy", "Clear", "Resolve",
	"BuildAS", "CopyAS", "IndirectCommand", "All",
}

// String returns the stage names joined by '|'.
func (s PipelineStage) String() string {
	return flagString(uint32(s), stageNames)
}

// ResourceAccess is a bit set of memory access kinds.
type ResourceAccess uint32

// Resource accesses.
const (
	AccessNone                    ResourceAccess = 0
	AccessVertexBufferRead        ResourceAccess = 1 << 0
	AccessIndexBufferRead         ResourceAccess = 1 << 1
	AccessConstantBufferRead      ResourceAccess = 1 << 2
	AccessRenderTargetRead        ResourceAccess = 1 << 3
	AccessRenderTargetWrite       ResourceAccess = 1 << 4
	AccessDepthStencilRead        ResourceAccess = 1 << 5
	AccessDepthStencilWrite       ResourceAccess = 1 << 6
	AccessTextureRead             ResourceAccess = 1 << 7
	AccessRWTextureRead           ResourceAccess = 1 << 8
	AccessRWTextureWrite          ResourceAccess = 1 << 9
	AccessBufferRead              ResourceAccess = 1 << 10
	AccessStructuredBufferRead    ResourceAccess = 1 << 11
	AccessRWBufferRead            ResourceAccess = 1 << 12
	AccessRWBufferWrite           ResourceAccess = 1 << 13
	AccessRWStructuredBufferRead  ResourceAccess = 1 << 14
	AccessRWStructuredBufferWrite ResourceAccess = 1 << 15
	AccessCopyRead                ResourceAccess = 1 << 16
	AccessCopyWrite               ResourceAccess = 1 << 17
	AccessResolveRead             ResourceAccess = 1 << 18
	AccessResolveWrite            ResourceAccess = 1 << 19
	AccessClearColorWrite         ResourceAccess = 1 << 20
	AccessClearDepthStencilWrite  ResourceAccess = 1 << 21
	AccessReadAS                  ResourceAccess = 1 << 22
	AccessWriteAS                 ResourceAccess = 1 << 23
	AccessBuildASScratch          ResourceAccess = 1 << 24
	AccessReadSBT                 ResourceAccess = 1 << 25
	AccessReadForBuildAS          ResourceAccess = 1 << 26
	AccessIndirectCommandRead     ResourceAccess = 1 << 27
	AccessAll                     ResourceAccess = 1 << 28
)

const (
	writeAccesses = AccessRenderTargetWrite | AccessDepthStencilWrite | AccessRWTextureWrite |
		AccessRWBufferWrite | AccessRWStructuredBufferWrite | AccessCopyWrite | AccessResolveWrite |
		AccessClearColorWrite | AccessClearDepthStencilWrite | AccessWriteAS | AccessBuildASScratch |
		AccessAll

	readAccesses = AccessVertexBufferRead | AccessIndexBufferRead | AccessConstantBufferRead |
		AccessRenderTargetRead | AccessDepthStencilRead | AccessTextureRead | AccessRWTextureRead |
		AccessBufferRead | AccessStructuredBufferRead | AccessRWBufferRead | AccessRWStructuredBufferRead |
		AccessCopyRead | AccessResolveRead | AccessReadAS | AccessBuildASScratch | AccessReadSBT |
		AccessReadForBuildAS | AccessIndirectCommandRead | AccessAll

	uavAccesses = AccessRWTextureRead | AccessRWTextureWrite | AccessRWBufferRead |
		AccessRWBufferWrite | AccessRWStructuredBufferRead | AccessRWStructuredBufferWrite

	// RenderTargetAccesses are the accesses ordered by the output merger.
	RenderTargetAccesses = AccessRenderTargetRead | AccessRenderTargetWrite
)

// IsReadOnly reports whether a contains no write access. The empty set is read-only.
func (a ResourceAccess) IsReadOnly() bool { return a&writeAccesses == 0 }

// IsWriteOnly reports whether a contains no read access. The empty set is write-only.
func (a ResourceAccess) IsWriteOnly() bool { return a&readAccesses == 0 }

// HasUAVAccess reports whether a contains an unordered-access (storage) read or write.
func (a ResourceAccess) HasUAVAccess() bool { return a&uavAccesses != 0 }

// IsUAVOnly reports whether a is non-empty and every access in it is unordered.
func (a ResourceAccess) IsUAVOnly() bool { return a != 0 && a&^uavAccesses == 0 }

// Within reports whether every bit of a is also set in mask.
func (a ResourceAccess) Within(mask ResourceAccess) bool { return a&^mask == 0 }

var accessNames = []string{
	"VertexBufferRead", "IndexBufferRead", "ConstantBufferRead", "RenderTargetRead",
	"RenderTargetWrite", "DepthStencilRead", "DepthStencilWrite", "TextureRead",
	"RWTextureRead", "RWTextureWrite", "BufferRead", "StructuredBufferRead",
	"RWBufferRead", "RWBufferWrite", "RWStructuredBufferRead", "RWStructuredBufferWrite",
	"CopyRead", "CopyWrite", "ResolveRead", "ResolveWrite", "ClearColorWrite",
	"ClearDepthStencilWrite", "ReadAS", "WriteAS", "BuildASScratch", "ReadSBT",
	"ReadForBuildAS", "IndirectCommandRead", "All",
}

// String returns the access names joined by '|'.
func (a ResourceAccess) String() string {
	return flagString(uint32(a), accessNames)
}

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var sb strings.Builder
	for i, name := range names {
		if v&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	return sb.String()
}
