package gpucore

import (
	"testing"

	"github.com/gogpu/gputypes"
)

// TestAccessPredicates tests read/write/UAV classification of access sets.
func TestAccessPredicates(t *testing.T) {
	tests := []struct {
		name      string
		a         ResourceAccess
		readOnly  bool
		writeOnly bool
		hasUAV    bool
		uavOnly   bool
	}{
		{"none", AccessNone, true, true, false, false},
		{"texture read", AccessTextureRead, true, false, false, false},
		{"render target", AccessRenderTargetRead | AccessRenderTargetWrite, false, false, false, false},
		{"clear", AccessClearColorWrite, false, true, false, false},
		{"rw texture", AccessRWTextureRead | AccessRWTextureWrite, false, false, true, true},
		{"rw buffer write", AccessRWBufferWrite, false, true, true, true},
		{"uav and copy", AccessRWBufferRead | AccessCopyRead, true, false, true, false},
		{"scratch reads and writes", AccessBuildASScratch, false, false, false, false},
		{"all", AccessAll, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.IsReadOnly(); got != tt.readOnly {
				t.Errorf("IsReadOnly() = %v, want %v", got, tt.readOnly)
			}
			if got := tt.a.IsWriteOnly(); got != tt.writeOnly {
				t.Errorf("IsWriteOnly() = %v, want %v", got, tt.writeOnly)
			}
			if got := tt.a.HasUAVAccess(); got != tt.hasUAV {
				t.Errorf("HasUAVAccess() = %v, want %v", got, tt.hasUAV)
			}
			if got := tt.a.IsUAVOnly(); got != tt.uavOnly {
				t.Errorf("IsUAVOnly() = %v, want %v", got, tt.uavOnly)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	if !(AccessRenderTargetRead).Within(RenderTargetAccesses) {
		t.Error("RenderTargetRead should be within RenderTargetAccesses")
	}
	if (AccessRenderTargetWrite | AccessTextureRead).Within(RenderTargetAccesses) {
		t.Error("TextureRead should not be within RenderTargetAccesses")
	}
	if !AccessNone.Within(AccessNone) {
		t.Error("None should be within None")
	}
}

func TestFlagStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StageNone.String(), "None"},
		{(StageFragmentShader | StageComputeShader).String(), "FragmentShader|ComputeShader"},
		{StageAll.String(), "All"},
		{AccessNone.String(), "None"},
		{(AccessCopyRead | AccessTextureRead).String(), "TextureRead|CopyRead"},
		{AccessAll.String(), "All"},
		{LayoutPresent.String(), "Present"},
		{TextureLayout(99).String(), "Unknown(99)"},
		{HeapRTDSTexture.String(), "RTDSTexture"},
		{AlignMSAA.String(), "MSAA"},
		{QueueCompute.String(), "Compute"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestUseInfoOr(t *testing.T) {
	a := UseInfo{Layout: LayoutShaderTexture, Stages: StageFragmentShader, Accesses: AccessTextureRead}
	b := UseInfo{Layout: LayoutShaderTexture, Stages: StageComputeShader, Accesses: AccessTextureRead}
	got := a.Or(b)
	want := UseInfo{
		Layout:   LayoutShaderTexture,
		Stages:   StageFragmentShader | StageComputeShader,
		Accesses: AccessTextureRead,
	}
	if got != want {
		t.Errorf("Or() = %+v, want %+v", got, want)
	}
}

func TestGlobalBarrierMerge(t *testing.T) {
	g := GlobalBarrier{BeforeStages: StageCopy, BeforeAccesses: AccessCopyWrite}
	g.Merge(GlobalBarrier{
		BeforeStages: StageComputeShader, BeforeAccesses: AccessRWBufferWrite,
		AfterStages: StageFragmentShader, AfterAccesses: AccessBufferRead,
	})
	want := GlobalBarrier{
		BeforeStages:   StageCopy | StageComputeShader,
		BeforeAccesses: AccessCopyWrite | AccessRWBufferWrite,
		AfterStages:    StageFragmentShader,
		AfterAccesses:  AccessBufferRead,
	}
	if g != want {
		t.Errorf("Merge() = %+v, want %+v", g, want)
	}
}

func TestTextureDescNormalized(t *testing.T) {
	got := TextureDesc{Format: gputypes.TextureFormatRGBA8Unorm, Width: 16}.Normalized()
	want := TextureDesc{
		Dimension:   gputypes.TextureDimension2D,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Width:       16,
		Height:      1,
		ArraySize:   1,
		MipLevels:   1,
		SampleCount: 1,
	}
	if got != want {
		t.Errorf("Normalized() = %+v, want %+v", got, want)
	}
}

func TestHeapAlignmentBytes(t *testing.T) {
	if got := AlignRegular.Bytes(); got != 64<<10 {
		t.Errorf("AlignRegular.Bytes() = %d, want %d", got, 64<<10)
	}
	if got := AlignMSAA.Bytes(); got != 4<<20 {
		t.Errorf("AlignMSAA.Bytes() = %d, want %d", got, 4<<20)
	}
}

func TestTexelSize(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   uint32
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatRG8Unorm, 2},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatRGBA16Float, 8},
		{gputypes.TextureFormatRGBA32Float, 16},
		{gputypes.TextureFormatDepth32Float, 4},
	}
	for _, tt := range tests {
		if got := TexelSize(tt.format); got != tt.want {
			t.Errorf("TexelSize(%v) = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestEstimateTextureAllocation(t *testing.T) {
	tests := []struct {
		name string
		desc TextureDesc
		want AllocationInfo
	}{
		{
			name: "small texture rounds up to regular alignment",
			desc: TextureDesc{Format: gputypes.TextureFormatRGBA8Unorm, Width: 16, Height: 16},
			want: AllocationInfo{Size: 64 << 10, Alignment: 64 << 10},
		},
		{
			name: "mip chain",
			desc: TextureDesc{Format: gputypes.TextureFormatR8Unorm, Width: 512, Height: 512, MipLevels: 2},
			want: AllocationInfo{Size: 320 << 10, Alignment: 64 << 10},
		},
		{
			name: "multisampled uses MSAA alignment",
			desc: TextureDesc{Format: gputypes.TextureFormatRGBA8Unorm, Width: 64, Height: 64, SampleCount: 4},
			want: AllocationInfo{Size: 4 << 20, Alignment: 4 << 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTextureAllocation(tt.desc); got != tt.want {
				t.Errorf("EstimateTextureAllocation() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEstimateBufferAllocation(t *testing.T) {
	got := EstimateBufferAllocation(BufferDesc{Size: 1000})
	if got.Size != 1024 || got.Alignment != BufferPlacementAlignment {
		t.Errorf("EstimateBufferAllocation(1000) = %+v, want {1024 256}", got)
	}
}
