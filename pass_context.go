package framegraph

import (
	"context"

	"github.com/gogpu/framegraph/gpucore"
)

// PassContext is handed to a pass callback while its section is recorded.
type PassContext struct {
	ctx  context.Context
	cb   gpucore.CommandBuffer
	plan *Plan
	pass *Pass
}

// Context returns the context given to Execute.
func (pc *PassContext) Context() context.Context { return pc.ctx }

// CommandBuffer returns the command buffer of the current section. The
// barriers the pass needs have already been recorded into it.
func (pc *PassContext) CommandBuffer() gpucore.CommandBuffer { return pc.cb }

// Pass returns the pass being recorded.
func (pc *PassContext) Pass() *Pass { return pc.pass }

// Buffer returns the backend buffer of r. r must have been declared by the
// pass with UseBuffer.
func (pc *PassContext) Buffer(r *BufferResource) (gpucore.Buffer, error) {
	if _, ok := pc.pass.bufferIndex[r]; !ok {
		name := "<nil>"
		if r != nil {
			name = r.name
		}
		return nil, buildErrorf(ErrUndeclaredResource, "pass %q did not declare buffer %q", pc.pass.name, name)
	}
	return pc.plan.buffers[r.index].buffer, nil
}

// Texture returns the backend texture of r. r must have been declared by
// the pass with one of the UseTexture methods.
func (pc *PassContext) Texture(r *TextureResource) (gpucore.Texture, error) {
	if _, ok := pc.pass.textureIndex[r]; !ok {
		name := "<nil>"
		if r != nil {
			name = r.name
		}
		return nil, buildErrorf(ErrUndeclaredResource, "pass %q did not declare texture %q", pc.pass.name, name)
	}
	return pc.plan.textures[r.index].texture, nil
}
