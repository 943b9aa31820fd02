package wgpu

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

type cbState uint8

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbSubmitted
	cbDiscarded
)

// CommandBuffer is a gpucore.CommandBuffer recording into a hal command
// encoder. Pass callbacks reach the encoder through Encoder to record
// their own work:
//
//	cb := pc.CommandBuffer().(*wgpu.CommandBuffer)
//	rp := cb.Encoder().BeginRenderPass(desc)
type CommandBuffer struct {
	device  *Device
	queue   *Queue
	encoder hal.CommandEncoder

	mu     sync.Mutex
	state  cbState
	halCB  hal.CommandBuffer
	events []string
}

// Encoder returns the hal command encoder. It is only valid between Begin
// and End.
func (c *CommandBuffer) Encoder() hal.CommandEncoder { return c.encoder }

// Begin implements gpucore.CommandBuffer.
func (c *CommandBuffer) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cbInitial {
		return errors.Newf("wgpu: Begin on command buffer in state %d", c.state)
	}
	if err := c.encoder.BeginEncoding(c.device.cfg.Label); err != nil {
		return errors.Wrap(err, "wgpu: begin encoding")
	}
	c.state = cbRecording
	return nil
}

// End implements gpucore.CommandBuffer.
func (c *CommandBuffer) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cbRecording {
		return errors.New("wgpu: End on command buffer that is not recording")
	}
	if len(c.events) != 0 {
		return errors.Newf("wgpu: command buffer ended with %d open debug events", len(c.events))
	}
	halCB, err := c.encoder.EndEncoding()
	if err != nil {
		return errors.Wrap(err, "wgpu: end encoding")
	}
	c.halCB = halCB
	c.state = cbExecutable
	return nil
}

// Discard implements gpucore.CommandBuffer.
func (c *CommandBuffer) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cbRecording:
		c.encoder.DiscardEncoding()
	case cbExecutable:
		c.device.hal.FreeCommandBuffer(c.halCB)
		c.halCB = nil
	case cbSubmitted, cbDiscarded:
		return
	}
	c.encoder.Destroy()
	c.state = cbDiscarded
}

func (c *CommandBuffer) submit() (hal.CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cbExecutable {
		return nil, errors.Newf("wgpu: submit of command buffer in state %d", c.state)
	}
	c.state = cbSubmitted
	return c.halCB, nil
}

// release frees the hal objects once the GPU is done with them.
func (c *CommandBuffer) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halCB != nil {
		c.device.hal.FreeCommandBuffer(c.halCB)
		c.halCB = nil
	}
	c.encoder.Destroy()
}

// ExecuteBarriers implements gpucore.CommandBuffer.
func (c *CommandBuffer) ExecuteBarriers(global *gpucore.GlobalBarrier, textures []gpucore.TextureBarrier, buffers []gpucore.BufferBarrier) {
	if global != nil {
		slogger().Debug("wgpu: global barrier dropped",
			"before", global.BeforeStages, "after", global.AfterStages)
	}
	if len(buffers) > 0 {
		hb := make([]hal.BufferBarrier, 0, len(buffers))
		for _, b := range buffers {
			buf, ok := b.Buffer.(*Buffer)
			if !ok {
				slogger().Warn("wgpu: barrier on foreign buffer skipped", "label", labelOf(b.Buffer))
				continue
			}
			hb = append(hb, hal.BufferBarrier{
				Buffer: buf.hal,
				Usage: hal.BufferUsageTransition{
					OldUsage: accessUsage(b.BeforeAccesses, buf.desc.Usage),
					NewUsage: accessUsage(b.AfterAccesses, buf.desc.Usage),
				},
			})
		}
		if len(hb) > 0 {
			c.encoder.TransitionBuffers(hb)
		}
	}
	if len(textures) > 0 {
		tb := make([]hal.TextureBarrier, 0, len(textures))
		for _, b := range textures {
			if b.AfterLayout == gpucore.LayoutPresent {
				continue
			}
			tex, ok := b.Texture.(*Texture)
			if !ok {
				slogger().Warn("wgpu: barrier on foreign texture skipped", "label", labelOf(b.Texture))
				continue
			}
			tb = append(tb, hal.TextureBarrier{
				Texture: tex.hal,
				Range:   textureRange(b.Range),
				Usage: hal.TextureUsageTransition{
					OldUsage: layoutUsage(b.BeforeLayout),
					NewUsage: layoutUsage(b.AfterLayout),
				},
			})
		}
		if len(tb) > 0 {
			c.encoder.TransitionTextures(tb)
		}
	}
}

// BeginDebugEvent implements gpucore.CommandBuffer. The hal encoder has no
// debug groups, so events are only logged.
func (c *CommandBuffer) BeginDebugEvent(name string) {
	c.mu.Lock()
	c.events = append(c.events, name)
	depth := len(c.events)
	c.mu.Unlock()
	slogger().Debug("wgpu: debug event", "name", name, "depth", depth)
}

// EndDebugEvent implements gpucore.CommandBuffer.
func (c *CommandBuffer) EndDebugEvent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		panic(errors.AssertionFailedf("wgpu: EndDebugEvent without BeginDebugEvent"))
	}
	c.events = c.events[:len(c.events)-1]
}

func labelOf(obj interface{ Label() string }) string {
	if obj == nil {
		return "<nil>"
	}
	return obj.Label()
}
