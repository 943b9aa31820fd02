package recording

import (
	"fmt"
	"strings"

	"github.com/gogpu/framegraph/gpucore"
)

// CommandType identifies the type of a recorded command.
type CommandType uint8

const (
	CmdBegin           CommandType = iota // Command buffer opened
	CmdEnd                                // Command buffer closed
	CmdDiscard                            // Command buffer abandoned
	CmdBarrier                            // ExecuteBarriers batch
	CmdBeginDebugEvent                    // Debug label pushed
	CmdEndDebugEvent                      // Debug label popped
	CmdMarker                             // Client work recorded by a pass callback
)

var commandTypeNames = [...]string{
	CmdBegin:           "Begin",
	CmdEnd:             "End",
	CmdDiscard:         "Discard",
	CmdBarrier:         "Barrier",
	CmdBeginDebugEvent: "BeginDebugEvent",
	CmdEndDebugEvent:   "EndDebugEvent",
	CmdMarker:          "Marker",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all recorded commands.
type Command interface {
	Type() CommandType
}

// BeginCommand marks CommandBuffer.Begin.
type BeginCommand struct{}

// Type implements Command.
func (BeginCommand) Type() CommandType { return CmdBegin }

// EndCommand marks CommandBuffer.End.
type EndCommand struct{}

// Type implements Command.
func (EndCommand) Type() CommandType { return CmdEnd }

// DiscardCommand marks CommandBuffer.Discard.
type DiscardCommand struct{}

// Type implements Command.
func (DiscardCommand) Type() CommandType { return CmdDiscard }

// BarrierCommand is one ExecuteBarriers call.
type BarrierCommand struct {
	Global   *gpucore.GlobalBarrier
	Textures []gpucore.TextureBarrier
	Buffers  []gpucore.BufferBarrier
}

// Type implements Command.
func (BarrierCommand) Type() CommandType { return CmdBarrier }

// Count returns the number of barriers in the batch, counting the global
// barrier as one.
func (c BarrierCommand) Count() int {
	n := len(c.Textures) + len(c.Buffers)
	if c.Global != nil {
		n++
	}
	return n
}

// String formats the batch one barrier per line.
func (c BarrierCommand) String() string {
	var sb strings.Builder
	if g := c.Global; g != nil {
		fmt.Fprintf(&sb, "global %s/%s -> %s/%s\n", g.BeforeStages, g.BeforeAccesses, g.AfterStages, g.AfterAccesses)
	}
	for _, b := range c.Buffers {
		fmt.Fprintf(&sb, "buffer %s %s/%s -> %s/%s\n", b.Buffer.Label(),
			b.BeforeStages, b.BeforeAccesses, b.AfterStages, b.AfterAccesses)
	}
	for _, b := range c.Textures {
		fmt.Fprintf(&sb, "texture %s[mip %d, layer %d] %s -> %s\n", b.Texture.Label(),
			b.Range.BaseMip, b.Range.BaseLayer, b.BeforeLayout, b.AfterLayout)
	}
	return sb.String()
}

// BeginDebugEventCommand pushes a debug label.
type BeginDebugEventCommand struct {
	Name string
}

// Type implements Command.
func (BeginDebugEventCommand) Type() CommandType { return CmdBeginDebugEvent }

// EndDebugEventCommand pops a debug label.
type EndDebugEventCommand struct{}

// Type implements Command.
func (EndDebugEventCommand) Type() CommandType { return CmdEndDebugEvent }

// MarkerCommand stands for client work recorded by a pass callback.
type MarkerCommand struct {
	Name string
}

// Type implements Command.
func (MarkerCommand) Type() CommandType { return CmdMarker }
