// Package gpucore defines the backend abstraction consumed by the frame graph.
//
// The frame graph never talks to a graphics API directly. It records barriers
// and debug labels through [CommandBuffer], submits through [Queue], and
// creates memory blocks, placed resources, fences and semaphores through
// [Device]. Backends implement these interfaces once:
//
//	           +-------------------+
//	           |     framegraph    |
//	           | (compile/execute) |
//	           +---------+---------+
//	                     |
//	              +------v------+
//	              |   gpucore   |
//	              +------+------+
//	                     |
//	      +--------------+--------------+
//	      |                             |
//	+-----v---------+          +--------v-------+
//	| backend/wgpu  |          |   recording    |
//	| (hal.Device)  |          | (in-memory log)|
//	+---------------+          +----------------+
//
// # States
//
// Resource state is tracked as pipeline stages, access masks and, for
// textures, a [TextureLayout] per subresource. [BufferState] and
// [TextureState] also carry the [QueueSession] of the submission that last
// touched the resource, so states older than the queue's synchronized session
// can be treated as idle.
//
// # Access predicates
//
// [ResourceAccess.IsReadOnly], [ResourceAccess.IsWriteOnly],
// [ResourceAccess.HasUAVAccess] and [ResourceAccess.IsUAVOnly] drive hazard
// detection and barrier pruning. The empty access set counts as both
// read-only and write-only.
//
// # Heaps
//
// Transient memory is bucketed by [HeapCategory] and [HeapAlignment]. A
// device that reports [Capabilities.GeneralHeap] lets every resource kind
// share [HeapGeneral] blocks.
package gpucore
