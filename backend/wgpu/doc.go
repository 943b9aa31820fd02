// Package wgpu implements the gpucore device interfaces on top of the
// gogpu/wgpu hardware abstraction layer (hal).
//
// Barriers recorded by the frame graph are translated into hal buffer and
// texture usage transitions, submissions go through hal.Queue.Submit, and
// fences are tracked with the submission indices the hal queue reports.
//
// # Opening a Device
//
// A device is either opened on its own:
//
//	import _ "github.com/gogpu/wgpu/hal/vulkan"
//
//	dev, err := wgpu.Open(wgpu.Config{})
//
// or wraps the hal device of a host application that implements
// HalDevice() and HalQueue():
//
//	dev, err := wgpu.NewFromProvider(provider, wgpu.Config{})
//
// Importing the package registers the "wgpu" backend, which is preferred
// by backend.Default.
//
// # Limitations
//
// The hal layer has no placed resources, so memory blocks only account for
// the memory the transient pool asks for and every placed resource gets its
// own hal allocation. Aliasing is therefore logical: the frame graph still
// orders aliased resources, but they do not share GPU memory.
//
// The hal layer exposes a single queue. Additional queues created with
// NewQueue share it, which makes every cross-queue semaphore wait hold by
// submission order. Global memory barriers are not expressible and are
// dropped; the device does not report Capabilities.GlobalBarrier.
//
// The hal surface performs the transition to and from the present layout
// itself, so texture barriers into LayoutPresent are not recorded and
// barriers out of it start from an undefined usage.
package wgpu
