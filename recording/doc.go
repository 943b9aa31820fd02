// Package recording provides a gpucore device that performs no GPU work and
// records every command buffer and submission for inspection.
//
// It serves two purposes: tests of the frame graph compiler assert on the
// exact barriers and sync points it produces, and tools such as fgdemo
// print the execution plan of a graph without a GPU.
//
// # Architecture
//
// The package follows a Command Pattern:
//
//   - Recorder: a gpucore.CommandBuffer that stores calls as Commands
//   - Submission: one Queue.Submit call with its recorded commands
//   - Device: creates resources and tracks them in a ResourcePool
//
// # Basic Usage
//
//	dev := recording.NewDevice(recording.Config{})
//	cb, _ := dev.CreateCommandBuffer(dev.Queue())
//	_ = cb.Begin()
//	cb.ExecuteBarriers(nil, textureBarriers, nil)
//	_ = cb.End()
//	_ = dev.Queue().Submit(gpucore.SubmitInfo{CommandBuffer: cb})
//
//	for _, s := range dev.Submissions() {
//	    for _, b := range s.Barriers() {
//	        fmt.Print(b)
//	    }
//	}
//
// # GPU Completion
//
// Submitted work is never executed. A submission counts as finished once a
// fence attached to it is waited on or its queue is waited idle, so
// session-based resource recycling behaves as on a real device.
//
// # Backend Registration
//
// Importing the package registers the "recording" backend:
//
//	import _ "github.com/gogpu/framegraph/recording"
//
//	dev, queue, _ := backend.Open(backend.BackendRecording, nil)
//
// # Thread Safety
//
// Device, Queue, Fence, and Recorder are safe for concurrent use.
package recording
