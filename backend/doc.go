// Package backend provides a pluggable registry of gpucore device backends.
//
// A backend turns an optional gpucontext.DeviceProvider into a
// gpucore.Device and its graphics queue. Two backends ship with this
// module:
//
//   - wgpu (package backend/wgpu): wraps a HAL device from gogpu/wgpu
//   - recording (package recording): records every submission in memory
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/framegraph/backend/wgpu"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b := backend.Default()
//	dev, queue, err := b.Open(provider)
//
// Open combines lookup and opening:
//
//	dev, queue, err := backend.Open("recording", nil)
package backend
