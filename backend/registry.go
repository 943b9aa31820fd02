package backend

import (
	"github.com/gogpu/gpucontext"
)

// BackendFactory creates a backend on lookup.
type BackendFactory func() Backend

// Devices on real hardware win over the recording device when both are
// linked in.
var backends = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority(BackendWGPU, BackendRecording),
)

// Register adds factory under name, replacing an earlier registration.
// Backend packages call it from init.
func Register(name string, factory BackendFactory) {
	backends.Register(name, factory)
}

// Unregister removes name from the registry.
func Unregister(name string) {
	backends.Unregister(name)
}

// Available lists the registered backend names.
func Available() []string {
	return backends.Available()
}

// IsRegistered reports whether name is registered.
func IsRegistered(name string) bool {
	return backends.Has(name)
}

// Get returns the backend registered under name, or nil.
func Get(name string) Backend {
	return backends.Get(name)
}

// Default returns the registered backend with the highest priority: wgpu,
// then recording, then the rest in registration order. It returns nil when
// nothing is registered.
func Default() Backend {
	return backends.Best()
}

// MustDefault is like Default but panics when no backend is registered.
func MustDefault() Backend {
	b := Default()
	if b == nil {
		panic("backend: no device backend linked in; import backend/wgpu or recording")
	}
	return b
}
