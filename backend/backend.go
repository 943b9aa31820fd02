package backend

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/gpucore"
)

// ErrBackendNotAvailable is returned when a requested backend is not registered.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Backend names.
const (
	BackendWGPU      = "wgpu"
	BackendRecording = "recording"
)

// Backend opens gpucore devices.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "wgpu", "recording").
	Name() string

	// Open creates a device and its graphics queue. Backends that wrap an
	// existing GPU device take it from provider; others accept nil.
	Open(provider gpucontext.DeviceProvider) (gpucore.Device, gpucore.Queue, error)
}

// Open opens the named backend, or the default one if name is empty.
func Open(name string, provider gpucontext.DeviceProvider) (gpucore.Device, gpucore.Queue, error) {
	var b Backend
	if name == "" {
		b = Default()
	} else {
		b = Get(name)
	}
	if b == nil {
		if name == "" {
			return nil, nil, ErrBackendNotAvailable
		}
		return nil, nil, errors.Wrapf(ErrBackendNotAvailable, "%q (forgotten import?)", name)
	}
	dev, q, err := b.Open(provider)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "backend: open %s", b.Name())
	}
	slogger().Debug("backend: opened", "backend", b.Name(), "queue", q.Type())
	return dev, q, nil
}
