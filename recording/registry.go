package recording

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

func init() {
	backend.Register(backend.BackendRecording, func() backend.Backend {
		return Backend{}
	})
}

// Backend opens recording devices through the backend registry.
type Backend struct {
	// Config is passed to NewDevice.
	Config Config
}

// Name implements backend.Backend.
func (Backend) Name() string { return backend.BackendRecording }

// Open implements backend.Backend. The provider is ignored and may be nil.
func (b Backend) Open(gpucontext.DeviceProvider) (gpucore.Device, gpucore.Queue, error) {
	d := NewDevice(b.Config)
	return d, d.Queue(), nil
}
