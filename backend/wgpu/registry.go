package wgpu

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func slogger() *slog.Logger { return loggerPtr.Load() }

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
	backend.OnSetLogger(func(l *slog.Logger) {
		loggerPtr.Store(l)
		hal.SetLogger(l)
	})
	backend.Register(backend.BackendWGPU, func() backend.Backend {
		return Backend{}
	})
}

// Backend opens hal devices through the backend registry.
type Backend struct {
	// Config is passed to Open or NewFromProvider.
	Config Config
}

// Name implements backend.Backend.
func (Backend) Name() string { return backend.BackendWGPU }

// Open implements backend.Backend. With a provider the device wraps the
// provider's hal device; otherwise a new device is opened.
func (b Backend) Open(provider gpucontext.DeviceProvider) (gpucore.Device, gpucore.Queue, error) {
	var (
		d   *Device
		err error
	)
	if provider != nil {
		d, err = NewFromProvider(provider, b.Config)
	} else {
		d, err = Open(b.Config)
	}
	if err != nil {
		return nil, nil, err
	}
	return d, d.Queue(), nil
}
