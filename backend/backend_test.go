package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/gpucore"
)

type fakeBackend struct {
	name string
	err  error
}

func (b fakeBackend) Name() string { return b.name }

func (b fakeBackend) Open(gpucontext.DeviceProvider) (gpucore.Device, gpucore.Queue, error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	return nil, fakeQueue{}, nil
}

type fakeQueue struct{ gpucore.Queue }

func (fakeQueue) Type() gpucore.QueueType { return gpucore.QueueGraphics }

func register(t *testing.T, name string, err error) {
	t.Helper()
	Register(name, func() Backend { return fakeBackend{name: name, err: err} })
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistryRegisterAndGet(t *testing.T) {
	register(t, "test-get", nil)

	if !IsRegistered("test-get") {
		t.Error("test-get should be registered")
	}
	b := Get("test-get")
	if b == nil {
		t.Fatal("Get(test-get) returned nil")
	}
	if b.Name() != "test-get" {
		t.Errorf("Get(test-get).Name() = %q, want %q", b.Name(), "test-get")
	}
	if !slices.Contains(Available(), "test-get") {
		t.Error("Available() should include 'test-get'")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	if b := Get("nonexistent"); b != nil {
		t.Error("Get(nonexistent) should return nil")
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-unregister", func() Backend { return fakeBackend{name: "test-unregister"} })
	Unregister("test-unregister")
	if IsRegistered("test-unregister") {
		t.Error("test-unregister should not be registered after Unregister")
	}
}

func TestRegistryDefaultPriority(t *testing.T) {
	register(t, "zzz-other", nil)
	register(t, BackendRecording, nil)

	b := Default()
	if b == nil {
		t.Fatal("Default() returned nil")
	}
	if b.Name() != BackendRecording {
		t.Errorf("Default().Name() = %q, want %q", b.Name(), BackendRecording)
	}

	register(t, BackendWGPU, nil)
	if got := MustDefault().Name(); got != BackendWGPU {
		t.Errorf("MustDefault().Name() = %q, want %q", got, BackendWGPU)
	}
}

func TestOpen(t *testing.T) {
	openErr := errors.New("no adapter")
	register(t, "test-ok", nil)
	register(t, "test-fail", openErr)

	tests := []struct {
		name    string
		backend string
		wantErr error
	}{
		{"registered", "test-ok", nil},
		{"open error", "test-fail", openErr},
		{"unknown", "test-missing", ErrBackendNotAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, q, err := Open(tt.backend, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Open(%q) error = %v, want %v", tt.backend, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q) error = %v", tt.backend, err)
			}
			if q.Type() != gpucore.QueueGraphics {
				t.Errorf("queue type = %v, want %v", q.Type(), gpucore.QueueGraphics)
			}
		})
	}
}
