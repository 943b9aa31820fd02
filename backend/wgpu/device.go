package wgpu

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/hostsync"
)

// Device errors.
var (
	// ErrNoAdapter is returned by Open when no registered hal backend
	// exposes an adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter available")

	// ErrNotHALProvider is returned by NewFromProvider when the provider
	// does not expose its hal device and queue.
	ErrNotHALProvider = errors.New("wgpu: provider does not expose HAL types")

	// ErrOutOfMemory is returned when a memory block would exceed the budget.
	ErrOutOfMemory = errors.New("wgpu: memory budget exceeded")

	// ErrInvalidPlacement is returned when a placed resource does not fit
	// its memory block or is misaligned.
	ErrInvalidPlacement = errors.New("wgpu: invalid placement")

	// ErrForeignObject is returned when an object created by another
	// device is passed in.
	ErrForeignObject = errors.New("wgpu: object does not belong to this device")
)

// DefaultPollInterval is the default fence polling interval.
const DefaultPollInterval = 100 * time.Microsecond

// DefaultBackends is the hal backend preference used when Config.Backends
// is empty.
var DefaultBackends = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

// Config holds configuration for creating a Device.
type Config struct {
	// Label names the device in logs.
	Label string

	// Backends lists the hal backends Open tries, in order. The backends
	// must be registered, usually by a blank import of their hal package.
	// Defaults to DefaultBackends.
	Backends []gputypes.Backend

	// Capabilities are reported by Device.Capabilities, except that
	// GlobalBarrier is always false.
	Capabilities gpucore.Capabilities

	// MemoryBudget caps the total size of live memory blocks.
	// Zero means unlimited.
	MemoryBudget uint64

	// PollInterval is how often a fence wait polls the hal queue.
	// Defaults to DefaultPollInterval if <= 0.
	PollInterval time.Duration

	// Sync configures the device's host synchronizer.
	Sync hostsync.Config
}

// Device is a gpucore.Device over a hal device and its queue.
//
// Device is safe for concurrent use.
type Device struct {
	cfg      Config
	hal      hal.Device
	halQueue hal.Queue

	// instance is set when the device was opened by Open and is destroyed
	// with it.
	instance hal.Instance
	owned    bool

	sync  *hostsync.Synchronizer
	queue *Queue
	live  liveTracker

	// submitMu keeps hal submission indices in session order.
	submitMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Open creates a hal instance for the first configured backend that has an
// adapter, preferring discrete and integrated GPUs, and opens a device on it.
func Open(cfg Config) (*Device, error) {
	backends := cfg.Backends
	if len(backends) == 0 {
		backends = DefaultBackends
	}
	for _, variant := range backends {
		b, ok := hal.GetBackend(variant)
		if !ok {
			continue
		}
		instance, err := b.CreateInstance(&hal.InstanceDescriptor{})
		if err != nil {
			slogger().Debug("wgpu: create instance failed", "backend", variant, "err", err)
			continue
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			instance.Destroy()
			continue
		}
		selected := selectAdapter(adapters)
		open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return nil, errors.Wrapf(err, "wgpu: open %s", selected.Info.Name)
		}
		d := newDevice(open.Device, open.Queue, cfg)
		d.instance = instance
		d.owned = true
		slogger().Info("wgpu: device opened",
			"label", cfg.Label, "adapter", selected.Info.Name, "backend", variant)
		return d, nil
	}
	return nil, ErrNoAdapter
}

func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// NewFromHAL wraps an open hal device and queue. The caller keeps
// ownership: Close does not destroy them.
func NewFromHAL(device hal.Device, queue hal.Queue, cfg Config) *Device {
	return newDevice(device, queue, cfg)
}

// NewFromProvider wraps the hal device and queue of provider, which must
// implement HalDevice() any and HalQueue() any.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.Wrap(ErrNotHALProvider, "HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.Wrap(ErrNotHALProvider, "HalQueue is not hal.Queue")
	}
	slogger().Debug("wgpu: using shared device", "label", cfg.Label)
	return newDevice(device, queue, cfg), nil
}

func newDevice(device hal.Device, queue hal.Queue, cfg Config) *Device {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	cfg.Capabilities.GlobalBarrier = false
	d := &Device{cfg: cfg, hal: device, halQueue: queue}
	d.queue = d.NewQueue(gpucore.QueueGraphics)
	d.sync = hostsync.New(d, d.queue, cfg.Sync)
	return d
}

// HAL returns the hal device.
func (d *Device) HAL() hal.Device { return d.hal }

// Queue returns the device's graphics queue.
func (d *Device) Queue() *Queue { return d.queue }

// NewQueue creates an additional queue of type t on the shared hal queue.
func (d *Device) NewQueue(t gpucore.QueueType) *Queue {
	return &Queue{device: d, typ: t}
}

// Synchronizer returns the host synchronizer behind OnFrameComplete.
func (d *Device) Synchronizer() *hostsync.Synchronizer { return d.sync }

// Live returns the number of live objects.
func (d *Device) Live() LiveCounts { return d.live.get() }

// WaitIdle waits for all submitted work and runs every pending frame
// completion callback.
func (d *Device) WaitIdle() error { return d.sync.WaitIdle() }

// Close waits for the GPU to go idle and stops the host synchronizer. A
// device opened by Open also destroys its hal device and instance.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.sync.End()
		if d.owned {
			d.hal.Destroy()
			if d.instance != nil {
				d.instance.Destroy()
			}
		}
	})
	return d.closeErr
}

// Capabilities implements gpucore.Device.
func (d *Device) Capabilities() gpucore.Capabilities { return d.cfg.Capabilities }

// OnFrameComplete implements gpucore.FrameCompleter.
func (d *Device) OnFrameComplete(fn func()) { d.sync.OnFrameComplete(fn) }

// CreateMemoryBlock implements gpucore.Device.
func (d *Device) CreateMemoryBlock(desc gpucore.MemoryBlockDesc) (gpucore.MemoryBlock, error) {
	var ok bool
	d.live.add(func(c *LiveCounts) {
		if d.cfg.MemoryBudget != 0 && c.MemoryBytes+desc.Size > d.cfg.MemoryBudget {
			return
		}
		c.MemoryBlocks++
		c.MemoryBytes += desc.Size
		ok = true
	})
	if !ok {
		return nil, errors.Wrapf(ErrOutOfMemory, "block of %d bytes", desc.Size)
	}
	return &MemoryBlock{desc: desc}, nil
}

// DestroyMemoryBlock implements gpucore.Device.
func (d *Device) DestroyMemoryBlock(block gpucore.MemoryBlock) {
	m, ok := block.(*MemoryBlock)
	if !ok {
		return
	}
	d.live.add(func(c *LiveCounts) {
		c.MemoryBlocks--
		c.MemoryBytes -= m.desc.Size
	})
}

// BufferAllocationInfo implements gpucore.Device.
func (d *Device) BufferAllocationInfo(desc gpucore.BufferDesc) gpucore.AllocationInfo {
	return gpucore.EstimateBufferAllocation(desc)
}

// TextureAllocationInfo implements gpucore.Device.
func (d *Device) TextureAllocationInfo(desc gpucore.TextureDesc) gpucore.AllocationInfo {
	return gpucore.EstimateTextureAllocation(desc)
}

func checkPlacement(block gpucore.MemoryBlock, offset uint64, info gpucore.AllocationInfo) (*MemoryBlock, error) {
	m, ok := block.(*MemoryBlock)
	if !ok {
		return nil, errors.Wrap(ErrForeignObject, "memory block")
	}
	if offset%info.Alignment != 0 {
		return nil, errors.Wrapf(ErrInvalidPlacement, "offset %d not aligned to %d", offset, info.Alignment)
	}
	if offset+info.Size > m.desc.Size {
		return nil, errors.Wrapf(ErrInvalidPlacement, "[%d, %d) exceeds block of %d bytes",
			offset, offset+info.Size, m.desc.Size)
	}
	return m, nil
}

// CreatePlacedBuffer implements gpucore.Device.
func (d *Device) CreatePlacedBuffer(block gpucore.MemoryBlock, offset uint64, desc gpucore.BufferDesc, label string) (gpucore.Buffer, error) {
	m, err := checkPlacement(block, offset, d.BufferAllocationInfo(desc))
	if err != nil {
		return nil, err
	}
	buf, err := d.createBuffer(desc, label)
	if err != nil {
		return nil, err
	}
	buf.block, buf.offset = m, offset
	return buf, nil
}

// CreatePlacedTexture implements gpucore.Device.
func (d *Device) CreatePlacedTexture(block gpucore.MemoryBlock, offset uint64, desc gpucore.TextureDesc, label string) (gpucore.Texture, error) {
	m, err := checkPlacement(block, offset, d.TextureAllocationInfo(desc))
	if err != nil {
		return nil, err
	}
	tex, err := d.createTexture(desc, label)
	if err != nil {
		return nil, err
	}
	tex.block, tex.offset = m, offset
	return tex, nil
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc, label string) (gpucore.Buffer, error) {
	return d.createBuffer(desc, label)
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc gpucore.TextureDesc, label string) (gpucore.Texture, error) {
	return d.createTexture(desc, label)
}

func (d *Device) createBuffer(desc gpucore.BufferDesc, label string) (*Buffer, error) {
	b, err := d.hal.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: desc.Size, Usage: desc.Usage})
	if err != nil {
		return nil, errors.Wrapf(err, "wgpu: create buffer %q", label)
	}
	d.live.add(func(c *LiveCounts) { c.Buffers++ })
	return &Buffer{hal: b, desc: desc, label: label}, nil
}

func (d *Device) createTexture(desc gpucore.TextureDesc, label string) (*Texture, error) {
	t, err := d.hal.CreateTexture(textureDescriptor(desc, label))
	if err != nil {
		return nil, errors.Wrapf(err, "wgpu: create texture %q", label)
	}
	d.live.add(func(c *LiveCounts) { c.Textures++ })
	return &Texture{hal: t, desc: desc.Normalized(), label: label}, nil
}

// WrapTexture returns a gpucore.Texture for a hal texture owned by the
// caller, such as a surface texture registered as swapchain texture.
// DestroyTexture leaves it alone.
func (d *Device) WrapTexture(t hal.Texture, desc gpucore.TextureDesc, label string) *Texture {
	return &Texture{hal: t, desc: desc.Normalized(), label: label, borrowed: true}
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok {
		return
	}
	d.hal.DestroyBuffer(b.hal)
	d.live.add(func(c *LiveCounts) { c.Buffers-- })
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(tex gpucore.Texture) {
	t, ok := tex.(*Texture)
	if !ok || t.borrowed {
		return
	}
	d.hal.DestroyTexture(t.hal)
	d.live.add(func(c *LiveCounts) { c.Textures-- })
}

// CreateCommandBuffer implements gpucore.Device.
func (d *Device) CreateCommandBuffer(queue gpucore.Queue) (gpucore.CommandBuffer, error) {
	q, ok := queue.(*Queue)
	if !ok || q.device != d {
		return nil, errors.Wrap(ErrForeignObject, "queue")
	}
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: d.cfg.Label})
	if err != nil {
		return nil, errors.Wrap(err, "wgpu: create command encoder")
	}
	return &CommandBuffer{device: d, queue: q, encoder: enc}, nil
}

// CreateFence implements gpucore.Device.
func (d *Device) CreateFence(signaled bool) (gpucore.Fence, error) {
	d.live.add(func(c *LiveCounts) { c.Fences++ })
	return &Fence{signaled: signaled, poll: d.cfg.PollInterval}, nil
}

// DestroyFence implements gpucore.Device.
func (d *Device) DestroyFence(f gpucore.Fence) {
	if _, ok := f.(*Fence); ok {
		d.live.add(func(c *LiveCounts) { c.Fences-- })
	}
}

// CreateSemaphore implements gpucore.Device.
func (d *Device) CreateSemaphore(label string) (gpucore.Semaphore, error) {
	d.live.add(func(c *LiveCounts) { c.Semaphores++ })
	return &Semaphore{label: label}, nil
}

// DestroySemaphore implements gpucore.Device.
func (d *Device) DestroySemaphore(s gpucore.Semaphore) {
	if _, ok := s.(*Semaphore); ok {
		d.live.add(func(c *LiveCounts) { c.Semaphores-- })
	}
}
