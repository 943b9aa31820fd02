package recording

import (
	"sync"

	"github.com/gogpu/framegraph/gpucore"
)

// Buffer is a recorded buffer.
type Buffer struct {
	id     uint64
	label  string
	desc   gpucore.BufferDesc
	block  *MemoryBlock
	offset uint64
}

// Desc implements gpucore.Buffer.
func (b *Buffer) Desc() gpucore.BufferDesc { return b.desc }

// Label implements gpucore.Buffer.
func (b *Buffer) Label() string { return b.label }

// Placement returns the block and offset of a placed buffer, or nil.
func (b *Buffer) Placement() (*MemoryBlock, uint64) { return b.block, b.offset }

// Texture is a recorded texture.
type Texture struct {
	id     uint64
	label  string
	desc   gpucore.TextureDesc
	block  *MemoryBlock
	offset uint64
}

// Desc implements gpucore.Texture.
func (t *Texture) Desc() gpucore.TextureDesc { return t.desc }

// Label implements gpucore.Texture.
func (t *Texture) Label() string { return t.label }

// Placement returns the block and offset of a placed texture, or nil.
func (t *Texture) Placement() (*MemoryBlock, uint64) { return t.block, t.offset }

// MemoryBlock is a recorded memory block.
type MemoryBlock struct {
	id   uint64
	desc gpucore.MemoryBlockDesc
}

// Desc implements gpucore.MemoryBlock.
func (m *MemoryBlock) Desc() gpucore.MemoryBlockDesc { return m.desc }

// ID returns the block's device-unique id.
func (m *MemoryBlock) ID() uint64 { return m.id }

// Semaphore is a recorded semaphore.
type Semaphore struct {
	id    uint64
	label string
}

// Label implements gpucore.Semaphore.
func (s *Semaphore) Label() string { return s.label }

// LiveCounts reports how many objects of each kind are alive.
type LiveCounts struct {
	Buffers    int
	Textures   int
	Blocks     int
	BlockBytes uint64
	Fences     int
	Semaphores int
}

// ResourcePool tracks the live objects of a Device.
//
// ResourcePool is safe for concurrent use.
type ResourcePool struct {
	mu     sync.Mutex
	nextID uint64

	buffers    map[*Buffer]struct{}
	textures   map[*Texture]struct{}
	blocks     map[*MemoryBlock]struct{}
	fences     map[*Fence]struct{}
	semaphores map[*Semaphore]struct{}
	blockBytes uint64
}

// NewResourcePool creates an empty pool.
func NewResourcePool() *ResourcePool {
	return &ResourcePool{
		buffers:    make(map[*Buffer]struct{}),
		textures:   make(map[*Texture]struct{}),
		blocks:     make(map[*MemoryBlock]struct{}),
		fences:     make(map[*Fence]struct{}),
		semaphores: make(map[*Semaphore]struct{}),
	}
}

func (p *ResourcePool) id() uint64 {
	p.nextID++
	return p.nextID
}

// Live returns the current object counts.
func (p *ResourcePool) Live() LiveCounts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return LiveCounts{
		Buffers:    len(p.buffers),
		Textures:   len(p.textures),
		Blocks:     len(p.blocks),
		BlockBytes: p.blockBytes,
		Fences:     len(p.fences),
		Semaphores: len(p.semaphores),
	}
}

func (p *ResourcePool) addBuffer(b *Buffer) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	b.id = p.id()
	p.buffers[b] = struct{}{}
	return b
}

func (p *ResourcePool) addTexture(t *Texture) *Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.id = p.id()
	p.textures[t] = struct{}{}
	return t
}

// addBlock registers m unless it would push live block memory past budget.
// A zero budget is unlimited.
func (p *ResourcePool) addBlock(m *MemoryBlock, budget uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if budget > 0 && p.blockBytes+m.desc.Size > budget {
		return false
	}
	m.id = p.id()
	p.blocks[m] = struct{}{}
	p.blockBytes += m.desc.Size
	return true
}

func (p *ResourcePool) addFence(f *Fence) *Fence {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fences[f] = struct{}{}
	return f
}

func (p *ResourcePool) addSemaphore(s *Semaphore) *Semaphore {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.id = p.id()
	p.semaphores[s] = struct{}{}
	return s
}

func (p *ResourcePool) hasBlock(m *MemoryBlock) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.blocks[m]
	return ok
}

// remove deletes obj from the pool and reports whether it was live.
func (p *ResourcePool) remove(obj any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ok bool
	switch o := obj.(type) {
	case *Buffer:
		_, ok = p.buffers[o]
		delete(p.buffers, o)
	case *Texture:
		_, ok = p.textures[o]
		delete(p.textures, o)
	case *MemoryBlock:
		if _, ok = p.blocks[o]; ok {
			p.blockBytes -= o.desc.Size
		}
		delete(p.blocks, o)
	case *Fence:
		_, ok = p.fences[o]
		delete(p.fences, o)
	case *Semaphore:
		_, ok = p.semaphores[o]
		delete(p.semaphores, o)
	}
	return ok
}
