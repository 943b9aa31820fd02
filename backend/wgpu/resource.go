package wgpu

import (
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

// Buffer is a gpucore.Buffer backed by a hal buffer.
type Buffer struct {
	hal    hal.Buffer
	desc   gpucore.BufferDesc
	label  string
	block  *MemoryBlock
	offset uint64
}

// Desc implements gpucore.Buffer.
func (b *Buffer) Desc() gpucore.BufferDesc { return b.desc }

// Label implements gpucore.Buffer.
func (b *Buffer) Label() string { return b.label }

// HAL returns the hal buffer for recording commands.
func (b *Buffer) HAL() hal.Buffer { return b.hal }

// Placement returns the memory block the buffer was placed in, or nil for
// a dedicated buffer.
func (b *Buffer) Placement() (*MemoryBlock, uint64) { return b.block, b.offset }

// Texture is a gpucore.Texture backed by a hal texture.
type Texture struct {
	hal    hal.Texture
	desc   gpucore.TextureDesc
	label  string
	block  *MemoryBlock
	offset uint64

	// borrowed textures are owned by the caller and never destroyed here.
	borrowed bool
}

// Desc implements gpucore.Texture.
func (t *Texture) Desc() gpucore.TextureDesc { return t.desc }

// Label implements gpucore.Texture.
func (t *Texture) Label() string { return t.label }

// HAL returns the hal texture for recording commands.
func (t *Texture) HAL() hal.Texture { return t.hal }

// Placement returns the memory block the texture was placed in, or nil for
// a dedicated texture.
func (t *Texture) Placement() (*MemoryBlock, uint64) { return t.block, t.offset }

// MemoryBlock is an accounting record of a transient memory block. See the
// package documentation for why no hal memory stands behind it.
type MemoryBlock struct {
	desc gpucore.MemoryBlockDesc
}

// Desc implements gpucore.MemoryBlock.
func (m *MemoryBlock) Desc() gpucore.MemoryBlockDesc { return m.desc }

// Semaphore orders submissions on the shared hal queue. It only records
// whether it has a pending signal.
type Semaphore struct {
	label string

	mu      sync.Mutex
	pending int
}

// Label implements gpucore.Semaphore.
func (s *Semaphore) Label() string { return s.label }

func (s *Semaphore) signal() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *Semaphore) consume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return false
	}
	s.pending--
	return true
}

// LiveCounts is the number of live objects created by a Device.
type LiveCounts struct {
	Buffers      int
	Textures     int
	MemoryBlocks int
	MemoryBytes  uint64
	Semaphores   int
	Fences       int
}

type liveTracker struct {
	mu     sync.Mutex
	counts LiveCounts
}

func (l *liveTracker) add(fn func(c *LiveCounts)) {
	l.mu.Lock()
	fn(&l.counts)
	l.mu.Unlock()
}

func (l *liveTracker) get() LiveCounts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts
}
