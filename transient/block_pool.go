package transient

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/gogpu/framegraph/gpucore"
)

// Block pool errors.
var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("transient: pool closed")

	// ErrZeroSize is returned for a memory block request of zero bytes.
	ErrZeroSize = errors.New("transient: zero-sized memory block request")
)

// DefaultBlockSizeHint is the default size of new memory blocks (128 MiB).
const DefaultBlockSizeHint uint64 = 128 << 20

// Block is a device memory block owned by a BlockPool.
type Block struct {
	Memory    gpucore.MemoryBlock
	Size      uint64
	Category  gpucore.HeapCategory
	Alignment gpucore.HeapAlignment

	id         uint64
	lastActive int
}

// ID returns a number unique to the block within its pool.
func (b *Block) ID() uint64 { return b.id }

func lessBlock(a, b *Block) bool {
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.id < b.id
}

// BlockStats contains block pool statistics.
type BlockStats struct {
	// Available is the number of blocks ready for reuse.
	Available int

	// Used is the number of blocks leased in the current session.
	Used int

	// Bytes is the total size of all live blocks.
	Bytes uint64

	// Created is the number of blocks created over the pool's lifetime.
	Created uint64

	// Reused is the number of requests served from available blocks.
	Reused uint64

	// Destroyed is the number of blocks released back to the device.
	Destroyed uint64
}

// String returns a human-readable summary.
func (s BlockStats) String() string {
	return fmt.Sprintf("Blocks[%d available, %d used, %d MB, %d created, %d reused, %d destroyed]",
		s.Available, s.Used, s.Bytes>>20, s.Created, s.Reused, s.Destroyed)
}

// BlockPool hands out device memory blocks bucketed by heap category and
// alignment class, and recycles them across host synchronization sessions.
//
// A block leased by GetMemoryBlock stays used until the next
// StartHostSynchronizationSession moves it back to the available set. An
// available block that has not been leased again is destroyed by
// CompleteHostSynchronizationSession once its last session is confirmed
// finished on the GPU.
//
// BlockPool is safe for concurrent use.
type BlockPool struct {
	mu sync.Mutex

	device gpucore.Device
	hint   uint64

	available [gpucore.HeapCategoryCount][gpucore.HeapAlignmentCount]*btree.BTreeG[*Block]
	used      [gpucore.HeapCategoryCount][gpucore.HeapAlignmentCount][]*Block

	current      int
	synchronized int
	nextID       uint64

	stats  BlockStats
	closed bool
}

// NewBlockPool creates a pool that allocates blocks from device.
// A zero hint selects DefaultBlockSizeHint.
func NewBlockPool(device gpucore.Device, hint uint64) *BlockPool {
	if hint == 0 {
		hint = DefaultBlockSizeHint
	}
	p := &BlockPool{
		device:       device,
		hint:         hint,
		synchronized: -1,
	}
	for c := range p.available {
		for a := range p.available[c] {
			p.available[c][a] = btree.NewG(8, lessBlock)
		}
	}
	return p
}

// GetMemoryBlock leases a block of at least minSize bytes.
//
// The smallest available block of the same category and alignment is
// preferred; regular requests may also take an MSAA-aligned block. When
// nothing fits, a new block of the hint size, doubled until it holds
// minSize, is created.
func (p *BlockPool) GetMemoryBlock(category gpucore.HeapCategory, alignment gpucore.HeapAlignment, minSize uint64) (*Block, error) {
	if minSize == 0 {
		return nil, ErrZeroSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if b := p.takeAvailable(category, alignment, minSize); b != nil {
		return b, nil
	}
	if alignment == gpucore.AlignRegular {
		if b := p.takeAvailable(category, gpucore.AlignMSAA, minSize); b != nil {
			return b, nil
		}
	}

	size := p.hint
	for size < minSize {
		size *= 2
	}
	mem, err := p.device.CreateMemoryBlock(gpucore.MemoryBlockDesc{
		Category:  category,
		Alignment: alignment,
		Size:      size,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "transient: create %s/%s memory block of %d bytes", category, alignment, size)
	}

	p.nextID++
	b := &Block{
		Memory:     mem,
		Size:       size,
		Category:   category,
		Alignment:  alignment,
		id:         p.nextID,
		lastActive: p.current,
	}
	p.used[category][alignment] = append(p.used[category][alignment], b)
	p.stats.Created++
	p.stats.Bytes += size

	slogger().Debug("transient: memory block created",
		"category", category.String(),
		"alignment", alignment.String(),
		"size", size,
		"session", p.current)
	return b, nil
}

func (p *BlockPool) takeAvailable(category gpucore.HeapCategory, alignment gpucore.HeapAlignment, minSize uint64) *Block {
	var found *Block
	p.available[category][alignment].AscendGreaterOrEqual(&Block{Size: minSize}, func(b *Block) bool {
		found = b
		return false
	})
	if found == nil {
		return nil
	}
	p.available[category][alignment].Delete(found)
	found.lastActive = p.current
	p.used[category][alignment] = append(p.used[category][alignment], found)
	p.stats.Reused++
	return found
}

// StartHostSynchronizationSession returns every used block to the
// available set and starts a new session, returning its id.
func (p *BlockPool) StartHostSynchronizationSession() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.used {
		for a := range p.used[c] {
			for _, b := range p.used[c][a] {
				p.available[c][a].ReplaceOrInsert(b)
			}
			p.used[c][a] = p.used[c][a][:0]
		}
	}
	p.current++
	return p.current
}

// CompleteHostSynchronizationSession records that GPU work up to session
// is finished and destroys available blocks last used at or before it.
func (p *BlockPool) CompleteHostSynchronizationSession(session int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session > p.synchronized {
		p.synchronized = session
	}
	if p.closed {
		return
	}

	var retired []*Block
	for c := range p.available {
		for a := range p.available[c] {
			tree := p.available[c][a]
			retired = retired[:0]
			tree.Ascend(func(b *Block) bool {
				if b.lastActive <= session {
					retired = append(retired, b)
				}
				return true
			})
			for _, b := range retired {
				tree.Delete(b)
				p.destroy(b)
			}
		}
	}
}

// CurrentSession returns the id of the current session.
func (p *BlockPool) CurrentSession() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SynchronizedSession returns the newest session confirmed finished, or -1.
func (p *BlockPool) SynchronizedSession() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synchronized
}

// Stats returns current pool statistics.
func (p *BlockPool) Stats() BlockStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	for c := range p.available {
		for a := range p.available[c] {
			s.Available += p.available[c][a].Len()
			s.Used += len(p.used[c][a])
		}
	}
	return s
}

// Close destroys every block, used or not. The caller must make sure the
// GPU no longer references them.
func (p *BlockPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for c := range p.available {
		for a := range p.available[c] {
			p.available[c][a].Ascend(func(b *Block) bool {
				p.destroy(b)
				return true
			})
			p.available[c][a].Clear(false)
			for _, b := range p.used[c][a] {
				p.destroy(b)
			}
			p.used[c][a] = nil
		}
	}
}

func (p *BlockPool) destroy(b *Block) {
	p.device.DestroyMemoryBlock(b.Memory)
	p.stats.Destroyed++
	p.stats.Bytes -= b.Size
}
