// Package subresource provides a dense per-(mip level, array layer) table
// for texture subresources and an enumerator over subresource coordinates.
//
// Texture state is never aggregated: different subresources of one texture
// may sit in different layouts at the same time, so every (mip, layer) pair
// gets its own entry.
package subresource

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Index addresses one subresource of a texture.
type Index struct {
	Mip   uint32
	Layer uint32
}

// Enumerate yields every (mip, layer) coordinate of a mips x layers texture.
// The mip level varies fastest. The sequence is lazy and can be ranged over
// any number of times.
func Enumerate(mips, layers uint32) iter.Seq[Index] {
	return func(yield func(Index) bool) {
		for layer := uint32(0); layer < layers; layer++ {
			for mip := uint32(0); mip < mips; mip++ {
				if !yield(Index{Mip: mip, Layer: layer}) {
					return
				}
			}
		}
	}
}

// Map is a dense table with one T per subresource.
type Map[T any] struct {
	mips   uint32
	layers uint32
	data   []T
}

// New creates a map with zero-valued entries.
func New[T any](mips, layers uint32) *Map[T] {
	return &Map[T]{
		mips:   mips,
		layers: layers,
		data:   make([]T, int(mips)*int(layers)),
	}
}

// NewFilled creates a map with every entry set to v.
func NewFilled[T any](mips, layers uint32, v T) *Map[T] {
	m := New[T](mips, layers)
	m.Fill(v)
	return m
}

// MipLevels returns the number of mip levels.
func (m *Map[T]) MipLevels() uint32 { return m.mips }

// ArrayLayers returns the number of array layers.
func (m *Map[T]) ArrayLayers() uint32 { return m.layers }

// Len returns the number of subresources.
func (m *Map[T]) Len() int { return len(m.data) }

func (m *Map[T]) offset(mip, layer uint32) int {
	if mip >= m.mips || layer >= m.layers {
		panic(errors.AssertionFailedf("subresource (%d, %d) out of range (%d, %d)",
			mip, layer, m.mips, m.layers))
	}
	return int(layer)*int(m.mips) + int(mip)
}

// At returns the entry for (mip, layer). It panics if either is out of range.
func (m *Map[T]) At(mip, layer uint32) T {
	return m.data[m.offset(mip, layer)]
}

// Get is At addressed by Index.
func (m *Map[T]) Get(i Index) T {
	return m.data[m.offset(i.Mip, i.Layer)]
}

// Set stores v for (mip, layer).
func (m *Map[T]) Set(mip, layer uint32, v T) {
	m.data[m.offset(mip, layer)] = v
}

// Ptr returns a pointer to the entry for (mip, layer), valid until the map
// is garbage collected.
func (m *Map[T]) Ptr(mip, layer uint32) *T {
	return &m.data[m.offset(mip, layer)]
}

// Fill sets every entry to v.
func (m *Map[T]) Fill(v T) {
	for i := range m.data {
		m.data[i] = v
	}
}

// Clone returns a shallow copy of the map.
func (m *Map[T]) Clone() *Map[T] {
	c := &Map[T]{mips: m.mips, layers: m.layers, data: make([]T, len(m.data))}
	copy(c.data, m.data)
	return c
}

// All yields every coordinate with its value in Enumerate order.
func (m *Map[T]) All() iter.Seq2[Index, T] {
	return func(yield func(Index, T) bool) {
		for i := range Enumerate(m.mips, m.layers) {
			if !yield(i, m.data[m.offset(i.Mip, i.Layer)]) {
				return
			}
		}
	}
}

// Uniform reports whether every entry equals the first one under eq.
// An empty map is uniform.
func (m *Map[T]) Uniform(eq func(a, b T) bool) bool {
	for i := 1; i < len(m.data); i++ {
		if !eq(m.data[0], m.data[i]) {
			return false
		}
	}
	return true
}
