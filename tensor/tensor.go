// Package tensor implements the dense multidimensional array used
// throughout the beamforming pipeline: a single generic,
// contiguous-storage container parameterized by rank and element
// type, rather than a family of per-rank or per-type structs.
package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidShape is returned by New when a requested shape cannot be
// allocated: a non-positive dimension, or a total element count past
// maxElements.
var ErrInvalidShape = errors.New("tensor: invalid shape")

// Numeric is the set of element types the pipeline stores in tensors:
// real samples/maps (float32) and complex spectra/steering weights
// (complex64).
type Numeric interface {
	~float32 | ~complex64
}

// maxElements caps the total element count of a single tensor,
// guarding against pathological construction-time configuration (e.g.
// an inverted or absurdly fine angular sweep) silently allocating an
// unreasonable amount of memory.
const maxElements = 1 << 28

// Dense is a rank 2..5 dense array stored as one contiguous
// row-major slice. Shape is fixed at construction and never changes;
// storage is owned exclusively by the Dense value and freed with it.
type Dense[T Numeric] struct {
	shape  []int
	stride []int
	data   []T
}

// New allocates a Dense tensor of the given dimensions. Rank is
// len(dims) and must be between 2 and 5 inclusive. Every dimension
// must be positive, and the product of all dimensions must not
// exceed maxElements.
func New[T Numeric](dims ...int) (*Dense[T], error) {
	if len(dims) < 2 || len(dims) > 5 {
		return nil, fmt.Errorf("%w: rank %d not in [2,5]", ErrInvalidShape, len(dims))
	}
	total := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("%w: dimension %d <= 0", ErrInvalidShape, d)
		}
		total *= d
	}
	if total > maxElements {
		return nil, fmt.Errorf("%w: %d elements exceeds cap of %d", ErrInvalidShape, total, maxElements)
	}
	shape := append([]int(nil), dims...)
	stride := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= dims[i]
	}
	return &Dense[T]{shape: shape, stride: stride, data: make([]T, total)}, nil
}

// Rank returns the number of dimensions.
func (d *Dense[T]) Rank() int { return len(d.shape) }

// Shape returns a copy of the tensor's dimensions.
func (d *Dense[T]) Shape() []int { return append([]int(nil), d.shape...) }

// Dim returns the size of dimension i.
func (d *Dense[T]) Dim(i int) int { return d.shape[i] }

// Len returns the total element count.
func (d *Dense[T]) Len() int { return len(d.data) }

// Fiber returns the contiguous slice along the trailing axis at the
// given leading indices, e.g. for a rank-3 tensor Fiber(m, n) returns
// the length-d3 slice at fixed (m, n). idx must supply exactly
// Rank()-1 indices. The returned slice aliases the tensor's storage;
// writes through it mutate the tensor in place, which is how the hot
// path accumulates into the beamformed tensor without allocating per
// element.
func (d *Dense[T]) Fiber(idx ...int) []T {
	if len(idx) != len(d.shape)-1 {
		panic(fmt.Sprintf("tensor: Fiber wants %d indices, got %d", len(d.shape)-1, len(idx)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= d.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on axis %d", v, d.shape[i], i))
		}
		off += v * d.stride[i]
	}
	n := d.shape[len(d.shape)-1]
	return d.data[off : off+n]
}

// Raw returns the underlying contiguous storage, for callers (the
// double buffer's block copy, tests) that want to operate on it
// directly without per-element index math.
func (d *Dense[T]) Raw() []T { return d.data }

func (d *Dense[T]) offset(idx []int) int {
	if len(idx) != len(d.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank-%d tensor", len(idx), len(d.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= d.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on axis %d", v, d.shape[i], i))
		}
		off += v * d.stride[i]
	}
	return off
}

// At returns the element at the given k-dimensional index. Indices
// must be within bounds; out-of-range access is a programming error
// and panics rather than returning an error, keeping indexing
// constant-time with no per-access error handling on the hot path.
func (d *Dense[T]) At(idx ...int) T {
	return d.data[d.offset(idx)]
}

// Set assigns a single element at the given index.
func (d *Dense[T]) Set(v T, idx ...int) {
	d.data[d.offset(idx)] = v
}

// Fill assigns v to every element.
func (d *Dense[T]) Fill(v T) {
	for i := range d.data {
		d.data[i] = v
	}
}

// PrintLayer renders a 2-D slice of the tensor, fixing the leading
// axis at i, as a formatted table for diagnostic use. It has no
// effect on tensor state. For a rank-2 tensor the slice is row i,
// printed one element per line; for rank >= 3, axis 1 gives the rows
// and the remaining trailing axes are flattened into columns.
func (d *Dense[T]) PrintLayer(i int) string {
	if len(d.shape) < 2 {
		panic("tensor: PrintLayer requires rank >= 2")
	}
	if i < 0 || i >= d.shape[0] {
		panic(fmt.Sprintf("tensor: layer index %d out of range [0,%d)", i, d.shape[0]))
	}
	rows := d.shape[1]
	cols := 1
	for _, s := range d.shape[2:] {
		cols *= s
	}
	layerOff := i * d.stride[0]
	var b strings.Builder
	for r := 0; r < rows; r++ {
		rowOff := layerOff + r*d.stride[1]
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%v", d.data[rowOff+c])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
