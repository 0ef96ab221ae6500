// Package buffer implements the ring-buffered audio frame: two
// consecutive (M, N, B) audio blocks kept around so a per-channel
// integer time-index lookup can reach backward across a block
// boundary without copying or reinterpolating samples.
package buffer

import (
	"errors"
	"fmt"

	"github.com/emer/beamcam/tensor"
)

// ErrShapeMismatch is returned by RecordAudio when the incoming block
// does not match the (M, N, B) shape the Double was constructed with.
var ErrShapeMismatch = errors.New("buffer: audio block shape mismatch")

// Double holds the two most recent audio blocks delivered by the
// capture collaborator. After each RecordAudio call, previous becomes
// the block that was current, and current becomes the new block;
// both are fully valid between calls.
type Double struct {
	m, n, b  int
	previous *tensor.Dense[float32]
	current  *tensor.Dense[float32]
}

// New allocates a Double buffer for an (M, N, B) microphone grid and
// block length.
func New(m, n, b int) (*Double, error) {
	prev, err := tensor.New[float32](m, n, b)
	if err != nil {
		return nil, fmt.Errorf("buffer: allocating previous block: %w", err)
	}
	cur, err := tensor.New[float32](m, n, b)
	if err != nil {
		return nil, fmt.Errorf("buffer: allocating current block: %w", err)
	}
	return &Double{m: m, n: n, b: b, previous: prev, current: cur}, nil
}

// RecordAudio rotates the buffer: the block that was current becomes
// previous, and in becomes the new current. in must have exactly the
// (M, N, B) shape this Double was constructed with. Storage is
// reused in place; no allocation occurs.
func (d *Double) RecordAudio(in *tensor.Dense[float32]) error {
	s := in.Shape()
	if len(s) != 3 || s[0] != d.m || s[1] != d.n || s[2] != d.b {
		return fmt.Errorf("%w: got %v, want [%d %d %d]", ErrShapeMismatch, s, d.m, d.n, d.b)
	}
	copy(d.previous.Raw(), d.current.Raw())
	copy(d.current.Raw(), in.Raw())
	return nil
}

// At returns the sample for microphone (m, n) at logical time index
// b, where b in [-B, B). Non-negative b indexes the current block;
// negative b reaches B+b samples into the previous block, i.e. b=-1
// is the sample immediately preceding current[0].
func (d *Double) At(m, n, b int) float32 {
	if b < -d.b || b >= d.b {
		panic(fmt.Sprintf("buffer: logical index %d out of range [-%d,%d)", b, d.b, d.b))
	}
	if b >= 0 {
		return d.current.At(m, n, b)
	}
	return d.previous.At(m, n, d.b+b)
}

// Current returns the current block, logical indices [0, B): the
// samples the hot path's channel-transform step reads.
func (d *Double) Current() *tensor.Dense[float32] { return d.current }

// Shape returns the (M, N, B) dimensions of this buffer.
func (d *Double) Shape() (m, n, b int) { return d.m, d.n, d.b }
