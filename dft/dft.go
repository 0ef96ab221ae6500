// Package dft wraps a one-sided real-to-complex FFT plan with the
// fixed Hamming window applied to every channel before transform.
// Planning happens once, off the hot path; Transform itself performs
// no allocation.
package dft

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrInvalidSize is returned when the requested FFT length is not a
// power of two of at least 64, per the external configuration
// contract.
var ErrInvalidSize = errors.New("dft: fft_size must be a power of two >= 64")

// Engine holds one channel's plan and transform scratch space: the
// Hamming window, the float64 windowed-sample buffer gonum's real FFT
// expects, and the complex128 coefficient buffer it writes into. The
// fourier.FFT plan keeps internal work arrays, so each channel owns
// its own plan and channels can transform concurrently without
// contention.
type Engine struct {
	window []float32
	plan   *fourier.FFT
	real   []float64
	coef   []complex128
}

func newEngine(n int) *Engine {
	w := make([]float32, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math32.Cos(2*math32.Pi*float32(i)/float32(n-1))
	}
	return &Engine{
		window: w,
		plan:   fourier.NewFFT(n),
		real:   make([]float64, n),
		coef:   make([]complex128, n/2+1),
	}
}

// Transform windows samples (length B) with the Hamming taper and
// writes the one-sided forward FFT (length B/2+1) into dst. Both
// slices are reused scratch owned by the caller; Transform performs
// no allocation.
func (e *Engine) Transform(dst []complex64, samples []float32) {
	for i, s := range samples {
		e.real[i] = float64(s) * float64(e.window[i])
	}
	e.plan.Coefficients(e.coef, e.real)
	for i, c := range e.coef {
		dst[i] = complex64(c)
	}
}

// Bank is a set of per-channel FFT engines, one per microphone, each
// with its own plan sized to the configured FFT length.
type Bank struct {
	size int
	bins int
	eng  []*Engine
}

// NewBank creates a Bank of numChannels engines, each transforming
// blocks of the given size. size must be a power of two >= 64.
// Planning happens here, once, off the hot path.
func NewBank(numChannels, size int) (*Bank, error) {
	if size < 64 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if numChannels <= 0 {
		return nil, fmt.Errorf("dft: numChannels must be positive, got %d", numChannels)
	}
	eng := make([]*Engine, numChannels)
	for i := range eng {
		eng[i] = newEngine(size)
	}
	return &Bank{size: size, bins: size/2 + 1, eng: eng}, nil
}

// Engine returns the FFT engine for channel index idx (0 <= idx <
// numChannels).
func (b *Bank) Engine(idx int) *Engine { return b.eng[idx] }

// Size returns the FFT length B.
func (b *Bank) Size() int { return b.size }

// Bins returns the one-sided bin count K = B/2 + 1.
func (b *Bank) Bins() int { return b.bins }
