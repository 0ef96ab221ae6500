// Package beamform implements the beamformer and pipeline driver: the
// per-audio-block hot path that windows and transforms each
// microphone channel, steers and sums the channel spectra across the
// (theta, phi) sweep, band-limits the result, and converts it to a
// decibel map. Everything else in this module is a collaborator
// feeding blocks into, or reading maps out of, this package.
package beamform

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/emer/beamcam/buffer"
	"github.com/emer/beamcam/dft"
	"github.com/emer/beamcam/steering"
	"github.com/emer/beamcam/tensor"
)

// PostProcessType selects the output transform applied in the final
// stage. The external contract reserves a full byte for this selector
// so future modes (dBA, dBZ, 1/3-octave) can be added without
// widening the interface; only PostProcessDBFS is implemented.
type PostProcessType uint8

// PostProcessDBFS is the only implemented post-process mode: power in
// decibels relative to full scale.
const PostProcessDBFS PostProcessType = 0

var (
	// ErrNotReady is returned by ProcessBlock when called before a
	// successful Setup.
	ErrNotReady = errors.New("beamform: processBlock called before setup")

	// ErrInvalidBand is returned when 0 <= f_lo <= f_hi <= fs/2 does
	// not hold.
	ErrInvalidBand = errors.New("beamform: invalid frequency band")

	// ErrUnsupportedPostProcess is returned for any PostProcessType
	// other than PostProcessDBFS.
	ErrUnsupportedPostProcess = errors.New("beamform: unsupported post_process_type")

	// ErrMapShapeMismatch is returned when the caller-supplied output
	// map does not match the configured (numTheta, numPhi) shape.
	ErrMapShapeMismatch = errors.New("beamform: map_out shape mismatch")
)

// dbFloor is the epsilon floor in the dB conversion: it suppresses
// NumericFloor (log of zero power) internally and is never surfaced
// as an error.
const dbFloor = 1e-12

// Config is the full, immutable, construction-time configuration of a
// Pipeline.
type Config struct {
	FFTSize      int // B, power of two, >= 64
	SampleRate   int // fs, Hz
	M, N         int // microphone grid dimensions
	MicSpacing   float32
	SpeedOfSound float32
	Theta, Phi   steering.Sweep

	// Workers sizes the fixed fork-join pool used in the
	// data-parallel steps. Zero selects runtime.NumCPU().
	Workers int
}

type state int

const (
	stateUnconfigured state = iota
	stateReady
)

// Pipeline is the two-state {Unconfigured, Ready} beamforming kernel.
// It owns the steering table, FFT plan bank, double buffer, and every
// transient tensor; all are allocated once in Setup and reused every
// frame, so ProcessBlock allocates no tensor storage. Each of its
// fork-join steps still heap-allocates a small closure and WaitGroup
// per call. A Pipeline
// is not safe for concurrent ProcessBlock calls from multiple
// goroutines: each instance is invoked from a single driver thread;
// parallelism lives inside the call.
type Pipeline struct {
	cfg   Config
	state state

	table   *steering.Table
	fftBank *dft.Bank
	buf     *buffer.Double

	spectra    *tensor.Dense[complex64] // (M, N, K)
	beamformed *tensor.Dense[complex64] // (numTheta, numPhi, K)

	pool *pool
	pRef float64

	durations StageDurations
}

// StageDurations reports how long each step of the most recent
// ProcessBlock call took. Populated once all steps of a successful
// call have completed; the
// Pipeline itself never logs it. A caller (the driver binary, or a
// test) reads it between calls via Pipeline.LastStageDurations.
type StageDurations struct {
	ChannelTransform time.Duration // step 1: window + FFT every channel
	SteeredSum       time.Duration // step 2: steer and sum across (theta, phi)
	CollapseConvert  time.Duration // steps 3-4: band collapse and dB conversion
	Total            time.Duration
}

// LastStageDurations returns the stage timing recorded by the most
// recent successful ProcessBlock call. It is the zero value before
// the first call.
func (p *Pipeline) LastStageDurations() StageDurations { return p.durations }

// NewPipeline constructs an unconfigured Pipeline from cfg. No
// validation or allocation happens until Setup is called.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, state: stateUnconfigured}
}

// Setup validates cfg, builds the steering table and FFT plan bank,
// starts the worker pool, and allocates every transient tensor the
// hot path reuses. It may block for FFT planning and is idempotent
// after the first successful call; calling it again on a Ready
// pipeline is a no-op.
func (p *Pipeline) Setup() error {
	if p.state == stateReady {
		return nil
	}
	if p.cfg.M <= 0 || p.cfg.N <= 0 {
		return fmt.Errorf("beamform: %w: M=%d N=%d must be positive", tensor.ErrInvalidShape, p.cfg.M, p.cfg.N)
	}
	if p.cfg.SampleRate <= 0 {
		return fmt.Errorf("beamform: sample_rate %d must be positive", p.cfg.SampleRate)
	}

	fftBank, err := dft.NewBank(p.cfg.M*p.cfg.N, p.cfg.FFTSize)
	if err != nil {
		return err
	}

	table, err := steering.Build(steering.Config{
		FFTSize:      p.cfg.FFTSize,
		SampleRate:   p.cfg.SampleRate,
		M:            p.cfg.M,
		N:            p.cfg.N,
		MicSpacing:   p.cfg.MicSpacing,
		SpeedOfSound: p.cfg.SpeedOfSound,
		Theta:        p.cfg.Theta,
		Phi:          p.cfg.Phi,
	})
	if err != nil {
		return err
	}

	buf, err := buffer.New(p.cfg.M, p.cfg.N, p.cfg.FFTSize)
	if err != nil {
		return err
	}

	numTheta, numPhi, _, _, k := table.Shape()
	spectra, err := tensor.New[complex64](p.cfg.M, p.cfg.N, k)
	if err != nil {
		return err
	}
	beamformed, err := tensor.New[complex64](numTheta, numPhi, k)
	if err != nil {
		return err
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p.table = table
	p.fftBank = fftBank
	p.buf = buf
	p.spectra = spectra
	p.beamformed = beamformed
	p.pool = newPool(workers)
	p.pRef = p.referencePower()
	p.state = stateReady
	return nil
}

// Close releases the Pipeline's FFT plan, worker pool, and transient
// tensors. Calling it from either state is safe and idempotent.
func (p *Pipeline) Close() {
	if p.pool != nil {
		p.pool.stop()
		p.pool = nil
	}
	p.table = nil
	p.fftBank = nil
	p.buf = nil
	p.spectra = nil
	p.beamformed = nil
	p.state = stateUnconfigured
}

// NumTheta and NumPhi expose the output map's dimensions once Ready.
func (p *Pipeline) NumTheta() int {
	if p.table == nil {
		return 0
	}
	return p.table.NumTheta()
}

func (p *Pipeline) NumPhi() int {
	if p.table == nil {
		return 0
	}
	return p.table.NumPhi()
}

// ProcessBlock runs the four-step hot path on audioIn, an (M, N, B)
// tensor, and writes the resulting (numTheta, numPhi) decibel map
// into mapOut. fLo and fHi (Hz) band-limit the spectral collapse and
// must satisfy 0 <= fLo <= fHi <= sampleRate/2. Argument-validation
// errors are returned before mapOut is touched. The four steps run
// strictly sequentially; steps 1 and 2 fan out across a fixed worker
// pool internally.
func (p *Pipeline) ProcessBlock(audioIn *tensor.Dense[float32], fLo, fHi int, postType PostProcessType, mapOut *tensor.Dense[float32]) error {
	if p.state != stateReady {
		return ErrNotReady
	}
	if postType != PostProcessDBFS {
		return fmt.Errorf("%w: %d", ErrUnsupportedPostProcess, postType)
	}
	kLo, kHi, err := p.binsForBand(fLo, fHi)
	if err != nil {
		return err
	}
	if err := p.checkMapShape(mapOut); err != nil {
		return err
	}

	if err := p.buf.RecordAudio(audioIn); err != nil {
		return err
	}

	start := time.Now()

	t0 := time.Now()
	p.channelTransform()
	t1 := time.Now()
	p.steeredSum()
	t2 := time.Now()
	p.collapseAndConvert(kLo, kHi, mapOut)
	t3 := time.Now()

	p.durations = StageDurations{
		ChannelTransform: t1.Sub(t0),
		SteeredSum:       t2.Sub(t1),
		CollapseConvert:  t3.Sub(t2),
		Total:            t3.Sub(start),
	}
	return nil
}

func (p *Pipeline) checkMapShape(mapOut *tensor.Dense[float32]) error {
	s := mapOut.Shape()
	numTheta, numPhi := p.table.NumTheta(), p.table.NumPhi()
	if len(s) != 2 || s[0] != numTheta || s[1] != numPhi {
		return fmt.Errorf("%w: got %v, want [%d %d]", ErrMapShapeMismatch, s, numTheta, numPhi)
	}
	return nil
}

// binsForBand converts an Hz band to inclusive bin indices, clamped
// to [0, K-1].
func (p *Pipeline) binsForBand(fLo, fHi int) (kLo, kHi int, err error) {
	nyquist := p.cfg.SampleRate / 2
	if fLo < 0 || fHi < fLo || fHi > nyquist {
		return 0, 0, fmt.Errorf("%w: f_lo=%d f_hi=%d nyquist=%d", ErrInvalidBand, fLo, fHi, nyquist)
	}
	bins := p.fftBank.Bins()
	size := p.fftBank.Size()
	kLo = int(math.Round(float64(fLo) * float64(size) / float64(p.cfg.SampleRate)))
	kHi = int(math.Round(float64(fHi) * float64(size) / float64(p.cfg.SampleRate)))
	kLo = clamp(kLo, 0, bins-1)
	kHi = clamp(kHi, 0, bins-1)
	return kLo, kHi, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
