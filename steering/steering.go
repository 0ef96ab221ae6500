// Package steering precomputes the far-field delay-and-sum steering
// table: the per-(theta, phi, m, n, bin) complex phase factor that
// implements frequency-domain beamforming across a planar microphone
// grid. The table is built once at setup from an immutable
// configuration and never changes afterward.
package steering

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/mat"

	"github.com/emer/beamcam/tensor"
)

// ErrInvalidGeometry is returned when the array geometry is physically
// nonsensical: non-positive mic spacing or speed of sound.
var ErrInvalidGeometry = errors.New("steering: invalid geometry")

// ErrInvalidSweep is returned when a theta or phi sweep range is
// inverted or has a non-positive step.
var ErrInvalidSweep = errors.New("steering: invalid sweep")

// Sweep describes one axis (theta or phi) of the angular scan, in
// degrees.
type Sweep struct {
	Min, Max, Step float32
}

// Config is the immutable construction-time geometry and sweep
// configuration from which a Table is built.
type Config struct {
	FFTSize      int // B
	SampleRate   int // fs, Hz
	M, N         int // microphone grid dimensions
	MicSpacing   float32
	SpeedOfSound float32
	Theta, Phi   Sweep
}

func (s Sweep) validate() error {
	if s.Max < s.Min {
		return fmt.Errorf("%w: max %v < min %v", ErrInvalidSweep, s.Max, s.Min)
	}
	if s.Step <= 0 {
		return fmt.Errorf("%w: step %v <= 0", ErrInvalidSweep, s.Step)
	}
	return nil
}

// NumSteps returns the number of angular samples a sweep produces.
func (s Sweep) NumSteps() int {
	return int((s.Max-s.Min)/s.Step) + 1
}

func (c Config) validate() error {
	if c.MicSpacing <= 0 || c.SpeedOfSound <= 0 {
		return fmt.Errorf("%w: spacing=%v speed=%v", ErrInvalidGeometry, c.MicSpacing, c.SpeedOfSound)
	}
	if err := c.Theta.validate(); err != nil {
		return err
	}
	if err := c.Phi.validate(); err != nil {
		return err
	}
	return nil
}

// Table is the (theta, phi, M, N, K) steering tensor, K = FFTSize/2+1.
// Every entry has unit magnitude; entry(0,0,0,0,k) == 1+0j for every
// bin k, since microphone (0,0) is the array reference.
type Table struct {
	cfg      Config
	numTheta int
	numPhi   int
	k        int
	data     *tensor.Dense[complex64]
}

// Build computes the steering table for cfg. Angles are specified in
// degrees and converted to radians internally.
func Build(cfg Config) (*Table, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	numTheta := cfg.Theta.NumSteps()
	numPhi := cfg.Phi.NumSteps()
	k := cfg.FFTSize/2 + 1

	data, err := tensor.New[complex64](numTheta, numPhi, cfg.M, cfg.N, k)
	if err != nil {
		return nil, fmt.Errorf("steering: allocating table: %w", err)
	}

	tau := timeDelays(cfg, numTheta, numPhi)

	fs := float64(cfg.SampleRate)
	b := float64(cfg.FFTSize)
	for ti := 0; ti < numTheta; ti++ {
		for pi := 0; pi < numPhi; pi++ {
			row := ti*numPhi + pi
			for m := 0; m < cfg.M; m++ {
				for n := 0; n < cfg.N; n++ {
					col := m*cfg.N + n
					t := tau.At(row, col)
					for kk := 0; kk < k; kk++ {
						phase := 2 * math.Pi * float64(kk) * fs * t / b
						data.Set(complex64(complex(math.Cos(phase), math.Sin(phase))), ti, pi, m, n, kk)
					}
				}
			}
		}
	}

	return &Table{cfg: cfg, numTheta: numTheta, numPhi: numPhi, k: k, data: data}, nil
}

// timeDelays computes tau(theta, phi, m, n) for every (theta, phi)
// row and (m, n) column in one batched matrix multiply: row i of
// directionCosines holds [sin(theta_i)*cos(phi_i), sin(theta_i)*sin(phi_i)],
// and column j of positions holds [m_j, n_j], so their product gives
// m*sin(theta)*cos(phi) + n*sin(theta)*sin(phi) for every (theta,phi,m,n)
// pair at once; the result is then scaled by d/c.
func timeDelays(cfg Config, numTheta, numPhi int) *mat.Dense {
	directionCosines := mat.NewDense(numTheta*numPhi, 2, nil)
	for ti := 0; ti < numTheta; ti++ {
		thetaDeg := cfg.Theta.Min + float32(ti)*cfg.Theta.Step
		thetaRad := thetaDeg * math32.Pi / 180
		sinTheta := math32.Sin(thetaRad)
		for pi := 0; pi < numPhi; pi++ {
			phiDeg := cfg.Phi.Min + float32(pi)*cfg.Phi.Step
			phiRad := phiDeg * math32.Pi / 180
			row := ti*numPhi + pi
			directionCosines.Set(row, 0, float64(sinTheta*math32.Cos(phiRad)))
			directionCosines.Set(row, 1, float64(sinTheta*math32.Sin(phiRad)))
		}
	}

	positions := mat.NewDense(2, cfg.M*cfg.N, nil)
	for m := 0; m < cfg.M; m++ {
		for n := 0; n < cfg.N; n++ {
			col := m*cfg.N + n
			positions.Set(0, col, float64(m))
			positions.Set(1, col, float64(n))
		}
	}

	var projection mat.Dense
	projection.Mul(directionCosines, positions)

	scale := float64(cfg.MicSpacing) / float64(cfg.SpeedOfSound)
	projection.Scale(scale, &projection)
	return &projection
}

// At returns the steering weight for the given (theta, phi, m, n, bin)
// grid indices (not angles).
func (t *Table) At(thetaIdx, phiIdx, m, n, bin int) complex64 {
	return t.data.At(thetaIdx, phiIdx, m, n, bin)
}

// Weights returns the K-length steering-weight fiber for a given
// (theta, phi, m, n), ordered by bin with unit stride: the access
// pattern the steered-sum step depends on to keep its inner loop
// unit-stride.
func (t *Table) Weights(thetaIdx, phiIdx, m, n int) []complex64 {
	return t.data.Fiber(thetaIdx, phiIdx, m, n)
}

// Shape returns (numTheta, numPhi, M, N, K).
func (t *Table) Shape() (numTheta, numPhi, m, n, k int) {
	return t.numTheta, t.numPhi, t.cfg.M, t.cfg.N, t.k
}

// NumTheta and NumPhi report the sweep grid sizes.
func (t *Table) NumTheta() int { return t.numTheta }
func (t *Table) NumPhi() int   { return t.numPhi }

// Bins returns the number of one-sided FFT bins the table was built
// for.
func (t *Table) Bins() int { return t.k }

// ThetaDeg and PhiDeg return the sweep angle, in degrees, for a grid
// index.
func (t *Table) ThetaDeg(idx int) float32 { return t.cfg.Theta.Min + float32(idx)*t.cfg.Theta.Step }
func (t *Table) PhiDeg(idx int) float32   { return t.cfg.Phi.Min + float32(idx)*t.cfg.Phi.Step }
