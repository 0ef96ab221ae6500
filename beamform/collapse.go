package beamform

import (
	"math"

	"github.com/emer/beamcam/tensor"
)

// collapseAndConvert runs steps 3 and 4: band-limited power collapse
//
//	P(theta,phi) = sum_{k=kLo..kHi} |Y(theta,phi,k)|^2
//
// followed by the dB conversion
//
//	map_out(theta,phi) = 10*log10(max(P,eps)/P_ref).
//
// The two steps have no cross-cell dependency (cell (theta,phi)'s dB
// value depends only on that cell's own collapsed power), so they run
// together in one fork-join pass across (theta, phi) rather than two
// separate full-tensor barriers.
func (p *Pipeline) collapseAndConvert(kLo, kHi int, mapOut *tensor.Dense[float32]) {
	numTheta, numPhi := p.table.NumTheta(), p.table.NumPhi()
	p.pool.run(numTheta, numPhi, func(ti, pi int) {
		y := p.beamformed.Fiber(ti, pi)
		var power float64
		for k := kLo; k <= kHi; k++ {
			re := float64(real(y[k]))
			im := float64(imag(y[k]))
			power += re*re + im*im
		}
		db := 10 * math.Log10(math.Max(power, dbFloor)/p.pRef)
		mapOut.Set(float32(db), ti, pi)
	})
}

// referencePower computes P_ref: the power in its own FFT bin of a
// bin-centred unit-amplitude sinusoid after the same window and FFT
// normalization, scaled by the coherent array gain (M*N)^2 a
// perfectly steered unit-amplitude plane wave would produce once every
// channel's contribution sums in phase. A full-scale coherent source
// from the steered direction therefore reads 0 dB in a single-bin
// band; a wider band also collects the window's leakage into the
// neighbouring bins and reads it somewhat above 0 dB. Computed once at
// setup, off the hot path.
func (p *Pipeline) referencePower() float64 {
	size := p.fftBank.Size()
	bins := p.fftBank.Bins()
	bin := bins / 4
	if bin < 1 {
		bin = 1
	}

	tone := make([]float32, size)
	for i := range tone {
		tone[i] = float32(math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(size)))
	}

	dst := make([]complex64, bins)
	p.fftBank.Engine(0).Transform(dst, tone)

	re := float64(real(dst[bin]))
	im := float64(imag(dst[bin]))
	singleChannelPower := re*re + im*im

	numChannels := float64(p.cfg.M * p.cfg.N)
	return singleChannelPower * numChannels * numChannels
}
