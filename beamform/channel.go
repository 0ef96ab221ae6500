package beamform

// channelTransform is step 1: for each microphone (m, n), window the
// current block's B samples and run the real-to-complex FFT, storing
// the result into spectra(m, n, 0..K-1). Embarrassingly parallel
// across (m, n).
func (p *Pipeline) channelTransform() {
	current := p.buf.Current()
	n := p.cfg.N
	p.pool.run(p.cfg.M, n, func(m, ni int) {
		idx := m*n + ni
		samples := current.Fiber(m, ni)
		dst := p.spectra.Fiber(m, ni)
		p.fftBank.Engine(idx).Transform(dst, samples)
	})
}
