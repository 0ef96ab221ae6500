package beamform

// steeredSum is step 2: for each (theta, phi), coherently combine
// every channel's spectrum against its steering weight,
//
//	Y(theta,phi,k) = sum_{m,n} channel_spectra(m,n,k) * steering(theta,phi,m,n,k)
//
// Parallel across (theta, phi). The inner (m, n, k) traversal keeps k
// innermost over contiguous Fiber slices so the steering-table access
// pattern (the dominant source of memory traffic) stays
// unit-stride.
func (p *Pipeline) steeredSum() {
	m, n := p.cfg.M, p.cfg.N
	p.pool.run(p.table.NumTheta(), p.table.NumPhi(), func(ti, pi int) {
		acc := p.beamformed.Fiber(ti, pi)
		for k := range acc {
			acc[k] = 0
		}
		for mi := 0; mi < m; mi++ {
			for ni := 0; ni < n; ni++ {
				spec := p.spectra.Fiber(mi, ni)
				weights := p.table.Weights(ti, pi, mi, ni)
				for k := range acc {
					acc[k] += spec[k] * weights[k]
				}
			}
		}
	})
}
