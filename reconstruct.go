package boltzmann

import (
	"boltzmann/dataset"
)

// Forward returns P(h|v) without sampling.
func (m *RBM) Forward(v []float64, c Conditional) []float64 {
	if m.IsGaussian() {
		c.Variant |= Gaussian
	}
	return m.HiddenProbs(v, c)
}

// Reconstruct propagates every sample up to the hidden units and back down
// and returns the mean squared reconstruction error over d.
func (m *RBM) Reconstruct(d *dataset.Dataset, c Conditional) (float64, error) {
	if err := checkData(m, d); err != nil {
		return 0, err
	}
	if m.IsGaussian() {
		c.Variant |= Gaussian
	}
	var sum float64
	for _, s := range d.Samples {
		copy(m.V, s.Features)
		m.H = m.HiddenProbs(s.Features, c)
		pv := m.VisibleProbs(m.H, c)
		sum += meanSquaredError(s.Features, pv)
	}
	return sum / float64(d.Size()), nil
}
