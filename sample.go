package boltzmann

import (
	"math/rand"

	"github.com/gonum/blas/blas64"
)

// SampleBernoulli sets each unit to 1 with probability p_i.
func SampleBernoulli(rng *rand.Rand, p []float64) []float64 {
	s := make([]float64, len(p))
	for i, pi := range p {
		if rng.Float64() < pi {
			s[i] = 1
		}
	}
	return s
}

// SampleGaussian draws each unit from N(mean_i, sigma_i).
func SampleGaussian(rng *rand.Rand, mean, sigma []float64) []float64 {
	s := make([]float64, len(mean))
	for i, mu := range mean {
		s[i] = mu + rng.NormFloat64()*sigma[i]
	}
	return s
}

// SampleMask fills mask with independent Bernoulli(keep) draws.
func SampleMask(rng *rand.Rand, mask []float64, keep float64) {
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1
		} else {
			mask[i] = 0
		}
	}
}

// SampleMatrixMask fills every entry of a with independent Bernoulli(keep) draws.
func SampleMatrixMask(rng *rand.Rand, a blas64.General, keep float64) {
	for i := 0; i < a.Rows; i++ {
		SampleMask(rng, row(a, i), keep)
	}
}

// sampleVisible draws a visible state from the output of VisibleProbs.
func (m *RBM) sampleVisible(rng *rand.Rand, p []float64, c Conditional) []float64 {
	if c.Variant.Has(Gaussian) && m.Sigma != nil {
		return SampleGaussian(rng, p, m.Sigma)
	}
	return SampleBernoulli(rng, p)
}

// GibbsStep runs one full sweep from hidden state h: it samples v ~ P(v|h)
// into m.V and returns P(v|h) and P(h|v). m.H is set to a sample of P(h|v).
func (m *RBM) GibbsStep(rng *rand.Rand, h []float64, c Conditional) (pv, ph []float64) {
	pv = m.VisibleProbs(h, c)
	m.V = m.sampleVisible(rng, pv, c)
	ph = m.HiddenProbs(m.V, c)
	m.H = SampleBernoulli(rng, ph)
	return pv, ph
}

// PseudoLikelihood estimates the log pseudo-likelihood of v by flipping one
// visible unit chosen uniformly at random.
func (m *RBM) PseudoLikelihood(rng *rand.Rand, v []float64) float64 {
	i := rng.Intn(len(v))
	flipped := cloneVector(v)
	if m.IsGaussian() {
		flipped[i] = -v[i]
	} else {
		flipped[i] = 1 - v[i]
	}
	// log sigmoid(x) == -softplus(-x)
	return -float64(len(v)) * softplus(m.FreeEnergy(v)-m.FreeEnergy(flipped))
}
