package boltzmann

import (
	"math"
	"strings"

	"github.com/gonum/blas/blas64"
	"github.com/gonum/floats"
)

// A Variant selects how the conditional distributions of an RBM are computed.
// Variants combine with bitwise or, e.g. Dropout|DBMBottom.
type Variant uint

// Plain is the standalone Bernoulli RBM.
const Plain Variant = 0

const (
	// Dropout multiplies hidden probabilities by the mask R.
	Dropout Variant = 1 << iota
	// Dropconnect replaces W with W∘M.
	Dropconnect
	// DoubleUp doubles the bottom-up input of the hidden units.
	DoubleUp
	// DoubleDown doubles the top-down input of the visible units.
	DoubleDown
	// FastWeights adds Conditional.Fast to W.
	FastWeights
	// Gaussian uses linear visible units with standard deviation Sigma.
	Gaussian
	// Discriminative adds the label input U to the hidden units.
	Discriminative
)

// Positions of an RBM inside a deep Boltzmann machine.
const (
	DBMBottom       = DoubleUp
	DBMTop          = DoubleDown
	DBMIntermediate = DoubleUp | DoubleDown
)

var variantNames = []string{"dropout", "dropconnect", "doubleup", "doubledown", "fastweights", "gaussian", "discriminative"}

func (v Variant) String() string {
	if v == Plain {
		return "plain"
	}
	var parts []string
	for i, name := range variantNames {
		if v&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether all bits of o are set in v.
func (v Variant) Has(o Variant) bool {
	return v&o == o
}

// Conditional carries the variant and the auxiliary tensors a conditional
// distribution needs beyond the model parameters.
type Conditional struct {
	Variant Variant

	// Fast is the fast weight matrix, read when Variant has FastWeights.
	Fast blas64.General

	// Label is a one-hot label vector, read when Variant has Discriminative.
	Label []float64
}

// weights returns the effective weight matrix. It aliases m.W when no
// per-connection modification applies.
func (m *RBM) weights(c Conditional) blas64.General {
	if c.Variant&(Dropconnect|FastWeights) == 0 {
		return m.W
	}
	w := cloneMatrix(m.W)
	if c.Variant.Has(FastWeights) && c.Fast.Data != nil {
		floats.Add(w.Data, c.Fast.Data)
	}
	if c.Variant.Has(Dropconnect) {
		floats.Mul(w.Data, m.M.Data)
	}
	return w
}

func (m *RBM) temperature() float64 {
	if m.T == 0 {
		return 1
	}
	return m.T
}

// HiddenProbs computes P(h_j = 1 | v) for every hidden unit.
func (m *RBM) HiddenProbs(v []float64, c Conditional) []float64 {
	w := m.weights(c)
	k := 1.0
	if c.Variant.Has(DoubleUp) {
		k = 2
	}
	var p []float64
	if c.Variant.Has(Gaussian) && m.Sigma != nil {
		x := make([]float64, len(v))
		floats.DivTo(x, v, m.Sigma)
		p = mulVec(true, k, w, x)
		for j := range p {
			p[j] = Sigmoid(-p[j] - m.B[j])
		}
	} else {
		p = mulVec(true, k/m.temperature(), w, v)
		if c.Variant.Has(Discriminative) && c.Label != nil {
			floats.Add(p, mulVec(true, 1, m.U, c.Label))
		}
		for j := range p {
			p[j] = Sigmoid(p[j] + m.B[j])
		}
	}
	if c.Variant.Has(Dropout) {
		floats.Mul(p, m.R)
	}
	return p
}

// VisibleProbs computes P(v_i = 1 | h) for every visible unit, or the
// conditional mean when the units are Gaussian.
func (m *RBM) VisibleProbs(h []float64, c Conditional) []float64 {
	w := m.weights(c)
	k := 1.0
	if c.Variant.Has(DoubleDown) {
		k = 2
	}
	if c.Variant.Has(Dropout) {
		masked := make([]float64, len(h))
		floats.MulTo(masked, h, m.R)
		h = masked
	}
	p := mulVec(false, k, w, h)
	if c.Variant.Has(Gaussian) && m.Sigma != nil {
		floats.Mul(p, m.Sigma)
		floats.Add(p, m.A)
		return p
	}
	for i := range p {
		p[i] = Sigmoid(p[i] + m.A[i])
	}
	return p
}

// LabelProbs computes P(y_k = 1 | h) as a softmax over Σ_j U_kj h_j + c_k.
func (m *RBM) LabelProbs(h []float64) []float64 {
	s := mulVec(false, 1, m.U, h)
	floats.Add(s, m.C)
	lse := floats.LogSumExp(s)
	for k := range s {
		s[k] = math.Exp(s[k] - lse)
	}
	return s
}

// FreeEnergy of a visible configuration under the plain (or Gaussian) model.
func (m *RBM) FreeEnergy(v []float64) float64 {
	var f float64
	if m.IsGaussian() {
		x := make([]float64, len(v))
		floats.DivTo(x, v, m.Sigma)
		z := mulVec(true, 1, m.W, x)
		for i := range v {
			d := (v[i] - m.A[i]) / m.Sigma[i]
			f += d * d / 2
		}
		for j := range z {
			f -= softplus(-z[j] - m.B[j])
		}
		return f
	}
	f = -floats.Dot(m.A, v)
	z := mulVec(true, 1/m.temperature(), m.W, v)
	for j := range z {
		f -= softplus(z[j] + m.B[j])
	}
	return f
}

// LabelScore is the negated free energy of the pair (v, y) in a
// discriminative RBM: c_y + Σ_j softplus(b_j + U_yj + Σ_i v_i W_ij).
// The most probable label maximizes it.
func (m *RBM) LabelScore(v []float64, y int) float64 {
	z := mulVec(true, 1, m.W, v)
	floats.Add(z, m.B)
	floats.Add(z, row(m.U, y))
	s := m.C[y]
	for _, x := range z {
		s += softplus(x)
	}
	return s
}
