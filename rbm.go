package boltzmann

import (
	"math"
	"math/rand"

	"github.com/gonum/blas/blas64"
	"github.com/pkg/errors"

	"boltzmann/dataset"
)

var (
	ErrNilModel     = errors.New("boltzmann: nil model")
	ErrDimension    = errors.New("boltzmann: dimension mismatch")
	ErrEmptyDataset = errors.New("boltzmann: empty dataset")
	ErrConfig       = errors.New("boltzmann: invalid training configuration")
)

const (
	weightStd      = 0.01
	labelWeightStd = 0.001
)

// An RBM is a restricted Boltzmann machine with NumVisible visible units,
// NumHidden hidden units and, for discriminative models, NumLabels label units.
//
// V and H hold the current visible and hidden state and are used as scratch by
// training and inference, so Train, Reconstruct and Classify must not run
// concurrently on the same RBM.
type RBM struct {
	NumVisible int
	NumHidden  int
	NumLabels  int

	V []float64
	H []float64

	A []float64      // visible bias
	B []float64      // hidden bias
	W blas64.General // NumVisible x NumHidden

	U blas64.General // NumLabels x NumHidden
	C []float64      // label bias

	// Sigma is the standard deviation of each Gaussian visible unit.
	// It is nil for Bernoulli visible units.
	Sigma []float64

	R []float64      // hidden dropout mask
	M blas64.General // dropconnect mask

	Eta    float64
	EtaMin float64
	EtaMax float64
	Alpha  float64 // momentum
	Lambda float64 // weight decay
	T      float64 // temperature
}

// NewRBM allocates an RBM with zeroed parameters and all-one masks.
// It panics if nV or nH is not positive.
func NewRBM(nV, nH, nL int) *RBM {
	if nV <= 0 || nH <= 0 || nL < 0 {
		panic(errors.Wrapf(ErrDimension, "NewRBM(%d, %d, %d)", nV, nH, nL))
	}
	m := RBM{
		NumVisible: nV,
		NumHidden:  nH,
		NumLabels:  nL,
		V:          make([]float64, nV),
		H:          make([]float64, nH),
		A:          make([]float64, nV),
		B:          make([]float64, nH),
		W:          NewMatrix(nV, nH),
		R:          filled(nH, 1),
		M:          filledMatrix(nV, nH, 1),
		Eta:        0.1,
		EtaMin:     0.1,
		EtaMax:     0.1,
		T:          1,
	}
	if nL > 0 {
		m.U = NewMatrix(nL, nH)
		m.C = make([]float64, nL)
	}
	return &m
}

// NewGaussianRBM allocates an RBM with Gaussian visible units of unit variance.
func NewGaussianRBM(nV, nH int) *RBM {
	m := NewRBM(nV, nH, 0)
	m.Sigma = filled(nV, 1)
	return m
}

func (m *RBM) IsGaussian() bool {
	return m.Sigma != nil
}

// Validate checks the parameter containers against the unit counts.
func (m *RBM) Validate() error {
	if m == nil {
		return ErrNilModel
	}
	switch {
	case len(m.A) != m.NumVisible, len(m.V) != m.NumVisible:
		return errors.Wrapf(ErrDimension, "visible vectors do not have %d entries", m.NumVisible)
	case len(m.B) != m.NumHidden, len(m.H) != m.NumHidden, len(m.R) != m.NumHidden:
		return errors.Wrapf(ErrDimension, "hidden vectors do not have %d entries", m.NumHidden)
	case m.W.Rows != m.NumVisible || m.W.Cols != m.NumHidden:
		return errors.Wrapf(ErrDimension, "W is %dx%d, want %dx%d", m.W.Rows, m.W.Cols, m.NumVisible, m.NumHidden)
	case m.M.Rows != m.NumVisible || m.M.Cols != m.NumHidden:
		return errors.Wrapf(ErrDimension, "M is %dx%d, want %dx%d", m.M.Rows, m.M.Cols, m.NumVisible, m.NumHidden)
	case m.Sigma != nil && len(m.Sigma) != m.NumVisible:
		return errors.Wrapf(ErrDimension, "sigma has %d entries, want %d", len(m.Sigma), m.NumVisible)
	}
	if m.NumLabels > 0 && (m.U.Rows != m.NumLabels || m.U.Cols != m.NumHidden || len(m.C) != m.NumLabels) {
		return errors.Wrapf(ErrDimension, "label parameters do not match %d labels", m.NumLabels)
	}
	return nil
}

// truncatedGaussian draws from N(0, std) restricted to two standard
// deviations, redrawing whenever the draw is NaN.
func truncatedGaussian(rng *rand.Rand, std float64) float64 {
	for {
		x := rng.NormFloat64() * std
		if math.IsNaN(x) || math.Abs(x) > 2*std {
			continue
		}
		return x
	}
}

// InitializeWeights draws W from a truncated Gaussian.
func (m *RBM) InitializeWeights(rng *rand.Rand) {
	for i := range m.W.Data {
		m.W.Data[i] = truncatedGaussian(rng, weightStd)
	}
}

// InitializeLabelWeights draws U from a narrower truncated Gaussian.
func (m *RBM) InitializeLabelWeights(rng *rand.Rand) {
	for i := range m.U.Data {
		m.U.Data[i] = truncatedGaussian(rng, labelWeightStd)
	}
	for i := range m.C {
		m.C[i] = 0
	}
}

func (m *RBM) InitializeHiddenBias() {
	for j := range m.B {
		m.B[j] = 0
	}
}

// InitializeVisibleBias sets a_i = log(p_i/(1-p_i)), where p_i is the fraction
// of samples in which visible unit i is on.
func (m *RBM) InitializeVisibleBias(d *dataset.Dataset) error {
	if d.NumFeatures != m.NumVisible {
		return errors.Wrapf(ErrDimension, "dataset has %d features, model %d visible units", d.NumFeatures, m.NumVisible)
	}
	for i, p := range d.Marginals() {
		p = math.Min(math.Max(p, 0.001), 0.999)
		m.A[i] = math.Log(p / (1 - p))
	}
	return nil
}

// InitializeVisibleBiasRandom draws each visible bias uniformly from [0, 1).
func (m *RBM) InitializeVisibleBiasRandom(rng *rand.Rand) {
	for i := range m.A {
		m.A[i] = rng.Float64()
	}
}

// Initialize sets all parameters to their starting values. With a nil dataset
// visible biases start at zero.
func (m *RBM) Initialize(rng *rand.Rand, d *dataset.Dataset) error {
	if m == nil {
		return ErrNilModel
	}
	m.InitializeWeights(rng)
	m.InitializeHiddenBias()
	if m.NumLabels > 0 {
		m.InitializeLabelWeights(rng)
	}
	for i := range m.A {
		m.A[i] = 0
	}
	if d != nil && !m.IsGaussian() {
		return m.InitializeVisibleBias(d)
	}
	return nil
}

// ResetMasks turns every hidden unit and connection back on.
func (m *RBM) ResetMasks() {
	for j := range m.R {
		m.R[j] = 1
	}
	for i := range m.M.Data {
		m.M.Data[i] = 1
	}
}

// Clone returns a deep copy of m.
func (m *RBM) Clone() *RBM {
	c := *m
	c.V = cloneVector(m.V)
	c.H = cloneVector(m.H)
	c.A = cloneVector(m.A)
	c.B = cloneVector(m.B)
	c.W = cloneMatrix(m.W)
	c.R = cloneVector(m.R)
	c.M = cloneMatrix(m.M)
	c.Sigma = cloneVector(m.Sigma)
	if m.NumLabels > 0 {
		c.U = cloneMatrix(m.U)
		c.C = cloneVector(m.C)
	}
	return &c
}

// anneal interpolates Eta linearly from EtaMax towards EtaMin; epoch counts from 1.
func (m *RBM) anneal(epoch, epochs int) {
	m.Eta = m.EtaMax - (m.EtaMax-m.EtaMin)/float64(epochs)*float64(epoch)
}
