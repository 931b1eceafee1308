package boltzmann

import (
	"math"
	"math/rand"
	"strings"

	"github.com/gonum/blas/blas64"
	"github.com/gonum/floats"
	"github.com/pkg/errors"

	"boltzmann/dataset"
)

// Training stops as soon as an epoch's mean reconstruction error drops below this.
const earlyStopError = 1e-4

// Algorithm is a gradient estimator of the contrastive divergence family.
type Algorithm int

const (
	CD Algorithm = iota + 1
	PCD
	FPCD
)

func (a Algorithm) String() string {
	switch a {
	case CD:
		return "CD"
	case PCD:
		return "PCD"
	case FPCD:
		return "FPCD"
	}
	return "Algorithm(?)"
}

// ParseAlgorithm accepts cd, pcd and fpcd in any case, or the codes 1, 2 and 3.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cd", "1":
		return CD, nil
	case "pcd", "2":
		return PCD, nil
	case "fpcd", "3":
		return FPCD, nil
	}
	return 0, errors.Wrapf(ErrConfig, "unknown algorithm %q", s)
}

// TrainConfig holds the settings of one training call. The learning rate,
// momentum and weight decay live on the RBM itself.
type TrainConfig struct {
	Algorithm  Algorithm
	Epochs     int
	GibbsSteps int
	BatchSize  int

	// Variant selects the conditionals, e.g. Dropout or DBMBottom.
	Variant Variant
	// Keep is the probability that a hidden unit (Dropout) or a connection
	// (Dropconnect) is kept when the masks are resampled every batch.
	Keep float64

	// Layer is copied into Progress to tell stacked layers apart.
	Layer    int
	Reporter Reporter
	// Stop is polled between epochs; returning true ends training.
	Stop func() bool
}

func (cfg *TrainConfig) validate() error {
	switch {
	case cfg.Algorithm < CD || cfg.Algorithm > FPCD:
		return errors.Wrapf(ErrConfig, "algorithm %d", cfg.Algorithm)
	case cfg.Epochs <= 0:
		return errors.Wrapf(ErrConfig, "epochs %d", cfg.Epochs)
	case cfg.GibbsSteps <= 0:
		return errors.Wrapf(ErrConfig, "gibbs steps %d", cfg.GibbsSteps)
	case cfg.Variant&(Dropout|Dropconnect) != 0 && (cfg.Keep <= 0 || cfg.Keep > 1):
		return errors.Wrapf(ErrConfig, "keep probability %g", cfg.Keep)
	}
	return nil
}

func checkData(m *RBM, d *dataset.Dataset) error {
	if m == nil {
		return ErrNilModel
	}
	if d == nil || d.Size() == 0 {
		return ErrEmptyDataset
	}
	if d.NumFeatures != m.NumVisible {
		return errors.Wrapf(ErrDimension, "dataset has %d features, model %d visible units", d.NumFeatures, m.NumVisible)
	}
	return nil
}

// sgdMomentum keeps the previous update of a block of parameters.
type sgdMomentum struct {
	PrevD []float64
}

func newSGDMomentum(n int) *sgdMomentum {
	return &sgdMomentum{PrevD: make([]float64, n)}
}

// step applies d = eta*g - eta*decay*w + alpha*prevD to w.
func (s *sgdMomentum) step(w, g []float64, eta, decay, alpha float64) {
	for i := range w {
		d := eta*g[i] - eta*decay*w[i] + alpha*s.PrevD[i]
		w[i] += d
		s.PrevD[i] = d
	}
}

// trainer holds the state of a single Train call.
type trainer struct {
	m     *RBM
	rng   *rand.Rand
	cfg   TrainConfig
	chain chain

	sgdW, sgdA, sgdB, sgdSigma *sgdMomentum

	posW, negW blas64.General
	posA, negA []float64
	posB, negB []float64
	posS, negS []float64
}

func newTrainer(m *RBM, rng *rand.Rand, d *dataset.Dataset, cfg TrainConfig) (*trainer, error) {
	if err := checkData(m, d); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > d.Size() {
		cfg.BatchSize = d.Size()
	}
	if m.IsGaussian() {
		cfg.Variant |= Gaussian
	}
	t := trainer{
		m:     m,
		rng:   rng,
		cfg:   cfg,
		chain: newChain(cfg.Algorithm, m, cfg.BatchSize),
		sgdW:  newSGDMomentum(len(m.W.Data)),
		sgdA:  newSGDMomentum(m.NumVisible),
		sgdB:  newSGDMomentum(m.NumHidden),
		posW:  NewMatrix(m.NumVisible, m.NumHidden),
		negW:  NewMatrix(m.NumVisible, m.NumHidden),
		posA:  make([]float64, m.NumVisible),
		negA:  make([]float64, m.NumVisible),
		posB:  make([]float64, m.NumHidden),
		negB:  make([]float64, m.NumHidden),
	}
	if m.IsGaussian() {
		t.sgdSigma = newSGDMomentum(m.NumVisible)
		t.posS = make([]float64, m.NumVisible)
		t.negS = make([]float64, m.NumVisible)
	}
	return &t, nil
}

// Train fits the RBM to d with the configured contrastive divergence
// estimator and returns the mean reconstruction error of the last epoch.
func (m *RBM) Train(rng *rand.Rand, d *dataset.Dataset, cfg TrainConfig) (float64, error) {
	t, err := newTrainer(m, rng, d, cfg)
	if err != nil {
		return 0, err
	}
	return t.run(d), nil
}

func (t *trainer) run(d *dataset.Dataset) float64 {
	m := t.m
	batches := d.Batches(t.cfg.BatchSize)
	n := float64(d.Size())
	var epochErr float64
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		var errSum, plSum float64
		for _, batch := range batches {
			e, pl := t.batch(batch)
			errSum += e
			plSum += pl
		}
		epochErr = errSum / n
		m.anneal(epoch, t.cfg.Epochs)
		if t.cfg.Reporter != nil {
			t.cfg.Reporter.Report(Progress{
				Layer:            t.cfg.Layer,
				Epoch:            epoch,
				Epochs:           t.cfg.Epochs,
				Error:            epochErr,
				PseudoLikelihood: plSum / n,
				Eta:              m.Eta,
			})
		}
		if epochErr < earlyStopError {
			break
		}
		if t.cfg.Stop != nil && t.cfg.Stop() {
			break
		}
	}
	if t.cfg.Variant&(Dropout|Dropconnect) != 0 {
		m.ResetMasks()
	}
	return epochErr
}

func (t *trainer) resetStats() {
	for _, s := range [][]float64{t.posW.Data, t.negW.Data, t.posA, t.negA, t.posB, t.negB, t.posS, t.negS} {
		for i := range s {
			s[i] = 0
		}
	}
}

// batch runs the positive and negative phase for every sample of a batch,
// updates the parameters and returns the summed reconstruction error and
// pseudo-likelihood.
func (t *trainer) batch(samples []dataset.Sample) (errSum, plSum float64) {
	m, rng := t.m, t.rng
	c := Conditional{Variant: t.cfg.Variant}
	if c.Variant.Has(Dropout) {
		SampleMask(rng, m.R, t.cfg.Keep)
	}
	if c.Variant.Has(Dropconnect) {
		SampleMatrixMask(rng, m.M, t.cfg.Keep)
	}
	neg := t.chain.negative(c)
	t.resetStats()

	for slot, s := range samples {
		v0 := s.Features
		copy(m.V, v0)
		ph0 := m.HiddenProbs(v0, c)
		h := SampleBernoulli(rng, t.chain.start(slot, ph0))

		var pv, ph []float64
		for k := 0; k < t.cfg.GibbsSteps; k++ {
			pv, ph = m.GibbsStep(rng, h, neg)
			h = m.H
		}
		t.chain.finish(slot, ph)

		t.accumulate(v0, ph0, t.posW, t.posA, t.posB, t.posS)
		t.accumulate(m.V, ph, t.negW, t.negA, t.negB, t.negS)

		errSum += meanSquaredError(v0, pv)
		plSum += m.PseudoLikelihood(rng, v0)
	}
	t.apply(len(samples))
	return errSum, plSum
}

func (t *trainer) accumulate(v, ph []float64, w blas64.General, a, b, s []float64) {
	m := t.m
	x := v
	if m.IsGaussian() {
		x = make([]float64, len(v))
		floats.DivTo(x, v, m.Sigma)
		wh := mulVec(false, 1, m.W, ph)
		for i, vi := range v {
			sd := m.Sigma[i]
			d := vi - m.A[i]
			s[i] += d*d/(sd*sd*sd) - vi*wh[i]/(sd*sd)
		}
	}
	outer(1, x, ph, w)
	floats.Add(a, v)
	floats.Add(b, ph)
}

// apply turns the accumulated statistics of n samples into a momentum update.
func (t *trainer) apply(n int) {
	m := t.m
	inv := 1 / float64(n)

	g := t.posW
	floats.Sub(g.Data, t.negW.Data)
	floats.Scale(inv, g.Data)
	if t.cfg.Variant.Has(Dropconnect) {
		floats.Mul(g.Data, m.M.Data)
	}
	t.chain.update(g)
	t.sgdW.step(m.W.Data, g.Data, m.Eta, m.Lambda, m.Alpha)

	floats.Sub(t.posA, t.negA)
	floats.Scale(inv, t.posA)
	t.sgdA.step(m.A, t.posA, m.Eta, 0, m.Alpha)

	floats.Sub(t.posB, t.negB)
	floats.Scale(inv, t.posB)
	t.sgdB.step(m.B, t.posB, m.Eta, 0, m.Alpha)

	if m.IsGaussian() {
		floats.Sub(t.posS, t.negS)
		floats.Scale(inv, t.posS)
		t.sgdSigma.step(m.Sigma, t.posS, m.Eta, 0, m.Alpha)
		for i, s := range m.Sigma {
			if s < sigmaFloor || math.IsNaN(s) {
				m.Sigma[i] = sigmaFloor
			}
		}
	}
}
