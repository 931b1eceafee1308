package boltzmann

import (
	"math"
	"math/rand"

	"github.com/gonum/floats"
	"github.com/pkg/errors"

	"boltzmann/dataset"
)

// TrainDiscriminative fits a joint generative/discriminative RBM. Each sample
// is unrolled once: h0 ~ P(h|v0,y0), v1 ~ P(v|h0), y1 = argmax P(y|h0) and
// P(h|v1,y1); the gradient is the difference between the two steps.
// It returns the training error rate of the last epoch, measured with y1.
// Only Epochs, BatchSize, Layer, Reporter and Stop of cfg are used.
func (m *RBM) TrainDiscriminative(rng *rand.Rand, d *dataset.Dataset, cfg TrainConfig) (float64, error) {
	if err := checkData(m, d); err != nil {
		return 0, err
	}
	if m.NumLabels == 0 || d.NumLabels > m.NumLabels {
		return 0, errors.Wrapf(ErrDimension, "dataset has %d labels, model %d", d.NumLabels, m.NumLabels)
	}
	if cfg.Epochs <= 0 {
		return 0, errors.Wrapf(ErrConfig, "epochs %d", cfg.Epochs)
	}

	sgdW := newSGDMomentum(len(m.W.Data))
	sgdU := newSGDMomentum(len(m.U.Data))
	sgdA := newSGDMomentum(m.NumVisible)
	sgdB := newSGDMomentum(m.NumHidden)
	sgdC := newSGDMomentum(m.NumLabels)
	gW := NewMatrix(m.NumVisible, m.NumHidden)
	gU := NewMatrix(m.NumLabels, m.NumHidden)
	gA := make([]float64, m.NumVisible)
	gB := make([]float64, m.NumHidden)
	gC := make([]float64, m.NumLabels)

	n := float64(d.Size())
	batches := d.Batches(cfg.BatchSize)
	var epochErr float64
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		wrong := 0
		var plSum float64
		for _, batch := range batches {
			for _, s := range [][]float64{gW.Data, gU.Data, gA, gB, gC} {
				for i := range s {
					s[i] = 0
				}
			}
			for _, s := range batch {
				v0 := s.Features
				y0 := oneHot(m.NumLabels, s.Label)
				ph0 := m.HiddenProbs(v0, Conditional{Variant: Discriminative, Label: y0})
				h0 := SampleBernoulli(rng, ph0)

				v1 := SampleBernoulli(rng, m.VisibleProbs(h0, Conditional{}))
				label := floats.MaxIdx(m.LabelProbs(h0))
				y1 := oneHot(m.NumLabels, label)
				ph1 := m.HiddenProbs(v1, Conditional{Variant: Discriminative, Label: y1})
				m.V = v1
				m.H = SampleBernoulli(rng, ph1)

				outer(1, v0, ph0, gW)
				outer(-1, v1, ph1, gW)
				outer(1, y0, ph0, gU)
				outer(-1, y1, ph1, gU)
				floats.Add(gA, v0)
				floats.Sub(gA, v1)
				floats.Add(gB, ph0)
				floats.Sub(gB, ph1)
				floats.Add(gC, y0)
				floats.Sub(gC, y1)

				if label != s.Label {
					wrong++
				}
				plSum += m.PseudoLikelihood(rng, v0)
			}
			inv := 1 / float64(len(batch))
			for _, s := range [][]float64{gW.Data, gU.Data, gA, gB, gC} {
				floats.Scale(inv, s)
			}
			sgdW.step(m.W.Data, gW.Data, m.Eta, m.Lambda, m.Alpha)
			sgdU.step(m.U.Data, gU.Data, m.Eta, m.Lambda, m.Alpha)
			sgdA.step(m.A, gA, m.Eta, 0, m.Alpha)
			sgdB.step(m.B, gB, m.Eta, 0, m.Alpha)
			sgdC.step(m.C, gC, m.Eta, 0, m.Alpha)
		}
		epochErr = float64(wrong) / n
		m.anneal(epoch, cfg.Epochs)
		if cfg.Reporter != nil {
			cfg.Reporter.Report(Progress{
				Layer:            cfg.Layer,
				Epoch:            epoch,
				Epochs:           cfg.Epochs,
				Error:            epochErr,
				PseudoLikelihood: plSum / n,
				Eta:              m.Eta,
			})
		}
		if epochErr < earlyStopError {
			break
		}
		if cfg.Stop != nil && cfg.Stop() {
			break
		}
	}
	return epochErr, nil
}

// Predict returns the label with the highest LabelScore for v.
func (m *RBM) Predict(v []float64) int {
	best, bestScore := 0, math.Inf(-1)
	for y := 0; y < m.NumLabels; y++ {
		if s := m.LabelScore(v, y); s > bestScore {
			best, bestScore = y, s
		}
	}
	return best
}

// Classify predicts every sample of d and returns the error rate, 1 - accuracy.
func (m *RBM) Classify(d *dataset.Dataset) (float64, error) {
	if err := checkData(m, d); err != nil {
		return 0, err
	}
	if m.NumLabels == 0 {
		return 0, errors.Wrap(ErrDimension, "model has no label units")
	}
	right := 0
	for _, s := range d.Samples {
		if m.Predict(s.Features) == s.Label {
			right++
		}
	}
	return 1 - float64(right)/float64(d.Size()), nil
}
