package boltzmann

import (
	"strings"
	"testing"

	"github.com/gonum/floats"
	"github.com/pkg/errors"
)

func fiveSamples() [][]float64 {
	return [][]float64{{1, 0, 0, 1}, {0, 1, 1, 0}, {1, 1, 0, 0}, {0, 0, 1, 1}, {1, 0, 1, 0}}
}

func TestNewStack(t *testing.T) {
	s := NewDBN(4, []int{3, 2}, 2)
	if err := s.Validate(); err != nil {
		t.Fatalf("%v", err)
	}
	if s.Layers[0].NumVisible != 4 || s.Layers[0].NumHidden != 3 || s.Layers[1].NumVisible != 3 || s.Layers[1].NumHidden != 2 {
		t.Errorf("unexpected layer sizes")
	}
	if s.Layers[0].NumLabels != 0 || s.Layers[1].NumLabels != 2 {
		t.Errorf("labels belong to the top layer only")
	}
	s.Layers[1] = NewRBM(4, 2, 0)
	if err := s.Validate(); errors.Cause(err) != ErrDimension {
		t.Errorf("Expected ErrDimension Got %v", err)
	}
}

func TestStackPositions(t *testing.T) {
	dbm := NewDBM(4, []int{3, 3, 2}, 0)
	want := []Variant{DBMBottom, DBMIntermediate, DBMTop}
	for k, w := range want {
		if p := dbm.Position(k); p != w {
			t.Errorf("layer %d: Expected %v Got %v", k, w, p)
		}
	}
	if p := NewDBM(4, []int{3}, 0).Position(0); p != Plain {
		t.Errorf("single layer DBM: Expected plain Got %v", p)
	}
	dbn := NewDBN(4, []int{3, 3, 2}, 0)
	for k := range dbn.Layers {
		if p := dbn.Position(k); p != Plain {
			t.Errorf("DBN layer %d: Expected plain Got %v", k, p)
		}
	}
}

// The second layer must be trained on the hidden probabilities of the
// trained first layer over the whole dataset.
func TestTrainLayersPropagates(t *testing.T) {
	d := mustDataset(t, fiveSamples(), nil, 0)
	cfg := TrainConfig{Algorithm: CD, Epochs: 2, GibbsSteps: 1, BatchSize: 2}

	s := NewDBN(4, []int{3, 2}, 0)
	if err := s.Initialize(newRand(1), d); err != nil {
		t.Fatalf("%v", err)
	}
	m0, m1 := s.Layers[0].Clone(), s.Layers[1].Clone()

	if _, err := s.Train(newRand(2), d, cfg); err != nil {
		t.Fatalf("%v", err)
	}

	rng := newRand(2)
	if _, err := m0.Train(rng, d, cfg); err != nil {
		t.Fatalf("%v", err)
	}
	in := MakeTensor2(d.Size(), 3)
	for i, sample := range d.Samples {
		in[i] = m0.HiddenProbs(sample.Features, Conditional{})
	}
	if _, err := m1.Train(rng, mustDataset(t, in, nil, 0), cfg); err != nil {
		t.Fatalf("%v", err)
	}

	if !floats.Equal(s.Layers[0].W.Data, m0.W.Data) {
		t.Fatalf("layer 0 differs")
	}
	if !floats.Equal(s.Layers[1].W.Data, m1.W.Data) || !floats.Equal(s.Layers[1].A, m1.A) {
		t.Errorf("layer 1 was not trained on the propagated data")
	}

	p := s.Propagate(d, 1)
	if p.Size() != 5 || p.NumFeatures != 3 {
		t.Fatalf("propagated %d samples of %d features", p.Size(), p.NumFeatures)
	}
	for i, sample := range p.Samples {
		if !floats.EqualApprox(sample.Features, in[i], tol) {
			t.Errorf("sample %d: Expected %v Got %v", i, in[i], sample.Features)
		}
	}
}

func TestStackForward(t *testing.T) {
	s := NewDBM(4, []int{3, 2}, 0)
	s.Initialize(newRand(3), nil)
	v := []float64{1, 0, 1, 1}
	h1 := s.Layers[0].HiddenProbs(v, Conditional{Variant: DBMBottom})
	want := s.Layers[1].HiddenProbs(h1, Conditional{Variant: DBMTop})
	if got := s.Forward(v); !floats.EqualApprox(got, want, tol) {
		t.Errorf("Expected %v Got %v", want, got)
	}
}

func TestStackReconstruct(t *testing.T) {
	d := mustDataset(t, fiveSamples(), nil, 0)
	for _, s := range []*Stack{NewDBN(4, []int{3, 2}, 0), NewDBM(4, []int{3, 2}, 0)} {
		rng := newRand(4)
		s.Initialize(rng, d)
		if _, err := s.Train(rng, d, TrainConfig{Algorithm: PCD, Epochs: 2, GibbsSteps: 1}); err != nil {
			t.Fatalf("%v: %v", s.Kind, err)
		}
		e, err := s.Reconstruct(d)
		if err != nil {
			t.Fatalf("%v: %v", s.Kind, err)
		}
		if !finite(e) || e < 0 || e > 1 {
			t.Errorf("%v: error %v", s.Kind, e)
		}
	}

	// A one-layer stack reconstructs like its RBM.
	s := NewDBN(4, []int{3}, 0)
	s.Initialize(newRand(5), d)
	want, _ := s.Layers[0].Reconstruct(d, Conditional{})
	if got, _ := s.Reconstruct(d); got != want {
		t.Errorf("Expected %v Got %v", want, got)
	}
}

func TestTrainLayersConfigCount(t *testing.T) {
	d := mustDataset(t, fiveSamples(), nil, 0)
	s := NewDBN(4, []int{3, 2}, 0)
	if _, err := s.TrainLayers(newRand(1), d, make([]TrainConfig, 1)); errors.Cause(err) != ErrConfig {
		t.Errorf("Expected ErrConfig Got %v", err)
	}
}

func TestSizeReport(t *testing.T) {
	r := NewDBN(4, []int{3, 2}, 0).SizeReport()
	for _, want := range []string{"DBN[0]", "DBN[1]", "Params: 19", "Params: 11", "Params: 30", "Units: 5"} {
		if !strings.Contains(r, want) {
			t.Errorf("report lacks %q:\n%s", want, r)
		}
	}
}

func TestStackTrainDiscriminative(t *testing.T) {
	d := labeledBars(t)
	for _, s := range []*Stack{NewDBN(4, []int{5, 4}, 2), NewDBM(4, []int{5, 4}, 2)} {
		rng := newRand(12)
		if err := s.Initialize(rng, d); err != nil {
			t.Fatalf("%v", err)
		}
		top := s.Layers[1]
		top.Lambda = 0.01
		u0 := cloneMatrix(top.U)
		cfg := TrainConfig{Algorithm: CD, Epochs: 3, GibbsSteps: 1, BatchSize: 4}

		e, err := s.TrainDiscriminative(rng, d, []TrainConfig{cfg, cfg})
		if err != nil {
			t.Fatalf("%v: %v", s.Kind, err)
		}
		if e < 0 || e > 1 {
			t.Errorf("%v: error rate %v", s.Kind, e)
		}
		if floats.Equal(u0.Data, top.U.Data) {
			t.Errorf("%v: label weights were not trained", s.Kind)
		}

		rate, err := s.Classify(d)
		if err != nil {
			t.Fatalf("%v: %v", s.Kind, err)
		}
		in := s.Propagate(d, 1)
		right := 0
		for i, sample := range d.Samples {
			p := s.Predict(sample.Features)
			if want := top.Predict(in.Samples[i].Features); p != want {
				t.Errorf("%v sample %d: Expected %d Got %d", s.Kind, i, want, p)
			}
			if p == sample.Label {
				right++
			}
		}
		if want := 1 - float64(right)/float64(d.Size()); rate != want {
			t.Errorf("%v: Expected error rate %v Got %v", s.Kind, want, rate)
		}
	}
}

func TestStackTrainDiscriminativeNeedsLabels(t *testing.T) {
	d := labeledBars(t)
	s := NewDBN(4, []int{3, 2}, 0)
	cfg := TrainConfig{Algorithm: CD, Epochs: 1, GibbsSteps: 1}
	if _, err := s.TrainDiscriminative(newRand(1), d, []TrainConfig{cfg, cfg}); errors.Cause(err) != ErrDimension {
		t.Errorf("Expected ErrDimension Got %v", err)
	}
	if _, err := s.Classify(d); errors.Cause(err) != ErrDimension {
		t.Errorf("Expected ErrDimension Got %v", err)
	}
}
