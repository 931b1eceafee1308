package boltzmann

import (
	"fmt"
	"math/rand"
	"strings"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"

	"boltzmann/dataset"
)

// Kind tells how a Stack couples its layers.
type Kind int

const (
	// BeliefNet layers are standalone RBMs (a deep belief network).
	BeliefNet Kind = iota
	// BoltzmannMachine layers double the input they receive from a
	// neighbouring layer (a deep Boltzmann machine).
	BoltzmannMachine
)

func (k Kind) String() string {
	if k == BoltzmannMachine {
		return "DBM"
	}
	return "DBN"
}

// A Stack is an ordered sequence of RBMs in which the visible units of layer k
// are the hidden units of layer k-1. Layers are trained greedily from the bottom.
type Stack struct {
	Kind   Kind
	Layers []*RBM
}

// NewDBN allocates a deep belief network with len(hidden) layers. The top
// layer gets nL label units.
func NewDBN(nV int, hidden []int, nL int) *Stack {
	return newStack(BeliefNet, nV, hidden, nL)
}

// NewDBM allocates a deep Boltzmann machine with len(hidden) layers.
func NewDBM(nV int, hidden []int, nL int) *Stack {
	return newStack(BoltzmannMachine, nV, hidden, nL)
}

func newStack(kind Kind, nV int, hidden []int, nL int) *Stack {
	if len(hidden) == 0 {
		panic(errors.Wrap(ErrDimension, "a stack needs at least one layer"))
	}
	s := Stack{
		Kind:   kind,
		Layers: make([]*RBM, len(hidden)),
	}
	in := nV
	for k, nH := range hidden {
		labels := 0
		if k == len(hidden)-1 {
			labels = nL
		}
		s.Layers[k] = NewRBM(in, nH, labels)
		in = nH
	}
	return &s
}

// Position returns the coupling variant of layer k.
func (s *Stack) Position(k int) Variant {
	if s.Kind != BoltzmannMachine || len(s.Layers) == 1 {
		return Plain
	}
	switch k {
	case 0:
		return DBMBottom
	case len(s.Layers) - 1:
		return DBMTop
	}
	return DBMIntermediate
}

// Validate checks every layer and that adjacent layers agree on their sizes.
func (s *Stack) Validate() error {
	if s == nil || len(s.Layers) == 0 {
		return ErrNilModel
	}
	for k, m := range s.Layers {
		if err := m.Validate(); err != nil {
			return errors.Wrapf(err, "layer %d", k)
		}
		if k > 0 && m.NumVisible != s.Layers[k-1].NumHidden {
			return errors.Wrapf(ErrDimension, "layer %d has %d visible units, layer %d %d hidden units", k, m.NumVisible, k-1, s.Layers[k-1].NumHidden)
		}
	}
	return nil
}

// Initialize initializes every layer. Layer 0 takes its visible biases from d.
func (s *Stack) Initialize(rng *rand.Rand, d *dataset.Dataset) error {
	for k, m := range s.Layers {
		var data *dataset.Dataset
		if k == 0 {
			data = d
		}
		if err := m.Initialize(rng, data); err != nil {
			return errors.Wrapf(err, "layer %d", k)
		}
	}
	return nil
}

// Train pretrains every layer with the same configuration.
func (s *Stack) Train(rng *rand.Rand, d *dataset.Dataset, cfg TrainConfig) (float64, error) {
	cfgs := make([]TrainConfig, len(s.Layers))
	for k := range cfgs {
		cfgs[k] = cfg
	}
	return s.TrainLayers(rng, d, cfgs)
}

// TrainLayers trains layer k with cfgs[k] on the hidden probabilities of
// layer k-1 over d, then moves on to layer k+1. The position variant of each
// layer is added to its configuration. It returns the error of the top layer.
func (s *Stack) TrainLayers(rng *rand.Rand, d *dataset.Dataset, cfgs []TrainConfig) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if len(cfgs) != len(s.Layers) {
		return 0, errors.Wrapf(ErrConfig, "%d configurations for %d layers", len(cfgs), len(s.Layers))
	}
	input := d
	var e float64
	for k, m := range s.Layers {
		cfg := cfgs[k]
		cfg.Layer = k
		cfg.Variant |= s.Position(k)
		var err error
		e, err = m.Train(rng, input, cfg)
		if err != nil {
			return 0, errors.Wrapf(err, "%v layer %d", s.Kind, k)
		}
		if k < len(s.Layers)-1 {
			input = s.propagate(input, k)
		}
	}
	return e, nil
}

// TrainDiscriminative pretrains every layer below the top as TrainLayers does
// and then trains the top layer, which must have label units, as a
// discriminative RBM on the propagated data. It returns the training error
// rate of the top layer.
func (s *Stack) TrainDiscriminative(rng *rand.Rand, d *dataset.Dataset, cfgs []TrainConfig) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if len(cfgs) != len(s.Layers) {
		return 0, errors.Wrapf(ErrConfig, "%d configurations for %d layers", len(cfgs), len(s.Layers))
	}
	top := len(s.Layers) - 1
	if s.Layers[top].NumLabels == 0 {
		return 0, errors.Wrapf(ErrDimension, "%v top layer has no label units", s.Kind)
	}
	input := d
	for k, m := range s.Layers[:top] {
		cfg := cfgs[k]
		cfg.Layer = k
		cfg.Variant |= s.Position(k)
		if _, err := m.Train(rng, input, cfg); err != nil {
			return 0, errors.Wrapf(err, "%v layer %d", s.Kind, k)
		}
		input = s.propagate(input, k)
	}
	cfg := cfgs[top]
	cfg.Layer = top
	e, err := s.Layers[top].TrainDiscriminative(rng, input, cfg)
	if err != nil {
		return 0, errors.Wrapf(err, "%v layer %d", s.Kind, top)
	}
	return e, nil
}

// Predict returns the most likely label of v according to the top layer.
func (s *Stack) Predict(v []float64) int {
	top := len(s.Layers) - 1
	for k, m := range s.Layers[:top] {
		v = m.Forward(v, Conditional{Variant: s.Position(k)})
	}
	return s.Layers[top].Predict(v)
}

// Classify propagates d to the top layer and returns its error rate.
func (s *Stack) Classify(d *dataset.Dataset) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if err := checkData(s.Layers[0], d); err != nil {
		return 0, err
	}
	top := len(s.Layers) - 1
	return s.Layers[top].Classify(s.Propagate(d, top))
}

func (s *Stack) propagate(d *dataset.Dataset, k int) *dataset.Dataset {
	m := s.Layers[k]
	c := Conditional{Variant: s.Position(k)}
	return d.Map(func(v []float64) []float64 { return m.Forward(v, c) })
}

// Propagate returns the dataset layer k is trained on: d for layer 0 and the
// hidden probabilities of layer k-1 otherwise.
func (s *Stack) Propagate(d *dataset.Dataset, k int) *dataset.Dataset {
	for i := 0; i < k; i++ {
		d = s.propagate(d, i)
	}
	return d
}

// Forward returns the hidden probabilities of the top layer for v.
func (s *Stack) Forward(v []float64) []float64 {
	for k, m := range s.Layers {
		v = m.Forward(v, Conditional{Variant: s.Position(k)})
	}
	return v
}

// Reconstruct runs every sample up through the stack and back down, and
// returns the mean squared reconstruction error over d.
func (s *Stack) Reconstruct(d *dataset.Dataset) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if err := checkData(s.Layers[0], d); err != nil {
		return 0, err
	}
	var sum float64
	for _, sample := range d.Samples {
		h := s.Forward(sample.Features)
		for k := len(s.Layers) - 1; k >= 0; k-- {
			m := s.Layers[k]
			c := Conditional{Variant: s.Position(k)}
			if m.IsGaussian() {
				c.Variant |= Gaussian
			}
			h = m.VisibleProbs(h, c)
		}
		sum += meanSquaredError(sample.Features, h)
	}
	return sum / float64(d.Size()), nil
}

// SizeReport lists the number of units and parameters of every layer and the
// memory they take.
func (s *Stack) SizeReport() string {
	var b strings.Builder
	units, params := 0, 0
	fsize := int(unsafe.Sizeof(float64(0)))
	for k, m := range s.Layers {
		n := m.NumHidden
		p := len(m.W.Data) + len(m.A) + len(m.B) + len(m.U.Data) + len(m.C) + len(m.Sigma)
		units += n
		params += p
		fmt.Fprintf(&b, "%14s:\t Units: %d\t Params: %d\t ParamMem: %v\n", fmt.Sprintf("%v[%d]", s.Kind, k), n, p, datasize.ByteSize(p*fsize).HumanReadable())
	}
	fmt.Fprintf(&b, "\n%14s:\t Units: %d\t Params: %d\t ParamMem: %v\n", s.Kind, units, params, datasize.ByteSize(params*fsize).HumanReadable())
	return b.String()
}
