package boltzmann

import (
	"github.com/gonum/blas/blas64"
	"github.com/gonum/floats"
)

const fastWeightDecay = 19.0 / 20.0

// A chain decides where the negative phase of each batch slot starts and
// which conditional it runs under.
type chain interface {
	// start returns the hidden probabilities that seed the negative phase of slot,
	// given the positive phase probabilities ph0.
	start(slot int, ph0 []float64) []float64
	// finish records the last negative phase hidden probabilities of slot.
	finish(slot int, ph []float64)
	// negative returns the conditional used during the negative phase.
	negative(c Conditional) Conditional
	// update is called after every batch with the averaged pos-neg weight statistics.
	update(g blas64.General)
}

func newChain(a Algorithm, m *RBM, batchSize int) chain {
	switch a {
	case PCD:
		return newPersistent(batchSize)
	case FPCD:
		return newFastPersistent(m.NumVisible, m.NumHidden, batchSize, m.Eta)
	}
	return contrastive{}
}

// contrastive restarts every chain from the data.
type contrastive struct{}

func (contrastive) start(slot int, ph0 []float64) []float64 { return ph0 }
func (contrastive) finish(int, []float64) {}
func (contrastive) negative(c Conditional) Conditional { return c }
func (contrastive) update(blas64.General) {}

// persistent keeps one Markov chain per batch slot across batches and epochs.
type persistent struct {
	chains [][]float64
}

func newPersistent(batchSize int) *persistent {
	return &persistent{chains: make([][]float64, batchSize)}
}

func (p *persistent) start(slot int, ph0 []float64) []float64 {
	if p.chains[slot] == nil {
		return ph0
	}
	return p.chains[slot]
}

func (p *persistent) finish(slot int, ph []float64) {
	p.chains[slot] = ph
}

func (p *persistent) negative(c Conditional) Conditional { return c }
func (p *persistent) update(blas64.General) {}

// fastPersistent is a persistent chain whose negative phase sees W plus a
// quickly adapting, decaying copy of the recent gradients.
type fastPersistent struct {
	*persistent
	fast    blas64.General
	fastEta float64
	decay   float64
}

func newFastPersistent(nV, nH, batchSize int, fastEta float64) *fastPersistent {
	return &fastPersistent{
		persistent: newPersistent(batchSize),
		fast:       NewMatrix(nV, nH),
		fastEta:    fastEta,
		decay:      fastWeightDecay,
	}
}

func (f *fastPersistent) negative(c Conditional) Conditional {
	c.Variant |= FastWeights
	c.Fast = f.fast
	return c
}

func (f *fastPersistent) update(g blas64.General) {
	floats.Scale(f.decay, f.fast.Data)
	floats.AddScaled(f.fast.Data, f.fastEta, g.Data)
}
