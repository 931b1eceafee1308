package boltzmann

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

const tol = 1e-12

func randomRBM(seed int64, nV, nH, nL int, scale float64) *RBM {
	rng := newRand(seed)
	m := NewRBM(nV, nH, nL)
	for _, s := range [][]float64{m.W.Data, m.A, m.B, m.U.Data, m.C} {
		for i := range s {
			s[i] = scale * rng.NormFloat64()
		}
	}
	return m
}

func checkProbs(t *testing.T, name string, p []float64) {
	for i, x := range p {
		if x < 0 || x > 1 || math.IsNaN(x) {
			t.Fatalf("%s[%d] = %v outside [0, 1]", name, i, x)
		}
	}
}

func TestHiddenProbsByHand(t *testing.T) {
	m := NewRBM(2, 2, 0)
	copy(m.W.Data, []float64{0.5, -1, 2, 0.25})
	m.B[0], m.B[1] = 0.1, -0.2
	v := []float64{1, 0.5}

	p := m.HiddenProbs(v, Conditional{})
	want := []float64{Sigmoid(0.5*1 + 2*0.5 + 0.1), Sigmoid(-1*1 + 0.25*0.5 - 0.2)}
	if !floats.EqualApprox(p, want, tol) {
		t.Errorf("Expected %v Got %v", want, p)
	}

	m.T = 2
	p = m.HiddenProbs(v, Conditional{})
	want = []float64{Sigmoid((0.5*1+2*0.5)/2 + 0.1), Sigmoid((-1*1+0.25*0.5)/2 - 0.2)}
	if !floats.EqualApprox(p, want, tol) {
		t.Errorf("temperature: Expected %v Got %v", want, p)
	}
}

func TestVisibleProbsByHand(t *testing.T) {
	m := NewRBM(2, 2, 0)
	copy(m.W.Data, []float64{0.5, -1, 2, 0.25})
	m.A[0], m.A[1] = -0.3, 0.4
	h := []float64{1, 1}
	p := m.VisibleProbs(h, Conditional{})
	want := []float64{Sigmoid(0.5 - 1 - 0.3), Sigmoid(2 + 0.25 + 0.4)}
	if !floats.EqualApprox(p, want, tol) {
		t.Errorf("Expected %v Got %v", want, p)
	}
}

func TestProbabilityRange(t *testing.T) {
	m := randomRBM(1, 6, 5, 3, 50)
	rng := newRand(2)
	for n := 0; n < 20; n++ {
		v := randomFeatures(rng, 1, 6)[0]
		h := randomFeatures(rng, 1, 5)[0]
		for _, variant := range []Variant{Plain, Dropout, Dropconnect, DBMBottom, DBMTop, DBMIntermediate, Dropout | DBMIntermediate} {
			c := Conditional{Variant: variant}
			checkProbs(t, "P(h|v)", m.HiddenProbs(v, c))
			checkProbs(t, "P(v|h)", m.VisibleProbs(h, c))
		}
		py := m.LabelProbs(h)
		checkProbs(t, "P(y|h)", py)
		if math.Abs(floats.Sum(py)-1) > 1e-9 {
			t.Errorf("label probabilities sum to %v", floats.Sum(py))
		}
	}
	for _, x := range []float64{-30, -1, 0, 1, 30} {
		if s := Sigmoid(x); s <= 0 || s >= 1 {
			t.Errorf("Sigmoid(%v) = %v not in (0, 1)", x, s)
		}
	}
}

func TestMaskIdentity(t *testing.T) {
	m := randomRBM(3, 5, 4, 0, 1)
	v := []float64{1, 0, 1, 1, 0}
	h := []float64{0.2, 0.9, 0.5, 0.1}
	plainH := m.HiddenProbs(v, Conditional{})
	plainV := m.VisibleProbs(h, Conditional{})
	for _, variant := range []Variant{Dropout, Dropconnect, Dropout | Dropconnect} {
		c := Conditional{Variant: variant}
		if got := m.HiddenProbs(v, c); !floats.EqualApprox(got, plainH, tol) {
			t.Errorf("%v hidden: Expected %v Got %v", variant, plainH, got)
		}
		if got := m.VisibleProbs(h, c); !floats.EqualApprox(got, plainV, tol) {
			t.Errorf("%v visible: Expected %v Got %v", variant, plainV, got)
		}
	}
}

func TestDropoutMask(t *testing.T) {
	m := randomRBM(4, 3, 3, 0, 1)
	m.R[1] = 0
	v := []float64{1, 1, 0}
	p := m.HiddenProbs(v, Conditional{Variant: Dropout})
	plain := m.HiddenProbs(v, Conditional{})
	if p[1] != 0 || p[0] != plain[0] || p[2] != plain[2] {
		t.Errorf("Expected unit 1 dropped Got %v (plain %v)", p, plain)
	}
	// A dropped hidden unit does not reach the visible units.
	h := []float64{1, 1, 1}
	got := m.VisibleProbs(h, Conditional{Variant: Dropout})
	want := m.VisibleProbs([]float64{1, 0, 1}, Conditional{})
	if !floats.EqualApprox(got, want, tol) {
		t.Errorf("Expected %v Got %v", want, got)
	}
}

func TestDropconnectMask(t *testing.T) {
	m := randomRBM(5, 2, 2, 0, 1)
	m.M.Data[1] = 0 // connection v0-h1
	v := []float64{1, 1}
	p := m.HiddenProbs(v, Conditional{Variant: Dropconnect})
	want1 := Sigmoid(m.W.Data[3] + m.B[1])
	if math.Abs(p[1]-want1) > tol {
		t.Errorf("Expected %v Got %v", want1, p[1])
	}
	if m.W.Data[1] == 0 {
		t.Fatal("dropconnect must not modify W")
	}
}

func TestDoubledCoupling(t *testing.T) {
	m := randomRBM(6, 4, 3, 0, 1)
	v := []float64{1, 0, 1, 1}
	h := []float64{1, 0, 1}

	doubled := m.Clone()
	floats.Scale(2, doubled.W.Data)

	wantUp := doubled.HiddenProbs(v, Conditional{})
	wantDown := doubled.VisibleProbs(h, Conditional{})
	plainUp := m.HiddenProbs(v, Conditional{})
	plainDown := m.VisibleProbs(h, Conditional{})

	cases := []struct {
		variant  Variant
		up, down []float64
	}{
		{DBMBottom, wantUp, plainDown},
		{DBMTop, plainUp, wantDown},
		{DBMIntermediate, wantUp, wantDown},
	}
	for _, c := range cases {
		cond := Conditional{Variant: c.variant}
		if got := m.HiddenProbs(v, cond); !floats.EqualApprox(got, c.up, tol) {
			t.Errorf("%v up: Expected %v Got %v", c.variant, c.up, got)
		}
		if got := m.VisibleProbs(h, cond); !floats.EqualApprox(got, c.down, tol) {
			t.Errorf("%v down: Expected %v Got %v", c.variant, c.down, got)
		}
	}
}

func TestFastWeights(t *testing.T) {
	m := randomRBM(7, 3, 2, 0, 1)
	fast := NewMatrix(3, 2)
	for i := range fast.Data {
		fast.Data[i] = 0.1 * float64(i+1)
	}
	v := []float64{1, 0, 1}
	got := m.HiddenProbs(v, Conditional{Variant: FastWeights, Fast: fast})

	shifted := m.Clone()
	floats.Add(shifted.W.Data, fast.Data)
	want := shifted.HiddenProbs(v, Conditional{})
	if !floats.EqualApprox(got, want, tol) {
		t.Errorf("Expected %v Got %v", want, got)
	}
	// W itself is untouched and zero fast weights reproduce the plain form.
	zero := NewMatrix(3, 2)
	if p := m.HiddenProbs(v, Conditional{Variant: FastWeights, Fast: zero}); !floats.EqualApprox(p, m.HiddenProbs(v, Conditional{}), tol) {
		t.Errorf("zero fast weights changed the result")
	}
}

func TestGaussianConditionals(t *testing.T) {
	m := NewGaussianRBM(2, 1)
	copy(m.W.Data, []float64{0.5, -2})
	m.B[0] = 0.3
	m.A[0], m.A[1] = 1, -1
	m.Sigma[0], m.Sigma[1] = 2, 0.5
	v := []float64{1, 1}
	c := Conditional{Variant: Gaussian}

	p := m.HiddenProbs(v, c)
	want := Sigmoid(-(1/2.0*0.5 + 1/0.5*-2) - 0.3)
	if math.Abs(p[0]-want) > tol {
		t.Errorf("hidden: Expected %v Got %v", want, p[0])
	}
	mean := m.VisibleProbs([]float64{1}, c)
	wantMean := []float64{0.5*2 + 1, -2*0.5 - 1}
	if !floats.EqualApprox(mean, wantMean, tol) {
		t.Errorf("mean: Expected %v Got %v", wantMean, mean)
	}
}

func TestDiscriminativeHidden(t *testing.T) {
	m := randomRBM(8, 3, 2, 2, 1)
	v := []float64{1, 0, 1}
	y := oneHot(2, 1)
	got := m.HiddenProbs(v, Conditional{Variant: Discriminative, Label: y})
	wv := mulVec(true, 1, m.W, v)
	for j := range got {
		want := Sigmoid(wv[j] + m.U.Data[1*m.U.Stride+j] + m.B[j])
		if math.Abs(got[j]-want) > tol {
			t.Errorf("h%d: Expected %v Got %v", j, want, got[j])
		}
	}
}

func TestVariantString(t *testing.T) {
	if s := (Dropout | DBMIntermediate).String(); s != "dropout|doubleup|doubledown" {
		t.Errorf("Got %q", s)
	}
	if Plain.String() != "plain" {
		t.Errorf("Got %q", Plain.String())
	}
}
