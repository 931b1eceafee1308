package boltzmann

import (
	"math"

	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"
	"github.com/gonum/floats"
)

// sigmaFloor is the smallest standard deviation a Gaussian visible unit may have.
const sigmaFloor = 0.005

func Sigmoid(x float64) float64 {
	return 1.0 / (1 + math.Exp(-x))
}

// softplus computes log(1+exp(x)) without overflowing for large x.
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func MakeTensor2(n, m int) [][]float64 {
	t := make([][]float64, n)
	for i := 0; i < len(t); i++ {
		t[i] = make([]float64, m)
	}
	return t
}

// NewMatrix returns a zeroed row-major rows x cols matrix.
func NewMatrix(rows, cols int) blas64.General {
	return blas64.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   make([]float64, rows*cols),
	}
}

func filledMatrix(rows, cols int, v float64) blas64.General {
	a := NewMatrix(rows, cols)
	for i := range a.Data {
		a.Data[i] = v
	}
	return a
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func cloneMatrix(a blas64.General) blas64.General {
	c := NewMatrix(a.Rows, a.Cols)
	for i := 0; i < a.Rows; i++ {
		copy(c.Data[i*c.Stride:i*c.Stride+a.Cols], a.Data[i*a.Stride:i*a.Stride+a.Cols])
	}
	return c
}

func cloneVector(s []float64) []float64 {
	if s == nil {
		return nil
	}
	c := make([]float64, len(s))
	copy(c, s)
	return c
}

// row returns row i of a as a slice sharing a's storage.
func row(a blas64.General, i int) []float64 {
	return a.Data[i*a.Stride : i*a.Stride+a.Cols]
}

func vec(s []float64) blas64.Vector {
	return blas64.Vector{Inc: 1, Data: s}
}

// mulVec computes alpha * A x (or alpha * Aᵀ x when trans is set) into a fresh slice.
func mulVec(trans bool, alpha float64, a blas64.General, x []float64) []float64 {
	t := blas.NoTrans
	n := a.Rows
	if trans {
		t = blas.Trans
		n = a.Cols
	}
	y := make([]float64, n)
	blas64.Gemv(t, alpha, a, vec(x), 0, vec(y))
	return y
}

// outer accumulates alpha * x yᵀ into a.
func outer(alpha float64, x, y []float64, a blas64.General) {
	blas64.Ger(alpha, vec(x), vec(y), a)
}

// meanSquaredError is the mean of the squared differences between x and y.
func meanSquaredError(x, y []float64) float64 {
	d := floats.Distance(x, y, 2)
	return d * d / float64(len(x))
}

func oneHot(n, k int) []float64 {
	y := make([]float64, n)
	if k >= 0 && k < n {
		y[k] = 1
	}
	return y
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
