// Package bars generates the bars-and-stripes dataset: size x size binary
// images in which either whole columns (bars, label 0) or whole rows
// (stripes, label 1) are switched on.
package bars

import (
	"math/rand"

	"boltzmann"
	"boltzmann/dataset"
)

const (
	Bars    = 0
	Stripes = 1
)

// GenImage draws a random image of the given kind, flattened row by row.
func GenImage(rng *rand.Rand, size, kind int) []float64 {
	img := make([]float64, size*size)
	fillImage(rng, size, kind, img)
	return img
}

func fillImage(rng *rand.Rand, size, kind int, img []float64) {
	on := make([]bool, size)
	for i := range on {
		on[i] = rng.Intn(2) == 1
	}
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			line := j
			if kind == Stripes {
				line = i
			}
			if on[line] {
				img[i*size+j] = 1
			} else {
				img[i*size+j] = 0
			}
		}
	}
}

// GenSet draws n images, alternating bars and stripes.
func GenSet(rng *rand.Rand, size, n int) *dataset.Dataset {
	features := boltzmann.MakeTensor2(n, size*size)
	labels := make([]int, n)
	for i := range features {
		labels[i] = i % 2
		fillImage(rng, size, labels[i], features[i])
	}
	d, err := dataset.New(features, labels, 2)
	if err != nil {
		panic(err)
	}
	return d
}
