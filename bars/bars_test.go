package bars

import (
	"math/rand"
	"testing"
)

func TestGenImage(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	size := 4
	for n := 0; n < 50; n++ {
		img := GenImage(rng, size, Bars)
		for i := 1; i < size; i++ {
			for j := 0; j < size; j++ {
				if img[i*size+j] != img[j] {
					t.Fatalf("bars image has differing rows: %v", img)
				}
			}
		}
		img = GenImage(rng, size, Stripes)
		for i := 0; i < size; i++ {
			for j := 1; j < size; j++ {
				if img[i*size+j] != img[i*size] {
					t.Fatalf("stripes image has differing columns: %v", img)
				}
			}
		}
	}
}

func TestGenSet(t *testing.T) {
	d := GenSet(rand.New(rand.NewSource(1)), 3, 10)
	if d.Size() != 10 || d.NumFeatures != 9 || d.NumLabels != 2 {
		t.Fatalf("Got size %d features %d labels %d", d.Size(), d.NumFeatures, d.NumLabels)
	}
	for i, s := range d.Samples {
		if s.Label != i%2 {
			t.Errorf("sample %d: Expected label %d Got %d", i, i%2, s.Label)
		}
	}
}
