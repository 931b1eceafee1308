// Package dataset holds labeled samples consumed by the Boltzmann machine trainers.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmpty     = errors.New("dataset: no samples")
	ErrDimension = errors.New("dataset: inconsistent feature count")
)

// Sample is a feature vector with an integer class label in [0, NumLabels).
type Sample struct {
	Features []float64
	Label    int
}

// Dataset is an ordered, read-only sequence of samples.
type Dataset struct {
	Samples     []Sample
	NumFeatures int
	NumLabels   int
}

// New builds a dataset from feature rows and labels. labels may be nil.
func New(features [][]float64, labels []int, numLabels int) (*Dataset, error) {
	if len(features) == 0 {
		return nil, ErrEmpty
	}
	if labels != nil && len(labels) != len(features) {
		return nil, errors.Errorf("dataset: %d labels for %d samples", len(labels), len(features))
	}
	d := &Dataset{
		Samples:     make([]Sample, len(features)),
		NumFeatures: len(features[0]),
		NumLabels:   numLabels,
	}
	for i, f := range features {
		d.Samples[i].Features = f
		if labels != nil {
			d.Samples[i].Label = labels[i]
		}
	}
	return d, d.Validate()
}

func (d *Dataset) Size() int {
	return len(d.Samples)
}

// Validate checks that every sample has NumFeatures features and a label in range.
func (d *Dataset) Validate() error {
	if d == nil || len(d.Samples) == 0 {
		return ErrEmpty
	}
	for i, s := range d.Samples {
		if len(s.Features) != d.NumFeatures {
			return errors.Wrapf(ErrDimension, "sample %d has %d features, want %d", i, len(s.Features), d.NumFeatures)
		}
		if d.NumLabels > 0 && (s.Label < 0 || s.Label >= d.NumLabels) {
			return errors.Errorf("dataset: sample %d label %d out of range [0, %d)", i, s.Label, d.NumLabels)
		}
	}
	return nil
}

// Batches splits the samples sequentially into slices of at most size samples.
// The last batch is shorter when Size is not a multiple of size.
func (d *Dataset) Batches(size int) [][]Sample {
	if size <= 0 || size > len(d.Samples) {
		size = len(d.Samples)
	}
	batches := make([][]Sample, 0, (len(d.Samples)+size-1)/size)
	for start := 0; start < len(d.Samples); start += size {
		end := start + size
		if end > len(d.Samples) {
			end = len(d.Samples)
		}
		batches = append(batches, d.Samples[start:end])
	}
	return batches
}

// Marginals returns the per-feature mean over all samples.
func (d *Dataset) Marginals() []float64 {
	m := make([]float64, d.NumFeatures)
	for _, s := range d.Samples {
		for i, x := range s.Features {
			m[i] += x
		}
	}
	n := float64(len(d.Samples))
	for i := range m {
		m[i] /= n
	}
	return m
}

// Map returns a new dataset whose features are f applied to each sample,
// keeping labels. The feature count is taken from the first result.
func (d *Dataset) Map(f func([]float64) []float64) *Dataset {
	out := &Dataset{
		Samples:   make([]Sample, len(d.Samples)),
		NumLabels: d.NumLabels,
	}
	for i, s := range d.Samples {
		out.Samples[i] = Sample{Features: f(s.Features), Label: s.Label}
	}
	if len(out.Samples) > 0 {
		out.NumFeatures = len(out.Samples[0].Features)
	}
	return out
}

// ReadCSV reads a dataset from a csv file. When labeled is set the first
// column holds the integer label and the remaining columns the features.
func ReadCSV(path string, labeled bool) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()
	d, err := DecodeCSV(f, labeled)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: read %s", path)
	}
	return d, nil
}

// DecodeCSV is ReadCSV over an arbitrary reader.
func DecodeCSV(r io.Reader, labeled bool) (*Dataset, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	var features [][]float64
	var labels []int
	maxLabel := -1
	for ri, row := range rows {
		in := row
		if labeled {
			l, err := strconv.Atoi(strings.TrimSpace(row[0]))
			if err != nil {
				return nil, errors.Wrapf(err, "row %d label", ri)
			}
			if l > maxLabel {
				maxLabel = l
			}
			labels = append(labels, l)
			in = row[1:]
		}
		inf := make([]float64, len(in))
		for idx := range inf {
			inf[idx], err = strconv.ParseFloat(strings.TrimSpace(in[idx]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", ri, idx)
			}
		}
		features = append(features, inf)
	}
	return New(features, labels, maxLabel+1)
}
