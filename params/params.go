// Package params reads per-layer hyperparameter files.
//
// A file holds, for every layer, the lines
//
//	n_hidden eta lambda alpha
//	eta_min eta_max
//	p
//
// where the p line (keep probability for dropout/dropconnect) is only present
// when requested. Anything after the expected numbers on a line, and
// everything after a '#', is a comment. Blank lines are skipped.
package params

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"boltzmann"
)

// Layer holds the hyperparameters of one RBM.
type Layer struct {
	Hidden int
	Eta    float64
	Lambda float64
	Alpha  float64
	EtaMin float64
	EtaMax float64
	Keep   float64
}

// Apply copies the learning hyperparameters into m.
func (l Layer) Apply(m *boltzmann.RBM) {
	m.Eta = l.Eta
	m.Lambda = l.Lambda
	m.Alpha = l.Alpha
	m.EtaMin = l.EtaMin
	m.EtaMax = l.EtaMax
}

// Hidden returns the hidden unit count of every layer.
func Hidden(ls []Layer) []int {
	h := make([]int, len(ls))
	for i, l := range ls {
		h[i] = l.Hidden
	}
	return h
}

type lineReader struct {
	s    *bufio.Scanner
	line int
}

// next returns the first n numbers of the next non-blank line.
func (lr *lineReader) next(n int) ([]float64, error) {
	for lr.s.Scan() {
		lr.line++
		text := lr.s.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < n {
			return nil, errors.Errorf("params: line %d: want %d values, got %d", lr.line, n, len(fields))
		}
		vals := make([]float64, n)
		for i := range vals {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "params: line %d value %d", lr.line, i+1)
			}
			vals[i] = v
		}
		return vals, nil
	}
	if err := lr.s.Err(); err != nil {
		return nil, errors.Wrap(err, "params")
	}
	return nil, errors.Wrapf(io.ErrUnexpectedEOF, "params: after line %d", lr.line)
}

// Read parses the hyperparameters of the given number of layers.
func Read(r io.Reader, layers int, withKeep bool) ([]Layer, error) {
	lr := &lineReader{s: bufio.NewScanner(r)}
	ls := make([]Layer, layers)
	for i := range ls {
		v, err := lr.next(4)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		if v[0] < 1 || v[0] != float64(int(v[0])) {
			return nil, errors.Errorf("params: layer %d: line %d: hidden units %v is not a positive integer", i, lr.line, v[0])
		}
		ls[i].Hidden = int(v[0])
		ls[i].Eta, ls[i].Lambda, ls[i].Alpha = v[1], v[2], v[3]

		if v, err = lr.next(2); err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		ls[i].EtaMin, ls[i].EtaMax = v[0], v[1]

		ls[i].Keep = 1
		if withKeep {
			if v, err = lr.next(1); err != nil {
				return nil, errors.Wrapf(err, "layer %d", i)
			}
			ls[i].Keep = v[0]
		}
	}
	return ls, nil
}

// ReadFile is Read on the named file.
func ReadFile(path string, layers int, withKeep bool) ([]Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "params: open %s", path)
	}
	defer f.Close()
	return Read(f, layers, withKeep)
}
