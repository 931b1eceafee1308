package boltzmann

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/gonum/blas/blas64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	rbmMagic   = [4]byte{'R', 'B', 'M', '1'}
	stackMagic = [4]byte{'S', 'T', 'K', '1'}
)

// Limits on what a header may ask LoadRBM and LoadStack to allocate.
const (
	maxUnits  = 1 << 24
	maxParams = 1 << 26
	maxLayers = 1 << 10
)

// rbmHeader precedes the parameter blobs of a saved RBM.
type rbmHeader struct {
	Magic      [4]byte
	NumVisible int64
	NumHidden  int64
	NumLabels  int64
	Gaussian   int64
	Eta        float64
	EtaMin     float64
	EtaMax     float64
	Alpha      float64
	Lambda     float64
	T          float64
}

func writeVector(w io.Writer, s []float64) error {
	_, err := mat.NewVecDense(len(s), s).MarshalBinaryTo(w)
	return err
}

func writeMatrix(w io.Writer, a blas64.General) error {
	_, err := mat.NewDense(a.Rows, a.Cols, cloneMatrix(a).Data).MarshalBinaryTo(w)
	return err
}

// Sizes of the headers gonum puts in front of the float64 payload.
var (
	vectorHeaderSize = blobHeaderSize(mat.NewVecDense(1, nil))
	matrixHeaderSize = blobHeaderSize(mat.NewDense(1, 1, nil))
)

func blobHeaderSize(m interface{ MarshalBinary() ([]byte, error) }) int {
	b, err := m.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return len(b) - 8
}

// readBlob reads exactly the bytes a blob of n float64s takes, so a forged
// blob header cannot make gonum allocate more than the checked rbmHeader allows.
func readBlob(r io.Reader, header, n int) ([]byte, error) {
	b := make([]byte, header+8*n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readVector(r io.Reader, n int) ([]float64, error) {
	b, err := readBlob(r, vectorHeaderSize, n)
	if err != nil {
		return nil, err
	}
	var v mat.VecDense
	if err := v.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	if v.Len() != n {
		return nil, errors.Wrapf(ErrDimension, "vector has %d entries, want %d", v.Len(), n)
	}
	s := make([]float64, n)
	for i := range s {
		s[i] = v.AtVec(i)
	}
	return s, nil
}

func readMatrix(r io.Reader, rows, cols int) (blas64.General, error) {
	b, err := readBlob(r, matrixHeaderSize, rows*cols)
	if err != nil {
		return blas64.General{}, err
	}
	var d mat.Dense
	if err := d.UnmarshalBinary(b); err != nil {
		return blas64.General{}, err
	}
	if dr, dc := d.Dims(); dr != rows || dc != cols {
		return blas64.General{}, errors.Wrapf(ErrDimension, "matrix is %dx%d, want %dx%d", dr, dc, rows, cols)
	}
	a := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row(a, i), i, &d)
	}
	return a, nil
}

// check rejects dimensions that are not positive or would need more memory
// than any sane model.
func (h *rbmHeader) check() error {
	nV, nH, nL := h.NumVisible, h.NumHidden, h.NumLabels
	switch {
	case nV <= 0 || nH <= 0 || nL < 0:
		return errors.Wrapf(ErrDimension, "header dims %d, %d, %d", nV, nH, nL)
	case nV > maxUnits || nH > maxUnits || nL > maxUnits:
		return errors.Wrapf(ErrDimension, "header dims %d, %d, %d exceed %d units", nV, nH, nL, maxUnits)
	case nV*nH > maxParams || nL*nH > maxParams:
		return errors.Wrapf(ErrDimension, "header dims %d, %d, %d exceed %d weights", nV, nH, nL, maxParams)
	}
	return nil
}

// Save writes the parameters and hyperparameters of m. Masks and the
// visible/hidden state are not saved.
func (m *RBM) Save(w io.Writer) error {
	if err := m.Validate(); err != nil {
		return err
	}
	h := rbmHeader{
		Magic:      rbmMagic,
		NumVisible: int64(m.NumVisible),
		NumHidden:  int64(m.NumHidden),
		NumLabels:  int64(m.NumLabels),
		Eta:        m.Eta,
		EtaMin:     m.EtaMin,
		EtaMax:     m.EtaMax,
		Alpha:      m.Alpha,
		Lambda:     m.Lambda,
		T:          m.T,
	}
	if m.IsGaussian() {
		h.Gaussian = 1
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(err, "write rbm header")
	}
	if err := writeVector(w, m.A); err != nil {
		return errors.Wrap(err, "write visible bias")
	}
	if err := writeVector(w, m.B); err != nil {
		return errors.Wrap(err, "write hidden bias")
	}
	if err := writeMatrix(w, m.W); err != nil {
		return errors.Wrap(err, "write weights")
	}
	if m.NumLabels > 0 {
		if err := writeMatrix(w, m.U); err != nil {
			return errors.Wrap(err, "write label weights")
		}
		if err := writeVector(w, m.C); err != nil {
			return errors.Wrap(err, "write label bias")
		}
	}
	if m.IsGaussian() {
		if err := writeVector(w, m.Sigma); err != nil {
			return errors.Wrap(err, "write sigma")
		}
	}
	return nil
}

// LoadRBM reads an RBM written by Save.
func LoadRBM(r io.Reader) (*RBM, error) {
	var h rbmHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, errors.Wrap(err, "read rbm header")
	}
	if h.Magic != rbmMagic {
		return nil, errors.Errorf("boltzmann: bad rbm magic %q", h.Magic[:])
	}
	if err := h.check(); err != nil {
		return nil, err
	}
	m := NewRBM(int(h.NumVisible), int(h.NumHidden), int(h.NumLabels))
	m.Eta, m.EtaMin, m.EtaMax = h.Eta, h.EtaMin, h.EtaMax
	m.Alpha, m.Lambda, m.T = h.Alpha, h.Lambda, h.T

	var err error
	if m.A, err = readVector(r, m.NumVisible); err != nil {
		return nil, errors.Wrap(err, "read visible bias")
	}
	if m.B, err = readVector(r, m.NumHidden); err != nil {
		return nil, errors.Wrap(err, "read hidden bias")
	}
	if m.W, err = readMatrix(r, m.NumVisible, m.NumHidden); err != nil {
		return nil, errors.Wrap(err, "read weights")
	}
	if m.NumLabels > 0 {
		if m.U, err = readMatrix(r, m.NumLabels, m.NumHidden); err != nil {
			return nil, errors.Wrap(err, "read label weights")
		}
		if m.C, err = readVector(r, m.NumLabels); err != nil {
			return nil, errors.Wrap(err, "read label bias")
		}
	}
	if h.Gaussian != 0 {
		if m.Sigma, err = readVector(r, m.NumVisible); err != nil {
			return nil, errors.Wrap(err, "read sigma")
		}
	}
	return m, nil
}

// Save writes the kind of the stack followed by every layer.
func (s *Stack) Save(w io.Writer) error {
	if err := s.Validate(); err != nil {
		return err
	}
	hdr := struct {
		Magic  [4]byte
		Kind   int64
		Layers int64
	}{stackMagic, int64(s.Kind), int64(len(s.Layers))}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "write stack header")
	}
	for k, m := range s.Layers {
		if err := m.Save(w); err != nil {
			return errors.Wrapf(err, "layer %d", k)
		}
	}
	return nil
}

// LoadStack reads a stack written by Stack.Save.
func LoadStack(r io.Reader) (*Stack, error) {
	var hdr struct {
		Magic  [4]byte
		Kind   int64
		Layers int64
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "read stack header")
	}
	if hdr.Magic != stackMagic {
		return nil, errors.Errorf("boltzmann: bad stack magic %q", hdr.Magic[:])
	}
	if hdr.Layers <= 0 || hdr.Layers > maxLayers {
		return nil, errors.Wrapf(ErrDimension, "stack with %d layers", hdr.Layers)
	}
	if k := Kind(hdr.Kind); k != BeliefNet && k != BoltzmannMachine {
		return nil, errors.Errorf("boltzmann: unknown stack kind %d", hdr.Kind)
	}
	s := Stack{Kind: Kind(hdr.Kind), Layers: make([]*RBM, hdr.Layers)}
	for k := range s.Layers {
		m, err := LoadRBM(r)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", k)
		}
		s.Layers[k] = m
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

type saver interface {
	Save(w io.Writer) error
}

// SaveFile writes an RBM or a Stack to path.
func SaveFile(path string, v saver) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	bw := bufio.NewWriter(f)
	if err := v.Save(bw); err != nil {
		f.Close()
		return errors.Wrapf(err, "save %s", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "flush %s", path)
	}
	return f.Close()
}

// LoadStackFile reads a Stack saved with SaveFile.
func LoadStackFile(path string) (*Stack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	s, err := LoadStack(bufio.NewReader(f))
	return s, errors.Wrapf(err, "load %s", path)
}

// LoadRBMFile reads an RBM saved with SaveFile.
func LoadRBMFile(path string) (*RBM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	m, err := LoadRBM(bufio.NewReader(f))
	return m, errors.Wrapf(err, "load %s", path)
}
