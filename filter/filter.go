// Package filter provides the multiwavelet filter matrices used by the
// wavelet transform kernel. A filter of order k is a 2K x 2K orthogonal
// matrix, K = k+1, assembled from the two half-band filters H0 and G0 read
// from the filter library, with H1 and G1 filled in by the symmetry relations
// of the basis family. The transform kernel consumes the eight K x K
// sub-blocks (the four blocks and their transposes) via SubFilter.
package filter

import (
	"errors"
	"fmt"
	"math"
)

// Type selects the polynomial basis family the filter belongs to.
type Type uint8

const (
	Legendre Type = iota
	Interpol
)

func (t Type) String() string {
	switch t {
	case Legendre:
		return "legendre"
	case Interpol:
		return "interpol"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Operation selects the direction a sub-filter is used in: Compression maps
// child scaling coefficients up to parent scaling + detail, Reconstruction
// maps parent scaling + detail down to child scaling.
type Operation uint8

const (
	Compression Operation = iota
	Reconstruction
)

// MaxOrder is the largest polynomial order the filter library carries.
const MaxOrder = 40

var (
	ErrInvalidOrder     = errors.New("filter order out of range")
	ErrUnknownType      = errors.New("unknown filter type")
	ErrSubFilterIndex   = errors.New("sub filter index out of bounds")
	ErrInvalidOperation = errors.New("invalid wavelet transform operation")
)

// Filter is one loaded multiwavelet filter. The full matrix is laid out as
//
//	| G0 G1 |
//	| H0 H1 |
//
// with each block K x K. All blocks are extracted eagerly so SubFilter is a
// plain table lookup on the transform hot path.
type Filter struct {
	Type  Type
	Order int

	filter *Matrix

	h0, h1, g0, g1     *Matrix
	h0t, h1t, g0t, g1t *Matrix
}

// New loads the filter of the given family and order from the library.
func New(typ Type, order int, lib Library) (*Filter, error) {
	if order < 1 || order > MaxOrder {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}
	if typ != Legendre && typ != Interpol {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	k1 := order + 1
	m := NewMatrix(2*k1, 2*k1)

	hPath, gPath, err := lib.FilterPaths(typ, order)
	if err != nil {
		return nil, err
	}
	if err = readFilterBin(m, typ, k1, hPath, gPath); err != nil {
		return nil, err
	}

	f := &Filter{Type: typ, Order: order, filter: m}
	f.fillBlocks()
	return f, nil
}

// FromMatrix builds a filter from an already assembled 2K x 2K matrix. The
// order is inferred from the matrix width. Useful for synthetic filters in
// tests and for bases constructed at runtime.
func FromMatrix(typ Type, data *Matrix) (*Filter, error) {
	if typ != Legendre && typ != Interpol {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if data.Rows != data.Cols || data.Cols%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d is not an even square", ErrMatrixShape, data.Rows, data.Cols)
	}
	order := data.Cols/2 - 1
	if order < 0 || order > MaxOrder {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}
	f := &Filter{Type: typ, Order: order, filter: data}
	f.fillBlocks()
	return f, nil
}

func (f *Filter) fillBlocks() {
	k1 := f.Order + 1
	f.g0 = f.filter.Block(0, 0, k1, k1)
	f.g1 = f.filter.Block(0, k1, k1, k1)
	f.h0 = f.filter.Block(k1, 0, k1, k1)
	f.h1 = f.filter.Block(k1, k1, k1, k1)
	f.g0t = f.g0.Transpose()
	f.g1t = f.g1.Transpose()
	f.h0t = f.h0.Transpose()
	f.h1t = f.h1.Transpose()
}

// SubFilter returns the i'th sub-filter for the given operation. The index
// order matches the kernel's filter index 2*childBit + parentBit for
// reconstruction and 2*parentBit + childBit for compression:
//
//	Reconstruction: H0, G0, H1, G1
//	Compression:    H0t, H1t, G0t, G1t
func (f *Filter) SubFilter(i int, op Operation) (*Matrix, error) {
	switch op {
	case Compression:
		switch i {
		case 0:
			return f.h0t, nil
		case 1:
			return f.h1t, nil
		case 2:
			return f.g0t, nil
		case 3:
			return f.g1t, nil
		}
	case Reconstruction:
		switch i {
		case 0:
			return f.h0, nil
		case 1:
			return f.g0, nil
		case 2:
			return f.h1, nil
		case 3:
			return f.g1, nil
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidOperation, op)
	}
	return nil, fmt.Errorf("%w: %d", ErrSubFilterIndex, i)
}

// Apply multiplies data in place by the full filter matrix. len(data) must
// be 2K.
func (f *Filter) Apply(data []float64) error {
	tmp := make([]float64, len(data))
	if err := f.filter.MulVec(tmp, data); err != nil {
		return err
	}
	copy(data, tmp)
	return nil
}

// ApplyInverse multiplies data in place by the transposed filter matrix. For
// an orthogonal filter this inverts Apply.
func (f *Filter) ApplyInverse(data []float64) error {
	if len(data) != f.filter.Cols {
		return fmt.Errorf("%w: %dx%d matrix, vector %d", ErrMatrixShape, f.filter.Rows, f.filter.Cols, len(data))
	}
	tmp := make([]float64, len(data))
	for j := 0; j < f.filter.Cols; j++ {
		var s float64
		for i := 0; i < f.filter.Rows; i++ {
			s += f.filter.At(i, j) * data[i]
		}
		tmp[j] = s
	}
	copy(data, tmp)
	return nil
}

// fillSymmetry completes G1 and H1 from G0 and H0 in place on the full
// matrix. The relations depend on the basis family.
func fillSymmetry(m *Matrix, typ Type, k1 int) {
	g0 := func(i, j int) float64 { return m.At(i, j) }
	h0 := func(i, j int) float64 { return m.At(k1+i, j) }
	switch typ {
	case Interpol:
		for i := 0; i < k1; i++ {
			for j := 0; j < k1; j++ {
				m.Set(i, k1+j, sign(i+k1)*g0(i, k1-j-1))
				m.Set(k1+i, k1+j, h0(k1-i-1, k1-j-1))
			}
		}
	case Legendre:
		for i := 0; i < k1; i++ {
			for j := 0; j < k1; j++ {
				m.Set(i, k1+j, sign(i+j+k1)*g0(i, j))
				m.Set(k1+i, k1+j, sign(i+j)*h0(i, j))
			}
		}
	}
}

func sign(n int) float64 {
	if n%2 != 0 {
		return -1.0
	}
	return 1.0
}

// SquareNorm returns the Frobenius norm squared of the full filter matrix.
// For an orthogonal 2K x 2K filter this is 2K, which makes it a cheap
// integrity check after loading.
func (f *Filter) SquareNorm() float64 {
	var s float64
	for _, v := range f.filter.Data {
		s += v * v
	}
	return s
}

// IsOrthogonal reports whether the filter matrix rows are orthonormal to
// within tol.
func (f *Filter) IsOrthogonal(tol float64) bool {
	n := f.filter.Rows
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for c := 0; c < n; c++ {
				s += f.filter.At(i, c) * f.filter.At(j, c)
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(s-want) > tol {
				return false
			}
		}
	}
	return true
}
