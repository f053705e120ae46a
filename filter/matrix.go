package filter

import (
	"errors"
	"fmt"
)

var ErrMatrixShape = errors.New("matrix shape mismatch")

// Matrix is a small dense row-major matrix of float64. The filter blocks are
// at most (MaxOrder+1) square so there is no need for anything cleverer.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// Block copies the rows x cols sub-matrix anchored at (i0, j0).
func (m *Matrix) Block(i0, j0, rows, cols int) *Matrix {
	b := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		copy(b.Data[i*cols:(i+1)*cols], m.Data[(i0+i)*m.Cols+j0:(i0+i)*m.Cols+j0+cols])
	}
	return b
}

func (m *Matrix) Transpose() *Matrix {
	t := NewMatrix(m.Cols, m.Rows)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			t.Set(j, i, m.At(i, j))
		}
	}
	return t
}

// MulVec computes dst = m * v. dst and v must not alias.
func (m *Matrix) MulVec(dst, v []float64) error {
	if len(v) != m.Cols || len(dst) != m.Rows {
		return fmt.Errorf("%w: %dx%d matrix, vectors %d <- %d", ErrMatrixShape, m.Rows, m.Cols, len(dst), len(v))
	}
	for i := 0; i < m.Rows; i++ {
		row := m.Data[i*m.Cols : (i+1)*m.Cols]
		var s float64
		for j, rv := range row {
			s += rv * v[j]
		}
		dst[i] = s
	}
	return nil
}
