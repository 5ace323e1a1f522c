// Package factor stores dense embedding matrices as append-only arenas.
//
// A row position is the canonical handle of an entity within its space:
// rows are never removed or reordered.
package factor

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/hupe1980/recgo/distance"
	"github.com/hupe1980/recgo/persistence"
)

// Rows is read access to a dense row-major matrix.
type Rows interface {
	Len() int
	Dim() int
	Row(i int) []float32
}

// ErrDimensionMismatch reports a row whose width differs from the matrix width.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("factor: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Matrix is an append-only row-major float32 matrix.
type Matrix struct {
	dim       int
	precision persistence.Precision
	data      []float32
}

var _ Rows = (*Matrix)(nil)

// New returns an empty matrix with rows of width dim.
func New(dim int, precision persistence.Precision) *Matrix {
	return &Matrix{dim: dim, precision: precision}
}

// FromRows builds a matrix from rows, which must all have width dim.
func FromRows(dim int, precision persistence.Precision, rows [][]float32) (*Matrix, error) {
	m := New(dim, precision)
	if _, err := m.Append(rows...); err != nil {
		return nil, err
	}

	return m, nil
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	if m.dim == 0 {
		return 0
	}

	return len(m.data) / m.dim
}

// Dim returns the row width.
func (m *Matrix) Dim() int { return m.dim }

// Precision returns the storage precision.
func (m *Matrix) Precision() persistence.Precision { return m.precision }

// Row returns a view of row i. The slice must not be modified.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim : (i+1)*m.dim]
}

// Rows returns views of all rows.
func (m *Matrix) Rows() [][]float32 {
	out := make([][]float32, m.Len())
	for i := range out {
		out[i] = m.Row(i)
	}

	return out
}

// Truncate drops every row from n on. It is a no-op when n >= Len.
func (m *Matrix) Truncate(n int) {
	if n < 0 {
		n = 0
	}

	if n < m.Len() {
		m.data = m.data[:n*m.dim]
	}
}

// Append validates every row, then copies them into the arena and returns the
// new row count. Float16 matrices round each value to half precision.
func (m *Matrix) Append(rows ...[]float32) (int, error) {
	for _, r := range rows {
		if len(r) != m.dim {
			return m.Len(), &ErrDimensionMismatch{Expected: m.dim, Actual: len(r)}
		}
	}

	m.data = append(m.data, make([]float32, len(rows)*m.dim)...)
	base := len(m.data) - len(rows)*m.dim

	for i, r := range rows {
		dst := m.data[base+i*m.dim : base+(i+1)*m.dim]
		if m.precision == persistence.Float16 {
			for j, v := range r {
				dst[j] = float16.Fromfloat32(v).Float32()
			}
		} else {
			copy(dst, r)
		}
	}

	return m.Len(), nil
}

// MaxNorm returns the largest L2 row norm, or 0 for an empty matrix.
func (m *Matrix) MaxNorm() float32 {
	var best float32
	for i := 0; i < m.Len(); i++ {
		if n := distance.Norm(m.Row(i)); n > best {
			best = n
		}
	}

	return best
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{
		dim:       m.dim,
		precision: m.precision,
		data:      append([]float32(nil), m.data...),
	}
}
