// Package sparse holds the compressed sparse row (CSR) confidence matrices and
// sparse vectors fed to the factorization.
package sparse

import (
	"errors"
	"fmt"
	"slices"
)

// ErrOutOfRange is returned for triplets outside the matrix shape.
var ErrOutOfRange = errors.New("sparse: index out of range")

// Vector is a sparse vector with strictly increasing indices.
type Vector struct {
	Indices []int
	Values  []float32
}

// NewVector sorts the entries by index and sums duplicates.
func NewVector(indices []int, values []float32) Vector {
	type entry struct {
		i int
		v float32
	}

	entries := make([]entry, len(indices))
	for k := range indices {
		entries[k] = entry{indices[k], values[k]}
	}

	slices.SortStableFunc(entries, func(a, b entry) int { return a.i - b.i })

	var out Vector
	for _, e := range entries {
		if n := len(out.Indices); n > 0 && out.Indices[n-1] == e.i {
			out.Values[n-1] += e.v
			continue
		}

		out.Indices = append(out.Indices, e.i)
		out.Values = append(out.Values, e.v)
	}

	return out
}

// Len returns the number of stored entries.
func (v Vector) Len() int { return len(v.Indices) }

// Matrix is an immutable CSR matrix.
type Matrix struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float32
}

// NewFromTriplets builds a rows×cols matrix from coordinate triplets.
// Duplicate coordinates are summed.
func NewFromTriplets(rows, cols int, r, c []int, v []float32) (*Matrix, error) {
	if len(r) != len(c) || len(r) != len(v) {
		return nil, fmt.Errorf("sparse: triplet lengths differ: %d/%d/%d", len(r), len(c), len(v))
	}

	counts := make([]int, rows+1)
	for k := range r {
		if r[k] < 0 || r[k] >= rows || c[k] < 0 || c[k] >= cols {
			return nil, fmt.Errorf("%w: (%d, %d) in %dx%d", ErrOutOfRange, r[k], c[k], rows, cols)
		}
		counts[r[k]+1]++
	}

	for i := 1; i <= rows; i++ {
		counts[i] += counts[i-1]
	}

	// Scatter into row buckets, then sort and merge each row.
	cursor := slices.Clone(counts)
	idx := make([]int, len(r))
	val := make([]float32, len(r))
	for k := range r {
		p := cursor[r[k]]
		idx[p] = c[k]
		val[p] = v[k]
		cursor[r[k]]++
	}

	m := &Matrix{rows: rows, cols: cols, indptr: make([]int, rows+1)}
	for i := 0; i < rows; i++ {
		row := NewVector(idx[counts[i]:counts[i+1]], val[counts[i]:counts[i+1]])
		m.indices = append(m.indices, row.Indices...)
		m.data = append(m.data, row.Values...)
		m.indptr[i+1] = len(m.indices)
	}

	return m, nil
}

// NewFromDense builds a matrix from dense rows, dropping zeros.
func NewFromDense(dense [][]float32) (*Matrix, error) {
	cols := 0
	if len(dense) > 0 {
		cols = len(dense[0])
	}

	var r, c []int
	var v []float32
	for i, row := range dense {
		if len(row) != cols {
			return nil, fmt.Errorf("sparse: ragged row %d: %d != %d", i, len(row), cols)
		}
		for j, x := range row {
			if x != 0 {
				r = append(r, i)
				c = append(c, j)
				v = append(v, x)
			}
		}
	}

	return NewFromTriplets(len(dense), cols, r, c, v)
}

// Dims returns the shape.
func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }

// Nnz returns the number of stored entries.
func (m *Matrix) Nnz() int { return len(m.data) }

// Row returns row i as a sparse vector sharing the matrix storage.
func (m *Matrix) Row(i int) Vector {
	lo, hi := m.indptr[i], m.indptr[i+1]
	return Vector{Indices: m.indices[lo:hi:hi], Values: m.data[lo:hi:hi]}
}

// At returns the value at (i, j).
func (m *Matrix) At(i, j int) float32 {
	row := m.Row(i)
	if k, ok := slices.BinarySearch(row.Indices, j); ok {
		return row.Values[k]
	}

	return 0
}

// Transpose returns a new cols×rows matrix.
func (m *Matrix) Transpose() *Matrix {
	t := &Matrix{
		rows:    m.cols,
		cols:    m.rows,
		indptr:  make([]int, m.cols+1),
		indices: make([]int, len(m.indices)),
		data:    make([]float32, len(m.data)),
	}

	for _, j := range m.indices {
		t.indptr[j+1]++
	}
	for j := 1; j <= m.cols; j++ {
		t.indptr[j] += t.indptr[j-1]
	}

	// Rows are visited in order, so each transposed row stays sorted.
	cursor := slices.Clone(t.indptr)
	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			j := m.indices[k]
			p := cursor[j]
			t.indices[p] = i
			t.data[p] = m.data[k]
			cursor[j]++
		}
	}

	return t
}

// Map returns a copy with fn applied to every stored value.
func (m *Matrix) Map(fn func(i, j int, v float32) float32) *Matrix {
	out := &Matrix{
		rows:    m.rows,
		cols:    m.cols,
		indptr:  m.indptr,
		indices: m.indices,
		data:    make([]float32, len(m.data)),
	}

	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			out.data[k] = fn(i, m.indices[k], m.data[k])
		}
	}

	return out
}
