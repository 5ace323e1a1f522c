package sparse

import "math"

// BM25 defaults used to weight play counts before factorization.
const (
	DefaultK1 = 100
	DefaultB  = 0.8
)

// BM25Weight applies Okapi BM25 weighting. Rows are treated as documents and
// columns as terms: every value is saturated by k1, normalized by its row
// length relative to the average (controlled by b) and scaled by the
// column's inverse document frequency.
func BM25Weight(m *Matrix, k1, b float64) *Matrix {
	rows, cols := m.Dims()
	if rows == 0 {
		return m
	}

	df := make([]float64, cols)
	for _, j := range m.indices {
		df[j]++
	}

	idf := make([]float64, cols)
	for j := range idf {
		idf[j] = math.Log(float64(rows)) - math.Log1p(df[j])
	}

	rowSums := make([]float64, rows)
	var total float64
	for i := 0; i < rows; i++ {
		for _, v := range m.Row(i).Values {
			rowSums[i] += float64(v)
		}
		total += rowSums[i]
	}

	avg := total / float64(rows)
	if avg == 0 {
		avg = 1
	}

	return m.Map(func(i, j int, v float32) float32 {
		lengthNorm := (1 - b) + b*rowSums[i]/avg
		x := float64(v)

		return float32(x * (k1 + 1) / (k1*lengthNorm + x) * idf[j])
	})
}
