package distance

import (
	"fmt"
	"math"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32

	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}

	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}

	return s0 + s1 + s2 + s3
}

// SquaredNorm returns the squared L2 norm of v.
func SquaredNorm(v []float32) float32 {
	return Dot(v, v)
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(SquaredNorm(v))))
}

// CosineDistance returns 1 - cos(a, b).
// A zero vector is treated as orthogonal to everything (distance 1).
func CosineDistance(a, b []float32) float32 {
	na := SquaredNorm(a)
	nb := SquaredNorm(b)

	if na == 0 || nb == 0 {
		return 1
	}

	return 1 - Dot(a, b)/float32(math.Sqrt(float64(na)*float64(nb)))
}

// InnerProductDistance returns -dot(a, b).
func InnerProductDistance(a, b []float32) float32 {
	return -Dot(a, b)
}

// Metric represents the distance metric an index is created with.
type Metric uint8

const (
	Cosine Metric = iota
	InnerProduct
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "Cosine"
	case InnerProduct:
		return "InnerProduct"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Similarity converts a distance produced under m into a similarity score
// (larger is closer).
func (m Metric) Similarity(d float32) float32 {
	if m == Cosine {
		return 1 - d
	}

	return -d
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case Cosine:
		return CosineDistance, nil
	case InnerProduct:
		return InnerProductDistance, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
