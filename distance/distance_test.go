package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Single", []float32{2}, []float32{3}, 6},
		{"Unrolled", []float32{1, 1, 1, 1, 1}, []float32{1, 2, 3, 4, 5}, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-5)
		})
	}
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, float32(5), Norm([]float32{3, 4}), 1e-6)
	assert.InDelta(t, float32(25), SquaredNorm([]float32{3, 4}), 1e-6)
	assert.Equal(t, float32(0), Norm(nil))
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Identical", []float32{1, 2}, []float32{2, 4}, 0},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"Opposite", []float32{1, 0}, []float32{-3, 0}, 2},
		{"ZeroVector", []float32{0, 0}, []float32{1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineDistance(tt.a, tt.b), 1e-5)
		})
	}
}

func TestInnerProductDistance(t *testing.T) {
	assert.InDelta(t, float32(-32), InnerProductDistance([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)
}

func TestMetric(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "Cosine", Cosine.String())
		assert.Equal(t, "InnerProduct", InnerProduct.String())
		assert.Equal(t, "Unknown(99)", Metric(99).String())
	})

	t.Run("Similarity", func(t *testing.T) {
		assert.InDelta(t, float32(0.75), Cosine.Similarity(0.25), 1e-6)
		assert.InDelta(t, float32(3), InnerProduct.Similarity(-3), 1e-6)
	})

	t.Run("Provider", func(t *testing.T) {
		f, err := Provider(Cosine)
		require.NoError(t, err)
		assert.InDelta(t, float32(0), f([]float32{1, 1}, []float32{2, 2}), 1e-5)

		f, err = Provider(InnerProduct)
		require.NoError(t, err)
		assert.InDelta(t, float32(-4), f([]float32{1, 1}, []float32{2, 2}), 1e-5)

		_, err = Provider(Metric(99))
		assert.Error(t, err)
	})
}
