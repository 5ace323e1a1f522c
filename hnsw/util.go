package hnsw

import "math/rand"

// GenerateRandomVectors returns num vectors with components in [-1, 1).
func GenerateRandomVectors(num int, dimensions int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed)) // nolint gosec

	vectors := make([][]float32, num)

	for i := range vectors {
		vectors[i] = make([]float32, dimensions)

		for j := range vectors[i] {
			vectors[i][j] = 2*r.Float32() - 1
		}
	}

	return vectors
}
