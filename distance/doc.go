// Package distance provides the vector kernels used by the recommender indexes.
//
// # Supported Metrics
//
//   - Cosine: 1 - cosine similarity, used by the "similar-to" indexes
//   - InnerProduct: negated dot product, used by the MIPS recommend index
//
// Both metrics are expressed as distances (smaller is closer) so that a single
// graph search can serve them. Metric.Similarity converts a distance back into
// the score reported to callers.
//
// # Usage
//
//	d := distance.CosineDistance(a, b)
//	sim := distance.Dot(a, b)
//	n := distance.Norm(vec)
package distance
