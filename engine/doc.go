// Package engine provides the dual-entity recommender behind recgo.
//
// A Recommender owns two append-only factor matrices, one per embedding space
// (users/playlists and items/artists), and keeps three ANN indexes in step with
// them:
//
//   - a cosine index over the user factors ("similar users"),
//   - a cosine index over the item factors ("similar items"),
//   - an inner-product index over the item factors in D+1 dimensions
//     ("recommend").
//
// # Recommend Index Padding
//
// Maximum inner-product search is reduced to similarity search by appending
// sqrt(maxNorm² - ‖v‖²) to every item vector and 0 to every query. All padded
// item vectors then share the norm maxNorm, so ranking by inner product in D+1
// dimensions ranks by the original inner product. maxNorm is exact: when an
// insert brings a larger norm the recommend index is rebuilt.
//
// # Concurrency
//
// A Recommender is not synchronized for concurrent mutation. Fit, Set*, Add*
// and LoadIndexes must be serialized by the caller; queries may run
// concurrently with each other.
package engine
