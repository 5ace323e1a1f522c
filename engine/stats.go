package engine

import "github.com/hupe1980/recgo/hnsw"

// Stats summarizes the recommender.
type Stats struct {
	Factors   int                   `json:"factors"`
	Precision string                `json:"precision"`
	Users     int                   `json:"users"`
	Items     int                   `json:"items"`
	MaxNorm   float32               `json:"maxNorm"`
	Indexes   map[string]hnsw.Stats `json:"indexes"`
}

// Stats returns the current matrix sizes and index shapes.
func (r *Recommender) Stats() Stats {
	return Stats{
		Factors:   r.factors,
		Precision: r.precision.String(),
		Users:     r.userFactors.Len(),
		Items:     r.itemFactors.Len(),
		MaxNorm:   r.maxNorm,
		Indexes: map[string]hnsw.Stats{
			IndexSimilarUsers: r.similarUsers.Stats(),
			IndexSimilarItems: r.similarItems.Stats(),
			IndexRecommend:    r.recommend.Stats(),
		},
	}
}
