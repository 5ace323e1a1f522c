package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/recgo/als"
	"github.com/hupe1980/recgo/distance"
	"github.com/hupe1980/recgo/factor"
	"github.com/hupe1980/recgo/hnsw"
	"github.com/hupe1980/recgo/persistence"
	"github.com/hupe1980/recgo/sparse"
)

// Recommendation is a ranked item.
type Recommendation struct {
	Position int     `json:"position"`
	Score    float32 `json:"score"`
}

// state is everything Fit and LoadIndexes replace wholesale.
type state struct {
	userFactors  *factor.Matrix
	itemFactors  *factor.Matrix
	similarUsers *hnsw.HNSW
	similarItems *hnsw.HNSW
	recommend    *hnsw.HNSW

	// maxNorm is the padding norm of every vector in recommend.
	maxNorm float32
}

// Recommender keeps two factor matrices and three ANN indexes consistent.
type Recommender struct {
	factors        int
	workers        int
	iterations     int
	m              int
	ef             int
	regularization float64
	seed           int64
	precision      persistence.Precision
	compression    persistence.Compression

	factorizer Factorizer
	logger     *slog.Logger
	metrics    MetricsObserver

	state
}

// New creates an empty recommender.
func New(optFns ...Option) (*Recommender, error) {
	r := &Recommender{
		factors:        DefaultFactors,
		workers:        defaultWorkers(),
		iterations:     DefaultIterations,
		m:              DefaultM,
		ef:             DefaultEF,
		regularization: DefaultRegularization,
		seed:           1,
		precision:      persistence.Float32,
		compression:    persistence.CompressionNone,
		logger:         slog.New(slog.DiscardHandler),
		metrics:        NoopMetricsObserver{},
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(r)
		}
	}

	if r.factors <= 0 {
		return nil, fmt.Errorf("engine: factors must be positive, got %d", r.factors)
	}

	if r.factorizer == nil {
		solver, err := als.New(func(o *als.Options) {
			o.Factors = r.factors
			o.Regularization = r.regularization
			o.Iterations = r.iterations
			o.Workers = r.workers
			o.Seed = r.seed
			o.Progress = r.logProgress
		})
		if err != nil {
			return nil, err
		}

		r.factorizer = solver
	}

	st, err := r.newState(context.Background(), nil, nil)
	if err != nil {
		return nil, err
	}

	r.state = *st

	return r, nil
}

func (r *Recommender) logProgress(iteration, total int, elapsed time.Duration) {
	r.logger.Debug("als iteration completed",
		"iteration", iteration,
		"total", total,
		"elapsed", elapsed,
	)
}

// Factors returns the embedding width D.
func (r *Recommender) Factors() int { return r.factors }

// Precision returns the factor storage precision.
func (r *Recommender) Precision() persistence.Precision { return r.precision }

// Users returns the number of user rows.
func (r *Recommender) Users() int { return r.userFactors.Len() }

// Items returns the number of item rows.
func (r *Recommender) Items() int { return r.itemFactors.Len() }

// UserFactors returns the user factor matrix. It must not be modified.
func (r *Recommender) UserFactors() factor.Rows { return r.userFactors }

// ItemFactors returns the item factor matrix. It must not be modified.
func (r *Recommender) ItemFactors() factor.Rows { return r.itemFactors }

// MaxNorm returns the norm used to pad the recommend index.
func (r *Recommender) MaxNorm() float32 { return r.maxNorm }

// UserFactor returns a copy of the user row at position row.
func (r *Recommender) UserFactor(row int) ([]float32, bool) {
	if row < 0 || row >= r.userFactors.Len() {
		return nil, false
	}

	return slices.Clone(r.userFactors.Row(row)), true
}

// Fit factorizes an items×users confidence matrix and rebuilds everything
// from scratch. On failure the previous state is kept.
func (r *Recommender) Fit(ctx context.Context, itemUsers *sparse.Matrix) (err error) {
	start := time.Now()

	defer func() {
		r.metrics.OnFit(time.Since(start), r.userFactors.Len(), r.itemFactors.Len(), err)
	}()

	if itemUsers == nil {
		return &ErrFactorization{cause: errors.New("nil confidence matrix")}
	}

	items, users := itemUsers.Dims()

	r.logger.InfoContext(ctx, "fit started",
		"users", users,
		"items", items,
		"factors", r.factors,
	)

	userRows, itemRows, err := r.factorizer.Factorize(ctx, itemUsers.Transpose())
	if err != nil {
		return &ErrFactorization{cause: err}
	}

	if len(userRows) != users || len(itemRows) != items {
		return &ErrFactorization{cause: fmt.Errorf("got %d user and %d item factors for a %d×%d matrix",
			len(userRows), len(itemRows), items, users)}
	}

	if err := r.checkWidth(userRows...); err != nil {
		return &ErrFactorization{cause: err}
	}

	if err := r.checkWidth(itemRows...); err != nil {
		return &ErrFactorization{cause: err}
	}

	st, err := r.newState(ctx, userRows, itemRows)
	if err != nil {
		return err
	}

	r.state = *st

	r.logger.InfoContext(ctx, "fit completed",
		"users", users,
		"items", items,
		"duration", time.Since(start),
	)

	return nil
}

// SetUserFactors replaces the user space. Empty input resets it.
func (r *Recommender) SetUserFactors(rows [][]float32) error {
	if err := r.checkWidth(rows...); err != nil {
		return err
	}

	m, err := factor.FromRows(r.factors, r.precision, rows)
	if err != nil {
		return translateError(err)
	}

	idx, err := r.buildIndex(r.factors, distance.Cosine, m.Rows())
	if err != nil {
		return err
	}

	r.userFactors, r.similarUsers = m, idx

	return nil
}

// SetItemFactors replaces the item space and rebuilds the recommend index.
// Empty input resets it.
func (r *Recommender) SetItemFactors(rows [][]float32) error {
	if err := r.checkWidth(rows...); err != nil {
		return err
	}

	m, err := factor.FromRows(r.factors, r.precision, rows)
	if err != nil {
		return translateError(err)
	}

	maxNorm := m.MaxNorm()

	var similar, recommend *hnsw.HNSW

	var g errgroup.Group
	g.SetLimit(r.workers)

	g.Go(func() (err error) {
		similar, err = r.buildIndex(r.factors, distance.Cosine, m.Rows())
		return err
	})
	g.Go(func() (err error) {
		recommend, err = r.buildIndex(r.factors+1, distance.InnerProduct, padAll(m, maxNorm))
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	r.itemFactors, r.similarItems, r.recommend, r.maxNorm = m, similar, recommend, maxNorm

	return nil
}

// AddUsers appends user rows and returns the new user count. A failure leaves
// the user space unchanged.
func (r *Recommender) AddUsers(vectors ...[]float32) (n int, err error) {
	start := time.Now()

	defer func() {
		r.metrics.OnInsert(KindUser, len(vectors), time.Since(start), err)
	}()

	if err := r.checkWidth(vectors...); err != nil {
		return r.userFactors.Len(), err
	}

	prev := r.userFactors.Len()

	if _, err := r.userFactors.Append(vectors...); err != nil {
		return prev, translateError(err)
	}

	n, err = r.similarUsers.Insert(r.userFactors.Rows()[prev:]...)
	if err != nil {
		r.userFactors.Truncate(prev)
		return prev, translateError(err)
	}

	return n, nil
}

// AddItems appends item rows and returns the new item count. The padded rows
// go into the recommend index, which is rebuilt when they raise the maximum
// norm. A failed similarity insert or rebuild leaves the item space unchanged.
func (r *Recommender) AddItems(vectors ...[]float32) (n int, err error) {
	start := time.Now()

	defer func() {
		r.metrics.OnInsert(KindItem, len(vectors), time.Since(start), err)
	}()

	if err := r.checkWidth(vectors...); err != nil {
		return r.itemFactors.Len(), err
	}

	prev := r.itemFactors.Len()

	if _, err := r.itemFactors.Append(vectors...); err != nil {
		return prev, translateError(err)
	}

	added := r.itemFactors.Rows()[prev:]

	var norm float32
	for _, v := range added {
		norm = max(norm, distance.Norm(v))
	}

	// A rebuilt recommend index is only committed once the similar-items
	// insert has gone through.
	var rebuilt *hnsw.HNSW

	if norm > r.maxNorm && prev > 0 {
		if rebuilt, err = r.buildRecommend(norm); err != nil {
			r.itemFactors.Truncate(prev)
			return prev, err
		}
	}

	if n, err = r.similarItems.Insert(added...); err != nil {
		r.itemFactors.Truncate(prev)
		return prev, translateError(err)
	}

	if rebuilt != nil {
		r.recommend, r.maxNorm = rebuilt, norm
		return n, nil
	}

	maxNorm := max(r.maxNorm, norm)

	padded := make([][]float32, len(added))
	for i, v := range added {
		padded[i] = pad(v, maxNorm)
	}

	if _, err := r.recommend.Insert(padded...); err != nil {
		return n, translateError(err)
	}

	r.maxNorm = maxNorm

	return n, nil
}

// buildRecommend indexes every item factor padded to maxNorm.
func (r *Recommender) buildRecommend(maxNorm float32) (*hnsw.HNSW, error) {
	start := time.Now()

	idx, err := r.buildIndex(r.factors+1, distance.InnerProduct, padAll(r.itemFactors, maxNorm))
	if err != nil {
		return nil, err
	}

	r.metrics.OnRebuild(IndexRecommend, idx.Len(), time.Since(start))
	r.logger.Debug("recommend index rebuilt",
		"items", idx.Len(),
		"max_norm", maxNorm,
	)

	return idx, nil
}

// SimilarItemsByFactors returns the k items closest to vector by cosine
// similarity, most similar first. The search runs when the sequence is
// iterated.
func (r *Recommender) SimilarItemsByFactors(vector []float32, k int) (iter.Seq2[int, float32], error) {
	return r.similar(IndexSimilarItems, r.similarItems, vector, k)
}

// SimilarUsersByFactors returns the k users closest to vector by cosine
// similarity, most similar first.
func (r *Recommender) SimilarUsersByFactors(vector []float32, k int) (iter.Seq2[int, float32], error) {
	return r.similar(IndexSimilarUsers, r.similarUsers, vector, k)
}

func (r *Recommender) similar(name string, idx *hnsw.HNSW, vector []float32, k int) (iter.Seq2[int, float32], error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	if err := r.checkWidth(vector); err != nil {
		return nil, err
	}

	q := slices.Clone(vector)

	return func(yield func(int, float32) bool) {
		start := time.Now()
		hits, err := idx.Search(q, k)
		r.metrics.OnSearch(name, k, time.Since(start), err)

		if err != nil {
			r.logger.Error("search failed", "index", name, "k", k, "error", err)
			return
		}

		for _, h := range hits {
			if !yield(int(h.ID), idx.Metric().Similarity(h.Distance)) {
				return
			}
		}
	}, nil
}

// SimilarItemsBatch returns, for every item row, the k other items closest to
// it by cosine similarity, most similar first. Rows are searched concurrently.
func (r *Recommender) SimilarItemsBatch(ctx context.Context, rows []int, k int) ([][]Recommendation, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	queries := make([][]float32, len(rows))
	for i, row := range rows {
		if row < 0 || row >= r.itemFactors.Len() {
			return nil, &ErrUnknownEntity{Kind: KindItem, Position: row}
		}

		queries[i] = r.itemFactors.Row(row)
	}

	start := time.Now()
	hits, err := r.similarItems.SearchBatch(ctx, queries, k+1)
	r.metrics.OnSearch(IndexSimilarItems, k, time.Since(start), err)

	if err != nil {
		return nil, translateError(err)
	}

	metric := r.similarItems.Metric()

	out := make([][]Recommendation, len(rows))
	for i, row := range rows {
		recs := make([]Recommendation, 0, k)

		for _, h := range hits[i] {
			if int(h.ID) == row {
				continue
			}

			if len(recs) == k {
				break
			}

			recs = append(recs, Recommendation{Position: int(h.ID), Score: metric.Similarity(h.Distance)})
		}

		out[i] = recs
	}

	return out, nil
}

// Recommend ranks items for the user at row. With WithRecalculateUser the
// query vector is solved from observed instead, and row is ignored.
func (r *Recommender) Recommend(ctx context.Context, row int, observed sparse.Vector, optFns ...RecommendOption) ([]Recommendation, error) {
	opts := applyRecommendOptions(optFns)
	if opts.K <= 0 {
		return nil, ErrInvalidK
	}

	var query []float32

	if opts.Recalculate {
		v, err := r.RecalculateUser(ctx, observed)
		if err != nil {
			return nil, err
		}

		query = v
	} else {
		if row < 0 || row >= r.userFactors.Len() {
			return nil, &ErrUnknownEntity{Kind: KindUser, Position: row}
		}

		query = r.userFactors.Row(row)
	}

	return r.recommendByFactors(ctx, query, observed, opts)
}

// RecommendByFactors ranks items for an arbitrary user vector.
func (r *Recommender) RecommendByFactors(ctx context.Context, vector []float32, observed sparse.Vector, optFns ...RecommendOption) ([]Recommendation, error) {
	opts := applyRecommendOptions(optFns)
	if opts.K <= 0 {
		return nil, ErrInvalidK
	}

	return r.recommendByFactors(ctx, vector, observed, opts)
}

func (r *Recommender) recommendByFactors(ctx context.Context, vector []float32, observed sparse.Vector, opts RecommendOptions) ([]Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.checkWidth(vector); err != nil {
		return nil, err
	}

	// Over-fetch so filtering still leaves k results.
	candidates := opts.K + observed.Len()

	start := time.Now()
	hits, err := r.recommend.Search(padQuery(vector), candidates)
	r.metrics.OnSearch(IndexRecommend, candidates, time.Since(start), err)

	if err != nil {
		return nil, translateError(err)
	}

	var liked *roaring.Bitmap

	if opts.Filter && observed.Len() > 0 {
		liked = roaring.New()

		for _, i := range observed.Indices {
			if i >= 0 {
				liked.Add(uint32(i))
			}
		}
	}

	metric := r.recommend.Metric()
	out := make([]Recommendation, 0, min(opts.K, len(hits)))

	for _, h := range hits {
		if liked != nil && liked.Contains(h.ID) {
			continue
		}

		out = append(out, Recommendation{Position: int(h.ID), Score: metric.Similarity(h.Distance)})

		if len(out) == opts.K {
			break
		}
	}

	return out, nil
}

// RecalculateUser solves a user vector from observed item confidences
// against the current item factors.
func (r *Recommender) RecalculateUser(ctx context.Context, observed sparse.Vector) ([]float32, error) {
	n := r.itemFactors.Len()

	for _, i := range observed.Indices {
		if i < 0 || i >= n {
			return nil, &ErrUnknownEntity{Kind: KindItem, Position: i}
		}
	}

	v, err := r.factorizer.RecalculateUser(ctx, r.itemFactors, observed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, &ErrFactorization{cause: err}
	}

	if len(v) != r.factors {
		return nil, &ErrFactorization{cause: &ErrDimensionMismatch{Expected: r.factors, Actual: len(v)}}
	}

	return v, nil
}

func (r *Recommender) checkWidth(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != r.factors {
			return &ErrDimensionMismatch{Expected: r.factors, Actual: len(v)}
		}
	}

	return nil
}

func (r *Recommender) indexOptions(metric distance.Metric) func(o *hnsw.Options) {
	return func(o *hnsw.Options) {
		o.M = r.m
		o.EF = r.ef
		o.Metric = metric
		o.Precision = r.precision
		o.Compression = r.compression
		o.Seed = r.seed
		o.Workers = r.workers
	}
}

func (r *Recommender) buildIndex(dim int, metric distance.Metric, vectors [][]float32) (*hnsw.HNSW, error) {
	idx, err := hnsw.New(dim, r.indexOptions(metric))
	if err != nil {
		return nil, err
	}

	if _, err := idx.Insert(vectors...); err != nil {
		return nil, translateError(err)
	}

	return idx, nil
}

// newState builds fresh matrices and indexes. The three indexes are built
// concurrently, bounded by the worker count.
func (r *Recommender) newState(ctx context.Context, users, items [][]float32) (*state, error) {
	userM, err := factor.FromRows(r.factors, r.precision, users)
	if err != nil {
		return nil, translateError(err)
	}

	itemM, err := factor.FromRows(r.factors, r.precision, items)
	if err != nil {
		return nil, translateError(err)
	}

	st := &state{
		userFactors: userM,
		itemFactors: itemM,
		maxNorm:     itemM.MaxNorm(),
	}

	var g errgroup.Group
	g.SetLimit(r.workers)

	g.Go(func() (err error) {
		st.similarUsers, err = r.buildIndex(r.factors, distance.Cosine, userM.Rows())
		return err
	})
	g.Go(func() (err error) {
		st.similarItems, err = r.buildIndex(r.factors, distance.Cosine, itemM.Rows())
		return err
	})
	g.Go(func() (err error) {
		st.recommend, err = r.buildIndex(r.factors+1, distance.InnerProduct, padAll(itemM, st.maxNorm))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return st, nil
}

// pad appends sqrt(maxNorm² - ‖v‖²) to v.
func pad(v []float32, maxNorm float32) []float32 {
	out := make([]float32, len(v)+1)
	copy(out, v)

	rest := float64(maxNorm)*float64(maxNorm) - float64(distance.SquaredNorm(v))
	if rest > 0 {
		out[len(v)] = float32(math.Sqrt(rest))
	}

	return out
}

func padAll(m *factor.Matrix, maxNorm float32) [][]float32 {
	out := make([][]float32, m.Len())
	for i := range out {
		out[i] = pad(m.Row(i), maxNorm)
	}

	return out
}

// padQuery appends a zero so inner products match the unpadded space.
func padQuery(v []float32) []float32 {
	out := make([]float32, len(v)+1)
	copy(out, v)

	return out
}
