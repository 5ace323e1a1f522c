package engine

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/hupe1980/recgo/factor"
	"github.com/hupe1980/recgo/persistence"
	"github.com/hupe1980/recgo/sparse"
)

// Factorizer computes embedding matrices from a confidence matrix.
//
// The default implementation is als.Solver.
type Factorizer interface {
	// Factorize returns one row per user and one row per item of userItems.
	Factorize(ctx context.Context, userItems *sparse.Matrix) ([][]float32, [][]float32, error)

	// RecalculateUser solves a single user row against fixed item factors.
	RecalculateUser(ctx context.Context, items factor.Rows, liked sparse.Vector) ([]float32, error)
}

// Default construction parameters.
const (
	DefaultFactors        = 64
	DefaultRegularization = 0.01
	DefaultIterations     = 15
	DefaultM              = 8
	DefaultEF             = 200
)

// Option defines a configuration option for the Recommender.
type Option func(*Recommender)

// WithFactors sets the embedding width D.
func WithFactors(n int) Option {
	return func(r *Recommender) {
		r.factors = n
	}
}

// WithPrecision sets the storage precision of factors and index vectors.
func WithPrecision(p persistence.Precision) Option {
	return func(r *Recommender) {
		r.precision = p
	}
}

// WithWorkers bounds index build, batch query and factorization parallelism.
func WithWorkers(n int) Option {
	return func(r *Recommender) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRegularization sets the L2 penalty of the default factorizer.
func WithRegularization(lambda float64) Option {
	return func(r *Recommender) {
		r.regularization = lambda
	}
}

// WithIterations sets the number of ALS sweeps of the default factorizer.
func WithIterations(n int) Option {
	return func(r *Recommender) {
		r.iterations = n
	}
}

// WithSeed makes factorization and index construction reproducible.
func WithSeed(seed int64) Option {
	return func(r *Recommender) {
		r.seed = seed
	}
}

// WithHNSW sets the graph degree M and candidate list size EF of all indexes.
func WithHNSW(m, ef int) Option {
	return func(r *Recommender) {
		r.m = m
		r.ef = ef
	}
}

// WithCompression sets the payload compression of saved index blobs.
func WithCompression(c persistence.Compression) Option {
	return func(r *Recommender) {
		r.compression = c
	}
}

// WithLogger sets the logger. A nil logger keeps the default, which discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recommender) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(r *Recommender) {
		if observer != nil {
			r.metrics = observer
		}
	}
}

// WithFactorizer replaces the default ALS solver.
func WithFactorizer(f Factorizer) Option {
	return func(r *Recommender) {
		r.factorizer = f
	}
}

// RecommendOptions controls a single recommendation query.
type RecommendOptions struct {
	K           int
	Recalculate bool
	Filter      bool
}

// RecommendOption configures a recommendation query.
type RecommendOption func(*RecommendOptions)

// WithK sets the number of results. The default is 10.
func WithK(k int) RecommendOption {
	return func(o *RecommendOptions) {
		o.K = k
	}
}

// WithRecalculateUser computes the query vector from the observed items
// instead of reading the stored user row.
func WithRecalculateUser() RecommendOption {
	return func(o *RecommendOptions) {
		o.Recalculate = true
	}
}

// WithoutFilter keeps observed items in the results.
func WithoutFilter() RecommendOption {
	return func(o *RecommendOptions) {
		o.Filter = false
	}
}

func applyRecommendOptions(optFns []RecommendOption) RecommendOptions {
	o := RecommendOptions{K: 10, Filter: true}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	return o
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
