package recgo

import (
	"log/slog"

	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/codec"
	"github.com/hupe1980/recgo/engine"
	"github.com/hupe1980/recgo/persistence"
	"github.com/hupe1980/recgo/resource"
	"github.com/hupe1980/recgo/sparse"
)

type options struct {
	engineOpts       []engine.Option
	store            blobstore.Store
	commitLog        blobstore.CommitLog
	commitHistory    int
	codec            codec.Codec
	resource         *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Model.
type Option func(*options)

// WithFactors sets the embedding width D (default 64).
func WithFactors(n int) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithFactors(n))
	}
}

// WithPrecision sets the storage precision of factors and saved indexes.
func WithPrecision(p persistence.Precision) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithPrecision(p))
	}
}

// WithWorkers bounds the parallelism of factorization and index builds.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithWorkers(n))
	}
}

// WithRegularization sets the ALS L2 penalty, also used when recalculating
// playlist vectors.
func WithRegularization(lambda float64) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithRegularization(lambda))
	}
}

// WithIterations sets the number of ALS sweeps.
func WithIterations(n int) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithIterations(n))
	}
}

// WithSeed makes Fit and index construction reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithSeed(seed))
	}
}

// WithHNSW sets the graph degree M and the candidate list size EF.
func WithHNSW(m, ef int) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithHNSW(m, ef))
	}
}

// WithCompression sets the payload compression of saved indexes.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithCompression(c))
	}
}

// WithFactorizer replaces the built-in ALS solver.
func WithFactorizer(f engine.Factorizer) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithFactorizer(f))
	}
}

// WithStore configures where snapshots are written.
// The default is the local filesystem, with folders used as paths.
//
// Example with S3:
//
//	store, _ := s3.NewStoreFromConfig(ctx, "my-bucket", "models/")
//	model, _ := recgo.New(recgo.WithStore(store))
func WithStore(store blobstore.Store) Option {
	return func(o *options) {
		if store != nil {
			o.store = store
		}
	}
}

// WithCommitLog records completed snapshots in log instead of the COMMITS blob
// of each folder.
func WithCommitLog(log blobstore.CommitLog) Option {
	return func(o *options) {
		o.commitLog = log
	}
}

// WithCommitHistory limits the entries kept in a folder's COMMITS blob
// (default 100, 0 keeps all).
func WithCommitHistory(n int) Option {
	return func(o *options) {
		o.commitHistory = n
	}
}

// WithCodec configures the codec used for encoding catalogs.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithResourceController bounds background saves. The default allows one
// background save at a time without memory or IO limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		if rc != nil {
			o.resource = rc
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &recgo.BasicMetricsCollector{}
//	model, _ := recgo.New(recgo.WithMetricsCollector(metrics))
//	// ... use model ...
//	stats := metrics.GetStats()
//	fmt.Printf("Processed: %d, Saves: %d\n", stats.ProcessCount, stats.SaveCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := recgo.NewJSONLogger(slog.LevelInfo)
//	model, _ := recgo.New(recgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		store:            blobstore.NewLocalStore(""),
		commitHistory:    100,
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.resource == nil {
		o.resource = resource.NewController(resource.Config{})
	}
	return o
}

// FitOptions controls the weighting applied by Fit.
type FitOptions struct {
	BM25 bool
	K1   float64
	B    float64
}

// FitOption configures Fit.
type FitOption func(*FitOptions)

// WithoutBM25 factorizes the raw play counts.
func WithoutBM25() FitOption {
	return func(o *FitOptions) {
		o.BM25 = false
	}
}

// WithBM25 sets the BM25 parameters (defaults K1=100, B=0.8).
func WithBM25(k1, b float64) FitOption {
	return func(o *FitOptions) {
		o.BM25 = true
		o.K1 = k1
		o.B = b
	}
}

func applyFitOptions(optFns []FitOption) FitOptions {
	o := FitOptions{BM25: true, K1: sparse.DefaultK1, B: sparse.DefaultB}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// ProcessOptions controls ProcessArtists and ProcessPlaylist.
type ProcessOptions struct {
	Update     bool
	Recommend  bool
	Limit      int
	Confidence float32
}

// ProcessOption configures a pipeline call.
type ProcessOption func(*ProcessOptions)

const (
	// DefaultConfidence is the weight given to every submitted artist.
	DefaultConfidence = 444
	// DefaultLimit is the number of artists and playlists returned.
	DefaultLimit = 10
)

// WithoutUpdate keeps an unknown playlist as a zero placeholder row instead
// of its recalculated vector.
func WithoutUpdate() ProcessOption {
	return func(o *ProcessOptions) {
		o.Update = false
	}
}

// WithoutRecommend skips artist recommendations.
func WithoutRecommend() ProcessOption {
	return func(o *ProcessOptions) {
		o.Recommend = false
	}
}

// WithLimit sets the number of artists and playlists returned (default 10).
func WithLimit(k int) ProcessOption {
	return func(o *ProcessOptions) {
		o.Limit = k
	}
}

// WithConfidence sets the weight of every submitted artist.
func WithConfidence(c float32) ProcessOption {
	return func(o *ProcessOptions) {
		o.Confidence = c
	}
}

func applyProcessOptions(optFns []ProcessOption) ProcessOptions {
	o := ProcessOptions{
		Update:     true,
		Recommend:  true,
		Limit:      DefaultLimit,
		Confidence: DefaultConfidence,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
