package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/recgo"
	"github.com/hupe1980/recgo/engine"
)

const namespace = "recgo"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// PrometheusCollector records recgo metrics in a Prometheus registry.
type PrometheusCollector struct {
	fitDuration     prometheus.Histogram
	fitErrors       prometheus.Counter
	inserted        *prometheus.CounterVec
	insertErrors    *prometheus.CounterVec
	entities        *prometheus.GaugeVec
	searchDuration  *prometheus.HistogramVec
	searchErrors    *prometheus.CounterVec
	rebuilds        *prometheus.CounterVec
	saveDuration    *prometheus.HistogramVec
	saveErrors      *prometheus.CounterVec
	saveBytes       prometheus.Counter
	loadDuration    prometheus.Histogram
	loadErrors      prometheus.Counter
	processTotal    *prometheus.CounterVec
	processResolved prometheus.Histogram
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ recgo.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers all metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	f := promauto.With(reg)

	return &PrometheusCollector{
		fitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Duration of model fits in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		fitErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fit_errors_total",
			Help:      "Total number of failed fits",
		}),
		inserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserted_vectors_total",
			Help:      "Total number of vectors appended per space",
		}, []string{"space"}),
		insertErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insert_errors_total",
			Help:      "Total number of rejected inserts per space",
		}, []string{"space"}),
		entities: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Number of rows per space after the last fit",
		}, []string{"space"}),
		searchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of index searches in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"index"}),
		searchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_errors_total",
			Help:      "Total number of failed index searches",
		}, []string{"index"}),
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Total number of index rebuilds caused by inserts",
		}, []string{"index"}),
		saveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Duration of snapshot writes in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		saveErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_errors_total",
			Help:      "Total number of failed snapshot writes",
		}, []string{"mode"}),
		saveBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_bytes_total",
			Help:      "Total encoded snapshot bytes written",
		}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of snapshot loads in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		loadErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Total number of failed snapshot loads",
		}),
		processTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_total",
			Help:      "Total number of pipeline calls",
		}, []string{"kind", "status"}),
		processResolved: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_resolved_artists",
			Help:      "Number of known artists per pipeline call",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// OnFit implements engine.MetricsObserver.
func (c *PrometheusCollector) OnFit(duration time.Duration, users, items int, err error) {
	c.fitDuration.Observe(duration.Seconds())

	if err != nil {
		c.fitErrors.Inc()
		return
	}

	c.entities.WithLabelValues(engine.KindUser).Set(float64(users))
	c.entities.WithLabelValues(engine.KindItem).Set(float64(items))
}

// OnInsert implements engine.MetricsObserver.
func (c *PrometheusCollector) OnInsert(space string, count int, _ time.Duration, err error) {
	if err != nil {
		c.insertErrors.WithLabelValues(space).Inc()
		return
	}

	c.inserted.WithLabelValues(space).Add(float64(count))
	c.entities.WithLabelValues(space).Add(float64(count))
}

// OnSearch implements engine.MetricsObserver.
func (c *PrometheusCollector) OnSearch(index string, _ int, duration time.Duration, err error) {
	c.searchDuration.WithLabelValues(index).Observe(duration.Seconds())

	if err != nil {
		c.searchErrors.WithLabelValues(index).Inc()
	}
}

// OnRebuild implements engine.MetricsObserver.
func (c *PrometheusCollector) OnRebuild(index string, _ int, _ time.Duration) {
	c.rebuilds.WithLabelValues(index).Inc()
}

// RecordSave implements recgo.MetricsCollector.
func (c *PrometheusCollector) RecordSave(async bool, bytes int64, duration time.Duration, err error) {
	mode := "sync"
	if async {
		mode = "async"
	}

	c.saveDuration.WithLabelValues(mode).Observe(duration.Seconds())

	if err != nil {
		c.saveErrors.WithLabelValues(mode).Inc()
		return
	}

	c.saveBytes.Add(float64(bytes))
}

// RecordLoad implements recgo.MetricsCollector.
func (c *PrometheusCollector) RecordLoad(duration time.Duration, err error) {
	c.loadDuration.Observe(duration.Seconds())

	if err != nil {
		c.loadErrors.Inc()
	}
}

// RecordProcess implements recgo.MetricsCollector.
func (c *PrometheusCollector) RecordProcess(kind string, resolved int, _ time.Duration, err error) {
	c.processTotal.WithLabelValues(kind, status(err)).Inc()
	c.processResolved.Observe(float64(resolved))
}

// RecordRequest records an HTTP request.
func (c *PrometheusCollector) RecordRequest(method, route string, code int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusOK
}
