package engine

import "time"

// Index names used in metrics, logs and blob names.
const (
	IndexSimilarUsers = "similar_users"
	IndexSimilarItems = "similar_items"
	IndexRecommend    = "recommend"
)

// MetricsObserver defines the interface for observing recommender events.
type MetricsObserver interface {
	// OnFit is called when a Fit completes.
	OnFit(duration time.Duration, users, items int, err error)

	// OnInsert is called after vectors were appended to a space.
	OnInsert(space string, count int, duration time.Duration, err error)

	// OnSearch is called after an index query.
	OnSearch(index string, k int, duration time.Duration, err error)

	// OnRebuild is called when the recommend index was rebuilt for a larger norm.
	OnRebuild(index string, size int, duration time.Duration)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnFit(time.Duration, int, int, error)       {}
func (NoopMetricsObserver) OnInsert(string, int, time.Duration, error) {}
func (NoopMetricsObserver) OnSearch(string, int, time.Duration, error) {}
func (NoopMetricsObserver) OnRebuild(string, int, time.Duration)       {}
