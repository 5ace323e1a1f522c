package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recgo"
	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/engine"
	"github.com/hupe1980/recgo/hnsw"
)

func newCollector(t *testing.T) (*PrometheusCollector, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()

	return NewPrometheusCollector(reg), reg
}

func TestPrometheusCollector_Engine(t *testing.T) {
	c, _ := newCollector(t)

	c.OnFit(2*time.Second, 11, 300, nil)
	c.OnFit(time.Second, 0, 0, errors.New("solver"))
	c.OnInsert(engine.KindItem, 4, time.Millisecond, nil)
	c.OnInsert(engine.KindUser, 1, time.Millisecond, errors.New("width"))
	c.OnSearch(engine.IndexRecommend, 10, time.Millisecond, nil)
	c.OnSearch(engine.IndexRecommend, 10, time.Millisecond, errors.New("x"))
	c.OnRebuild(engine.IndexRecommend, 304, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(c.fitErrors), 0)
	assert.InDelta(t, 11, testutil.ToFloat64(c.entities.WithLabelValues(engine.KindUser)), 0)
	assert.InDelta(t, 304, testutil.ToFloat64(c.entities.WithLabelValues(engine.KindItem)), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(c.inserted.WithLabelValues(engine.KindItem)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.insertErrors.WithLabelValues(engine.KindUser)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.searchErrors.WithLabelValues(engine.IndexRecommend)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.rebuilds.WithLabelValues(engine.IndexRecommend)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(c.searchDuration))
}

func TestPrometheusCollector_Model(t *testing.T) {
	tests := []struct {
		name   string
		record func(c *PrometheusCollector)
		check  func(t *testing.T, c *PrometheusCollector)
	}{
		{
			name: "sync save",
			record: func(c *PrometheusCollector) {
				c.RecordSave(false, 1024, time.Millisecond, nil)
			},
			check: func(t *testing.T, c *PrometheusCollector) {
				assert.InDelta(t, 1024, testutil.ToFloat64(c.saveBytes), 0)
			},
		},
		{
			name: "failed async save",
			record: func(c *PrometheusCollector) {
				c.RecordSave(true, 1024, time.Millisecond, errors.New("disk full"))
			},
			check: func(t *testing.T, c *PrometheusCollector) {
				assert.InDelta(t, 1, testutil.ToFloat64(c.saveErrors.WithLabelValues("async")), 0)
				assert.InDelta(t, 0, testutil.ToFloat64(c.saveBytes), 0)
			},
		},
		{
			name: "failed load",
			record: func(c *PrometheusCollector) {
				c.RecordLoad(time.Millisecond, errors.New("corrupt"))
			},
			check: func(t *testing.T, c *PrometheusCollector) {
				assert.InDelta(t, 1, testutil.ToFloat64(c.loadErrors), 0)
			},
		},
		{
			name: "process",
			record: func(c *PrometheusCollector) {
				c.RecordProcess(recgo.ProcessKindArtists, 3, time.Millisecond, nil)
				c.RecordProcess(recgo.ProcessKindPlaylist, 0, time.Millisecond, errors.New("x"))
			},
			check: func(t *testing.T, c *PrometheusCollector) {
				assert.InDelta(t, 1, testutil.ToFloat64(c.processTotal.WithLabelValues(recgo.ProcessKindArtists, StatusOK)), 0)
				assert.InDelta(t, 1, testutil.ToFloat64(c.processTotal.WithLabelValues(recgo.ProcessKindPlaylist, StatusError)), 0)
			},
		},
		{
			name: "http request",
			record: func(c *PrometheusCollector) {
				c.RecordRequest(http.MethodPost, "/v1/artists", http.StatusOK, time.Millisecond)
			},
			check: func(t *testing.T, c *PrometheusCollector) {
				assert.InDelta(t, 1, testutil.ToFloat64(c.requestsTotal.WithLabelValues(http.MethodPost, "/v1/artists", "200")), 0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCollector(t)
			tt.record(c)
			tt.check(t, c)
		})
	}
}

func TestPrometheusCollector_WithModel(t *testing.T) {
	ctx := context.Background()
	c, reg := newCollector(t)

	m, err := recgo.New(
		recgo.WithFactors(4),
		recgo.WithStore(blobstore.NewMemoryStore()),
		recgo.WithMetricsCollector(c),
	)
	require.NoError(t, err)

	_, err = m.AddArtists(ctx, hnsw.GenerateRandomVectors(3, 4, 1), []string{"a", "b", "c"})
	require.NoError(t, err)

	_, err = m.ProcessArtists(ctx, []string{"a"}, "p")
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, "snap"))

	expected := `
# HELP recgo_inserted_vectors_total Total number of vectors appended per space
# TYPE recgo_inserted_vectors_total counter
recgo_inserted_vectors_total{space="item"} 3
recgo_inserted_vectors_total{space="user"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "recgo_inserted_vectors_total"))

	assert.InDelta(t, 1, testutil.ToFloat64(c.processTotal.WithLabelValues(recgo.ProcessKindArtists, StatusOK)), 0)
	assert.Positive(t, testutil.ToFloat64(c.saveBytes))
}

func TestPrometheusCollector_Lint(t *testing.T) {
	c, reg := newCollector(t)

	c.RecordSave(false, 1, time.Millisecond, nil)
	c.RecordRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)

	problems, err := testutil.GatherAndLint(reg)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
