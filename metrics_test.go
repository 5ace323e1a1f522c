package recgo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recgo/engine"
)

func TestBasicMetricsCollector(t *testing.T) {
	b := &BasicMetricsCollector{}

	b.OnFit(time.Second, 3, 4, nil)
	b.OnFit(time.Second, 0, 0, errors.New("x"))
	b.OnInsert(engine.KindItem, 5, time.Millisecond, nil)
	b.OnInsert(engine.KindUser, 1, time.Millisecond, errors.New("x"))
	b.OnSearch(engine.IndexRecommend, 10, 2*time.Millisecond, nil)
	b.OnSearch(engine.IndexSimilarUsers, 10, 4*time.Millisecond, nil)
	b.OnRebuild(engine.IndexRecommend, 5, time.Millisecond)
	b.RecordSave(false, 100, time.Millisecond, nil)
	b.RecordSave(true, 50, time.Millisecond, errors.New("x"))
	b.RecordLoad(time.Millisecond, nil)
	b.RecordProcess(ProcessKindArtists, 3, time.Millisecond, nil)

	s := b.GetStats()
	assert.Equal(t, int64(2), s.FitCount)
	assert.Equal(t, int64(1), s.FitErrors)
	assert.Equal(t, int64(2), s.InsertCount)
	assert.Equal(t, int64(5), s.InsertItems)
	assert.Equal(t, int64(1), s.InsertErrors)
	assert.Equal(t, int64(2), s.SearchCount)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), s.SearchAvgNanos)
	assert.Equal(t, int64(1), s.RebuildCount)
	assert.Equal(t, int64(1), s.SaveCount)
	assert.Equal(t, int64(1), s.SaveAsyncCount)
	assert.Equal(t, int64(1), s.SaveErrors)
	assert.Equal(t, int64(100), s.SaveBytes)
	assert.Equal(t, int64(1), s.LoadCount)
	assert.Equal(t, int64(1), s.ProcessCount)
	assert.Equal(t, int64(3), s.ProcessResolved)
}

func TestModel_Metrics(t *testing.T) {
	ctx := context.Background()
	b := &BasicMetricsCollector{}

	m := newTestModel(t, 4, WithMetricsCollector(b))
	seedModel(t, m)

	_, err := m.ProcessArtists(ctx, []string{"Anvil"}, "")
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, "snap"))
	require.NoError(t, m.Load(ctx, "snap"))

	s := b.GetStats()
	assert.Equal(t, int64(4), s.InsertCount, "one artist batch and three playlists")
	assert.Equal(t, int64(9), s.InsertItems)
	assert.GreaterOrEqual(t, s.SearchCount, int64(2))
	assert.Equal(t, int64(1), s.SaveCount)
	assert.Positive(t, s.SaveBytes)
	assert.Equal(t, int64(1), s.LoadCount)
	assert.Equal(t, int64(1), s.ProcessCount)
}
