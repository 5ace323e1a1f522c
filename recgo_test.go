package recgo

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/engine"
	"github.com/hupe1980/recgo/hnsw"
	"github.com/hupe1980/recgo/sparse"
)

var testArtists = []string{"dEUS", "Spinal Tap", "Josie and the Pussycats", "Anvil", "Gorillaz", "Air"}

func newTestModel(t *testing.T, dim int, optFns ...Option) *Model {
	t.Helper()

	base := []Option{
		WithFactors(dim),
		WithWorkers(2),
		WithStore(blobstore.NewMemoryStore()),
	}

	m, err := New(append(base, optFns...)...)
	require.NoError(t, err)

	return m
}

// seedModel adds the test artists and three playlists p0..p2.
func seedModel(t *testing.T, m *Model) {
	t.Helper()

	ctx := context.Background()
	dim := m.Engine().Factors()

	_, err := m.AddArtists(ctx, hnsw.GenerateRandomVectors(len(testArtists), dim, 1), testArtists)
	require.NoError(t, err)

	for i, v := range hnsw.GenerateRandomVectors(3, dim, 2) {
		_, err := m.AddPlaylist(ctx, v, "p"+strconv.Itoa(i))
		require.NoError(t, err)
	}
}

func randomPlays(t *testing.T, artists, playlists, perPlaylist int) *sparse.Matrix {
	t.Helper()

	rng := rand.New(rand.NewSource(7))

	var (
		rows, cols []int
		values     []float32
	)

	for p := range playlists {
		for range perPlaylist {
			rows = append(rows, rng.Intn(artists))
			cols = append(cols, p)
			values = append(values, float32(1+rng.Intn(9)))
		}
	}

	plays, err := sparse.NewFromTriplets(artists, playlists, rows, cols, values)
	require.NoError(t, err)

	return plays
}

func names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i)
	}

	return out
}

func TestNew(t *testing.T) {
	m := newTestModel(t, 8)

	assert.Empty(t, m.ArtistNames())
	assert.Empty(t, m.PlaylistIDs())
	assert.False(t, m.DirtyArtists())
	assert.False(t, m.DirtyPlaylists())
	assert.Equal(t, 0, m.Engine().Users())
	assert.Equal(t, 0, m.Engine().Items())

	_, err := New(WithFactors(0))
	require.Error(t, err)
}

func TestAddArtists(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t, 8)

	n, err := m.AddArtists(ctx, hnsw.GenerateRandomVectors(4, 8, 1), testArtists[:4])
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, testArtists[:4], m.ArtistNames())
	assert.True(t, m.DirtyArtists())
	assert.False(t, m.DirtyPlaylists())
	assert.Equal(t, 0, m.Engine().Users())

	pos, ok := m.ArtistPosition("DEUS")
	require.True(t, ok)
	assert.Equal(t, 0, pos)

	pos, ok = m.ArtistPosition("spinal tap")
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	_, ok = m.ArtistPosition("Metallica")
	assert.False(t, ok)

	t.Run("duplicate name takes over lookup", func(t *testing.T) {
		_, err := m.AddArtists(ctx, hnsw.GenerateRandomVectors(1, 8, 2), []string{"Deus"})
		require.NoError(t, err)

		pos, ok := m.ArtistPosition("deus")
		require.True(t, ok)
		assert.Equal(t, 4, pos)
		assert.Len(t, m.ArtistNames(), 5)
	})

	t.Run("length mismatch", func(t *testing.T) {
		before := m.Versions()

		_, err := m.AddArtists(ctx, hnsw.GenerateRandomVectors(2, 8, 3), []string{"one"})

		var dm *ErrDimensionMismatch
		require.True(t, errors.As(err, &dm))
		assert.Equal(t, 1, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
		assert.Len(t, m.ArtistNames(), 5)
		assert.Equal(t, before, m.Versions())
	})

	t.Run("width mismatch", func(t *testing.T) {
		_, err := m.AddArtists(ctx, [][]float32{{1, 2}}, []string{"narrow"})

		var dm *ErrDimensionMismatch
		require.True(t, errors.As(err, &dm))
		assert.Equal(t, 5, m.Engine().Items())

		_, ok := m.ArtistPosition("narrow")
		assert.False(t, ok)
	})
}

func TestAddArtists_SingleVector(t *testing.T) {
	m := newTestModel(t, 16)

	_, err := m.AddArtists(context.Background(), hnsw.GenerateRandomVectors(1, 16, 1), []string{"Anvil"})
	require.NoError(t, err)

	s := m.Engine().Stats()
	assert.Equal(t, 1, s.Items)
	assert.Equal(t, 1, s.Indexes[engine.IndexSimilarItems].Nodes)
	assert.Equal(t, 1, s.Indexes[engine.IndexRecommend].Nodes)
	assert.Equal(t, 17, s.Indexes[engine.IndexRecommend].Dimension)
}

func TestAddPlaylist(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t, 8)

	v := hnsw.GenerateRandomVectors(1, 8, 1)[0]

	row, err := m.AddPlaylist(ctx, v, "test_add_playlist")
	require.NoError(t, err)
	assert.Equal(t, 0, row)
	assert.True(t, m.DirtyPlaylists())
	assert.False(t, m.DirtyArtists())

	row, err = m.AddPlaylist(ctx, v, "test_add_playlist2")
	require.NoError(t, err)
	assert.Equal(t, 1, row)

	// Ids may repeat; a repeated id is no longer a known playlist.
	row, err = m.AddPlaylist(ctx, v, "test_add_playlist")
	require.NoError(t, err)
	assert.Equal(t, 2, row)
	assert.Equal(t, []string{"test_add_playlist", "test_add_playlist2", "test_add_playlist"}, m.PlaylistIDs())

	_, ok := m.PlaylistRow("test_add_playlist")
	assert.False(t, ok)

	row, ok = m.PlaylistRow("test_add_playlist2")
	require.True(t, ok)
	assert.Equal(t, 1, row)

	_, err = m.AddPlaylist(ctx, []float32{1}, "narrow")
	var dm *ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Len(t, m.PlaylistIDs(), 3)
}

func TestFit(t *testing.T) {
	const (
		artists   = 300
		playlists = 11
	)

	m := newTestModel(t, 8, WithIterations(3), WithSeed(42))

	err := m.Fit(context.Background(), randomPlays(t, artists, playlists, 50), names("", playlists), names("", artists))
	require.NoError(t, err)

	assert.True(t, m.DirtyPlaylists())
	assert.True(t, m.DirtyArtists())
	assert.Len(t, m.ArtistNames(), artists)
	assert.Len(t, m.PlaylistIDs(), playlists)
	assert.Equal(t, artists, m.Engine().Items())
	assert.Equal(t, playlists, m.Engine().Users())

	pos, ok := m.ArtistPosition("299")
	require.True(t, ok)
	assert.Equal(t, 299, pos)

	t.Run("without BM25", func(t *testing.T) {
		err := m.Fit(context.Background(), randomPlays(t, 20, 3, 5), names("", 3), names("a", 20), WithoutBM25())
		require.NoError(t, err)
		assert.Equal(t, 20, m.Engine().Items())
		assert.Len(t, m.ArtistNames(), 20)
	})
}

func TestFit_DimensionMismatch(t *testing.T) {
	m := newTestModel(t, 4)
	seedModel(t, m)

	before := m.Versions()
	plays := randomPlays(t, 10, 2, 3)

	tests := []struct {
		name      string
		playlists []string
		artists   []string
	}{
		{name: "artists", playlists: names("p", 2), artists: names("a", 9)},
		{name: "playlists", playlists: names("p", 3), artists: names("a", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Fit(context.Background(), plays, tt.playlists, tt.artists)

			var dm *ErrDimensionMismatch
			require.True(t, errors.As(err, &dm))
			assert.Equal(t, testArtists, m.ArtistNames())
			assert.Equal(t, before, m.Versions())
		})
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t, 4)
	seedModel(t, m)
	require.NoError(t, m.Save(ctx, "snap"))

	require.NoError(t, m.Reset())

	assert.Empty(t, m.PlaylistIDs())
	assert.Equal(t, 0, m.Engine().Users())
	assert.True(t, m.DirtyPlaylists())
	assert.False(t, m.DirtyArtists())
	assert.Len(t, m.ArtistNames(), len(testArtists))

	row, err := m.AddPlaylist(ctx, make([]float32, 4), "after-reset")
	require.NoError(t, err)
	assert.Equal(t, 0, row)
}

func TestStatus(t *testing.T) {
	m := newTestModel(t, 4)
	seedModel(t, m)

	s := m.Status()
	assert.Equal(t, len(testArtists), s.Artists)
	assert.Equal(t, 3, s.Playlists)
	assert.True(t, s.DirtyArtists)
	assert.True(t, s.DirtyPlaylists)
	assert.Equal(t, uint64(1), s.Versions.Artists)
	assert.Equal(t, uint64(3), s.Versions.Playlists)
	assert.Equal(t, 4, s.Engine.Factors)
}
