package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recgo"
	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/hnsw"
	"github.com/hupe1980/recgo/metrics"
)

var testArtists = []string{"dEUS", "Spinal Tap", "Josie and the Pussycats", "Anvil", "Gorillaz", "Air"}

func newTestServer(t *testing.T, optFns ...func(o *Options)) (*Server, *recgo.Model) {
	t.Helper()

	ctx := context.Background()

	model, err := recgo.New(
		recgo.WithFactors(4),
		recgo.WithWorkers(2),
		recgo.WithStore(blobstore.NewMemoryStore()),
	)
	require.NoError(t, err)

	_, err = model.AddArtists(ctx, hnsw.GenerateRandomVectors(len(testArtists), 4, 1), testArtists)
	require.NoError(t, err)

	for i, v := range hnsw.GenerateRandomVectors(3, 4, 2) {
		_, err := model.AddPlaylist(ctx, v, "p"+strconv.Itoa(i))
		require.NoError(t, err)
	}

	base := func(o *Options) {
		o.Folder = "snap"
		o.Logger = slog.New(slog.DiscardHandler)
	}

	return New(model, append([]func(o *Options){base}, optFns...)...), model
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestArtists(t *testing.T) {
	s, model := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/artists", `{"artists":["anvil","AIR"],"playlist":"web-1","limit":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	res := decodeBody[recgo.Result](t, rec)
	assert.Len(t, res.Artists, 2)
	assert.Len(t, res.Playlists, 2)

	for _, a := range res.Artists {
		assert.NotContains(t, []string{"Anvil", "Air"}, a.Name)
	}

	row, ok := model.PlaylistRow("web-1")
	require.True(t, ok)
	assert.Equal(t, 3, row)

	vec, ok := model.Engine().UserFactor(row)
	require.True(t, ok)
	assert.NotEqual(t, make([]float32, 4), vec)
}

func TestArtists_Options(t *testing.T) {
	s, model := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/artists", `{"artists":["Gorillaz"],"playlist":"web-2","update":false,"recommend":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[recgo.Result](t, rec)
	assert.Empty(t, res.Artists)
	assert.NotEmpty(t, res.Playlists)

	row, ok := model.PlaylistRow("web-2")
	require.True(t, ok)

	vec, ok := model.Engine().UserFactor(row)
	require.True(t, ok)
	assert.Equal(t, make([]float32, 4), vec)
}

func TestArtists_Unknown(t *testing.T) {
	s, model := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/artists", `{"artists":["nonexistentartist"],"playlist":"web-3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Len(t, model.PlaylistIDs(), 3)
}

func TestArtists_BadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"artists":`},
		{name: "unknown field", body: `{"artists":["Air"],"genre":"rock"}`},
		{name: "no artists", body: `{"artists":[]}`},
		{name: "empty name", body: `{"artists":[""]}`},
		{name: "negative limit", body: `{"artists":["Air"],"limit":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/artists", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSimilarArtists(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/artists/similar", `{"artists":["anvil","unknown"],"limit":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[SimilarArtistsResponse](t, rec)
	require.Len(t, res.Artists, 1)
	require.Len(t, res.Artists["anvil"], 3)

	for _, a := range res.Artists["anvil"] {
		assert.NotEqual(t, "Anvil", a.Name)
	}

	rec = do(t, s, http.MethodPost, "/v1/artists/similar", `{"artists":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaylists(t *testing.T) {
	s, model := newTestServer(t)

	body := `{
		"url": "https://example.com/playlist/42",
		"tracks": [
			{"trackName": "Suds & Soda", "artists": ["dEUS"]},
			{"trackName": "Big Bottom", "artists": ["Spinal Tap", "nonexistentartist"]}
		]
	}`

	rec := do(t, s, http.MethodPost, "/v1/playlists", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[recgo.Result](t, rec)
	assert.NotEmpty(t, res.Artists)
	assert.NotEmpty(t, res.Playlists)

	_, ok := model.PlaylistRow("https://example.com/playlist/42")
	assert.True(t, ok)

	rec = do(t, s, http.MethodPost, "/v1/playlists", `{"url":"x","tracks":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeBody[recgo.Status](t, rec)
	assert.Equal(t, len(testArtists), st.Artists)
	assert.Equal(t, 3, st.Playlists)
	assert.True(t, st.DirtyArtists)
	assert.True(t, st.DirtyPlaylists)
	assert.Equal(t, 4, st.Engine.Factors)
}

func TestSave(t *testing.T) {
	s, model := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/admin/save", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/admin/save", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	started := decodeBody[SaveResponse](t, rec)
	assert.NotEmpty(t, started.ID)
	assert.Equal(t, "snap", started.Folder)

	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/v1/admin/save", "")
		return decodeBody[SaveResponse](t, rec).Done
	}, 5*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/v1/admin/save", "")
	final := decodeBody[SaveResponse](t, rec)
	assert.Equal(t, started.ID, final.ID)
	assert.Empty(t, final.Error)

	assert.False(t, model.DirtyArtists())
	assert.False(t, model.DirtyPlaylists())
}

func TestAutoSave(t *testing.T) {
	s, model := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)
		s.AutoSave(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()

		return !model.DirtyArtists() && !model.DirtyPlaylists()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(reg)

	s, _ := newTestServer(t, func(o *Options) {
		o.Recorder = collector
		o.Gatherer = reg
	})

	do(t, s, http.MethodGet, "/healthz", "")
	do(t, s, http.MethodGet, "/v1/status", "")
	do(t, s, http.MethodGet, "/nowhere", "")

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `recgo_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, `recgo_http_requests_total{method="GET",route="/v1/status",status="200"} 1`)
	assert.Contains(t, body, `status="404"`)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(o *Options) {
		o.RateLimitRequests = 2
		o.RateLimitWindow = time.Minute
	})

	for range 2 {
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/status", "").Code)
	}

	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/v1/status", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code, "health is not limited")
}

func TestListenAndServe(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0"}

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, srv, time.Second) }()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
