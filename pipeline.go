package recgo

import (
	"context"
	"time"

	"github.com/hupe1980/recgo/engine"
	"github.com/hupe1980/recgo/sparse"
)

// ArtistResult is a recommended artist.
type ArtistResult struct {
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Score    float32 `json:"score"`
}

// PlaylistResult is a similar playlist.
type PlaylistResult struct {
	ID    string  `json:"id"`
	Row   int     `json:"row"`
	Score float32 `json:"score"`
}

// Result is the outcome of a pipeline call. It is the zero value when none of
// the submitted artists is known.
type Result struct {
	Artists   []ArtistResult   `json:"artists,omitempty"`
	Playlists []PlaylistResult `json:"playlists,omitempty"`
}

// PlaylistEntry is one track of a submitted playlist.
type PlaylistEntry struct {
	TrackName string   `json:"trackName,omitempty"`
	Artists   []string `json:"artists"`
}

// ProcessPlaylist merges the artists of all entries and runs ProcessArtists.
func (m *Model) ProcessPlaylist(ctx context.Context, entries []PlaylistEntry, playlistID string, optFns ...ProcessOption) (Result, error) {
	var names []string
	for _, e := range entries {
		names = append(names, e.Artists...)
	}

	return m.process(ctx, ProcessKindPlaylist, names, playlistID, optFns)
}

// ProcessArtists recommends artists and similar playlists for a set of artist
// names.
//
// Unknown names are ignored. When playlistID is set and no single playlist
// carries it yet, a playlist is registered under it: with the vector solved
// from the artists, or a zero vector WithoutUpdate. Playlists with the same id
// are never returned as similar.
func (m *Model) ProcessArtists(ctx context.Context, names []string, playlistID string, optFns ...ProcessOption) (Result, error) {
	return m.process(ctx, ProcessKindArtists, names, playlistID, optFns)
}

func (m *Model) process(ctx context.Context, kind string, names []string, playlistID string, optFns []ProcessOption) (res Result, err error) {
	start := time.Now()
	opts := applyProcessOptions(optFns)

	var (
		resolved   int
		registered bool
	)

	defer func() {
		m.opts.metricsCollector.RecordProcess(kind, resolved, time.Since(start), err)
		m.opts.logger.LogProcess(ctx, playlistID, resolved, registered, err)
	}()

	if opts.Limit <= 0 {
		return Result{}, ErrInvalidK
	}

	observed := m.resolve(names, opts.Confidence)

	resolved = observed.Len()
	if resolved == 0 {
		return Result{}, nil
	}

	row, known := -1, false
	if playlistID != "" {
		row, known = m.catalog.playlistRow(playlistID)
	}

	var query []float32

	if opts.Update || !known {
		if query, err = m.engine.RecalculateUser(ctx, observed); err != nil {
			return Result{}, err
		}
	} else {
		var ok bool
		if query, ok = m.engine.UserFactor(row); !ok {
			return Result{}, &ErrUnknownEntity{Kind: engine.KindPlaylist, Position: row, ID: playlistID}
		}
	}

	if playlistID != "" && !known {
		vec := query
		if !opts.Update {
			vec = make([]float32, len(query))
		}

		if _, err := m.AddPlaylist(ctx, vec, playlistID); err != nil {
			return Result{}, err
		}

		registered = true
	}

	if opts.Recommend {
		if res.Artists, err = m.recommendArtists(ctx, query, observed, opts.Limit); err != nil {
			return Result{}, err
		}
	}

	if res.Playlists, err = m.similarPlaylists(query, playlistID, opts.Limit); err != nil {
		return Result{}, err
	}

	return res, nil
}

// resolve maps names to artist positions. Unknown and repeated names are
// dropped.
func (m *Model) resolve(names []string, confidence float32) sparse.Vector {
	seen := make(map[int]struct{}, len(names))

	var (
		indices []int
		values  []float32
	)

	for _, name := range names {
		pos, ok := m.catalog.artistPosition(name)
		if !ok {
			continue
		}

		if _, dup := seen[pos]; dup {
			continue
		}

		seen[pos] = struct{}{}
		indices = append(indices, pos)
		values = append(values, confidence)
	}

	return sparse.NewVector(indices, values)
}

func (m *Model) recommendArtists(ctx context.Context, query []float32, observed sparse.Vector, k int) ([]ArtistResult, error) {
	recs, err := m.engine.RecommendByFactors(ctx, query, observed, engine.WithK(k))
	if err != nil {
		return nil, err
	}

	return m.artistResults(recs), nil
}

func (m *Model) artistResults(recs []engine.Recommendation) []ArtistResult {
	out := make([]ArtistResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, ArtistResult{
			Name:     m.catalog.artistNames[r.Position],
			Position: r.Position,
			Score:    r.Score,
		})
	}

	return out
}

// SimilarArtists returns, keyed by the submitted name, the limit artists
// closest to every known artist in names. Unknown names are left out.
func (m *Model) SimilarArtists(ctx context.Context, names []string, limit int) (map[string][]ArtistResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidK
	}

	var (
		known []string
		rows  []int
	)

	for _, name := range names {
		if pos, ok := m.catalog.artistPosition(name); ok {
			known = append(known, name)
			rows = append(rows, pos)
		}
	}

	out := make(map[string][]ArtistResult, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	batches, err := m.engine.SimilarItemsBatch(ctx, rows, limit)
	if err != nil {
		return nil, err
	}

	for i, recs := range batches {
		out[known[i]] = m.artistResults(recs)
	}

	return out, nil
}

// similarPlaylists returns up to k playlists closest to query whose id is not
// exclude.
func (m *Model) similarPlaylists(query []float32, exclude string, k int) ([]PlaylistResult, error) {
	fetch := k
	if exclude != "" {
		fetch += m.catalog.playlistCount(exclude)
	}

	hits, err := m.engine.SimilarUsersByFactors(query, fetch)
	if err != nil {
		return nil, err
	}

	var out []PlaylistResult

	for row, score := range hits {
		id := m.catalog.playlistIDs[row]
		if exclude != "" && id == exclude {
			continue
		}

		out = append(out, PlaylistResult{ID: id, Row: row, Score: score})

		if len(out) == k {
			break
		}
	}

	return out, nil
}
