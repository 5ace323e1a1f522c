package recgo

import (
	"context"
	"slices"
	"time"

	"github.com/hupe1980/recgo/engine"
	"github.com/hupe1980/recgo/sparse"
)

// Model is a playlist/artist recommender: an engine.Recommender whose user
// rows are playlists and whose item columns are artists, plus the catalog of
// names and the version counters that drive persistence.
//
// Mutating calls (Fit, AddArtists, AddPlaylist, Load, Reset and the pipeline
// with registration) must be serialized by the caller. Queries may run
// concurrently with each other.
type Model struct {
	opts   options
	engine *engine.Recommender

	catalog  *catalog
	versions versionTracker
}

// New creates an empty model.
func New(optFns ...Option) (*Model, error) {
	opts := applyOptions(optFns)

	eng, err := newEngine(opts)
	if err != nil {
		return nil, err
	}

	return &Model{
		opts:    opts,
		engine:  eng,
		catalog: newCatalog(nil, nil),
	}, nil
}

func newEngine(opts options) (*engine.Recommender, error) {
	engineOpts := slices.Clone(opts.engineOpts)
	engineOpts = append(engineOpts,
		engine.WithLogger(opts.logger.Logger),
		engine.WithMetricsObserver(opts.metricsCollector),
	)

	return engine.New(engineOpts...)
}

// Fit factorizes an artists×playlists play-count matrix and replaces all
// state. The matrix shape must match the name lists.
func (m *Model) Fit(ctx context.Context, plays *sparse.Matrix, playlistIDs, artistNames []string, optFns ...FitOption) (err error) {
	start := time.Now()

	defer func() {
		m.opts.logger.LogFit(ctx, len(playlistIDs), len(artistNames), time.Since(start), err)
	}()

	if plays == nil {
		return &ErrDimensionMismatch{Expected: len(artistNames), Actual: 0}
	}

	rows, cols := plays.Dims()
	if rows != len(artistNames) {
		return &ErrDimensionMismatch{Expected: len(artistNames), Actual: rows}
	}

	if cols != len(playlistIDs) {
		return &ErrDimensionMismatch{Expected: len(playlistIDs), Actual: cols}
	}

	opts := applyFitOptions(optFns)
	if opts.BM25 {
		plays = sparse.BM25Weight(plays, opts.K1, opts.B)
	}

	if err := m.engine.Fit(ctx, plays); err != nil {
		return err
	}

	m.catalog = newCatalog(artistNames, playlistIDs)
	m.versions.bumpArtists()
	m.versions.bumpPlaylists()

	return nil
}

// AddArtists appends artist columns and returns the new artist count.
// Names match case-insensitively; a repeated name takes over the lookup.
func (m *Model) AddArtists(_ context.Context, factors [][]float32, names []string) (int, error) {
	if len(factors) != len(names) {
		return m.engine.Items(), &ErrDimensionMismatch{Expected: len(names), Actual: len(factors)}
	}

	if len(factors) == 0 {
		return m.engine.Items(), nil
	}

	n, err := m.engine.AddItems(factors...)
	if err != nil {
		return n, err
	}

	m.catalog.addArtists(names)
	m.versions.bumpArtists()

	return n, nil
}

// AddPlaylist appends a playlist row and returns its position. The id is
// appended even when it is already present.
func (m *Model) AddPlaylist(_ context.Context, factors []float32, id string) (int, error) {
	if _, err := m.engine.AddUsers(factors); err != nil {
		return -1, err
	}

	row := m.catalog.addPlaylist(id)
	m.versions.bumpPlaylists()

	return row, nil
}

// Reset forgets all playlists. Artists are kept.
//
// The playlist rows are dropped together with their ids so that every id
// keeps pointing at its own row.
func (m *Model) Reset() error {
	if err := m.engine.SetUserFactors(nil); err != nil {
		return err
	}

	m.catalog.playlistIDs = nil
	m.versions.bumpPlaylists()

	return nil
}

// ArtistNames returns the artist names in column order.
func (m *Model) ArtistNames() []string { return slices.Clone(m.catalog.artistNames) }

// PlaylistIDs returns the playlist ids in row order.
func (m *Model) PlaylistIDs() []string { return slices.Clone(m.catalog.playlistIDs) }

// ArtistPosition resolves a name case-insensitively.
func (m *Model) ArtistPosition(name string) (int, bool) { return m.catalog.artistPosition(name) }

// PlaylistRow returns the row of id when exactly one playlist carries it.
func (m *Model) PlaylistRow(id string) (int, bool) { return m.catalog.playlistRow(id) }

// DirtyArtists reports whether artists changed since the last completed save
// or load.
func (m *Model) DirtyArtists() bool { return m.versions.snapshot().DirtyArtists() }

// DirtyPlaylists reports whether playlists changed since the last completed
// save or load.
func (m *Model) DirtyPlaylists() bool { return m.versions.snapshot().DirtyPlaylists() }

// Versions returns the current and persisted versions of both spaces.
func (m *Model) Versions() Versions { return m.versions.snapshot() }

// Engine exposes the underlying recommender for direct queries.
func (m *Model) Engine() *engine.Recommender { return m.engine }

// Status summarizes a model.
type Status struct {
	Artists        int          `json:"artists"`
	Playlists      int          `json:"playlists"`
	DirtyArtists   bool         `json:"dirtyArtists"`
	DirtyPlaylists bool         `json:"dirtyPlaylists"`
	Versions       Versions     `json:"versions"`
	Engine         engine.Stats `json:"engine"`
}

// Status returns the catalog sizes, versions and engine statistics.
func (m *Model) Status() Status {
	v := m.versions.snapshot()

	return Status{
		Artists:        len(m.catalog.artistNames),
		Playlists:      len(m.catalog.playlistIDs),
		DirtyArtists:   v.DirtyArtists(),
		DirtyPlaylists: v.DirtyPlaylists(),
		Versions:       v,
		Engine:         m.engine.Stats(),
	}
}
