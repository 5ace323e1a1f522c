package recgo

import "sync/atomic"

// Versions reports the mutation counters of both spaces. A space is dirty
// when its current version differs from the persisted one.
type Versions struct {
	Artists            uint64 `json:"artists"`
	Playlists          uint64 `json:"playlists"`
	PersistedArtists   uint64 `json:"persistedArtists"`
	PersistedPlaylists uint64 `json:"persistedPlaylists"`
}

// DirtyArtists reports whether the artist space changed since the last save.
func (v Versions) DirtyArtists() bool { return v.Artists != v.PersistedArtists }

// DirtyPlaylists reports whether the playlist space changed since the last save.
func (v Versions) DirtyPlaylists() bool { return v.Playlists != v.PersistedPlaylists }

// versionTracker holds per-space version counters and persisted markers.
// Markers only move forward, so a slow save never hides a newer one.
type versionTracker struct {
	artists            atomic.Uint64
	playlists          atomic.Uint64
	persistedArtists   atomic.Uint64
	persistedPlaylists atomic.Uint64
}

func (t *versionTracker) bumpArtists()   { t.artists.Add(1) }
func (t *versionTracker) bumpPlaylists() { t.playlists.Add(1) }

// current returns the versions a snapshot taken now reflects.
func (t *versionTracker) current() (artists, playlists uint64) {
	return t.artists.Load(), t.playlists.Load()
}

// markPersisted advances the markers to the versions captured by a save.
func (t *versionTracker) markPersisted(artists, playlists uint64) {
	advance(&t.persistedArtists, artists)
	advance(&t.persistedPlaylists, playlists)
}

// markClean marks both spaces as persisted.
func (t *versionTracker) markClean() {
	t.markPersisted(t.current())
}

func (t *versionTracker) snapshot() Versions {
	return Versions{
		Artists:            t.artists.Load(),
		Playlists:          t.playlists.Load(),
		PersistedArtists:   t.persistedArtists.Load(),
		PersistedPlaylists: t.persistedPlaylists.Load(),
	}
}

func advance(v *atomic.Uint64, to uint64) {
	for {
		cur := v.Load()
		if cur >= to || v.CompareAndSwap(cur, to) {
			return
		}
	}
}
