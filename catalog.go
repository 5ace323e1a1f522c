package recgo

import (
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hupe1980/recgo/codec"
	"github.com/hupe1980/recgo/persistence"
)

// Catalog blob names inside a snapshot folder.
const (
	ArtistsCatalogBlob   = "artists.catalog"
	PlaylistsCatalogBlob = "playlists.catalog"
)

// catalog maps artist names and playlist ids to factor positions.
// Artist names match case-insensitively; playlist ids match exactly and may
// repeat.
type catalog struct {
	artistNames  []string
	artistByName map[string]int
	playlistIDs  []string
}

type artistsFile struct {
	Names []string `json:"names" msgpack:"names"`
}

type playlistsFile struct {
	IDs []string `json:"ids" msgpack:"ids"`
}

func newCatalog(artists, playlists []string) *catalog {
	c := &catalog{
		artistByName: make(map[string]int, len(artists)),
		playlistIDs:  slices.Clone(playlists),
	}

	c.addArtists(artists)

	return c
}

// foldName returns the lookup key of an artist name.
func foldName(name string) string {
	// A Caser is stateful, so each call gets its own.
	return cases.Lower(language.Und).String(name)
}

// addArtists appends names. A later duplicate takes over the lookup key.
func (c *catalog) addArtists(names []string) {
	for _, name := range names {
		c.artistByName[foldName(name)] = len(c.artistNames)
		c.artistNames = append(c.artistNames, name)
	}
}

func (c *catalog) artistPosition(name string) (int, bool) {
	pos, ok := c.artistByName[foldName(name)]
	return pos, ok
}

// addPlaylist appends id and returns its row.
func (c *catalog) addPlaylist(id string) int {
	c.playlistIDs = append(c.playlistIDs, id)
	return len(c.playlistIDs) - 1
}

// playlistRow returns the row of id when exactly one row carries it.
func (c *catalog) playlistRow(id string) (int, bool) {
	row, n := -1, 0

	for i, pid := range c.playlistIDs {
		if pid == id {
			row = i
			n++
		}
	}

	return row, n == 1
}

func (c *catalog) playlistCount(id string) int {
	n := 0

	for _, pid := range c.playlistIDs {
		if pid == id {
			n++
		}
	}

	return n
}

func (c *catalog) encodeArtists(cd codec.Codec) ([]byte, error) {
	return codec.Frame(persistence.MagicCatalog, cd, artistsFile{Names: c.artistNames})
}

func (c *catalog) encodePlaylists(cd codec.Codec) ([]byte, error) {
	return codec.Frame(persistence.MagicCatalog, cd, playlistsFile{IDs: c.playlistIDs})
}

func decodeArtists(data []byte) ([]string, error) {
	var f artistsFile
	if _, err := codec.Unframe(persistence.MagicCatalog, data, &f); err != nil {
		return nil, err
	}

	return f.Names, nil
}

func decodePlaylists(data []byte) ([]string, error) {
	var f playlistsFile
	if _, err := codec.Unframe(persistence.MagicCatalog, data, &f); err != nil {
		return nil, err
	}

	return f.IDs, nil
}
