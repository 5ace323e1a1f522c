// Package dataset reads play-count exports for fitting a model.
//
// The format is tab-separated, one line per (playlist, artist) pair:
//
//	playlist_id	artist_name	plays
//
// Lines starting with # are comments. A header line whose third field is not
// a number is skipped. Repeated pairs are summed.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hupe1980/recgo/sparse"
)

// Plays is an artists×playlists play-count matrix with its labels.
type Plays struct {
	Matrix      *sparse.Matrix
	PlaylistIDs []string
	ArtistNames []string
}

// Read parses a play-count export. Artist names that differ only in case are
// one artist, named after their first occurrence. Playlist ids are exact.
func Read(r io.Reader) (*Plays, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	lower := cases.Lower(language.Und)

	var (
		playlists  = map[string]int{}
		artists    = map[string]int{}
		rows, cols []int
		values     []float32
		out        Plays
		lineNumber int
	)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}

		lineNumber++

		plays, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 32)
		if err != nil {
			if lineNumber == 1 {
				continue
			}

			line, _ := cr.FieldPos(2)

			return nil, fmt.Errorf("dataset: line %d: invalid play count %q", line, rec[2])
		}

		if plays <= 0 {
			continue
		}

		id := strings.TrimSpace(rec[0])
		name := strings.TrimSpace(rec[1])

		if id == "" || name == "" {
			continue
		}

		p, ok := playlists[id]
		if !ok {
			p = len(out.PlaylistIDs)
			playlists[id] = p
			out.PlaylistIDs = append(out.PlaylistIDs, id)
		}

		key := lower.String(name)

		a, ok := artists[key]
		if !ok {
			a = len(out.ArtistNames)
			artists[key] = a
			out.ArtistNames = append(out.ArtistNames, name)
		}

		rows = append(rows, a)
		cols = append(cols, p)
		values = append(values, float32(plays))
	}

	m, err := sparse.NewFromTriplets(len(out.ArtistNames), len(out.PlaylistIDs), rows, cols, values)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	out.Matrix = m

	return &out, nil
}
