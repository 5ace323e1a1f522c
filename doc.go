// Package recgo provides a hybrid playlist/artist recommender for Go.
//
// A Model factorizes a play-count matrix with alternating least squares into
// playlist and artist embeddings, and answers "similar to" and "recommend for"
// queries by approximate nearest-neighbour search over three HNSW indexes:
//
//   - similar artists (cosine over artist vectors)
//   - similar playlists (cosine over playlist vectors)
//   - recommend (inner product, reduced to a similarity search by padding
//     every artist vector with one extra coordinate)
//
// # Quick Start
//
//	ctx := context.Background()
//	model, _ := recgo.New(recgo.WithFactors(64))
//
//	// plays is an artists×playlists matrix of play counts.
//	_ = model.Fit(ctx, plays, playlistIDs, artistNames)
//
//	res, _ := model.ProcessArtists(ctx, []string{"dEUS", "Anvil"}, "my-playlist")
//	for _, a := range res.Artists {
//	    fmt.Println(a.Name, a.Score)
//	}
//
// # Incremental Updates
//
// Artists and playlists can be appended without refitting:
//
//	model.AddArtists(ctx, factors, names)
//	row, _ := model.AddPlaylist(ctx, vector, "playlist-id")
//
// Positions are stable: nothing is ever removed except by Fit, Load or Reset.
//
// # Persistence
//
// A snapshot folder holds the three indexes and two catalogs. Save writes it
// synchronously, SaveAsync in the background:
//
//	task, _ := model.SaveAsync(ctx, "models/current")
//	if err := task.Wait(ctx); err != nil {
//	    // the model stays dirty
//	}
//
// Each space (artists, playlists) carries a version counter. A space is dirty
// while its version differs from the last one persisted, see Model.Versions.
//
// Snapshots go to the local filesystem by default; blobstore/s3 and
// blobstore/minio provide object storage backends.
//
// # Pipeline
//
// ProcessArtists and ProcessPlaylist resolve artist names case-insensitively,
// optionally register the submitted playlist, and return recommended artists
// and similar playlists. Playlist ids are matched exactly.
package recgo
