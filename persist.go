package recgo

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/engine"
	"github.com/hupe1980/recgo/resource"
)

// snapshot is an encoded model together with the versions it reflects.
type snapshot struct {
	blobs     []engine.Blob
	artists   uint64
	playlists uint64
	size      int64
}

func (s *snapshot) files() []string {
	names := make([]string, len(s.blobs))
	for i, b := range s.blobs {
		names[i] = b.Name
	}

	return names
}

// encodeSnapshot serializes indexes and catalogs. The result shares no memory
// with the model.
func (m *Model) encodeSnapshot() (*snapshot, error) {
	artists, playlists := m.versions.current()

	blobs, err := m.engine.EncodeIndexes()
	if err != nil {
		return nil, err
	}

	artistsData, err := m.catalog.encodeArtists(m.opts.codec)
	if err != nil {
		return nil, engine.NewErrPersistence("encode", ArtistsCatalogBlob, err)
	}

	playlistsData, err := m.catalog.encodePlaylists(m.opts.codec)
	if err != nil {
		return nil, engine.NewErrPersistence("encode", PlaylistsCatalogBlob, err)
	}

	blobs = append(blobs,
		engine.Blob{Name: ArtistsCatalogBlob, Data: artistsData},
		engine.Blob{Name: PlaylistsCatalogBlob, Data: playlistsData},
	)

	s := &snapshot{blobs: blobs, artists: artists, playlists: playlists}
	for _, b := range blobs {
		s.size += int64(len(b.Data))
	}

	return s, nil
}

func (m *Model) commitLog(store blobstore.Store, folder string) blobstore.CommitLog {
	if m.opts.commitLog != nil {
		return m.opts.commitLog
	}

	return blobstore.NewStoreCommitLog(store, folder, m.opts.codec, m.opts.commitHistory)
}

// write stores every blob of s in folder, then records the commit.
func (m *Model) write(ctx context.Context, store blobstore.Store, folder, id string, s *snapshot) (err error) {
	unlock, err := lockFolder(ctx, store, folder)
	if err != nil {
		return engine.NewErrPersistence("lock", folder, err)
	}

	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = engine.NewErrPersistence("unlock", folder, uerr)
		}
	}()

	for _, b := range s.blobs {
		if err := store.Put(ctx, path.Join(folder, b.Name), b.Data); err != nil {
			return engine.NewErrPersistence("save", b.Name, err)
		}
	}

	commit := blobstore.Commit{
		ID:               id,
		Folder:           folder,
		ArtistsVersion:   s.artists,
		PlaylistsVersion: s.playlists,
		Files:            s.files(),
		CreatedAt:        time.Now().UTC(),
	}

	if err := m.commitLog(store, folder).Append(ctx, commit); err != nil {
		return engine.NewErrPersistence("save", blobstore.CommitsBlob, err)
	}

	return nil
}

func lockFolder(ctx context.Context, store blobstore.Store, folder string) (func() error, error) {
	if l, ok := store.(blobstore.Locker); ok {
		return l.Lock(ctx, folder)
	}

	return func() error { return nil }, nil
}

// Save writes a snapshot into folder and marks both spaces clean. On failure
// the folder may hold a partial snapshot and the versions are unchanged.
func (m *Model) Save(ctx context.Context, folder string) (err error) {
	start := time.Now()
	id := uuid.NewString()

	var size int64

	defer func() {
		m.opts.metricsCollector.RecordSave(false, size, time.Since(start), err)
		m.opts.logger.LogSave(ctx, folder, id, false, err)
	}()

	s, err := m.encodeSnapshot()
	if err != nil {
		return err
	}

	size = s.size

	if err := m.write(ctx, m.opts.store, folder, id, s); err != nil {
		return err
	}

	m.versions.markPersisted(s.artists, s.playlists)

	return nil
}

// SaveTask is a snapshot write running in the background.
type SaveTask struct {
	// ID is also the id of the commit the task records.
	ID     string
	Folder string

	done chan struct{}
	err  error
}

// Done is closed when the write has finished.
func (t *SaveTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the write has finished or ctx is done. Canceling ctx does
// not stop the write.
func (t *SaveTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome of a finished write, or nil while it is running.
func (t *SaveTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// SaveAsync encodes a snapshot of the current state and writes it into folder
// in the background. Versions advance to those captured here once the write
// succeeds, so anything changed in the meantime stays dirty.
//
// Background writes share the resource controller's slots and IO budget.
// ctx bounds only the encoding and the memory reservation.
func (m *Model) SaveAsync(ctx context.Context, folder string) (*SaveTask, error) {
	s, err := m.encodeSnapshot()
	if err != nil {
		return nil, err
	}

	rc := m.opts.resource
	if err := rc.AcquireMemory(ctx, s.size); err != nil {
		return nil, err
	}

	task := &SaveTask{
		ID:     uuid.NewString(),
		Folder: folder,
		done:   make(chan struct{}),
	}

	bg := context.WithoutCancel(ctx)
	store := resource.Throttle(m.opts.store, rc)

	go func() {
		defer close(task.done)
		defer rc.ReleaseMemory(s.size)

		start := time.Now()

		err := rc.AcquireBackground(bg)
		if err == nil {
			err = m.write(bg, store, folder, task.ID, s)
			rc.ReleaseBackground()
		}

		if err == nil {
			m.versions.markPersisted(s.artists, s.playlists)
		}

		task.err = err

		m.opts.metricsCollector.RecordSave(true, s.size, time.Since(start), err)
		m.opts.logger.LogSave(bg, folder, task.ID, true, err)
	}()

	return task, nil
}

// Load replaces the whole model with the snapshot in folder. Missing files
// leave their space empty. Afterwards both spaces are clean.
func (m *Model) Load(ctx context.Context, folder string) (err error) {
	start := time.Now()

	defer func() {
		m.opts.metricsCollector.RecordLoad(time.Since(start), err)
		m.opts.logger.LogLoad(ctx, folder, len(m.catalog.playlistIDs), len(m.catalog.artistNames), err)
	}()

	artists, err := m.readCatalog(ctx, folder, ArtistsCatalogBlob, decodeArtists)
	if err != nil {
		return err
	}

	playlists, err := m.readCatalog(ctx, folder, PlaylistsCatalogBlob, decodePlaylists)
	if err != nil {
		return err
	}

	eng, err := newEngine(m.opts)
	if err != nil {
		return err
	}

	if err := eng.LoadIndexes(ctx, m.opts.store, folder); err != nil {
		return err
	}

	if len(artists) != eng.Items() {
		return engine.NewErrPersistence("load", ArtistsCatalogBlob,
			fmt.Errorf("%d names for %d artist vectors", len(artists), eng.Items()))
	}

	if len(playlists) != eng.Users() {
		return engine.NewErrPersistence("load", PlaylistsCatalogBlob,
			fmt.Errorf("%d ids for %d playlist vectors", len(playlists), eng.Users()))
	}

	m.engine = eng
	m.catalog = newCatalog(artists, playlists)
	m.versions.markClean()

	return nil
}

func (m *Model) readCatalog(ctx context.Context, folder, name string, decode func([]byte) ([]string, error)) ([]string, error) {
	data, err := m.opts.store.Get(ctx, path.Join(folder, name))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, engine.NewErrPersistence("load", name, err)
	}

	values, err := decode(data)
	if err != nil {
		return nil, engine.NewErrPersistence("load", name, err)
	}

	return values, nil
}
