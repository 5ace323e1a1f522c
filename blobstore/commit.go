package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/hupe1980/recgo/codec"
)

// CommitsBlob is the blob name used by StoreCommitLog inside a folder.
const CommitsBlob = "COMMITS"

const commitsMagic = 0x52474c31 // "RGL1"

// Commit records one completed snapshot.
type Commit struct {
	ID               string    `json:"id" msgpack:"id"`
	Folder           string    `json:"folder" msgpack:"folder"`
	ArtistsVersion   uint64    `json:"artistsVersion" msgpack:"artistsVersion"`
	PlaylistsVersion uint64    `json:"playlistsVersion" msgpack:"playlistsVersion"`
	Files            []string  `json:"files" msgpack:"files"`
	CreatedAt        time.Time `json:"createdAt" msgpack:"createdAt"`
}

// CommitLog is an append-only log of completed snapshots.
type CommitLog interface {
	Append(ctx context.Context, c Commit) error
	Latest(ctx context.Context) (Commit, bool, error)
}

// StoreCommitLog keeps the commit history as a codec-encoded list in the
// COMMITS blob of a folder. Appends from one process are serialized; it does
// not protect against concurrent writers in other processes.
type StoreCommitLog struct {
	store  Store
	folder string
	codec  codec.Codec
	limit  int

	mu sync.Mutex
}

var _ CommitLog = (*StoreCommitLog)(nil)

// NewStoreCommitLog keeps at most limit entries (0 keeps all).
func NewStoreCommitLog(store Store, folder string, c codec.Codec, limit int) *StoreCommitLog {
	if c == nil {
		c = codec.Default
	}

	return &StoreCommitLog{store: store, folder: folder, codec: c, limit: limit}
}

func (l *StoreCommitLog) name() string {
	return path.Join(l.folder, CommitsBlob)
}

// History returns all retained commits, oldest first.
func (l *StoreCommitLog) History(ctx context.Context) ([]Commit, error) {
	data, err := l.store.Get(ctx, l.name())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var commits []Commit
	if _, err := codec.Unframe(commitsMagic, data, &commits); err != nil {
		return nil, fmt.Errorf("blobstore: decode %s: %w", l.name(), err)
	}

	return commits, nil
}

// Append adds c to the log.
func (l *StoreCommitLog) Append(ctx context.Context, c Commit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	commits, err := l.History(ctx)
	if err != nil {
		return err
	}

	commits = append(commits, c)
	if l.limit > 0 && len(commits) > l.limit {
		commits = commits[len(commits)-l.limit:]
	}

	data, err := codec.Frame(commitsMagic, l.codec, commits)
	if err != nil {
		return err
	}

	return l.store.Put(ctx, l.name(), data)
}

// Latest returns the most recent commit.
func (l *StoreCommitLog) Latest(ctx context.Context) (Commit, bool, error) {
	commits, err := l.History(ctx)
	if err != nil || len(commits) == 0 {
		return Commit{}, false, err
	}

	return commits[len(commits)-1], true, nil
}
