package blobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recgo/codec"
)

func TestStoreCommitLog(t *testing.T) {
	ctx := context.Background()

	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			c, _ := codec.ByName(name)
			store := NewMemoryStore()
			log := NewStoreCommitLog(store, "snap", c, 2)

			_, ok, err := log.Latest(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			now := time.Now().UTC().Truncate(time.Millisecond)
			for i := 1; i <= 3; i++ {
				require.NoError(t, log.Append(ctx, Commit{
					ID:               string(rune('a' + i)),
					Folder:           "snap",
					ArtistsVersion:   uint64(i),
					PlaylistsVersion: uint64(10 * i),
					Files:            []string{"x"},
					CreatedAt:        now,
				}))
			}

			latest, ok, err := log.Latest(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(3), latest.ArtistsVersion)
			assert.Equal(t, uint64(30), latest.PlaylistsVersion)
			assert.True(t, now.Equal(latest.CreatedAt))

			history, err := log.History(ctx)
			require.NoError(t, err)
			assert.Len(t, history, 2)

			_, err = store.Get(ctx, "snap/"+CommitsBlob)
			require.NoError(t, err)
		})
	}
}

func TestStoreCommitLogCorrupt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "snap/"+CommitsBlob, []byte("garbage")))

	_, _, err := NewStoreCommitLog(store, "snap", nil, 0).Latest(ctx)
	require.Error(t, err)
}
