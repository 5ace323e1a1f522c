package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/distance"
	"github.com/hupe1980/recgo/factor"
	"github.com/hupe1980/recgo/hnsw"
)

// Blob is an encoded snapshot file.
type Blob struct {
	Name string
	Data []byte
}

// IndexBlobNames returns the blob names of the similar-items, similar-users
// and recommend indexes for factor width d.
func IndexBlobNames(d int) (items, users, recommend string) {
	return fmt.Sprintf("similar_items_index.bin%d", d),
		fmt.Sprintf("similar_users_index.bin%d", d),
		fmt.Sprintf("recommend_index.bin%d", d+1)
}

// EncodeIndexes serializes the three indexes. The result does not share
// memory with the recommender, so it can be written while it keeps changing.
func (r *Recommender) EncodeIndexes() ([]Blob, error) {
	items, users, recommend := IndexBlobNames(r.factors)

	blobs := []Blob{{Name: items}, {Name: users}, {Name: recommend}}
	indexes := []*hnsw.HNSW{r.similarItems, r.similarUsers, r.recommend}

	var g errgroup.Group
	g.SetLimit(r.workers)

	for i := range blobs {
		g.Go(func() error {
			var buf bytes.Buffer
			if _, err := indexes[i].WriteTo(&buf); err != nil {
				return NewErrPersistence("encode", blobs[i].Name, err)
			}

			blobs[i].Data = buf.Bytes()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return blobs, nil
}

// SaveIndexes writes the three indexes into folder.
func (r *Recommender) SaveIndexes(ctx context.Context, store blobstore.Store, folder string) error {
	blobs, err := r.EncodeIndexes()
	if err != nil {
		return err
	}

	for _, b := range blobs {
		if err := store.Put(ctx, path.Join(folder, b.Name), b.Data); err != nil {
			return NewErrPersistence("save", b.Name, err)
		}
	}

	r.logger.InfoContext(ctx, "indexes saved", "folder", folder, "users", r.Users(), "items", r.Items())

	return nil
}

// LoadIndexes replaces all state from the indexes in folder. A missing blob
// leaves its space empty; a missing recommend index is rebuilt from the item
// factors. Factor matrices are reconstructed from the similarity indexes.
func (r *Recommender) LoadIndexes(ctx context.Context, store blobstore.Store, folder string) error {
	itemsName, usersName, recommendName := IndexBlobNames(r.factors)

	users, err := r.readIndex(ctx, store, folder, usersName, r.factors, distance.Cosine)
	if err != nil {
		return err
	}

	items, err := r.readIndex(ctx, store, folder, itemsName, r.factors, distance.Cosine)
	if err != nil {
		return err
	}

	recommend, err := r.readIndex(ctx, store, folder, recommendName, r.factors+1, distance.InnerProduct)
	if err != nil {
		return err
	}

	st := &state{}

	if st.userFactors, st.similarUsers, err = r.restore(users); err != nil {
		return NewErrPersistence("load", usersName, err)
	}

	if st.itemFactors, st.similarItems, err = r.restore(items); err != nil {
		return NewErrPersistence("load", itemsName, err)
	}

	st.maxNorm = st.itemFactors.MaxNorm()

	switch {
	case recommend == nil:
		if st.recommend, err = r.buildIndex(r.factors+1, distance.InnerProduct, padAll(st.itemFactors, st.maxNorm)); err != nil {
			return NewErrPersistence("load", recommendName, err)
		}
	case recommend.Len() != st.itemFactors.Len():
		return NewErrPersistence("load", recommendName,
			fmt.Errorf("holds %d vectors, item index holds %d", recommend.Len(), st.itemFactors.Len()))
	default:
		st.recommend = recommend
	}

	r.state = *st

	r.logger.InfoContext(ctx, "indexes loaded", "folder", folder, "users", r.Users(), "items", r.Items())

	return nil
}

// readIndex returns nil without error when the blob does not exist.
func (r *Recommender) readIndex(ctx context.Context, store blobstore.Store, folder, name string, dim int, metric distance.Metric) (*hnsw.HNSW, error) {
	data, err := store.Get(ctx, path.Join(folder, name))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, NewErrPersistence("load", name, err)
	}

	idx, err := hnsw.Read(bytes.NewReader(data), r.indexOptions(metric))
	if err != nil {
		return nil, NewErrPersistence("load", name, err)
	}

	if idx.Dimension() != dim {
		return nil, NewErrPersistence("load", name, &ErrDimensionMismatch{Expected: dim, Actual: idx.Dimension()})
	}

	if idx.Metric() != metric {
		return nil, NewErrPersistence("load", name, fmt.Errorf("metric %s, want %s", idx.Metric(), metric))
	}

	return idx, nil
}

// restore derives the factor matrix of a similarity index, creating an empty
// index when idx is nil.
func (r *Recommender) restore(idx *hnsw.HNSW) (*factor.Matrix, *hnsw.HNSW, error) {
	if idx == nil {
		idx, err := r.buildIndex(r.factors, distance.Cosine, nil)
		if err != nil {
			return nil, nil, err
		}

		return factor.New(r.factors, r.precision), idx, nil
	}

	m, err := factor.FromRows(r.factors, r.precision, idx.Vectors())
	if err != nil {
		return nil, nil, translateError(err)
	}

	return m, idx, nil
}
