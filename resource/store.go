package resource

import (
	"context"

	"github.com/hupe1980/recgo/blobstore"
)

// ThrottledStore charges every Put against the controller's IO limit.
type ThrottledStore struct {
	blobstore.Store
	rc *Controller
}

var _ blobstore.Store = (*ThrottledStore)(nil)

// Throttle wraps store. Reads, deletes and listings are not throttled.
func Throttle(store blobstore.Store, rc *Controller) *ThrottledStore {
	return &ThrottledStore{Store: store, rc: rc}
}

// Put waits for IO budget, then writes.
func (s *ThrottledStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}

	return s.Store.Put(ctx, name, data)
}

// Lock forwards to the wrapped store when it is a blobstore.Locker.
func (s *ThrottledStore) Lock(ctx context.Context, folder string) (func() error, error) {
	if l, ok := s.Store.(blobstore.Locker); ok {
		return l.Lock(ctx, folder)
	}

	return func() error { return nil }, nil
}
