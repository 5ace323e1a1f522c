package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store reads and writes whole blobs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes a blob, replacing any previous content atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Get reads a whole blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Locker is implemented by stores that can exclusively lock a folder across
// processes. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, folder string) (func() error, error)
}
