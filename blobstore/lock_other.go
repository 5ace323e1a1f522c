//go:build !unix

package blobstore

import "context"

// lockPath is a no-op where flock is unavailable; saves are still serialized
// in-process by the model.
func lockPath(ctx context.Context, _ string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return func() error { return nil }, nil
}
