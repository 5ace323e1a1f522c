package blobstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/recgo/persistence"
)

const lockFile = ".lock"

// LocalStore implements Store using the local file system.
type LocalStore struct {
	root string
}

var (
	_ Store  = (*LocalStore)(nil)
	_ Locker = (*LocalStore)(nil)
)

// NewLocalStore creates a new LocalStore rooted at the given directory.
// An empty root resolves names relative to the working directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put writes the blob through a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	return persistence.SaveToFile(p, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Get reads the whole blob.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return os.ReadFile(s.path(name))
}

// Delete removes the blob.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// List walks the directory holding prefix and returns matching blob names.
// Temp files and lock files are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}

	base := s.path(dir)
	if base == "" {
		base = "."
	}

	var names []string

	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() || d.Name() == lockFile || strings.Contains(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)
		if dir != "" {
			name = path.Join(dir, name)
		}

		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(names)

	return names, nil
}

// Lock takes an exclusive advisory lock on folder, waiting until it is
// available or ctx is done.
func (s *LocalStore) Lock(ctx context.Context, folder string) (func() error, error) {
	dir := s.path(folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return lockPath(ctx, filepath.Join(dir, lockFile))
}
