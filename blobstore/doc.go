// Package blobstore is the storage abstraction behind model snapshots.
//
// A snapshot folder is a set of named blobs (index files, catalogs). Blob
// names use forward slashes; the folder is the leading path segment(s).
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic writes, optional folder locks
//   - MemoryStore: in-memory, for tests and ephemeral models
//   - FaultyStore: wraps a Store and injects errors, for tests
//   - s3.Store: Amazon S3 (uploads through the transfer manager)
//   - minio.Store: MinIO and other S3-compatible services
//
// # Commit logs
//
// Multi-file snapshots are not atomic. After all blobs of a snapshot have been
// written, a Commit record is appended to a CommitLog so readers can tell the
// last complete snapshot apart from a partially written one.
package blobstore
