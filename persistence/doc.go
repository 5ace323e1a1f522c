// Package persistence provides the binary building blocks for index and
// catalog files: a fixed little-endian header, CRC32 checksums, float32 and
// float16 slice encoding, block compression and atomic file replacement.
package persistence
