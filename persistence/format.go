package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicIndex identifies ANN index files (ASCII: "RGI1").
	MagicIndex = 0x52474931
	// MagicCatalog identifies catalog files (ASCII: "RGC1").
	MagicCatalog = 0x52474331
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000
)

const (
	// MaxPayloadSize bounds the stored and the uncompressed payload size.
	MaxPayloadSize = 1 << 36
	// MaxDimension bounds the vector width of an index file.
	MaxDimension = 1 << 16
	// MaxLevel bounds the highest HNSW layer of an index file.
	MaxLevel = 64
	// maxLZ4Ratio is the largest raw/stored ratio of an LZ4 block.
	maxLZ4Ratio = 255
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrTruncated      = errors.New("truncated payload")
	ErrInvalidHeader  = errors.New("invalid header")
)

// Precision of the vectors stored in a file.
type Precision uint8

const (
	// Float32 stores full single-precision vectors.
	Float32 Precision = 0
	// Float16 stores IEEE-754 half-precision vectors.
	Float16 Precision = 1
)

func (p Precision) String() string {
	if p == Float16 {
		return "float16"
	}

	return "float32"
}

// BytesPerValue returns the encoded width of one vector component.
func (p Precision) BytesPerValue() int {
	if p == Float16 {
		return 2
	}

	return 4
}

// FileHeader is the fixed header at the start of every index file.
type FileHeader struct {
	Magic       uint32 // 0x52474931 ("RGI1")
	Version     uint32 // File format version
	Metric      uint8  // distance.Metric
	Precision   uint8  // Precision
	Compression uint8  // Compression of the payload
	Padding1    uint8
	Dimension   uint32 // Vector dimensionality
	Count       uint64 // Number of vectors
	M           uint16 // Max connections per layer
	EF          uint16 // Construction/search candidate list size
	MaxLevel    uint16 // Highest populated layer
	Padding2    uint16
	EntryPoint  uint32 // Entry point node id
	PayloadSize uint64 // Stored (possibly compressed) payload size
	RawSize     uint64 // Uncompressed payload size
	Checksum    uint32 // CRC32 of the uncompressed payload
	Reserved    [12]byte
}

// Validate checks the header fields that size allocations while decoding.
// The header itself carries no checksum, so a damaged file must be rejected
// here rather than by the payload CRC.
func (h *FileHeader) Validate() error {
	if h.Dimension == 0 || h.Dimension > MaxDimension {
		return fmt.Errorf("%w: dimension %d", ErrInvalidHeader, h.Dimension)
	}

	if h.Precision != uint8(Float32) && h.Precision != uint8(Float16) {
		return fmt.Errorf("%w: precision %d", ErrInvalidHeader, h.Precision)
	}

	if h.MaxLevel > MaxLevel {
		return fmt.Errorf("%w: max level %d", ErrInvalidHeader, h.MaxLevel)
	}

	if h.PayloadSize > MaxPayloadSize || h.RawSize > MaxPayloadSize {
		return fmt.Errorf("%w: payload %d/%d bytes exceeds %d", ErrInvalidHeader, h.PayloadSize, h.RawSize, MaxPayloadSize)
	}

	switch Compression(h.Compression) {
	case CompressionNone:
		if h.RawSize != h.PayloadSize {
			return fmt.Errorf("%w: raw size %d, payload %d", ErrInvalidHeader, h.RawSize, h.PayloadSize)
		}
	case CompressionLZ4:
		if h.RawSize > h.PayloadSize*maxLZ4Ratio {
			return fmt.Errorf("%w: raw size %d for %d compressed bytes", ErrInvalidHeader, h.RawSize, h.PayloadSize)
		}
	case CompressionZSTD:
		// zstd frames may exceed any fixed ratio; Decompress caps the output.
	default:
		return fmt.Errorf("%w: compression %d", ErrInvalidHeader, h.Compression)
	}

	// Every node stores its layer, its vector and the link count of layer 0.
	perNode := uint64(8) + uint64(h.Dimension)*uint64(Precision(h.Precision).BytesPerValue())
	if h.Count > h.RawSize/perNode {
		return fmt.Errorf("%w: %d nodes do not fit %d bytes", ErrInvalidHeader, h.Count, h.RawSize)
	}

	if h.Count > 0 && uint64(h.EntryPoint) >= h.Count {
		return fmt.Errorf("%w: entry point %d out of range", ErrInvalidHeader, h.EntryPoint)
	}

	return nil
}
