package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a file payload.
type Compression uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

var errSizeMismatch = errors.New("decompressed size mismatch")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// Compress compresses data with c. It returns the algorithm actually used:
// payloads that do not shrink below 90% of their size are stored as is.
func Compress(data []byte, c Compression) ([]byte, Compression, error) {
	if c == CompressionNone || len(data) == 0 {
		return data, CompressionNone, nil
	}

	var compressed []byte

	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, CompressionNone, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, CompressionNone, err
		}
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, CompressionNone, fmt.Errorf("unknown compression %d", c)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return data, CompressionNone, nil
	}

	return compressed, c, nil
}

// Decompress reverses Compress. rawSize is the uncompressed length; output
// beyond it is never buffered.
func Decompress(data []byte, c Compression, rawSize int) ([]byte, error) {
	if rawSize < 0 || int64(rawSize) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: raw size %d", ErrInvalidHeader, rawSize)
	}

	switch c {
	case CompressionNone:
		if len(data) != rawSize {
			return nil, ErrTruncated
		}
		return data, nil
	case CompressionLZ4:
		if int64(rawSize) > int64(len(data))*maxLZ4Ratio {
			return nil, fmt.Errorf("%w: raw size %d for %d compressed bytes", ErrInvalidHeader, rawSize, len(data))
		}

		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if n != rawSize {
			return nil, errSizeMismatch
		}
		return out, nil
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)

		if err := dec.Reset(bytes.NewReader(data)); err != nil {
			return nil, err
		}

		out, err := io.ReadAll(io.LimitReader(dec, int64(rawSize)+1))
		if err != nil {
			return nil, err
		}
		if len(out) != rawSize {
			return nil, errSizeMismatch
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}
