package hnsw

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recgo/distance"
	"github.com/hupe1980/recgo/persistence"
)

func newIndex(t *testing.T, dim int, optFns ...func(o *Options)) *HNSW {
	t.Helper()

	h, err := New(dim, optFns...)
	require.NoError(t, err)

	return h
}

func bruteForce(vectors [][]float32, q []float32, k int, fn distance.Func) []uint32 {
	type hit struct {
		id uint32
		d  float32
	}

	hits := make([]hit, len(vectors))
	for i, v := range vectors {
		hits[i] = hit{id: uint32(i), d: fn(q, v)}
	}

	slices.SortFunc(hits, func(a, b hit) int {
		switch {
		case a.d < b.d:
			return -1
		case a.d > b.d:
			return 1
		}
		return 0
	})

	ids := make([]uint32, 0, k)
	for _, h := range hits[:k] {
		ids = append(ids, h.id)
	}

	return ids
}

func TestNew(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	h := newIndex(t, 4, func(o *Options) { o.M = 1 })
	assert.Equal(t, 2, h.Options().M)
	assert.Equal(t, 4, h.Dimension())
	assert.Equal(t, distance.Cosine, h.Metric())
}

func TestInsert(t *testing.T) {
	h := newIndex(t, 3)

	n, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.Insert([]float32{0, 1, 0}, []float32{0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, h.Len())

	v, ok := h.Vector(1)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 0}, v)

	_, ok = h.Vector(3)
	assert.False(t, ok)
}

func TestInsertDimensionMismatch(t *testing.T) {
	h := newIndex(t, 3)

	_, err := h.Insert([]float32{1, 2, 3}, []float32{1, 2})

	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)
	assert.Equal(t, 0, h.Len(), "no vector may be inserted on a failed batch")
}

func TestInsertCopiesVector(t *testing.T) {
	h := newIndex(t, 2)
	v := []float32{1, 2}

	_, err := h.Insert(v)
	require.NoError(t, err)

	v[0] = 42

	stored, _ := h.Vector(0)
	assert.Equal(t, float32(1), stored[0])
}

func TestSearchEmpty(t *testing.T) {
	h := newIndex(t, 4)

	res, err := h.Search([]float32{1, 2, 3, 4}, 10)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestSearchDimensionMismatch(t *testing.T) {
	h := newIndex(t, 4)

	_, err := h.Search([]float32{1}, 1)

	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
}

func TestSearchExact(t *testing.T) {
	vectors := GenerateRandomVectors(50, 8, 1)
	h := newIndex(t, 8)

	_, err := h.Insert(vectors...)
	require.NoError(t, err)

	for i, v := range vectors {
		res, err := h.Search(v, 5)
		require.NoError(t, err)
		require.Len(t, res, 5)
		assert.Equal(t, uint32(i), res[0].ID)
		assert.InDelta(t, 0, res[0].Distance, 1e-5)

		for j := 1; j < len(res); j++ {
			assert.LessOrEqual(t, res[j-1].Distance, res[j].Distance)
		}

		assert.Equal(t, bruteForce(vectors, v, 5, distance.CosineDistance), ids(res))
	}
}

func TestSearchKLargerThanLen(t *testing.T) {
	h := newIndex(t, 2)
	_, err := h.Insert([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)

	res, err := h.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestSearchGraphRecall(t *testing.T) {
	const (
		n   = 2000
		dim = 16
		k   = 10
	)

	vectors := GenerateRandomVectors(n, dim, 42)
	h := newIndex(t, dim, func(o *Options) {
		o.M = 12
		o.EF = 100
	})

	_, err := h.Insert(vectors...)
	require.NoError(t, err)

	queries := GenerateRandomVectors(20, dim, 7)

	found := 0
	for _, q := range queries {
		res, err := h.Search(q, k)
		require.NoError(t, err)
		require.Len(t, res, k)

		want := bruteForce(vectors, q, k, distance.CosineDistance)
		for _, r := range res {
			if slices.Contains(want, r.ID) {
				found++
			}
		}
	}

	recall := float64(found) / float64(len(queries)*k)
	assert.GreaterOrEqual(t, recall, 0.8)
}

func TestSearchInnerProduct(t *testing.T) {
	h := newIndex(t, 2, func(o *Options) { o.Metric = distance.InnerProduct })

	_, err := h.Insert([]float32{1, 0}, []float32{3, 0}, []float32{0, 5})
	require.NoError(t, err)

	res, err := h.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0, 2}, ids(res))
	assert.InDelta(t, -3, res[0].Distance, 1e-6)
}

func TestSearchBatch(t *testing.T) {
	vectors := GenerateRandomVectors(30, 4, 3)
	h := newIndex(t, 4, func(o *Options) { o.Workers = 3 })

	_, err := h.Insert(vectors...)
	require.NoError(t, err)

	res, err := h.SearchBatch(context.Background(), vectors[:10], 1)
	require.NoError(t, err)
	require.Len(t, res, 10)

	for i, r := range res {
		assert.Equal(t, uint32(i), r[0].ID)
	}

	_, err = h.SearchBatch(context.Background(), [][]float32{{1}}, 1)
	require.Error(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	vectors := GenerateRandomVectors(300, 8, 9)

	for _, c := range []persistence.Compression{persistence.CompressionNone, persistence.CompressionLZ4, persistence.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			h := newIndex(t, 8, func(o *Options) {
				o.EF = 20
				o.Compression = c
			})

			_, err := h.Insert(vectors...)
			require.NoError(t, err)

			var buf bytes.Buffer
			n, err := h.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			loaded, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, h.Len(), loaded.Len())
			assert.Equal(t, 20, loaded.Options().EF)
			assert.Equal(t, h.Stats(), loaded.Stats())

			for _, q := range vectors[:20] {
				want, err := h.Search(q, 5)
				require.NoError(t, err)

				got, err := loaded.Search(q, 5)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestReadFrom(t *testing.T) {
	src := newIndex(t, 3)
	_, err := src.Insert([]float32{1, 2, 3}, []float32{3, 2, 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = src.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.Bytes()

	dst := newIndex(t, 3)
	_, err = dst.ReadFrom(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, dst.Len())

	wrongDim := newIndex(t, 4)
	_, err = wrongDim.ReadFrom(bytes.NewReader(raw))

	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)

	wrongMetric := newIndex(t, 3, func(o *Options) { o.Metric = distance.InnerProduct })
	_, err = wrongMetric.ReadFrom(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestReadCorrupted(t *testing.T) {
	src := newIndex(t, 3)
	_, err := src.Insert([]float32{1, 2, 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = src.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff

	_, err = Read(bytes.NewReader(raw))

	var mismatch *persistence.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)

	_, err = Read(bytes.NewReader(raw[:len(raw)-4]))
	require.ErrorIs(t, err, persistence.ErrTruncated)
}

func TestReadCorruptHeader(t *testing.T) {
	src := newIndex(t, 3)
	_, err := src.Insert(GenerateRandomVectors(3, 3, 1)...)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = src.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.Bytes()
	payload := raw[binary.Size(persistence.FileHeader{}):]

	rewrite := func(t *testing.T, mutate func(h *persistence.FileHeader)) []byte {
		t.Helper()

		header, err := persistence.NewBinaryReader(bytes.NewReader(raw)).ReadHeader()
		require.NoError(t, err)

		mutate(header)

		var out bytes.Buffer
		require.NoError(t, persistence.NewBinaryWriter(&out).WriteHeader(header))
		out.Write(payload)

		return out.Bytes()
	}

	tests := []struct {
		name   string
		mutate func(h *persistence.FileHeader)
	}{
		{name: "count", mutate: func(h *persistence.FileHeader) { h.Count = 1 << 62 }},
		{name: "payload size", mutate: func(h *persistence.FileHeader) { h.PayloadSize = 1 << 62 }},
		{name: "raw size", mutate: func(h *persistence.FileHeader) { h.RawSize = h.PayloadSize + 1 }},
		{name: "lz4 raw size", mutate: func(h *persistence.FileHeader) {
			h.Compression = uint8(persistence.CompressionLZ4)
			h.RawSize = 1 << 62
		}},
		{name: "zstd raw size", mutate: func(h *persistence.FileHeader) {
			h.Compression = uint8(persistence.CompressionZSTD)
			h.RawSize = 1 << 62
		}},
		{name: "max level", mutate: func(h *persistence.FileHeader) { h.MaxLevel = math.MaxUint16 }},
		{name: "dimension", mutate: func(h *persistence.FileHeader) { h.Dimension = math.MaxUint32 }},
		{name: "entry point", mutate: func(h *persistence.FileHeader) { h.EntryPoint = 7 }},
		{name: "precision", mutate: func(h *persistence.FileHeader) { h.Precision = 9 }},
		{name: "compression", mutate: func(h *persistence.FileHeader) { h.Compression = 9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := rewrite(t, tt.mutate)

			require.NotPanics(t, func() {
				_, err = Read(bytes.NewReader(data))
			})
			require.ErrorIs(t, err, persistence.ErrInvalidHeader)

			dst := newIndex(t, 3)
			_, err = dst.ReadFrom(bytes.NewReader(data))
			require.Error(t, err)
			assert.Equal(t, 0, dst.Len())
		})
	}

	t.Run("payload beyond input", func(t *testing.T) {
		data := rewrite(t, func(h *persistence.FileHeader) {
			h.PayloadSize += 100
			h.RawSize += 100
		})

		_, err := Read(bytes.NewReader(data))
		require.ErrorIs(t, err, persistence.ErrTruncated)
	})

	t.Run("trailing payload", func(t *testing.T) {
		grown := append(slices.Clone(payload), 0, 0, 0, 0)

		header, err := persistence.NewBinaryReader(bytes.NewReader(raw)).ReadHeader()
		require.NoError(t, err)

		header.PayloadSize += 4
		header.RawSize += 4
		header.Checksum = crc32.Checksum(grown, persistence.CRC32Table)

		var out bytes.Buffer
		require.NoError(t, persistence.NewBinaryWriter(&out).WriteHeader(header))
		out.Write(grown)

		_, err = Read(&out)
		require.ErrorContains(t, err, "trailing")
	})
}

func TestEmptyRoundTrip(t *testing.T) {
	h := newIndex(t, 5)

	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, h.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, 5, loaded.Dimension())

	res, err := loaded.Search(make([]float32, 5), 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestFloat16Precision(t *testing.T) {
	h := newIndex(t, 2, func(o *Options) { o.Precision = persistence.Float16 })

	_, err := h.Insert([]float32{0.1, 1.0 / 3})
	require.NoError(t, err)

	stored, _ := h.Vector(0)
	assert.NotEqual(t, float32(0.1), stored[0])
	assert.InDelta(t, 0.1, stored[0], 1e-3)

	path := filepath.Join(t.TempDir(), "half.bin")
	require.NoError(t, h.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, persistence.Float16, loaded.Options().Precision)

	got, _ := loaded.Vector(0)
	assert.Equal(t, stored, got)
}

func TestStats(t *testing.T) {
	h := newIndex(t, 4)
	assert.Equal(t, 0, h.Stats().Nodes)

	_, err := h.Insert(GenerateRandomVectors(100, 4, 5)...)
	require.NoError(t, err)

	s := h.Stats()
	assert.Equal(t, 100, s.Nodes)
	assert.Equal(t, "Cosine", s.Metric)
	require.NotEmpty(t, s.Levels)
	assert.Equal(t, 100, s.Levels[0].Nodes)
	assert.Positive(t, s.Levels[0].AverageConnections)
}

func ids(res []Neighbor) []uint32 {
	out := make([]uint32, len(res))
	for i, r := range res {
		out[i] = r.ID
	}

	return out
}
