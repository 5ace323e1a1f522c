package hnsw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/recgo/distance"
	"github.com/hupe1980/recgo/persistence"
)

// WriteTo serializes the index: a fixed header followed by the (optionally
// compressed) payload holding, per node, its layer, vector and adjacency lists.
func (h *HNSW) WriteTo(w io.Writer) (int64, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.opts.M > math.MaxUint16 || h.opts.EF > math.MaxUint16 {
		return 0, fmt.Errorf("hnsw: M=%d / EF=%d do not fit the file header", h.opts.M, h.opts.EF)
	}

	var payload bytes.Buffer

	cw := persistence.NewChecksumWriter(&payload)
	bw := persistence.NewBinaryWriter(cw)
	for _, node := range h.nodes {
		if err := bw.WriteUint32(uint32(node.Layer)); err != nil {
			return 0, err
		}

		if err := bw.WriteVector(node.Vector, h.opts.Precision); err != nil {
			return 0, err
		}

		for level := 0; level <= node.Layer; level++ {
			conns := node.Connections[level]
			if err := bw.WriteUint32(uint32(len(conns))); err != nil {
				return 0, err
			}

			if err := bw.WriteUint32Slice(conns); err != nil {
				return 0, err
			}
		}
	}

	raw := payload.Bytes()

	data, used, err := persistence.Compress(raw, h.opts.Compression)
	if err != nil {
		return 0, err
	}

	header := &persistence.FileHeader{
		Metric:      uint8(h.opts.Metric),
		Precision:   uint8(h.opts.Precision),
		Compression: uint8(used),
		Dimension:   uint32(h.dimension),
		Count:       uint64(len(h.nodes)),
		M:           uint16(h.opts.M),
		EF:          uint16(h.opts.EF),
		MaxLevel:    uint16(h.maxLevel),
		EntryPoint:  h.ep,
		PayloadSize: uint64(len(data)),
		RawSize:     uint64(len(raw)),
		Checksum:    cw.Sum(),
	}

	if err := persistence.NewBinaryWriter(w).WriteHeader(header); err != nil {
		return 0, err
	}

	n, err := w.Write(data)

	return int64(binary.Size(header)) + int64(n), err
}

// ReadFrom replaces the contents of h with an index previously written by
// WriteTo. Dimension and metric must match.
func (h *HNSW) ReadFrom(r io.Reader) (int64, error) {
	br := persistence.NewBinaryReader(r)

	header, err := br.ReadHeader()
	if err != nil {
		return 0, err
	}

	if err := header.Validate(); err != nil {
		return 0, err
	}

	if int(header.Dimension) != h.dimension {
		return 0, &ErrDimensionMismatch{Expected: h.dimension, Actual: int(header.Dimension)}
	}

	if distance.Metric(header.Metric) != h.opts.Metric {
		return 0, fmt.Errorf("hnsw: metric mismatch: index uses %s, file has %s", h.opts.Metric, distance.Metric(header.Metric))
	}

	nodes, err := decodePayload(r, header)
	if err != nil {
		return 0, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nodes = nodes
	h.ep = header.EntryPoint
	h.maxLevel = int(header.MaxLevel)
	h.opts.Precision = persistence.Precision(header.Precision)

	return int64(binary.Size(header)) + int64(header.PayloadSize), nil
}

// Read decodes an index, taking dimension, metric, precision, M and EF from
// the file header. optFns may override the remaining options.
func Read(r io.Reader, optFns ...func(o *Options)) (*HNSW, error) {
	header, err := persistence.NewBinaryReader(r).ReadHeader()
	if err != nil {
		return nil, err
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}

	fns := append([]func(o *Options){}, optFns...)
	fns = append(fns, func(o *Options) {
		o.Metric = distance.Metric(header.Metric)
		o.Precision = persistence.Precision(header.Precision)
		o.M = int(header.M)
		o.EF = int(header.EF)
	})

	h, err := New(int(header.Dimension), fns...)
	if err != nil {
		return nil, err
	}

	nodes, err := decodePayload(r, header)
	if err != nil {
		return nil, err
	}

	h.nodes = nodes
	h.ep = header.EntryPoint
	h.maxLevel = int(header.MaxLevel)

	return h, nil
}

// decodePayload expects a header that passed Validate.
func decodePayload(r io.Reader, header *persistence.FileHeader) ([]*Node, error) {
	stored, err := io.ReadAll(io.LimitReader(r, int64(header.PayloadSize)))
	if err != nil {
		return nil, err
	}

	if uint64(len(stored)) != header.PayloadSize {
		return nil, fmt.Errorf("%w: read %d of %d payload bytes", persistence.ErrTruncated, len(stored), header.PayloadSize)
	}

	raw, err := persistence.Decompress(stored, persistence.Compression(header.Compression), int(header.RawSize))
	if err != nil {
		return nil, err
	}

	cr := persistence.NewChecksumReader(bytes.NewReader(raw))

	nodes, decodeErr := decodeNodes(persistence.NewBinaryReader(cr), header)

	trailing, err := io.Copy(io.Discard, cr)
	if err != nil {
		return nil, err
	}

	// A damaged payload reports the checksum rather than whatever the
	// decoder tripped over first.
	if err := cr.Verify(header.Checksum); err != nil {
		return nil, err
	}

	if decodeErr != nil {
		return nil, decodeErr
	}

	if trailing > 0 {
		return nil, fmt.Errorf("hnsw: %d trailing payload bytes", trailing)
	}

	return nodes, nil
}

func decodeNodes(br *persistence.BinaryReader, header *persistence.FileHeader) ([]*Node, error) {
	count := int(header.Count)
	dim := int(header.Dimension)
	precision := persistence.Precision(header.Precision)

	nodes := make([]*Node, count)

	for i := range nodes {
		layer, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}

		if layer > uint32(header.MaxLevel) {
			return nil, fmt.Errorf("hnsw: node %d layer %d exceeds max level %d", i, layer, header.MaxLevel)
		}

		vec, err := br.ReadVector(dim, precision)
		if err != nil {
			return nil, err
		}

		conns := make([][]uint32, layer+1)
		for level := range conns {
			n, err := br.ReadUint32()
			if err != nil {
				return nil, err
			}

			if int(n) > count {
				return nil, fmt.Errorf("hnsw: node %d has %d links on layer %d", i, n, level)
			}

			ids, err := br.ReadUint32Slice(int(n))
			if err != nil {
				return nil, err
			}

			for _, id := range ids {
				if int(id) >= count {
					return nil, fmt.Errorf("hnsw: node %d links to unknown node %d", i, id)
				}
			}

			conns[level] = ids
		}

		nodes[i] = &Node{ID: uint32(i), Layer: int(layer), Vector: vec, Connections: conns}
	}

	return nodes, nil
}

// SaveToFile atomically writes the index to filename.
func (h *HNSW) SaveToFile(filename string) error {
	return persistence.SaveToFile(filename, func(w io.Writer) error {
		_, err := h.WriteTo(w)
		return err
	})
}

// LoadFromFile reads an index written by SaveToFile.
func LoadFromFile(filename string, optFns ...func(o *Options)) (*HNSW, error) {
	var h *HNSW

	err := persistence.LoadFromFile(filename, func(r io.Reader) error {
		var err error
		h, err = Read(r, optFns...)

		return err
	})

	return h, err
}
