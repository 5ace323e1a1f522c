// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate k-nearest-neighbour search over dense float32 vectors.
package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/recgo/distance"
	"github.com/hupe1980/recgo/persistence"
	"github.com/hupe1980/recgo/queue"
	"github.com/x448/float16"
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Node represents a node in the HNSW graph
type Node struct {
	Connections [][]uint32 // Links to other nodes, one list per layer
	Vector      []float32  // Vector (X dimensions)
	Layer       int        // Highest layer the node exists in
	ID          uint32     // Sequential identifier
}

// Neighbor is a search hit.
type Neighbor struct {
	ID       uint32
	Distance float32
}

// Options represents the options for configuring HNSW.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// The range M=12-48 is ok for most use cases; small factor spaces do well with 8.
	M int

	// EF specifies the size of the dynamic candidate list.
	// Indexes holding no more than EF elements are searched exhaustively.
	EF int

	// Heuristic selects neighbours with the diversity heuristic instead of plain k-NN.
	Heuristic bool

	// Metric is fixed for the lifetime of the index.
	Metric distance.Metric

	// Precision of the stored vectors. Float16 rounds every inserted value.
	Precision persistence.Precision

	// Compression applied to the serialized payload.
	Compression persistence.Compression

	// Seed drives level generation so builds are reproducible.
	Seed int64

	// Workers bounds the parallelism of SearchBatch.
	Workers int
}

// DefaultOptions are used when no option function overrides them.
var DefaultOptions = Options{
	M:         8,
	EF:        200,
	Heuristic: true,
	Metric:    distance.Cosine,
	Precision: persistence.Float32,
	Seed:      1,
	Workers:   runtime.GOMAXPROCS(0),
}

// HNSW represents the Hierarchical Navigable Small World graph
type HNSW struct {
	dimension int
	mmax      int     // Max number of connections per element/per layer
	mmax0     int     // Max for the 0 layer
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Entry point, a node on the top layer
	maxLevel  int     // Track the current max level used

	nodes []*Node

	dist distance.Func
	rng  *rand.Rand
	opts Options

	mutex sync.RWMutex
}

// New creates a new HNSW instance with the given dimension and options
func New(dimension int, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", dimension)
	}

	if opts.M < 2 {
		// M == 1 would result in division by zero: 1 / log(1.0 * M)
		opts.M = 2
	}

	if opts.EF < 1 {
		opts.EF = 1
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	dist, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &HNSW{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		dist:      dist,
		rng:       rand.New(rand.NewSource(opts.Seed)), // nolint gosec
		opts:      opts,
	}, nil
}

// Dimension returns the vector width of the index.
func (h *HNSW) Dimension() int { return h.dimension }

// Metric returns the distance metric of the index.
func (h *HNSW) Metric() distance.Metric { return h.opts.Metric }

// Options returns a copy of the configuration.
func (h *HNSW) Options() Options { return h.opts }

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.nodes)
}

// Vector returns the stored vector for id. The slice must not be modified.
func (h *HNSW) Vector(id uint32) ([]float32, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if int(id) >= len(h.nodes) {
		return nil, false
	}

	return h.nodes[id].Vector, true
}

// Vectors returns copies of all stored vectors ordered by id.
func (h *HNSW) Vectors() [][]float32 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make([][]float32, len(h.nodes))
	for i, n := range h.nodes {
		out[i] = slices.Clone(n.Vector)
	}

	return out
}

// Insert adds vectors to the graph and returns the new element count.
// IDs are assigned sequentially starting at the previous count. All widths are
// checked before the graph is touched.
func (h *HNSW) Insert(vectors ...[]float32) (int, error) {
	for _, v := range vectors {
		if len(v) != h.dimension {
			return 0, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, v := range vectors {
		h.insert(h.prepare(v))
	}

	return len(h.nodes), nil
}

// prepare copies v so changes outside the index don't affect the node.
func (h *HNSW) prepare(v []float32) []float32 {
	vec := make([]float32, len(v))

	if h.opts.Precision == persistence.Float16 {
		for i, x := range v {
			vec[i] = float16.Fromfloat32(x).Float32()
		}

		return vec
	}

	copy(vec, v)

	return vec
}

func (h *HNSW) randomLevel() int {
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
}

func (h *HNSW) insert(vec []float32) {
	layer := h.randomLevel()

	node := &Node{
		ID:          uint32(len(h.nodes)),
		Vector:      vec,
		Layer:       layer,
		Connections: make([][]uint32, layer+1),
	}

	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, node)
		h.ep = node.ID
		h.maxLevel = layer

		return
	}

	// Greedy descent through the layers above the new node.
	ep := h.greedy(vec, h.ep, h.maxLevel, layer)

	// For all levels equal and below our current node, find the closest candidates and link them
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		candidates := h.searchLayer(vec, ep, h.opts.EF, level)
		ep = candidates[0]

		selected := h.selectNeighbours(candidates, h.opts.M)

		node.Connections[level] = make([]uint32, len(selected))
		for i, c := range selected {
			node.Connections[level][i] = c.Node
		}
	}

	h.nodes = append(h.nodes, node)

	// Next link the neighbour nodes to our new node, making it visible
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			h.link(neighbour, node.ID, level)
		}
	}

	if layer > h.maxLevel {
		h.ep = node.ID
		h.maxLevel = layer
	}
}

// greedy walks from entry down to (but excluding) stopLevel, always moving to
// the closest neighbour, and returns the closest node found.
func (h *HNSW) greedy(q []float32, entry uint32, fromLevel, stopLevel int) queue.Item {
	curr := queue.Item{Node: entry, Distance: h.dist(q, h.nodes[entry].Vector)}

	for level := fromLevel; level > stopLevel; level-- {
		changed := true
		for changed {
			changed = false

			for _, id := range h.nodes[curr.Node].Connections[level] {
				d := h.dist(q, h.nodes[id].Vector)
				if d < curr.Distance {
					curr = queue.Item{Node: id, Distance: d}
					changed = true
				}
			}
		}
	}

	return curr
}

// link adds second to the adjacency of first, shrinking the list when it
// exceeds the layer budget.
func (h *HNSW) link(first uint32, second uint32, level int) {
	maxConnections := h.mmax
	// HNSW allows double the connections for the bottom level (0)
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[first]
	node.Connections[level] = append(node.Connections[level], second)

	if len(node.Connections[level]) <= maxConnections {
		return
	}

	candidates := make([]queue.Item, len(node.Connections[level]))
	for i, id := range node.Connections[level] {
		candidates[i] = queue.Item{Node: id, Distance: h.dist(node.Vector, h.nodes[id].Vector)}
	}

	sortItems(candidates)

	selected := h.selectNeighbours(candidates, maxConnections)

	conns := node.Connections[level][:0]
	for _, c := range selected {
		conns = append(conns, c.Node)
	}

	node.Connections[level] = conns
}

// searchLayer runs the best-first beam search on one layer and returns up to
// ef items ordered by ascending distance.
func (h *HNSW) searchLayer(q []float32, ep queue.Item, ef int, level int) []queue.Item {
	visited := bitset.New(uint(len(h.nodes)))
	visited.Set(uint(ep.Node))

	candidates := queue.NewMin(ef)
	candidates.PushItem(ep)

	topCandidates := queue.NewMax(ef + 1)
	topCandidates.PushItem(ep)

	for candidates.Len() > 0 {
		lowerBound := topCandidates.Top().Distance

		candidate := candidates.PopItem()
		if candidate.Distance > lowerBound {
			break
		}

		node := h.nodes[candidate.Node]
		if len(node.Connections) <= level {
			continue
		}

		for _, n := range node.Connections[level] {
			if visited.Test(uint(n)) {
				continue
			}

			visited.Set(uint(n))

			item := queue.Item{Node: n, Distance: h.dist(q, h.nodes[n].Vector)}

			if topCandidates.Len() < ef {
				topCandidates.PushItem(item)
				candidates.PushItem(item)
			} else if topCandidates.Top().Distance > item.Distance {
				topCandidates.PopItem()
				topCandidates.PushItem(item)
				candidates.PushItem(item)
			}
		}
	}

	return drain(topCandidates)
}

// selectNeighbours picks at most m items from candidates (ascending distance).
func (h *HNSW) selectNeighbours(candidates []queue.Item, m int) []queue.Item {
	if len(candidates) <= m {
		return candidates
	}

	if !h.opts.Heuristic {
		return candidates[:m]
	}

	selected := make([]queue.Item, 0, m)
	pruned := make([]queue.Item, 0, len(candidates))

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		hit := true

		// Keep c only if it is closer to the base than to every selected neighbour.
		for _, s := range selected {
			if h.dist(h.nodes[s.Node].Vector, h.nodes[c.Node].Vector) < c.Distance {
				hit = false
				break
			}
		}

		if hit {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for i := 0; len(selected) < m && i < len(pruned); i++ {
		selected = append(selected, pruned[i])
	}

	return selected
}

// Search returns the k nearest neighbours of q by ascending distance.
// An empty index yields an empty result.
func (h *HNSW) Search(q []float32, k int) ([]Neighbor, error) {
	if len(q) != h.dimension {
		return nil, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if len(h.nodes) == 0 || k <= 0 {
		return []Neighbor{}, nil
	}

	var items []queue.Item

	if len(h.nodes) <= h.opts.EF {
		items = h.bruteSearch(q, k)
	} else {
		ep := h.greedy(q, h.ep, h.maxLevel, 0)
		items = h.searchLayer(q, ep, max(h.opts.EF, k), 0)
	}

	if len(items) > k {
		items = items[:k]
	}

	out := make([]Neighbor, len(items))
	for i, it := range items {
		out[i] = Neighbor{ID: it.Node, Distance: it.Distance}
	}

	return out, nil
}

// bruteSearch performs an exhaustive scan, used while the graph is small.
func (h *HNSW) bruteSearch(q []float32, k int) []queue.Item {
	topCandidates := queue.NewMax(k + 1)

	for _, node := range h.nodes {
		d := h.dist(q, node.Vector)

		if topCandidates.Len() < k {
			topCandidates.PushItem(queue.Item{Node: node.ID, Distance: d})
			continue
		}

		if d < topCandidates.Top().Distance {
			topCandidates.PopItem()
			topCandidates.PushItem(queue.Item{Node: node.ID, Distance: d})
		}
	}

	return drain(topCandidates)
}

// SearchBatch runs Search for every query using up to Workers goroutines.
func (h *HNSW) SearchBatch(ctx context.Context, queries [][]float32, k int) ([][]Neighbor, error) {
	results := make([][]Neighbor, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Workers)

	for i, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := h.Search(q, k)
			if err != nil {
				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// drain empties a max-heap into a slice ordered by ascending distance.
func drain(pq *queue.PriorityQueue) []queue.Item {
	out := make([]queue.Item, pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = pq.PopItem()
	}

	return out
}

func sortItems(items []queue.Item) {
	slices.SortFunc(items, func(a, b queue.Item) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return int(a.Node) - int(b.Node)
		}
	})
}
