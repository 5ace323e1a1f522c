package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Some items and their priorities.
var distances = []float32{0.4, 9, 0.001, 0.0534, 0.234, 2.03, 2.042, 2.532, 1.0009, 0.329, 0.193, 0.999, 0.020391, 2.0991, 1.203, 10.03, 1.039, 1.0008, 5.029, 0.789}

func fill(pq *PriorityQueue) {
	for k, d := range distances {
		pq.PushItem(Item{Node: uint32(k), Distance: d})
	}
}

func TestMaxHeap(t *testing.T) {
	pq := NewMax(len(distances))
	fill(pq)

	top := pq.Top()
	assert.Equal(t, float32(10.03), top.Distance)
	assert.Equal(t, uint32(15), top.Node)
	assert.Equal(t, 20, pq.Len())

	for pq.Len() > 10 {
		pq.PopItem()
	}

	assert.Equal(t, 10, pq.Len())

	top = pq.Top()
	assert.Equal(t, float32(1.0008), top.Distance)
	assert.Equal(t, uint32(17), top.Node)

	for pq.Len() > 1 {
		pq.PopItem()
	}

	assert.Equal(t, float32(0.001), pq.Top().Distance)
	assert.Equal(t, uint32(2), pq.Top().Node)
}

func TestMinHeap(t *testing.T) {
	pq := NewMin(len(distances))
	fill(pq)

	top := pq.Top()
	assert.Equal(t, float32(0.001), top.Distance)
	assert.Equal(t, uint32(2), top.Node)

	for pq.Len() > 10 {
		pq.PopItem()
	}

	top = pq.Top()
	assert.Equal(t, float32(1.0009), top.Distance)
	assert.Equal(t, uint32(8), top.Node)

	for pq.Len() > 1 {
		pq.PopItem()
	}

	assert.Equal(t, float32(10.03), pq.Top().Distance)
}

func TestReset(t *testing.T) {
	pq := NewMin(4)
	fill(pq)
	pq.Reset()

	assert.Equal(t, 0, pq.Len())
	assert.GreaterOrEqual(t, cap(pq.Items), len(distances))
}
