// Package queue provides the binary heap used by the graph search.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// Item is a node id with its distance to the current query.
type Item struct {
	Node     uint32  // Node is the index position of the element.
	Distance float32 // Distance is the priority of the item in the queue.
}

// PriorityQueue implements heap.Interface and holds Items.
//
// With Max set the farthest item is on top, which is what a bounded
// result set needs; otherwise the closest item is on top.
type PriorityQueue struct {
	Max   bool
	Items []Item
}

// NewMin returns an empty min-heap with room for capacity items.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{Items: make([]Item, 0, capacity)}
}

// NewMax returns an empty max-heap with room for capacity items.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{Max: true, Items: make([]Item, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Max {
		return pq.Items[i].Distance > pq.Items[j].Distance
	}

	return pq.Items[i].Distance < pq.Items[j].Distance
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
}

// Push adds x to the priority queue. Use PushItem from outside the heap package.
func (pq *PriorityQueue) Push(x any) {
	pq.Items = append(pq.Items, x.(Item))
}

// Pop removes and returns the last element. Use PopItem from outside the heap package.
func (pq *PriorityQueue) Pop() any {
	n := len(pq.Items)
	item := pq.Items[n-1]
	pq.Items = pq.Items[:n-1]

	return item
}

// PushItem adds an item while keeping the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	heap.Push(pq, item)
}

// PopItem removes and returns the top item.
func (pq *PriorityQueue) PopItem() Item {
	return heap.Pop(pq).(Item)
}

// Top returns the top element of the priority queue without removing it.
func (pq *PriorityQueue) Top() Item {
	return pq.Items[0]
}

// Reset empties the queue, keeping its capacity.
func (pq *PriorityQueue) Reset() {
	pq.Items = pq.Items[:0]
}
