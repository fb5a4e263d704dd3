// Package pqueue implements a binary max-heap over (priority desc,
// sequence asc), the ordering the concurrency manager dequeues waiting
// tasks with. It is built directly on container/heap, the way every
// custom heap in the retrieved corpus is (see DESIGN.md) — there is no
// third-party priority-queue library this spec's exact tie-break
// contract would map onto any better.
package pqueue

import "container/heap"

// Item is one enqueued element. Sequence breaks ties between equal
// priorities in FIFO order and is assigned by the queue, not the caller.
type Item struct {
	Value    any
	Priority int
	Sequence int64
	index    int // heap index, maintained by container/heap
}

// heapData is the container/heap.Interface implementation. Higher
// priority sorts first; among equal priorities, lower sequence (i.e.
// enqueued earlier) sorts first.
type heapData []*Item

func (h heapData) Len() int { return len(h) }

func (h heapData) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h heapData) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *heapData) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *heapData) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue is a priority queue keyed by (priority desc, sequence asc).
type Queue struct {
	data heapData
	seq  int64
}

// New creates an empty Queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.data)
	return q
}

// Enqueue adds value with the given priority and returns the Item handle,
// which callers can later pass to Requeue. Remove and UpdatePriority do
// not take a handle; they find items by predicate with an O(n) scan,
// since the heap does not index by value.
func (q *Queue) Enqueue(value any, priority int) *Item {
	item := &Item{Value: value, Priority: priority, Sequence: q.seq}
	q.seq++
	heap.Push(&q.data, item)
	return item
}

// Requeue reinserts an item previously removed by Dequeue or Remove,
// preserving its original Priority and Sequence so it keeps its place
// relative to items already waiting when it was first enqueued.
func (q *Queue) Requeue(item *Item) *Item {
	heap.Push(&q.data, item)
	return item
}

// Dequeue removes and returns the highest-priority, earliest-enqueued
// item, or nil if the queue is empty.
func (q *Queue) Dequeue() *Item {
	if q.data.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.data).(*Item)
}

// Peek returns the item Dequeue would return next, without removing it.
func (q *Queue) Peek() *Item {
	if q.data.Len() == 0 {
		return nil
	}
	return q.data[0]
}

// Size returns the number of items currently enqueued.
func (q *Queue) Size() int { return q.data.Len() }

// Clear removes all items, returning them in no particular order.
func (q *Queue) Clear() []*Item {
	items := make([]*Item, len(q.data))
	copy(items, q.data)
	q.data = q.data[:0]
	return items
}

// Remove finds the first item for which predicate returns true, removes
// it from the heap, and returns it. Linear scan followed by an O(log n)
// re-heapify, as needed for targeted cancellation and queue-timeout
// removal. Returns nil if no item matches.
func (q *Queue) Remove(predicate func(value any) bool) *Item {
	for i, item := range q.data {
		if predicate(item.Value) {
			return heap.Remove(&q.data, i).(*Item)
		}
	}
	return nil
}

// UpdatePriority finds the first item for which predicate returns true
// and reassigns its priority, re-heapifying in O(log n). Returns true if
// an item was found and updated.
func (q *Queue) UpdatePriority(predicate func(value any) bool, newPriority int) bool {
	for i, item := range q.data {
		if predicate(item.Value) {
			item.Priority = newPriority
			heap.Fix(&q.data, i)
			return true
		}
	}
	return false
}

// Items returns a snapshot slice of all enqueued items, in no particular
// order (the underlying array is heap-ordered, not sorted).
func (q *Queue) Items() []*Item {
	items := make([]*Item, len(q.data))
	copy(items, q.data)
	return items
}
