package core

import "errors"

// ErrQueueEmpty is returned when Pop() or Top() is called on an empty queue.
var ErrQueueEmpty = errors.New("queue is empty")

// Queue is a FIFO of pending units. It is owned by a single tracker and is not
// safe for concurrent use.
type Queue[T any] struct {
	items []T
	head  int
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Push(item T) {
	q.items = append(q.items, item)
}

func (q *Queue[T]) Pop() (T, error) {
	var zero T
	if q.Len() == 0 {
		return zero, ErrQueueEmpty
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append([]T(nil), q.items[q.head:]...)
		q.head = 0
	}
	return item, nil
}

func (q *Queue[T]) Top() (T, error) {
	var zero T
	if q.Len() == 0 {
		return zero, ErrQueueEmpty
	}
	return q.items[q.head], nil
}

func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Clear drops every queued item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	n := q.Len()
	q.items = nil
	q.head = 0
	return n
}
