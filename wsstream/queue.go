package wsstream

// FIFO queue backed by a slice. Not safe for concurrent use.
type queue[T any] struct {
	items []T
	head  int
}

// Append an item at the tail.
func (q *queue[T]) push(item T) {
	q.items = append(q.items, item)
}

// Remove and return the head item. The boolean is false when the queue is empty.
func (q *queue[T]) pop() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		// Reuse the backing array once empty
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// Remove the first item which matches. Order of the other items is kept.
func (q *queue[T]) removeFunc(match func(T) bool) bool {
	for i := q.head; i < len(q.items); i++ {
		if match(q.items[i]) {
			copy(q.items[i:], q.items[i+1:])
			var zero T
			q.items[len(q.items)-1] = zero
			q.items = q.items[:len(q.items)-1]
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			}
			return true
		}
	}
	return false
}

// Number of items in the queue.
func (q *queue[T]) len() int {
	return len(q.items) - q.head
}
