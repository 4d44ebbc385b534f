package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueueOrdering(t *testing.T) {
	type pair struct{ cycle, subcycle int }
	less := func(a, b pair) bool {
		if a.cycle != b.cycle {
			return a.cycle < b.cycle
		}
		return a.subcycle < b.subcycle
	}
	q := NewPriorityQueue(less)

	q.Enqueue(pair{5, 0})
	q.Enqueue(pair{1, 99})
	q.Enqueue(pair{1, 0})
	q.Enqueue(pair{3, 10})

	var order []pair
	for !q.IsEmpty() {
		v, ok := q.Dequeue()
		assert.True(t, ok)
		order = append(order, v)
	}

	assert.Equal(t, []pair{{1, 0}, {1, 99}, {3, 10}, {5, 0}}, order)
}

func TestPriorityQueueEmpty(t *testing.T) {
	q := NewPriorityQueue(func(a, b int) bool { return a < b })
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Size())

	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestPriorityQueuePeekDoesNotRemove(t *testing.T) {
	q := NewPriorityQueue(func(a, b int) bool { return a < b })
	q.Enqueue(42)
	v, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, q.Size())
}
