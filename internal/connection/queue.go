package connection

import (
	"sync"
)

// Queue is the outbound message queue. It holds messages issued while the
// transport is not open and hands them back in FIFO order on Drain.
type Queue struct {
	mu       sync.Mutex
	items    []QueuedMessage
	capacity int
	dropped  int64
}

// NewQueue creates a queue holding at most capacity messages. A
// non-positive capacity means unbounded.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Enqueue appends msg. When the queue is full the oldest message is
// dropped; the return value reports whether that happened.
func (q *Queue) Enqueue(msg QueuedMessage) (droppedOldest bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
		droppedOldest = true
	}
	q.items = append(q.items, msg)
	return droppedOldest
}

// Drain removes and returns every queued message in enqueue order.
func (q *Queue) Drain() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// RemoveSubscribe drops queued subscribe messages for topic and returns
// how many were removed.
func (q *Queue) RemoveSubscribe(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, msg := range q.items {
		if msg.Kind == KindSubscribe {
			if p, ok := msg.Payload.(TopicPayload); ok && p.Topic == topic {
				removed++
				continue
			}
		}
		kept = append(kept, msg)
	}
	q.items = kept
	return removed
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many messages were evicted because the queue was full.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards every queued message.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
