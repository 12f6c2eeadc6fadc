package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func topicMsg(kind, topic string) QueuedMessage {
	return QueuedMessage{Kind: kind, Payload: TopicPayload{Topic: topic}}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(topicMsg(KindSubscribe, "a"))
	q.Enqueue(topicMsg(KindSubscribe, "b"))
	q.Enqueue(topicMsg(KindUnsubscribe, "a"))

	items := q.Drain()
	assert.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Payload.(TopicPayload).Topic)
	assert.Equal(t, "b", items[1].Payload.(TopicPayload).Topic)
	assert.Equal(t, KindUnsubscribe, items[2].Kind)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	assert.False(t, q.Enqueue(topicMsg(KindSubscribe, "a")))
	assert.False(t, q.Enqueue(topicMsg(KindSubscribe, "b")))
	assert.True(t, q.Enqueue(topicMsg(KindSubscribe, "c")))

	assert.Equal(t, int64(1), q.Dropped())
	items := q.Drain()
	assert.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Payload.(TopicPayload).Topic)
	assert.Equal(t, "c", items[1].Payload.(TopicPayload).Topic)
}

func TestQueue_RemoveSubscribe(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(topicMsg(KindSubscribe, "a"))
	q.Enqueue(QueuedMessage{Kind: KindPing})
	q.Enqueue(topicMsg(KindSubscribe, "b"))
	q.Enqueue(topicMsg(KindSubscribe, "a"))

	assert.Equal(t, 2, q.RemoveSubscribe("a"))
	assert.Equal(t, 0, q.RemoveSubscribe("missing"))

	items := q.Drain()
	assert.Len(t, items, 2)
	assert.Equal(t, KindPing, items[0].Kind)
	assert.Equal(t, "b", items[1].Payload.(TopicPayload).Topic)
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue(10)
	q.Enqueue(topicMsg(KindSubscribe, "a"))
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
