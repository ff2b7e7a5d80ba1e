package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "attendance.marked", Body: []byte(`{"id":"r1"}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "attendance.marked", msg.Type)
	assert.JSONEq(t, `{"id":"r1"}`, string(msg.Body))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{Type: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueue_PublishConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:marked")
	q.wait = 100 * time.Millisecond

	require.NoError(t, q.Publish(ctx, Message{Type: "attendance.marked", Body: []byte(`{"note":"a|b"}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: "attendance.marked", Body: []byte(`{"id":"r2"}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Equal(t, "attendance.marked", first.Type)
	assert.JSONEq(t, `{"note":"a|b"}`, string(first.Body))

	second := receive(t, ch)
	assert.JSONEq(t, `{"id":"r2"}`, string(second.Body))
}

func TestEncodeDecode(t *testing.T) {
	assert.Equal(t, "t|body", encode(Message{Type: "t", Body: []byte("body")}))
	assert.Equal(t, Message{Type: "t", Body: []byte("a|b")}, decode("t|a|b"))
	assert.Equal(t, Message{Body: []byte("bare")}, decode("bare"))
}
