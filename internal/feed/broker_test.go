package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker()
	first, cancelFirst := b.Subscribe(4)
	second, cancelSecond := b.Subscribe(4)
	defer cancelSecond()

	b.Publish(Message{Type: TypeChange, RequestID: "req-1", Status: "pending"})

	assert.Equal(t, "req-1", receive(t, first).RequestID)
	assert.Equal(t, "req-1", receive(t, second).RequestID)

	cancelFirst()
	cancelFirst()
	_, ok := <-first
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers())
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Message{Type: TypeChange, RequestID: "req-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe(1)
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, cancel := b.Subscribe(1)
	cancel()
	_, ok = <-late
	assert.False(t, ok)

	b.Publish(Message{Type: TypeChange})
}
