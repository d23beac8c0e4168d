package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(4, nil)
	s1 := b.Subscribe(0)
	s2 := b.Subscribe(0)

	b.Publish(Event{SessionID: "s1", Kind: KindConnected})

	for _, sub := range []*Subscription{s1, s2} {
		evt := recv(t, sub)
		assert.Equal(t, "s1", evt.SessionID)
		assert.Equal(t, KindConnected, evt.Kind)
		assert.False(t, evt.Timestamp.IsZero())
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(1, nil)
	slow := b.Subscribe(1)
	fast := b.Subscribe(16)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{SessionID: "s1", Kind: KindStateChanged, State: fmt.Sprint(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}

	assert.Equal(t, uint64(9), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, "0", recv(t, slow).State, "first event kept, later ones dropped")

	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprint(i), recv(t, fast).State)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(4, nil)
	sub := b.Subscribe(0)
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	b.Publish(Event{SessionID: "s1", Kind: KindConnected})
}

func TestBroadcaster_ConcurrentSubscribePublish(t *testing.T) {
	b := NewBroadcaster(8, nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(0)
			b.Unsubscribe(sub)
		}()
		go func(i int) {
			defer wg.Done()
			b.Publish(Event{SessionID: fmt.Sprintf("s%d", i), Kind: KindStateChanged})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(4, nil)
	sub := b.Subscribe(0)

	b.Close()
	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := b.Subscribe(0)
	_, ok = <-late.Events()
	assert.False(t, ok)
	b.Unsubscribe(late)
	b.Close()
}
