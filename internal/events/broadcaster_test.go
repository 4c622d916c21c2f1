package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for broadcast event")
		return Event{}
	}
}

func quiet(t *testing.T, sub Subscriber) {
	t.Helper()
	select {
	case e := <-sub:
		t.Fatalf("unexpected event %s", e.Name)
	default:
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()
	a := Subscribe()
	b := Subscribe("player.moved")
	assert.Equal(t, initial+2, SubscriberCount())

	Unsubscribe(a)
	Unsubscribe(a)
	assert.Equal(t, initial+1, SubscriberCount())
	_, ok := <-a
	assert.False(t, ok, "unsubscribe closes the channel")

	Unsubscribe(b)
	assert.Equal(t, initial, SubscriberCount())
}

func TestBroadcastToEverySubscriber(t *testing.T) {
	a := Subscribe()
	b := Subscribe()
	defer Unsubscribe(a)
	defer Unsubscribe(b)

	_, err := Emit("info", "game.created", "", map[string]interface{}{"title": "Heist"})
	require.NoError(t, err)

	for _, sub := range []Subscriber{a, b} {
		e := receive(t, sub)
		assert.Equal(t, "game.created", e.Name)
		assert.Equal(t, "Heist", e.Fields["title"])
	}
}

func TestSubscribeFiltersByName(t *testing.T) {
	moves := Subscribe("player.moved", "player.finished")
	defer Unsubscribe(moves)

	_, err := Emit("info", "game.read", "", nil)
	require.NoError(t, err)
	_, err = Emit("info", "player.moved", "", map[string]interface{}{"to": "Roof"})
	require.NoError(t, err)

	e := receive(t, moves)
	assert.Equal(t, "player.moved", e.Name)
	quiet(t, moves)
}

func TestFullSubscriberDropsEvents(t *testing.T) {
	sub := Subscribe("player.moved")
	defer Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		_, err := Emit("info", "player.moved", "", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}
	assert.Len(t, sub, subscriberBuffer)
	assert.Equal(t, 0, receive(t, sub).Fields["i"])
}

func TestRecentEvents(t *testing.T) {
	Clear()
	for i := 0; i < 10; i++ {
		_, err := Emit("info", "player.moved", "", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	recent := RecentEvents(5)
	require.Len(t, recent, 5)
	assert.Equal(t, 5, recent[0].Fields["i"])
	assert.Equal(t, 9, recent[4].Fields["i"])
	assert.Len(t, RecentEvents(100), 10)
	assert.Len(t, RecentEvents(0), 10)
}

func TestRingBufferLast(t *testing.T) {
	rb := NewRingBuffer(4)
	assert.Empty(t, rb.Last(2))
	for i := 0; i < 6; i++ {
		rb.Add(Event{Fields: map[string]interface{}{"i": i}})
	}
	var got []interface{}
	for _, e := range rb.Last(3) {
		got = append(got, e.Fields["i"])
	}
	assert.Equal(t, []interface{}{3, 4, 5}, got)
	assert.Len(t, rb.Snapshot(), 4)
}
