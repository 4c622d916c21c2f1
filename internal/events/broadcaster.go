package events

import (
	"sync"
)

// Subscriber represents a channel that receives events.
type Subscriber chan Event

// subscriberBuffer bounds how far a consumer may lag before events are
// dropped for it.
const subscriberBuffer = 64

// Broadcaster fans events out to in-process subscribers such as the MQTT
// notifier. Each subscriber may restrict itself to a set of event names.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]map[string]struct{}
}

var broadcaster = &Broadcaster{
	subscribers: make(map[Subscriber]map[string]struct{}),
}

// Subscribe registers a subscriber for the named events, or for every event
// when no names are given. Emit never blocks on a slow subscriber.
func Subscribe(names ...string) Subscriber {
	var only map[string]struct{}
	if len(names) > 0 {
		only = make(map[string]struct{}, len(names))
		for _, name := range names {
			only[name] = struct{}{}
		}
	}
	ch := make(Subscriber, subscriberBuffer)
	broadcaster.mu.Lock()
	broadcaster.subscribers[ch] = only
	broadcaster.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown
// subscribers are ignored.
func Unsubscribe(sub Subscriber) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()

	if _, ok := broadcaster.subscribers[sub]; !ok {
		return
	}
	delete(broadcaster.subscribers, sub)
	close(sub)
}

// broadcast offers e to every interested subscriber; a full subscriber
// misses it.
func broadcast(e Event) {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()

	for sub, only := range broadcaster.subscribers {
		if only != nil {
			if _, ok := only[e.Name]; !ok {
				continue
			}
		}
		select {
		case sub <- e:
		default:
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subscribers)
}

// RecentEvents returns the n newest buffered events, oldest first. n <= 0
// returns all of them.
func RecentEvents(n int) []Event {
	return buffer.Last(n)
}
