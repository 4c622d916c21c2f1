package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/AaronLay10/storygraph/internal/events"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// DefaultEvents are the events forwarded when a Notifier is created without
// an explicit list.
var DefaultEvents = []string{
	"player.joined",
	"player.left",
	"player.moved",
	"player.finished",
	"interaction.unlocked",
	"interaction.answered",
	"game.created",
	"game.deleted",
}

// Notifier forwards domain events to MQTT topics below a prefix. An event
// named "player.moved" goes to "<prefix>/player/moved" as its JSON form.
type Notifier struct {
	pub    Publisher
	prefix string
	list   []string
	names  map[string]struct{}
	log    *slog.Logger
}

// NewNotifier returns a notifier publishing the named events through pub.
// No names means DefaultEvents.
func NewNotifier(pub Publisher, prefix string, log *slog.Logger, names ...string) *Notifier {
	if len(names) == 0 {
		names = DefaultEvents
	}
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		list:   names,
		names:  make(map[string]struct{}, len(names)),
		log:    log,
	}
	for _, name := range names {
		n.names[name] = struct{}{}
	}
	return n
}

// Topic returns the topic an event name is published to.
func (n *Notifier) Topic(name string) string {
	topic := strings.ReplaceAll(name, ".", "/")
	if n.prefix == "" {
		return topic
	}
	return n.prefix + "/" + topic
}

// Forward publishes e if it is one of the forwarded events. It reports
// whether e was published.
func (n *Notifier) Forward(e events.Event) (bool, error) {
	if _, ok := n.names[e.Name]; !ok {
		return false, nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	if err := n.pub.Publish(n.Topic(e.Name), payload); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe registers a subscriber for the forwarded events.
func (n *Notifier) Subscribe() events.Subscriber {
	return events.Subscribe(n.list...)
}

// Run subscribes to broadcast events and forwards them until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	sub := n.Subscribe()
	defer events.Unsubscribe(sub)
	n.Consume(ctx, sub)
}

// Consume forwards events from sub until ctx is done or sub is closed.
// Events still buffered in a closed sub are forwarded first. Publish
// failures are logged and do not stop the loop.
func (n *Notifier) Consume(ctx context.Context, sub events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if _, err := n.Forward(e); err != nil {
				n.log.Warn("mqtt publish failed", "event", e.Name, "err", err)
			}
		}
	}
}
