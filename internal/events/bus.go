package events

import (
	"slices"
	"sync"
)

// Topic groups events a subscriber can filter on.
type Topic string

const (
	TopicStatus   Topic = "status"   // StatusEvent after every reference or task change
	TopicTasks    Topic = "tasks"    // Builds, edits, replacements and focus requests
	TopicPlayback Topic = "playback" // PlaybackEvent per clock frame
	TopicSnapshot Topic = "snapshot" // Snapshot saves and loads
)

// defaultBuffer is used when a subscriber asks for no buffer. A running clock
// publishes a status and a playback event per tick.
const defaultBuffer = 256

type subscriber struct {
	ch     chan Event
	topics []Topic // nil receives every topic
}

func (s subscriber) wants(topic Topic) bool {
	return s.topics == nil || slices.Contains(s.topics, topic)
}

// EventBus fans session events out to the viewer, the TUI and the CLI.
// Delivery never blocks the publisher: a full subscriber misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscriber
	closed bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel receiving events on the given topics, or on
// every topic when none are named. bufSize <= 0 picks a default.
func (b *EventBus) Subscribe(bufSize int, topics ...Topic) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBuffer
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	sub := subscriber{ch: ch}
	if len(topics) > 0 {
		sub.topics = slices.Clone(topics)
	}
	b.subs = append(b.subs, sub)
	return ch
}

// Publish delivers event to every subscriber of topic.
func (b *EventBus) Publish(topic Topic, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Unsubscribe closes a channel returned by Subscribe and stops delivery to
// it. Unknown channels are ignored.
func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	i := slices.IndexFunc(b.subs, func(s subscriber) bool { return s.ch == ch })
	if i < 0 {
		return
	}
	close(b.subs[i].ch)
	b.subs = slices.Delete(b.subs, i, i+1)
}

// Close closes every subscriber channel. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
