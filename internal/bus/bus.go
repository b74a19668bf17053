package bus

import (
	"sync"

	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

// queueDepth bounds each subscriber's buffer. A slow consumer keeps the most
// recent events; older ones are dropped rather than blocking publishers.
const queueDepth = 100

// Event is one observability event fanned out to SSE streams and federation
// followers. Type is always set; the rest depends on the event.
type Event struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	Role      string   `json:"role,omitempty"`
	Preview   string   `json:"preview,omitempty"`
	ToolUses  []string `json:"tool_uses,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Subscription is one subscriber's queue. Read from C until it closes.
type Subscription struct {
	C     chan Event
	topic string
}

// Bus is an in-process topic publisher. Topics are session IDs; the global
// topic additionally receives a mirror of every session-scoped event.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*Subscription
	closed bool
}

func New() *Bus {
	return &Bus{topics: make(map[string][]*Subscription)}
}

// Subscribe registers a new subscriber on topic. Use protocol.TopicGlobal to
// observe everything.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{C: make(chan Event, queueDepth), topic: topic}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.C)
		return sub
	}
	b.topics[topic] = append(b.topics[topic], sub)
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			remaining := append(subs[:i], subs[i+1:]...)
			if len(remaining) == 0 {
				delete(b.topics, sub.topic)
			} else {
				b.topics[sub.topic] = remaining
			}
			close(s.C)
			return
		}
	}
}

// Publish delivers ev to every subscriber of topic. Session-scoped topics are
// mirrored to the global topic so aggregate streams see all traffic.
func (b *Bus) Publish(topic string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.deliver(topic, ev)
	if topic != protocol.TopicGlobal {
		b.deliver(protocol.TopicGlobal, ev)
	}
}

func (b *Bus) deliver(topic string, ev Event) {
	for _, sub := range b.topics[topic] {
		for {
			select {
			case sub.C <- ev:
			default:
				// Full queue: evict the oldest and retry.
				select {
				case <-sub.C:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the bus down, closing every subscriber channel. Publishes after
// Close are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, sub := range subs {
			close(sub.C)
		}
	}
	b.topics = make(map[string][]*Subscription)
}
