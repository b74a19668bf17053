package bus

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

func recvOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishToTopic(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("sess-1")
	other := b.Subscribe("sess-2")

	b.Publish("sess-1", Event{Type: protocol.EventNewMessage, SessionID: "sess-1"})

	ev := recvOne(t, sub)
	if ev.Type != protocol.EventNewMessage || ev.SessionID != "sess-1" {
		t.Errorf("got %+v", ev)
	}

	select {
	case ev := <-other.C:
		t.Errorf("unrelated topic received %+v", ev)
	default:
	}
}

func TestGlobalMirror(t *testing.T) {
	b := New()
	defer b.Close()

	global := b.Subscribe(protocol.TopicGlobal)
	b.Publish("sess-1", Event{Type: protocol.EventNeedsInput, SessionID: "sess-1"})

	ev := recvOne(t, global)
	if ev.SessionID != "sess-1" {
		t.Errorf("global subscriber got %+v", ev)
	}

	// Events published straight to the global topic are not duplicated.
	b.Publish(protocol.TopicGlobal, Event{Type: protocol.EventShutdown})
	recvOne(t, global)
	select {
	case ev := <-global.C:
		t.Errorf("duplicate delivery: %+v", ev)
	default:
	}
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("sess-1")
	total := queueDepth + 50
	for i := 0; i < total; i++ {
		b.Publish("sess-1", Event{Type: protocol.EventNewMessage, Preview: string(rune('A' + i%26))})
	}

	if got := len(sub.C); got != queueDepth {
		t.Fatalf("queued = %d, want %d", got, queueDepth)
	}
	// Oldest events were evicted; the final event must still be present.
	var last Event
	for len(sub.C) > 0 {
		last = <-sub.C
	}
	want := string(rune('A' + (total-1)%26))
	if last.Preview != want {
		t.Errorf("last preview = %q, want %q", last.Preview, want)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("sess-1")
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}
	// Publishing afterwards must not panic.
	b.Publish("sess-1", Event{Type: protocol.EventNewMessage})
	b.Unsubscribe(sub)
}

func TestUnsubscribePrunesEmptyTopics(t *testing.T) {
	b := New()
	one := b.Subscribe("sess-1")
	two := b.Subscribe("sess-1")

	b.Unsubscribe(one)
	if _, ok := b.topics["sess-1"]; !ok {
		t.Fatal("topic with a remaining subscriber was pruned")
	}

	b.Unsubscribe(two)
	if _, ok := b.topics["sess-1"]; ok {
		t.Error("empty topic entry not pruned")
	}

	// Resubscribing after the prune works as usual.
	again := b.Subscribe("sess-1")
	b.Publish("sess-1", Event{Type: protocol.EventNewMessage})
	if ev := <-again.C; ev.Type != protocol.EventNewMessage {
		t.Errorf("event type = %q", ev.Type)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe(protocol.TopicGlobal)
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Close")
	}
	b.Publish("sess-1", Event{Type: protocol.EventNewMessage})

	late := b.Subscribe("sess-1")
	if _, ok := <-late.C; ok {
		t.Error("subscription after Close should be closed immediately")
	}
}
