package needsinput

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/internal/notify"
	"github.com/nextlevelbuilder/goremote/internal/store"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

// liveSessions is the process-detector dependency, narrowed for testing.
type liveSessions interface {
	ActiveSessionIDs(ctx context.Context) map[string]bool
}

// Detector classifies live sessions as waiting for user input: the newest
// message is from the assistant and older than the stall threshold.
type Detector struct {
	store    *store.Store
	proc     liveSessions
	bus      *bus.Bus
	notifier *notify.Dispatcher

	interval time.Duration
	stall    time.Duration
	cooldown time.Duration

	mu           sync.Mutex
	waiting      map[string]bool
	lastNotified map[string]time.Time
}

func New(st *store.Store, proc liveSessions, b *bus.Bus, notifier *notify.Dispatcher,
	interval, stall, cooldown time.Duration) *Detector {
	return &Detector{
		store:        st,
		proc:         proc,
		bus:          b,
		notifier:     notifier,
		interval:     interval,
		stall:        stall,
		cooldown:     cooldown,
		waiting:      make(map[string]bool),
		lastNotified: make(map[string]time.Time),
	}
}

// Run scans on the configured interval until the context ends.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.check(ctx, now.UTC())
		}
	}
}

// Waiting returns the session IDs currently classed as waiting, sorted.
func (d *Detector) Waiting() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.waiting))
	for sid := range d.waiting {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// check runs one scan. On a session's transition into the waiting set it
// publishes a needs_input event and, cooldown permitting, notifies.
func (d *Detector) check(ctx context.Context, now time.Time) {
	active := d.proc.ActiveSessionIDs(ctx)
	next := make(map[string]bool, len(active))

	for sid := range active {
		role, ts, err := d.store.LastMessage(sid)
		if err != nil {
			continue
		}
		if role == "assistant" && d.isStale(ts, now) {
			next[sid] = true
		}
	}

	d.mu.Lock()
	var entered []string
	for sid := range next {
		if !d.waiting[sid] {
			entered = append(entered, sid)
		}
	}
	d.waiting = next

	var toNotify []string
	for _, sid := range entered {
		if last, ok := d.lastNotified[sid]; !ok || now.Sub(last) >= d.cooldown {
			d.lastNotified[sid] = now
			toNotify = append(toNotify, sid)
		}
	}
	d.mu.Unlock()

	for _, sid := range entered {
		d.bus.Publish(sid, bus.Event{
			Type:      protocol.EventNeedsInput,
			SessionID: sid,
			Timestamp: now.Format(time.RFC3339),
		})
	}
	for _, sid := range toNotify {
		d.notifier.Notify(ctx, "Claude is waiting for input", "Session "+sid)
	}
}

// isStale reports whether the timestamp is older than the stall threshold.
// Unparseable timestamps fall back to lexicographic comparison against the
// cutoff; an empty timestamp is never stale.
func (d *Detector) isStale(ts string, now time.Time) bool {
	if ts == "" {
		return false
	}
	cutoff := now.Add(-d.stall)
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.Before(cutoff)
	}
	return ts < cutoff.Format(time.RFC3339)
}
