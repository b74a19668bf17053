package notify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const sendTimeout = 10 * time.Second

// Sender delivers one notification over a single channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, title, body string) error
}

// Dispatcher fans a notification out to every configured sender, subject to
// a global rolling-hour rate limit. Delivery is fire-and-forget: failures
// and rate-limit drops are logged, never surfaced.
type Dispatcher struct {
	limiter *rate.Limiter
	senders []Sender
}

// NewDispatcher builds a dispatcher allowing perHour notifications per
// rolling hour (with a full-bucket burst).
func NewDispatcher(perHour int, senders ...Sender) *Dispatcher {
	if perHour <= 0 {
		perHour = 10
	}
	return &Dispatcher{
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour),
		senders: senders,
	}
}

// Senders returns how many channels are configured.
func (d *Dispatcher) Senders() int {
	return len(d.senders)
}

// Notify dispatches to all senders unless the global bucket is exhausted.
func (d *Dispatcher) Notify(ctx context.Context, title, body string) {
	if len(d.senders) == 0 {
		return
	}
	if !d.limiter.Allow() {
		slog.Debug("notification dropped by rate limit", "title", title)
		return
	}
	for _, s := range d.senders {
		go func(s Sender) {
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			defer cancel()
			if err := s.Send(sendCtx, title, body); err != nil {
				slog.Warn("notification send failed", "sender", s.Name(), "error", err)
			}
		}(s)
	}
}
