package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/eventbus"
	"remindd/internal/reminder"
	"remindd/pkg/logx"
)

var (
	ErrNoChannels = errors.New("no enabled delivery channels")
	ErrAllFailed  = errors.New("all delivery channels failed")
)

// Config controls the router.
type Config struct {
	// RatePerSec caps sends across all channels (token bucket).
	// <=0 means 5.
	RatePerSec int
}

// Router drives per-channel senders with rate limiting and fallback.
// It is safe for concurrent use by batch handlers.
type Router struct {
	senders map[reminder.ChannelType]Sender
	limiter *rate.Limiter
	log     logx.Logger
	bus     eventbus.Bus
}

func NewRouter(cfg Config, log logx.Logger, bus eventbus.Bus) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Router{
		senders: map[reminder.ChannelType]Sender{},
		// Burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
		bus:     bus,
	}
}

// Register installs the sender for a channel type. Later registrations win.
func (r *Router) Register(t reminder.ChannelType, s Sender) {
	r.senders[t] = s
}

// Deliver attempts the enabled channels in ascending rank order. Every
// attempt is recorded; a channel failure never blocks the next channel.
// The returned error is nil iff at least one channel succeeded.
func (r *Router) Deliver(ctx context.Context, ownerID string, channels []reminder.Channel, msg Message) ([]Outcome, error) {
	ordered := orderedEnabled(channels)
	if len(ordered) == 0 {
		return nil, ErrNoChannels
	}

	outcomes := make([]Outcome, 0, len(ordered))
	delivered := false
	for _, ch := range ordered {
		out := r.attempt(ctx, ownerID, ch, msg)
		outcomes = append(outcomes, out)
		if out.OK() {
			delivered = true
		}
	}
	if !delivered {
		return outcomes, ErrAllFailed
	}
	return outcomes, nil
}

func (r *Router) attempt(ctx context.Context, ownerID string, ch reminder.Channel, msg Message) Outcome {
	out := Outcome{Channel: ch, At: time.Now()}

	sender, ok := r.senders[ch.Type]
	if !ok {
		out.Err = fmt.Errorf("no sender registered for channel type %q", ch.Type)
		r.noteResult(ownerID, ch, out.Err)
		return out
	}

	if err := r.limiter.Wait(ctx); err != nil {
		out.Err = fmt.Errorf("rate limit wait: %w", err)
		r.noteResult(ownerID, ch, out.Err)
		return out
	}

	began := time.Now()
	out.Err = sender.Send(ctx, ch.Address, msg)
	out.Duration = time.Since(began)
	r.noteResult(ownerID, ch, out.Err)
	return out
}

func (r *Router) noteResult(ownerID string, ch reminder.Channel, err error) {
	ev := eventbus.Event{
		Type: eventbus.TypeDeliverySent,
		Data: map[string]any{"owner": ownerID, "channel": string(ch.Type)},
	}
	if err != nil {
		ev.Type = eventbus.TypeDeliveryFailed
		ev.Data = map[string]any{"owner": ownerID, "channel": string(ch.Type), "err": err.Error()}
		r.log.Warn("delivery.failed",
			logx.String("owner", ownerID),
			logx.String("channel", string(ch.Type)),
			logx.Err(err))
	} else {
		r.log.Debug("delivery.sent",
			logx.String("owner", ownerID),
			logx.String("channel", string(ch.Type)))
	}
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
