// Package analytics delivers growth-loop events (invite.opened, invite.joined,
// reward.granted, ...) to an ingestion sink without ever slowing the request
// that produced them.
//
// Emit enqueues onto a bounded channel and returns immediately; when the
// queue is full the event is dropped and counted. A single worker publishes
// each event to the Sink under a short deadline. Sink failures are logged and
// counted, never returned: tracking must not break the app.
package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/growth-loop-backend/internal/observability"
)

// Event names.
const (
	EventInviteSent    = "invite.sent"
	EventInviteOpened  = "invite.opened"
	EventInviteJoined  = "invite.joined"
	EventRewardGranted = "reward.granted"
	EventRewardDenied  = "reward.denied"
	EventGuestConvert  = "guest.converted"
)

// Event is one analytics record.
type Event struct {
	Name       string         `json:"event"`
	UserID     string         `json:"user_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	At         time.Time      `json:"ts"`
}

// Emitter is what producers depend on.
type Emitter interface {
	Emit(Event)
}

// Sink publishes one event.
type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Dispatcher is a bounded, drop-on-full Emitter.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	log     zerolog.Logger

	queue chan Event
	stop  chan struct{}
	done  chan struct{}

	// mu orders enqueues before Close: once closed is set under the write
	// lock, no send can reach queue after the worker starts draining.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewDispatcher starts the worker. queueSize < 1 is treated as 1.
func NewDispatcher(sink Sink, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 150 * time.Millisecond
	}
	d := &Dispatcher{
		sink:    sink,
		timeout: timeout,
		log:     log.With().Str("component", "analytics").Logger(),
		queue:   make(chan Event, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit enqueues e or drops it when the queue is full or the dispatcher is closed.
func (d *Dispatcher) Emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(e)
		return
	}
	select {
	case d.queue <- e:
	default:
		d.drop(e)
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops accepting events, drains what is queued and closes the sink.
// It returns ctx.Err() if draining does not finish in time. Close may be
// called more than once and concurrently with Emit.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stop)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return d.sink.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) drop(e Event) {
	d.dropped.Add(1)
	observability.AnalyticsEvents.WithLabelValues(e.Name, "dropped").Inc()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.queue:
			d.publish(e)
		case <-d.stop:
			for {
				select {
				case e := <-d.queue:
					d.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Publish(ctx, e); err != nil {
		observability.AnalyticsEvents.WithLabelValues(e.Name, "failed").Inc()
		d.log.Warn().Err(err).Str("event", e.Name).Msg("analytics publish failed")
		return
	}
	observability.AnalyticsEvents.WithLabelValues(e.Name, "published").Inc()
}

// Discard is an Emitter that drops everything. Services fall back to it when
// analytics is not configured.
type Discard struct{}

// Emit ignores e.
func (Discard) Emit(Event) {}
