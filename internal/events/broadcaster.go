package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"workbench/internal/metrics"
)

// Sink receives every published event. Errors are logged and swallowed.
type Sink interface {
	Emit(ctx context.Context, ev StageEvent) error
}

type Broadcaster struct {
	queue chan StageEvent
	sinks []Sink
	log   zerolog.Logger

	mu   sync.Mutex
	subs map[string][]chan StageEvent

	done chan struct{}
}

type BroadcasterConfig struct {
	Buffer int
	Sinks  []Sink
	Logger zerolog.Logger
}

func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.Buffer < 1 {
		cfg.Buffer = 256
	}
	b := &Broadcaster{
		queue: make(chan StageEvent, cfg.Buffer),
		sinks: cfg.Sinks,
		log:   cfg.Logger,
		subs:  make(map[string][]chan StageEvent),
		done:  make(chan struct{}),
	}
	go b.drain()
	return b
}

// Publish enqueues the event without blocking. A full queue drops the event
// and counts it; ordering per request is preserved for everything that made
// it into the queue because a single goroutine drains it.
func (b *Broadcaster) Publish(ev StageEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case b.queue <- ev:
	default:
		metrics.Global().StageEventsDropped.Inc()
		b.log.Warn().Str("request_id", ev.RequestID).Str("stage", ev.Stage).Msg("event queue full, dropping stage event")
	}
}

// Subscribe returns a channel of events for one request. The returned cancel
// function must be called when the consumer is done.
func (b *Broadcaster) Subscribe(requestID string) (<-chan StageEvent, func()) {
	ch := make(chan StageEvent, 32)

	b.mu.Lock()
	b.subs[requestID] = append(b.subs[requestID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[requestID]
		for i, c := range chans {
			if c == ch {
				b.subs[requestID] = append(chans[:i], chans[i+1:]...)
				close(c)
				break
			}
		}
		if len(b.subs[requestID]) == 0 {
			delete(b.subs, requestID)
		}
	}
	return ch, cancel
}

func (b *Broadcaster) Close() {
	close(b.done)
}

func (b *Broadcaster) drain() {
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ev)
		case <-b.done:
			// flush what is already queued
			for {
				select {
				case ev := <-b.queue:
					b.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Broadcaster) dispatch(ev StageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, sink := range b.sinks {
		if err := sink.Emit(ctx, ev); err != nil {
			b.log.Warn().Err(err).Str("request_id", ev.RequestID).Str("stage", ev.Stage).Msg("stage event sink failed")
		}
	}

	// Sends stay under the lock so an unsubscribe cannot close a channel
	// mid-send. They are non-blocking, so the lock is held only briefly.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.RequestID] {
		select {
		case ch <- ev:
		default:
			metrics.Global().StageEventsDropped.Inc()
		}
	}
}
