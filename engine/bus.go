package engine

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/viruchith/anomalyd/model"
)

// Subscription is one bounded subscriber queue. When the queue is full the
// oldest undelivered event is dropped so publishers never block.
type Subscription struct {
	ch     chan model.Event
	mu     sync.Mutex
	closed bool
	drops  uint64
}

// Events returns the receive side of the queue. The channel is closed when
// the subscription is removed or the bus shuts down.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Dropped returns how many events were dropped from this queue.
func (s *Subscription) Dropped() uint64 { return atomic.LoadUint64(&s.drops) }

// send enqueues without ever blocking: on a full queue it discards the
// oldest event and retries.
func (s *Subscription) send(ev model.Event, log zerolog.Logger, total *uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case old := <-s.ch:
			atomic.AddUint64(&s.drops, 1)
			atomic.AddUint64(total, 1)
			log.Debug().Str("event", string(old.Type)).Msg("subscriber queue full, dropped oldest event")
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus fans per-sample and per-anomaly events out to live subscribers.
type Bus struct {
	mu    sync.RWMutex
	subs  map[*Subscription]struct{}
	log   zerolog.Logger
	drops uint64
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		log:  log.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers a new subscriber with the given queue capacity.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{ch: make(chan model.Event, buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.send(ev, b.log, &b.drops)
	}
}

// Dropped returns the total events dropped across all subscribers.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.drops)
}

// Close closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
