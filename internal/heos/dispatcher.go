package heos

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// defaultSubscriptionBuffer is the per-subscriber queue depth. A subscriber
// that falls this far behind starts losing its oldest events; the read loop
// is never the one that waits.
const defaultSubscriptionBuffer = 64

// Subscription is one registered event consumer. Events arrive on C in the
// order they came off the wire. Close releases the subscription; C is closed
// afterwards.
type Subscription struct {
	id    string
	types map[EventType]struct{}
	ch    chan Event

	dispatcher *dispatcher
	closeOnce  sync.Once

	dropped int64
}

// C returns the delivery channel. It is closed when the subscription is
// closed or the client shuts down.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close releases the subscription and closes C.
func (s *Subscription) Close() {
	s.dispatcher.unsubscribe(s)
}

// Dropped reports how many events this subscriber lost to queue overflow.
func (s *Subscription) Dropped() int64 {
	s.dispatcher.mu.Lock()
	defer s.dispatcher.mu.Unlock()
	return s.dropped
}

func (s *Subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// dispatcher fans decoded events out to subscribers. All sends are
// non-blocking: when a subscriber's queue is full its oldest event is evicted
// to make room, so a slow consumer can never stall the read loop or starve
// other subscribers.
type dispatcher struct {
	logger *log.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	closed bool

	published int64
	dropped   int64
}

func newDispatcher(logger *log.Logger, buffer int) *dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	return &dispatcher{
		logger: logger,
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

// subscribe registers a consumer for the given event types. No types means
// every type.
func (d *dispatcher) subscribe(types ...EventType) *Subscription {
	sub := &Subscription{
		id:         uuid.New().String(),
		ch:         make(chan Event, d.buffer),
		dispatcher: d,
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(sub.ch)
		return sub
	}
	d.subs[sub.id] = sub
	return sub
}

func (d *dispatcher) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	_, present := d.subs[sub.id]
	delete(d.subs, sub.id)
	d.mu.Unlock()

	if present {
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
}

// publish delivers one event to every interested subscriber. Runs under the
// dispatcher lock so a concurrent Close can never race a channel send.
func (d *dispatcher) publish(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.published++
	for _, sub := range d.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
			continue
		default:
		}

		// Queue full: evict the oldest entry to make room for the newest.
		select {
		case <-sub.ch:
			sub.dropped++
			d.dropped++
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			d.dropped++
		}
	}
	if d.dropped > 0 && d.dropped%100 == 1 {
		d.logger.Printf("HEOS: slow event subscriber(s), %d event(s) dropped so far", d.dropped)
	}
}

// closeAll closes every subscription. Used at shutdown after the read loop
// and session goroutines have stopped publishing.
func (d *dispatcher) closeAll() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := make([]*Subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.subs = make(map[string]*Subscription)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
}

// stats returns published/dropped counters and the subscriber count.
func (d *dispatcher) stats() (published, dropped int64, subscribers int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.published, d.dropped, len(d.subs)
}
