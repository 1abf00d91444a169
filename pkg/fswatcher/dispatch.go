package fswatcher

import (
	"slices"
	"sync"
)

// dispatcher fans normalized events out to subscriptions.
//
// Each subscription owns an unbounded FIFO drained by its own pump
// goroutine, so a slow consumer never stalls the workers. Events that were
// accepted but not yet handed to a consumer can be retracted: purge drops
// every queued event of a watch entry, including the one a pump is currently
// offering.
type dispatcher struct {
	mu    sync.RWMutex
	epoch uint64
	subs  map[*Subscription]struct{}
	diag  *diagnostics
}

func newDispatcher(diag *diagnostics) *dispatcher {
	return &dispatcher{
		subs: make(map[*Subscription]struct{}),
		diag: diag,
	}
}

// subscribe registers a new subscription receiving changes in mask.
func (d *dispatcher) subscribe(mask changeMask) *Subscription {
	s := newSubscription(d, mask)

	d.mu.Lock()
	d.subs[s] = struct{}{}
	d.mu.Unlock()

	go s.pump()
	return s
}

// currentEpoch returns the epoch events must carry to be accepted.
func (d *dispatcher) currentEpoch() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.epoch
}

// publish queues ev on every matching subscription. Events from a previous
// epoch are dropped.
func (d *dispatcher) publish(epoch uint64, ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if epoch != d.epoch {
		d.diag.eventsDiscarded.Add(1)
		return false
	}

	d.diag.eventsPublished.Add(1)
	for s := range d.subs {
		s.enqueue(ev)
	}
	return true
}

// purge retracts every undelivered event of watch entry gen. It returns
// once no pump is offering such an event any more.
func (d *dispatcher) purge(gen uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for s := range d.subs {
		if n := s.purge(gen); n > 0 {
			d.diag.eventsDiscarded.Add(uint64(n))
		}
	}
}

// closeAll closes every subscription and starts a new epoch. When it
// returns no event is being delivered and none will be from the old epoch.
func (d *dispatcher) closeAll() {
	d.mu.Lock()
	d.epoch++
	subs := d.subs
	d.subs = make(map[*Subscription]struct{})
	d.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
}

func (d *dispatcher) remove(s *Subscription) {
	d.mu.Lock()
	delete(d.subs, s)
	d.mu.Unlock()
}

func (d *dispatcher) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Subscription is a stream of events. Events arrive on C in the order they
// were published; per path this is create → change* → delete.
//
// C is closed when the subscription is closed, either by Close or because
// the watcher stopped.
type Subscription struct {
	d    *dispatcher
	mask changeMask
	out  chan Event

	mu      sync.Mutex
	queue   []Event
	current *offer
	closed  bool

	wake     chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// offer is the event a pump is currently trying to hand over.
type offer struct {
	gen       uint64
	abort     chan struct{}
	abortOnce sync.Once
	finished  chan struct{}
}

func newSubscription(d *dispatcher, mask changeMask) *Subscription {
	return &Subscription{
		d:      d,
		mask:   mask,
		out:    make(chan Event),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// C returns the event channel.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close unsubscribes and closes C. Undelivered events are discarded. It is
// safe to call Close more than once and from the goroutine reading C.
func (s *Subscription) Close() {
	s.d.remove(s)
	s.shutdown()
}

// Pending returns the number of queued, undelivered events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) enqueue(ev Event) {
	if !s.mask.matches(ev.Changes) {
		return
	}

	// Every subscription owns its copy of Changes.
	ev.Changes = slices.Clone(ev.Changes)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) purge(gen uint64) int {
	s.mu.Lock()
	kept := s.queue[:0]
	for _, ev := range s.queue {
		if ev.gen != gen {
			kept = append(kept, ev)
		}
	}
	dropped := len(s.queue) - len(kept)
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = Event{}
	}
	s.queue = kept

	o := s.current
	if o == nil || o.gen != gen {
		s.mu.Unlock()
		return dropped
	}
	o.abortOnce.Do(func() { close(o.abort) })
	s.mu.Unlock()

	<-o.finished
	return dropped
}

// shutdown stops the pump and waits for it to exit.
func (s *Subscription) shutdown() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if n := len(s.queue); n > 0 {
			s.d.diag.eventsDiscarded.Add(uint64(n))
		}
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
	<-s.exited
}

// pump hands queued events to the consumer one at a time.
func (s *Subscription) pump() {
	defer close(s.exited)
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.done:
			}
			s.mu.Lock()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}

		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		o := &offer{
			gen:      ev.gen,
			abort:    make(chan struct{}),
			finished: make(chan struct{}),
		}
		s.current = o
		s.mu.Unlock()

		select {
		case s.out <- ev:
			s.d.diag.eventsDelivered.Add(1)
		case <-o.abort:
			s.d.diag.eventsDiscarded.Add(1)
		case <-s.done:
			s.d.diag.eventsDiscarded.Add(1)
		}

		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		close(o.finished)
	}
}
