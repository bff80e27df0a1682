// Package progress provides a typed event sink decoupled from rendering, so
// the same engine core works headless in tests, behind the daemon, or under
// the CLI.
package progress

import (
	"sync"

	"taskbridge/internal/domain"
)

type subscriber struct {
	id int
	fn func(domain.MigrationEvent)
}

// Reporter fans events out to zero or more subscribers. Delivery order
// matches emission order, and subscribers are invoked in subscription order.
type Reporter struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Subscribe registers a callback and returns its unsubscribe function.
func (r *Reporter) Subscribe(fn func(domain.MigrationEvent)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.subs = append(r.subs, subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers an event to every subscriber. A panicking subscriber must not
// prevent delivery to the others or abort the caller.
func (r *Reporter) Emit(ev domain.MigrationEvent) {
	r.mu.Lock()
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		deliver(s.fn, ev)
	}
}

func deliver(fn func(domain.MigrationEvent), ev domain.MigrationEvent) {
	defer func() {
		_ = recover()
	}()
	fn(ev)
}
