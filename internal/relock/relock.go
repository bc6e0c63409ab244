// Package relock implements the Relock Scheduler: one-shot timers
// per unlocked collection that, on fire, evict the cached unlock key.
//
// Timers are identity-matched on fire: each scheduled timer carries a
// private token, and a fire is only honoured if the scheduler's current
// entry for that collection still carries the same token — a stale fire
// (the entry was already replaced or cancelled) is a no-op. Firing
// itself never touches the lock cache directly; it is posted back
// through enqueue so the actual eviction runs on the actor goroutine
// that owns the cache.
package relock

import "time"

type token = *int

type entry struct {
	timer *time.Timer
	token token
}

// Scheduler owns one-shot relock timers, keyed by collection name.
// Exclusively driven by the actor goroutine; enqueue is how a fired
// timer re-enters the actor to perform the actual cache eviction.
type Scheduler struct {
	timers  map[string]*entry
	enqueue func(func())
}

// New returns an empty Scheduler. enqueue must post its argument onto
// the Request Processor's command channel; it is called from the
// timer's own goroutine, never synchronously.
func New(enqueue func(func())) *Scheduler {
	return &Scheduler{timers: make(map[string]*entry), enqueue: enqueue}
}

// Schedule starts a one-shot timer for collection if one does not
// already exist; a pending timer is never replaced or extended. onFire
// runs on the actor goroutine when the timer fires and has not been
// superseded.
func (s *Scheduler) Schedule(collection string, timeout time.Duration, onFire func(collection string)) {
	if _, exists := s.timers[collection]; exists {
		return
	}
	tok := new(int)
	e := &entry{token: tok}
	e.timer = time.AfterFunc(timeout, func() {
		s.enqueue(func() { s.fire(collection, tok, onFire) })
	})
	s.timers[collection] = e
}

func (s *Scheduler) fire(collection string, tok token, onFire func(string)) {
	cur, ok := s.timers[collection]
	if !ok || cur.token != tok {
		return // stale timer: entry was cancelled or replaced since this fire was scheduled
	}
	delete(s.timers, collection)
	onFire(collection)
}

// Cancel stops and removes any timer for collection (e.g. on collection
// delete).
func (s *Scheduler) Cancel(collection string) {
	if e, ok := s.timers[collection]; ok {
		e.timer.Stop()
		delete(s.timers, collection)
	}
}

// HasTimer reports whether a timer is currently pending for collection.
func (s *Scheduler) HasTimer(collection string) bool {
	_, ok := s.timers[collection]
	return ok
}
