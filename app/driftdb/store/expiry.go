package store

import "time"

// Expiry is lazy-first: entryLocked treats a past deadline as an absent
// key on every read. The timers armed here are a liveness optimization so
// untouched keys still get collected; correctness never depends on one
// firing.

// scheduleExpiry arms a deferred removal for key. Callers hold mu.
func (s *Store) scheduleExpiry(key string, deadline time.Time, ttl time.Duration) {
	time.AfterFunc(ttl, func() {
		s.expireIfDue(key, deadline)
	})
}

// expireIfDue removes key only if it still carries the exact deadline this
// timer was armed with. Any later SET replaces the entry and its deadline,
// which makes a stale timer a no-op, so overwrites need no timer
// bookkeeping.
func (s *Store) expireIfDue(key string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.deadline.IsZero() || !e.deadline.Equal(deadline) {
		return
	}
	delete(s.data, key)
	if s.OnExpire != nil {
		s.OnExpire(key)
	}
}
