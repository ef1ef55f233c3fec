// Package store is the process-wide keyspace: one mutex-guarded map from
// key to a tagged value (string, list or stream), with per-entry expiry
// deadlines and per-key queues of blocked list poppers.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/flonle/driftdb/app/driftdb/streams"
)

var (
	// ErrWrongType already carries its wire error class; the dispatcher
	// must not prepend "ERR " to it.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrCanceled reports a blocking wait torn down by its session.
	ErrCanceled = errors.New("blocking wait canceled")
)

type kind uint8

const (
	kindString kind = iota
	kindList
	kindStream
)

// typeNames are the TYPE command's vocabulary.
var typeNames = [...]string{kindString: "string", kindList: "list", kindStream: "stream"}

type entry struct {
	kind     kind
	str      string
	list     []string
	stream   *streams.Stream
	deadline time.Time // zero means no expiry
}

// Store is safe for concurrent use. Every operation takes the one lock, so
// results are linearizable in lock acquisition order.
type Store struct {
	mu      sync.Mutex
	data    map[string]*entry
	waiters map[string][]*waiter

	now func() time.Time // swapped out by tests

	// OnExpire, if set, is called with the key of every entry removed by
	// expiry (deferred or lazy). Must not call back into the store.
	OnExpire func(key string)
}

func New() *Store {
	return &Store{
		data:    make(map[string]*entry),
		waiters: make(map[string][]*waiter),
		now:     time.Now,
	}
}

// entryLocked returns the live entry for key, applying lazy expiry.
// Callers hold mu.
func (s *Store) entryLocked(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.deadline.IsZero() && !e.deadline.After(s.now()) {
		delete(s.data, key)
		if s.OnExpire != nil {
			s.OnExpire(key)
		}
		return nil
	}
	return e
}

// Get returns the string stored at key. ok is false if the key is absent
// or expired.
func (s *Store) Get(key string) (val string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindString {
		return "", false, ErrWrongType
	}
	return e.str, true, nil
}

// Set unconditionally replaces whatever key held. ttl <= 0 means no
// expiry; a prior deadline is always discarded.
func (s *Store) Set(key, val string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{kind: kindString, str: val}
	if ttl > 0 {
		e.deadline = s.now().Add(ttl)
		s.scheduleExpiry(key, e.deadline, ttl)
	}
	s.data[key] = e
}

// RPush appends vals to the tail of the list at key, creating it if
// needed. Returns the new length.
func (s *Store) RPush(key string, vals []string) (int, error) {
	return s.push(key, vals, false)
}

// LPush prepends vals one at a time, so the last argument ends up at the
// head. Returns the new length.
func (s *Store) LPush(key string, vals []string) (int, error) {
	return s.push(key, vals, true)
}

func (s *Store) push(key string, vals []string, front bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		e = &entry{kind: kindList}
		s.data[key] = e
	} else if e.kind != kindList {
		return 0, ErrWrongType
	}

	if front {
		merged := make([]string, 0, len(e.list)+len(vals))
		for i := len(vals) - 1; i >= 0; i-- {
			merged = append(merged, vals[i])
		}
		e.list = append(merged, e.list...)
	} else {
		e.list = append(e.list, vals...)
	}

	// Wakes must happen after the push is committed and before the lock is
	// released, so the race to re-acquire is fair. One wake per pushed
	// value; extras are no-ops once the queue drains.
	for range vals {
		s.wakeFirstLocked(key)
	}
	return len(e.list), nil
}

// LRange returns the inclusive slice [start, stop] of the list at key.
// Negative indices count from the end; out-of-range indices clamp and
// never fail.
func (s *Store) LRange(key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kindList {
		return nil, ErrWrongType
	}

	n := int64(len(e.list))
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
		if stop < 0 {
			return nil, nil
		}
	}
	if start >= n {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

// LLen returns the list length, 0 for a missing key.
func (s *Store) LLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindList {
		return 0, ErrWrongType
	}
	return len(e.list), nil
}

// LPop removes and returns the head element. ok is false if the key is
// missing (an empty list never sticks around).
func (s *Store) LPop(key string) (val string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindList {
		return "", false, ErrWrongType
	}
	val = e.list[0]
	s.dropHeadLocked(key, e, 1)
	return val, true, nil
}

// LPopCount removes and returns up to count head elements. count must be
// >= 0; 0 pops nothing. ok distinguishes a missing key from an empty
// result.
func (s *Store) LPopCount(key string, count int) (vals []string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return nil, false, nil
	}
	if e.kind != kindList {
		return nil, false, ErrWrongType
	}
	if count > len(e.list) {
		count = len(e.list)
	}
	out := make([]string, count)
	copy(out, e.list[:count])
	s.dropHeadLocked(key, e, count)
	return out, true, nil
}

// dropHeadLocked removes n head elements and deletes the key if the list
// drained, so TYPE reports none afterwards.
func (s *Store) dropHeadLocked(key string, e *entry, n int) {
	e.list = e.list[n:]
	if len(e.list) == 0 {
		delete(s.data, key)
	}
}

// Type names the value variant held at key, "none" if absent.
func (s *Store) Type(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return "none"
	}
	return typeNames[e.kind]
}

// Keys returns every live key, in no particular order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if s.entryLocked(key) != nil {
			keys = append(keys, key)
		}
	}
	return keys
}

// XAdd appends an entry to the stream at key, creating the stream if
// needed. A rejected ID leaves the keyspace untouched.
func (s *Store) XAdd(key, idSpec string, fields []streams.FieldPair) (streams.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e != nil && e.kind != kindStream {
		return streams.ID{}, ErrWrongType
	}

	var st *streams.Stream
	if e != nil {
		st = e.stream
	} else {
		st = streams.New()
	}
	id, err := st.Add(idSpec, s.now(), fields)
	if err != nil {
		return streams.ID{}, err
	}
	if e == nil {
		s.data[key] = &entry{kind: kindStream, stream: st}
	}
	return id, nil
}

// XRange returns the entries of the stream at key with IDs in the
// inclusive range [startSpec, endSpec].
func (s *Store) XRange(key, startSpec, endSpec string) ([]streams.Entry, error) {
	start, err := streams.ParseRangeStart(startSpec)
	if err != nil {
		return nil, err
	}
	end, err := streams.ParseRangeEnd(endSpec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kindStream {
		return nil, ErrWrongType
	}
	return e.stream.Range(start, end), nil
}

// XAfter returns the entries of the stream at key with IDs strictly
// greater than fromSpec. This is XREAD's per-stream primitive.
func (s *Store) XAfter(key, fromSpec string) ([]streams.Entry, error) {
	from, err := streams.ParseReadOffset(fromSpec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kindStream {
		return nil, ErrWrongType
	}
	return e.stream.After(from), nil
}
