// Package streams implements the append-only entry log behind the stream
// value type. Entries are indexed by a radix tree over fixed-width,
// order-preserving encodings of their (ms, seq) IDs, so an in-order walk of
// the tree visits entries in ID order and range scans are in-order walks
// with early termination.
package streams

import (
	"errors"
	"strings"
	"time"

	radix "github.com/armon/go-radix"
)

var (
	ErrIDZero     = errors.New("The ID specified in XADD must be greater than 0-0")
	ErrIDTooSmall = errors.New("The ID specified in XADD is equal or smaller than the target stream top item")
)

// FieldPair is one field/value pair of an entry. A slice of these, rather
// than a map, keeps the client's insertion order.
type FieldPair struct {
	Field string
	Value string
}

// Entry is one appended (ID, field list) record.
type Entry struct {
	ID     ID
	Fields []FieldPair
}

// Stream is an append-only log of entries with strictly increasing IDs.
// Not safe for concurrent use; the keyspace lock covers it.
type Stream struct {
	index *radix.Tree
	last  ID
}

func New() *Stream {
	return &Stream{index: radix.New()}
}

func (s *Stream) Len() int {
	return s.index.Len()
}

// Last returns the greatest ID ever inserted, or the zero ID for an empty
// stream.
func (s *Stream) Last() ID {
	return s.last
}

// Add resolves spec against the current top ID and appends a new entry.
// spec is "*" (fully server-assigned), "<ms>-*" (server-assigned sequence),
// or an explicit "<ms>-<seq>". now supplies the wall clock for "*".
func (s *Stream) Add(spec string, now time.Time, fields []FieldPair) (ID, error) {
	id, err := s.resolveID(spec, now)
	if err != nil {
		return ID{}, err
	}
	s.index.Insert(id.indexKey(), Entry{ID: id, Fields: fields})
	s.last = id
	return id, nil
}

func (s *Stream) resolveID(spec string, now time.Time) (ID, error) {
	if spec == "*" {
		ms := uint64(now.UnixMilli())
		if ms < s.last.Ms {
			ms = s.last.Ms
		}
		var seq uint64
		if ms == s.last.Ms {
			seq = s.last.Seq + 1
		}
		return ID{ms, seq}, nil
	}

	if msPart, ok := strings.CutSuffix(spec, "-*"); ok {
		ms, err := parseComponent(msPart)
		if err != nil {
			return ID{}, err
		}
		if ms < s.last.Ms {
			return ID{}, ErrIDTooSmall
		}
		var seq uint64
		if ms == s.last.Ms {
			seq = s.last.Seq + 1
		}
		return ID{ms, seq}, nil
	}

	if !strings.ContainsRune(spec, '-') {
		// XADD always needs both halves spelled out
		return ID{}, ErrInvalidID
	}
	id, err := parseBound(spec, 0)
	if err != nil {
		return ID{}, err
	}
	if id.IsZero() {
		return ID{}, ErrIDZero
	}
	if !id.GreaterThan(s.last) {
		return ID{}, ErrIDTooSmall
	}
	return id, nil
}

// Range returns every entry with start <= ID <= end, in ID order.
func (s *Stream) Range(start, end ID) []Entry {
	if end.LessThan(start) {
		return nil
	}
	startKey := start.indexKey()
	endKey := end.indexKey()
	var out []Entry
	s.index.Walk(func(key string, val interface{}) bool {
		if key < startKey {
			return false
		}
		if key > endKey {
			return true // walk is in key order, nothing further can match
		}
		out = append(out, val.(Entry))
		return false
	})
	return out
}

// After returns every entry with ID strictly greater than bound, in ID
// order. This is the XREAD primitive.
func (s *Stream) After(bound ID) []Entry {
	boundKey := bound.indexKey()
	var out []Entry
	s.index.Walk(func(key string, val interface{}) bool {
		if key <= boundKey {
			return false
		}
		out = append(out, val.(Entry))
		return false
	})
	return out
}
