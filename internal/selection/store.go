// Package selection holds the attributes of the currently selected feature
// and fans the latest value out to observers.
package selection

import (
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/trafficmap/internal/metrics"
)

// Attributes is the attribute mapping of a selected feature. Nil means
// nothing is selected.
type Attributes map[string]interface{}

// Clone returns a shallow copy; nil stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type holder struct {
	attrs Attributes
}

// Store is the selection value shared between the interaction layer (the
// writer) and any number of observers.
type Store struct {
	current atomic.Pointer[holder]

	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Attributes
	writeMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{subs: make(map[int]chan Attributes)}
	s.current.Store(&holder{})
	return s
}

// SetFeature replaces the held value. The mapping is copied, so later
// changes by the caller are not observed. Nil clears the selection.
func (s *Store) SetFeature(attrs map[string]interface{}) {
	value := Attributes(attrs).Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.current.Store(&holder{attrs: value})
	if value == nil {
		metrics.SelectionUpdatesTotal.WithLabelValues("clear").Inc()
	} else {
		metrics.SelectionUpdatesTotal.WithLabelValues("set").Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		deliver(ch, value)
	}
}

// Clear is SetFeature(nil).
func (s *Store) Clear() {
	s.SetFeature(nil)
}

// Current returns a copy of the held value and whether anything is
// selected.
func (s *Store) Current() (Attributes, bool) {
	h := s.current.Load()
	if h.attrs == nil {
		return nil, false
	}
	return h.attrs.Clone(), true
}

// Subscribe registers an observer. The channel always holds at most the
// latest value; older undelivered values are dropped. The current value is
// delivered immediately. The returned func unsubscribes and closes the
// channel.
func (s *Store) Subscribe() (<-chan Attributes, func()) {
	ch := make(chan Attributes, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	deliver(ch, s.current.Load().attrs)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// deliver replaces whatever is buffered in ch with v. Callers hold s.mu,
// so no other sender races for the slot.
func deliver(ch chan Attributes, v Attributes) {
	select {
	case <-ch:
	default:
	}
	// Each observer gets its own copy.
	ch <- v.Clone()
}
