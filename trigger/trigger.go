// Package trigger holds the external conditions that gate playback: visibility of the
// rendering surface and the network-health flags reported by the session layer.
package trigger

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Snapshot is a point-in-time copy of every trigger. It is immutable once published.
type Snapshot struct {
	Visible      bool
	IdleTimeout  bool
	MultiSession bool
	Expired      bool
	Maintenance  bool
}

// NetworkBlocked reports whether any network-health flag is set.
func (s Snapshot) NetworkBlocked() bool {
	return s.IdleTimeout || s.MultiSession || s.Expired || s.Maintenance
}

// Eligible reports whether the triggers alone allow playback.
func (s Snapshot) Eligible() bool {
	return s.Visible && !s.NetworkBlocked()
}

// Reason describes why the snapshot blocks playback, or returns an empty string.
func (s Snapshot) Reason() string {
	var reasons []string
	if !s.Visible {
		reasons = append(reasons, "hidden")
	}
	if s.IdleTimeout {
		reasons = append(reasons, "idle-timeout")
	}
	if s.MultiSession {
		reasons = append(reasons, "multi-session")
	}
	if s.Expired {
		reasons = append(reasons, "expired")
	}
	if s.Maintenance {
		reasons = append(reasons, "maintenance")
	}
	return strings.Join(reasons, ",")
}

// Listener is notified after every change with the previous and the new snapshot.
type Listener func(prev, next Snapshot)

// Store publishes Snapshots. Update is the only way to change them; Load never blocks.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// NewStore returns a Store starting at initial.
func NewStore(initial Snapshot) *Store {
	s := &Store{listeners: make(map[int]Listener)}
	s.current.Store(&initial)
	return s
}

// Load returns the latest snapshot.
func (s *Store) Load() Snapshot {
	return *s.current.Load()
}

// Update applies fn to a copy of the current snapshot and publishes the result.
// Listeners run on the calling goroutine, only when something changed.
func (s *Store) Update(fn func(*Snapshot)) (prev, next Snapshot) {
	s.mu.Lock()
	prev = *s.current.Load()
	next = prev
	fn(&next)
	if next == prev {
		s.mu.Unlock()
		return prev, next
	}
	s.current.Store(&next)

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(prev, next)
	}
	return prev, next
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) SetVisible(v bool) {
	s.Update(func(snap *Snapshot) { snap.Visible = v })
}

func (s *Store) SetIdleTimeout(v bool) {
	s.Update(func(snap *Snapshot) { snap.IdleTimeout = v })
}

func (s *Store) SetMultiSession(v bool) {
	s.Update(func(snap *Snapshot) { snap.MultiSession = v })
}

func (s *Store) SetExpired(v bool) {
	s.Update(func(snap *Snapshot) { snap.Expired = v })
}

func (s *Store) SetMaintenance(v bool) {
	s.Update(func(snap *Snapshot) { snap.Maintenance = v })
}
