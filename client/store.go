package client

import (
	"sync"

	"github.com/warefront/presence/internal/domain"
)

// Snapshot is the presence state exposed to UI code: connection flag, active
// room, last known occupancy and the last update frame received for it.
type Snapshot struct {
	Connected  bool
	RoomID     domain.RoomID
	Occupancy  int
	LastUpdate *domain.Message
}

// Store is the observable presence state for one tab. The Manager is the
// sole writer; everything else reads snapshots or subscribes.
type Store struct {
	mu       sync.RWMutex
	snap     Snapshot
	nextID   int
	watchers map[int]func(Snapshot)
}

func NewStore() *Store {
	return &Store{watchers: make(map[int]func(Snapshot))}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers a watcher called after every state change with the new
// snapshot. The returned function cancels the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// update applies the mutation and returns the watcher notification as a
// deferred call. The manager mutates the store inside its own critical
// section so state and store can never disagree, then runs the returned
// function once its lock is released; watchers may therefore call back into
// the manager freely.
func (s *Store) update(mutate func(*Snapshot)) func() {
	s.mu.Lock()
	mutate(&s.snap)
	snap := s.snap
	fns := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}
