// Package presence holds the authoritative room membership state and the
// per-socket sessions that feed it.
package presence

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/warefront/presence/internal/domain"
)

// Registry maps room IDs to the sessions currently viewing them. Rooms exist
// implicitly: created on first join, deleted when the member set empties.
//
// Both maps are guarded by one mutex so that a move is a single critical
// section. A session is never observable in two rooms, or in none, while it
// switches.
type Registry struct {
	mu        sync.RWMutex
	byRoom    map[domain.RoomID]map[*Session]struct{}
	bySession map[*Session]domain.RoomID
	mirror    Mirror
}

func NewRegistry(mirror Mirror) *Registry {
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &Registry{
		byRoom:    make(map[domain.RoomID]map[*Session]struct{}),
		bySession: make(map[*Session]domain.RoomID),
		mirror:    mirror,
	}
}

// Join adds the session to the room and returns the new occupancy.
// Re-joining the room the session already occupies is a no-op. If the
// session occupies a different room it is moved, so the one-room-per-session
// invariant holds no matter what the caller does.
func (r *Registry) Join(room domain.RoomID, s *Session) int {
	r.mu.Lock()
	if s.State() == domain.SessionClosed {
		n := len(r.byRoom[room])
		r.mu.Unlock()
		return n
	}
	if from, ok := r.bySession[s]; ok && from != room {
		r.leaveLocked(from, s)
	}
	n := r.joinLocked(room, s)
	r.mu.Unlock()

	r.publishMirror(room, n)
	log.Debug().Str("module", "presence.registry").Str("room", string(room)).Str("sid", s.ID()).Int("occupancy", n).Msg("join")
	return n
}

// Leave removes the session from the room and returns the remaining
// occupancy, 0 when the room no longer exists.
func (r *Registry) Leave(room domain.RoomID, s *Session) int {
	r.mu.Lock()
	n := r.leaveLocked(room, s)
	r.mu.Unlock()

	r.publishMirror(room, n)
	log.Debug().Str("module", "presence.registry").Str("room", string(room)).Str("sid", s.ID()).Int("occupancy", n).Msg("leave")
	return n
}

// Move switches the session from one room to another under a single lock and
// returns the occupancy of both rooms after the switch. An empty from room
// means the session had no room yet.
func (r *Registry) Move(s *Session, from, to domain.RoomID) (fromCount, toCount int) {
	r.mu.Lock()
	if from != "" {
		fromCount = r.leaveLocked(from, s)
	}
	// A session closing concurrently must not be re-added; its teardown may
	// already have run.
	if s.State() == domain.SessionClosed {
		toCount = len(r.byRoom[to])
		r.mu.Unlock()
		return fromCount, toCount
	}
	toCount = r.joinLocked(to, s)
	r.mu.Unlock()

	if from != "" {
		r.publishMirror(from, fromCount)
	}
	r.publishMirror(to, toCount)
	log.Debug().Str("module", "presence.registry").Str("from", string(from)).Str("to", string(to)).Str("sid", s.ID()).Msg("move")
	return fromCount, toCount
}

// OccupancyOf returns the member count, 0 for unknown rooms.
func (r *Registry) OccupancyOf(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[room])
}

// RoomOf reports the room the session currently occupies.
func (r *Registry) RoomOf(s *Session) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.bySession[s]
	return room, ok
}

// Snapshot returns occupancy per room for the dashboard.
func (r *Registry) Snapshot() map[domain.RoomID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.RoomID]int, len(r.byRoom))
	for room, set := range r.byRoom {
		out[room] = len(set)
	}
	return out
}

// CloseAll tears down every session currently in a room. Used at shutdown:
// an http.Server.Shutdown never touches hijacked connections, so the live
// sockets must be closed here.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.bySession))
	for s := range r.bySession {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	// Close re-enters the registry lock through Leave, so it runs outside it.
	for _, s := range sessions {
		s.Close()
	}
	log.Info().Str("module", "presence.registry").Int("sessions", len(sessions)).Msg("closed all sessions")
}

// Broadcast sends the message to every session in the room at the time of
// the call. Best effort: a failed send tears that session down asynchronously
// and never blocks or fails delivery to the rest.
func (r *Registry) Broadcast(room domain.RoomID, msg domain.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "presence.registry").Msg("broadcast marshal")
		return
	}

	r.mu.RLock()
	members := make([]*Session, 0, len(r.byRoom[room]))
	for s := range r.byRoom[room] {
		members = append(members, s)
	}
	r.mu.RUnlock()

	sent := 0
	for _, s := range members {
		if err := s.TrySend(payload); err != nil {
			log.Warn().Err(err).Str("module", "presence.registry").Str("room", string(room)).Str("sid", s.ID()).Msg("send failed, scheduling teardown")
			go s.Close()
			continue
		}
		sent++
	}
	log.Debug().Str("module", "presence.registry").Str("room", string(room)).Int("sent_to", sent).Msg("broadcast")
}

// joinLocked and leaveLocked keep both maps consistent; callers hold r.mu.

func (r *Registry) joinLocked(room domain.RoomID, s *Session) int {
	set, ok := r.byRoom[room]
	if !ok {
		set = make(map[*Session]struct{})
		r.byRoom[room] = set
	}
	set[s] = struct{}{}
	r.bySession[s] = room
	return len(set)
}

func (r *Registry) leaveLocked(room domain.RoomID, s *Session) int {
	set, ok := r.byRoom[room]
	if !ok {
		return 0
	}
	delete(set, s)
	if cur, ok := r.bySession[s]; ok && cur == room {
		delete(r.bySession, s)
	}
	if len(set) == 0 {
		delete(r.byRoom, room)
		return 0
	}
	return len(set)
}

func (r *Registry) publishMirror(room domain.RoomID, count int) {
	if _, ok := r.mirror.(NopMirror); ok {
		return
	}
	go func() {
		if err := r.mirror.SetOccupancy(room, count); err != nil {
			log.Warn().Err(err).Str("module", "presence.registry").Str("room", string(room)).Msg("mirror publish failed")
		}
	}()
}
