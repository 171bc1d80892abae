package presence

import "github.com/warefront/presence/internal/domain"

// Mirror receives occupancy changes so out-of-process readers (the dashboard)
// can see presence without holding a socket. Publishing is asynchronous and
// best effort; the registry's in-memory state stays authoritative.
type Mirror interface {
	SetOccupancy(room domain.RoomID, count int) error
}

// NopMirror is the default when no external store is configured.
type NopMirror struct{}

func (NopMirror) SetOccupancy(domain.RoomID, int) error { return nil }
