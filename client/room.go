package client

import (
	"strings"

	"github.com/warefront/presence/internal/domain"
)

// Aliases so SDK consumers outside this module can name the wire types.
type (
	Message  = domain.Message
	RoomID   = domain.RoomID
	ClientID = domain.ClientID
)

// DefaultRoom is the room for the root path.
const DefaultRoom = domain.RoomID("dashboard")

// RoomForPath derives the presence room from a navigation path. Only the
// first segment counts, so "/products" and "/products/42" share the products
// room; per-resource rooms are deliberately collapsed to per-section rooms to
// bound room cardinality.
func RoomForPath(path string) domain.RoomID {
	p := strings.TrimPrefix(path, "/")
	if p == "" {
		return DefaultRoom
	}
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return domain.RoomID(p)
}
