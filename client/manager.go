// Package client is the Go SDK for the presence gateway: one live socket per
// tab, kept in sync with the currently viewed page, publishing connection
// state and room occupancy to an observable store.
package client

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/warefront/presence/internal/domain"
)

type Status int

const (
	Disconnected Status = iota
	Connecting
	Open
)

var (
	ErrNoIdentity   = errors.New("client ID is not set")
	ErrNotConnected = errors.New("not connected")
)

const writeTimeout = 5 * time.Second

// Manager owns the tab's single socket. Navigation changes are in-band
// control messages on the live connection, never a reconnect; socket churn on
// every page change would flicker occupancy counts during the reconnect
// window.
//
// The socket handle is generation-counted: dial results and read-loop exits
// compare their generation against the current one, so callbacks for a
// replaced socket detect themselves as stale and do nothing.
type Manager struct {
	gatewayURL string
	clientID   domain.ClientID
	dialer     *websocket.Dialer
	store      *Store

	mu     sync.Mutex
	conn   *websocket.Conn
	gen    uint64
	status Status
	room   domain.RoomID
}

// NewManager builds a manager for the given gateway endpoint, e.g.
// "ws://host:8080/api/ws". An empty clientID leaves the manager permanently
// disconnected; identity is a precondition the gateway enforces too.
func NewManager(gatewayURL string, clientID domain.ClientID) *Manager {
	return &Manager{
		gatewayURL: gatewayURL,
		clientID:   clientID,
		dialer:     websocket.DefaultDialer,
		store:      NewStore(),
	}
}

func (m *Manager) Store() *Store { return m.store }

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Room returns the currently active room ID.
func (m *Manager) Room() domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// Navigate tells the manager the tab moved to a new path. With an open
// socket the room change is sent in-band: leave the old room, join the new
// one. Without one, a connection attempt starts for the derived room.
func (m *Manager) Navigate(path string) error {
	room := RoomForPath(path)

	m.mu.Lock()
	prev := m.room
	m.room = room
	status := m.status

	var err error
	var notify func()
	switch status {
	case Open:
		if prev != room {
			if prev != "" {
				err = m.writeLocked(domain.Message{Action: domain.ActionLeave, RoomID: prev, ClientID: m.clientID})
			}
			if err == nil {
				err = m.writeLocked(domain.Message{Action: domain.ActionJoin, RoomID: room, ClientID: m.clientID})
			}
			if err == nil {
				notify = m.store.update(func(s *Snapshot) { s.RoomID = room })
			}
		}
	case Connecting:
		// The dial in flight self-heals: it compares the room it was started
		// for against the current one once the socket opens.
	default:
		err = m.connectLocked()
	}
	m.mu.Unlock()

	if notify != nil {
		notify()
	}
	return err
}

// Close is the tab-unload path: best-effort leave for the active room, then
// the socket is released. Fire and forget, no retry.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	room := m.room
	m.gen++
	m.conn = nil
	m.status = Disconnected
	var notify func()
	if conn != nil {
		notify = m.store.update(func(s *Snapshot) { *s = Snapshot{} })
	}
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	leave := domain.Message{Action: domain.ActionLeave, RoomID: room, ClientID: m.clientID}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(leave)
	err := conn.Close()
	notify()
	return err
}

// connectLocked starts an async dial for the current room. Caller holds m.mu.
func (m *Manager) connectLocked() error {
	if m.clientID == "" {
		// Stays Disconnected, store untouched.
		return ErrNoIdentity
	}
	m.status = Connecting
	m.gen++
	gen := m.gen
	room := m.room
	go m.dial(gen, room)
	return nil
}

func (m *Manager) dial(gen uint64, room domain.RoomID) {
	u := m.gatewayURL + "?roomID=" + url.QueryEscape(string(room)) + "&clientID=" + url.QueryEscape(string(m.clientID))
	conn, resp, err := m.dialer.Dial(u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	if m.gen != gen {
		// A newer dial or Close superseded this one.
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.status = Disconnected
		m.mu.Unlock()
		log.Warn().Err(err).Str("module", "client").Msg("dial failed")
		return
	}

	m.conn = conn
	m.status = Open
	cur := m.room
	if cur != room {
		// Navigation raced the connect; the server joined us to the room the
		// dial carried, so move to where the tab actually is.
		_ = m.writeLocked(domain.Message{Action: domain.ActionJoin, RoomID: cur, ClientID: m.clientID})
	}
	// Publish while the generation check still holds, so a superseded dial
	// can never clobber the store of the socket that replaced it.
	notify := m.store.update(func(s *Snapshot) {
		s.RoomID = cur
		s.Connected = true
	})
	m.mu.Unlock()

	notify()
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		m.handleMessage(gen, raw)
	}

	m.mu.Lock()
	if m.gen == gen && m.conn == conn {
		m.conn = nil
		m.status = Disconnected
		notify := m.store.update(func(s *Snapshot) { *s = Snapshot{} })
		m.mu.Unlock()
		notify()
	} else {
		// A replacement socket owns the state now.
		m.mu.Unlock()
	}
	conn.Close()
}

// handleMessage publishes update frames for the active room. Updates for
// other rooms are in-flight broadcasts from a room this tab already left and
// are dropped by the room-ID match; frames surfacing from a replaced socket
// are dropped by the generation check.
func (m *Manager) handleMessage(gen uint64, raw []byte) {
	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("dropping malformed frame")
		return
	}
	if msg.Action != domain.ActionUpdate {
		return
	}

	m.mu.Lock()
	if m.gen != gen || msg.RoomID != m.room {
		m.mu.Unlock()
		return
	}
	notify := m.store.update(func(s *Snapshot) {
		s.Occupancy = msg.Occupancy()
		s.LastUpdate = &msg
	})
	m.mu.Unlock()
	notify()
}

// writeLocked sends one frame on the held socket. Caller holds m.mu, which
// serializes all outbound writes.
func (m *Manager) writeLocked(msg domain.Message) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return m.conn.WriteJSON(msg)
}
