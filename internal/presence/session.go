package presence

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/warefront/presence/internal/domain"
)

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrSessionClosed = errors.New("session closed")
)

// socketConn is the slice of *websocket.Conn the session needs. Tests swap in
// an in-memory pair.
type socketConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SessionConfig carries the socket tuning knobs from config.
type SessionConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingPeriod   time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Session owns one socket. It is the sole writer on the connection: all
// outbound traffic goes through the send queue drained by WritePump. Inbound
// control frames move the session between rooms in the registry.
type Session struct {
	id       string
	clientID domain.ClientID
	registry *Registry
	conn     socketConn
	cfg      SessionConfig

	send chan []byte
	done chan struct{}

	state     atomic.Int32
	closeOnce sync.Once
}

func NewSession(reg *Registry, conn socketConn, client domain.ClientID, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:       uuid.NewString(),
		clientID: client,
		registry: reg,
		conn:     conn,
		cfg:      cfg,
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
	s.state.Store(int32(domain.SessionConnecting))
	return s
}

func (s *Session) ID() string                 { return s.id }
func (s *Session) ClientID() domain.ClientID  { return s.clientID }
func (s *Session) State() domain.SessionState { return domain.SessionState(s.state.Load()) }

// TrySend queues a payload without blocking. The registry treats a failure
// here as a dead peer.
func (s *Session) TrySend(payload []byte) error {
	if s.State() == domain.SessionClosed {
		return ErrSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return ErrBackpressure
	}
}

// Join moves the session into the room and announces the new occupancy to
// everyone there, the session itself included. Used for the initial join at
// connect time and for every in-band room change after that.
func (s *Session) Join(room domain.RoomID) {
	if s.State() == domain.SessionClosed {
		return
	}
	from, _ := s.registry.RoomOf(s)
	if from == room {
		// Idempotent: re-announce so the client still gets a count.
		n := s.registry.OccupancyOf(room)
		s.registry.Broadcast(room, domain.UpdateMessage(room, s.clientID, n))
		return
	}
	fromCount, toCount := s.registry.Move(s, from, room)
	s.state.Store(int32(domain.SessionActive))

	if from != "" {
		s.registry.Broadcast(from, domain.UpdateMessage(from, s.clientID, fromCount))
	}
	s.registry.Broadcast(room, domain.UpdateMessage(room, s.clientID, toCount))
	log.Info().Str("module", "presence.session").Str("sid", s.id).Str("client", string(s.clientID)).Str("room", string(room)).Msg("joined room")
}

// Leave vacates the room and announces the decremented occupancy to whoever
// remains. The socket stays open; the session just has no room until the
// next join.
func (s *Session) Leave(room domain.RoomID) {
	if room == "" {
		cur, ok := s.registry.RoomOf(s)
		if !ok {
			return
		}
		room = cur
	}
	n := s.registry.Leave(room, s)
	if n > 0 {
		s.registry.Broadcast(room, domain.UpdateMessage(room, s.clientID, n))
	}
	log.Info().Str("module", "presence.session").Str("sid", s.id).Str("room", string(room)).Msg("left room")
}

// HandleInbound routes one raw frame. Malformed frames are dropped with a
// warning; the protocol tolerates bad input, only transport errors end the
// session.
func (s *Session) HandleInbound(raw []byte) {
	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		log.Warn().Err(err).Str("module", "presence.session").Str("sid", s.id).Msg("dropping malformed frame")
		return
	}

	switch msg.Action {
	case domain.ActionJoin, domain.ActionUpdate:
		s.Join(msg.RoomID)
	case domain.ActionLeave:
		s.Leave(msg.RoomID)
	default:
		log.Warn().Str("module", "presence.session").Str("action", msg.Action).Msg("unknown action")
	}
}

// Close is idempotent. It vacates the current room, announces the new count,
// and releases the socket. Safe to call from any goroutine, including the
// registry's broadcast path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(domain.SessionClosed))
		if room, ok := s.registry.RoomOf(s); ok {
			n := s.registry.Leave(room, s)
			if n > 0 {
				s.registry.Broadcast(room, domain.UpdateMessage(room, s.clientID, n))
			}
		}
		close(s.done)
		_ = s.conn.Close()
		log.Info().Str("module", "presence.session").Str("sid", s.id).Str("client", string(s.clientID)).Msg("session closed")
	})
}

// ReadPump blocks consuming inbound frames until the socket dies, then tears
// the session down. Run it on the goroutine that accepted the connection.
func (s *Session) ReadPump() {
	defer s.Close()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "presence.session").Str("sid", s.id).Msg("read pump ending")
			return
		}
		s.HandleInbound(raw)
	}
}

// WritePump drains the send queue onto the socket. The single writer for
// this connection.
func (s *Session) WritePump() {
	var ping <-chan time.Time
	if s.cfg.PingPeriod > 0 {
		t := time.NewTicker(s.cfg.PingPeriod)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			if err := s.write(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("module", "presence.session").Str("sid", s.id).Msg("write pump ending")
				go s.Close()
				return
			}
		case <-ping:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				go s.Close()
				return
			}
		}
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}
