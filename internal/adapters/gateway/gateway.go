// Package gateway accepts socket upgrades, authenticates the client identity
// and wires sessions to the room registry.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/warefront/presence/internal/config"
	"github.com/warefront/presence/internal/domain"
	"github.com/warefront/presence/internal/presence"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Gateway struct {
	registry *presence.Registry
	cfg      *config.Config
	limiter  *ConnRateLimiter
}

func NewGateway(reg *presence.Registry, cfg *config.Config) *Gateway {
	limit := cfg.ConnRateLimit
	if limit <= 0 {
		limit = 20
	}
	window := cfg.ConnRateWindow
	if window <= 0 {
		window = time.Minute
	}
	return &Gateway{
		registry: reg,
		cfg:      cfg,
		limiter:  NewConnRateLimiter(limit, window),
	}
}

// HandleSocket upgrades the request and runs the session until the socket
// dies. roomID and clientID arrive as query parameters; an absent clientID is
// an authentication failure and the upgrade is refused, while an absent
// roomID falls back to the configured default room.
func (g *Gateway) HandleSocket(c *gin.Context) {
	roomID := c.Query("roomID")
	clientID := c.Query("clientID")

	if roomID == "" {
		roomID = g.cfg.DefaultRoom
	}
	if roomID == "" || clientID == "" {
		jsonError(c, http.StatusBadRequest, errors.New("roomID and clientID are required"))
		return
	}
	if !g.limiter.Allow(domain.ClientID(clientID)) {
		jsonError(c, http.StatusTooManyRequests, errors.New("too many connection attempts"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("upgrade failed")
		return
	}
	if g.cfg.ReadLimit > 0 {
		conn.SetReadLimit(g.cfg.ReadLimit)
	}

	sess := presence.NewSession(g.registry, conn, domain.ClientID(clientID), presence.SessionConfig{
		SendBuffer:   g.cfg.SendBuffer,
		WriteTimeout: g.cfg.WriteTimeout,
		PingPeriod:   g.cfg.PingPeriod,
	})
	log.Info().Str("module", "gateway").Str("sid", sess.ID()).Str("client", clientID).Str("room", roomID).Msg("connection established")

	go sess.WritePump()
	sess.Join(domain.RoomID(roomID))
	sess.ReadPump()
}

// RoomInfo reports occupancy per room for the dashboard widget.
func (g *Gateway) RoomInfo(c *gin.Context) {
	jsonData(c, http.StatusOK, g.registry.Snapshot())
}

type response struct {
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func jsonData(c *gin.Context, code int, data any) {
	c.JSON(code, response{Data: data})
}

func jsonError(c *gin.Context, code int, err error) {
	c.JSON(code, response{Error: err.Error()})
}
