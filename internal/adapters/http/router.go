package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/warefront/presence/internal/adapters/gateway"
	"github.com/warefront/presence/internal/auth"
	"github.com/warefront/presence/internal/config"
)

func SetupRouter(cfg *config.Config, gw *gateway.Gateway, tokens *auth.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")

	// The socket endpoint authenticates via the clientID parameter; token
	// auth covers the REST dashboard surface only.
	api.GET("/ws", gw.HandleSocket)

	rooms := api.Group("/ws/rooms")
	rooms.Use(AuthMiddleware(tokens))
	rooms.GET("", gw.RoomInfo)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
