// Package http exposes the REST API and the signaling WebSocket through gin.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/adapters/signal"
	"github.com/dkeye/callroom/internal/app/bus"
	"github.com/dkeye/callroom/internal/app/invite"
	"github.com/dkeye/callroom/internal/config"
	"github.com/dkeye/callroom/internal/core"
)

const sessionName = "CallroomSessions"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable participant id in the
// ct cookie and exposes it as "client_token".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(signal.ClientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(signal.ClientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Registry *bus.RoomRegistry
	Invites  *invite.Manager
	Signal   *signal.WSController
	// Tokens is optional; without it /api/token answers 503.
	Tokens core.TokenIssuer
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: deps}
	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("pid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.GET("/me", h.me)
	api.PUT("/me", h.rename)

	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:id/participants", h.participants)

	api.POST("/invitations", h.createInvitation)
	api.GET("/invitations/pending", h.pendingInvitations)
	api.POST("/invitations/:id/accept", h.acceptInvitation)
	api.POST("/invitations/:id/decline", h.declineInvitation)

	api.POST("/token", h.token)

	return r
}
