// Package api exposes the HTTP side of the game: creating and joining
// sessions, fetching snapshots and resolving the caller's participant from
// the identity cookie.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiliankoe/pokerdash/internal/game"
)

// Engine is the subset of game.Manager the HTTP handlers need.
type Engine interface {
	CreateSession(ctx context.Context, p game.CreateParams) (game.Session, error)
	AdmitParticipant(ctx context.Context, sessionID, nickname, externalID string) (game.Participant, error)
	ParticipantByIdentity(ctx context.Context, sessionID, externalID string) (game.Participant, bool, error)
	Snapshot(ctx context.Context, sessionID string) (game.Snapshot, error)
}

type CookieOptions struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

type Server struct {
	engine Engine
	cookie CookieOptions
}

func NewServer(engine Engine, cookie CookieOptions) *Server {
	if cookie.Name == "" {
		cookie.Name = "sessionId"
	}
	if cookie.TTL <= 0 {
		cookie.TTL = 24 * time.Hour
	}
	return &Server{engine: engine, cookie: cookie}
}

// Register mounts the game routes, the health check and the JSON 404
// fallback on r.
func (s *Server) Register(r *gin.Engine) {
	g := r.Group("/api/game")
	g.POST("/create", s.createGame)
	g.POST("/join", s.joinGame)
	g.GET("/:id", s.getGame)
	g.GET("/:id/current-player", s.currentPlayer)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, "route not found")
	})
}
