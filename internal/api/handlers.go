package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/kiliankoe/pokerdash/internal/deck"
	"github.com/kiliankoe/pokerdash/internal/game"
)

type createGameRequest struct {
	Name       string    `json:"name" binding:"max=100"`
	DeckType   deck.Kind `json:"deckType" binding:"omitempty,oneof=standard short fibonacci modified_fibonacci tshirts powers_of_2 custom"`
	CustomDeck string    `json:"customDeck" binding:"max=500"`
}

type createGameResponse struct {
	GameID string `json:"gameId"`
}

type joinGameRequest struct {
	GameID   string `json:"gameId" binding:"required"`
	Nickname string `json:"nickname" binding:"required,max=50"`
}

type joinGameResponse struct {
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
}

type currentPlayerResponse struct {
	Player *game.Participant `json:"player"`
}

func (s *Server) createGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortError(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	sess, err := s.engine.CreateSession(c.Request.Context(), game.CreateParams{
		Name:       strings.TrimSpace(req.Name),
		DeckType:   req.DeckType,
		CustomDeck: req.CustomDeck,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, createGameResponse{GameID: sess.ID})
}

func (s *Server) joinGame(c *gin.Context) {
	var req joinGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	nickname := normalizeNickname(req.Nickname)
	if nickname == "" {
		abortError(c, http.StatusBadRequest, "nickname must not be empty")
		return
	}

	externalID := s.identity(c)
	if externalID == "" {
		externalID = uuid.NewString()
		s.setIdentity(c, externalID)
	}

	p, err := s.engine.AdmitParticipant(c.Request.Context(), req.GameID, nickname, externalID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, joinGameResponse{PlayerID: p.ID, GameID: p.SessionID})
}

func (s *Server) getGame(c *gin.Context) {
	snap, err := s.engine.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) currentPlayer(c *gin.Context) {
	externalID := s.identity(c)
	if externalID == "" {
		c.JSON(http.StatusOK, currentPlayerResponse{})
		return
	}
	p, ok, err := s.engine.ParticipantByIdentity(c.Request.Context(), c.Param("id"), externalID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, currentPlayerResponse{})
		return
	}
	c.JSON(http.StatusOK, currentPlayerResponse{Player: &p})
}

func (s *Server) identity(c *gin.Context) string {
	v, err := c.Cookie(s.cookie.Name)
	if err != nil {
		return ""
	}
	return v
}

func (s *Server) setIdentity(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookie.Name, id, int(s.cookie.TTL.Seconds()), "/", "", s.cookie.Secure, true)
}

// normalizeNickname trims and NFC-normalizes so visually identical names
// compare equal.
func normalizeNickname(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
