package game

import (
	"time"

	"github.com/kiliankoe/pokerdash/internal/deck"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusVoting   Status = "voting"
	StatusRevealed Status = "revealed"
)

type Session struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DeckType   deck.Kind `json:"deckType"`
	CustomDeck string    `json:"customDeck,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Cards resolves the session's deck.
func (s Session) Cards() []deck.Card {
	return deck.Resolve(s.DeckType, s.CustomDeck)
}

type Participant struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"gameId"`
	Nickname   string    `json:"nickname"`
	ExternalID string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Vote struct {
	ID            string `json:"id"`
	SessionID     string `json:"gameId"`
	ParticipantID string `json:"playerId"`
	Value         string `json:"value"`
}

type CreateParams struct {
	Name       string
	DeckType   deck.Kind
	CustomDeck string
}

// Snapshot is the full view of a session sent to clients. Field names follow
// the browser client's expectations.
type Snapshot struct {
	ID             string       `json:"id"`
	Name           *string      `json:"name"`
	Status         Status       `json:"status"`
	DeckType       deck.Kind    `json:"deckType"`
	AvailableCards []string     `json:"availableCards"`
	Cards          []deck.Card  `json:"cards"`
	Players        []PlayerView `json:"players"`
	Votes          []VoteView   `json:"votes"`
	AverageScore   *float64     `json:"averageScore"`
	Progress       Progress     `json:"progress"`
}

type PlayerView struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
}

type VoteView struct {
	PlayerID       string  `json:"playerId"`
	PlayerNickname string  `json:"playerNickname"`
	Value          *string `json:"value"`
}

type Progress struct {
	Total int `json:"total"`
	Voted int `json:"voted"`
}
