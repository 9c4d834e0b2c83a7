// Package storage defines the persistence contract for sessions, their
// participants and the votes of the current round.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Session is a persisted voting room.
type Session struct {
	ID         string
	Name       string
	DeckType   string
	CustomDeck string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Participant is unique per (SessionID, ExternalID).
type Participant struct {
	ID         string
	SessionID  string
	Nickname   string
	ExternalID string
	CreatedAt  time.Time
}

// Vote is unique per (SessionID, ParticipantID).
type Vote struct {
	ID            string
	SessionID     string
	ParticipantID string
	Value         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store is implemented by memory and sqlstore.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// TransitionStatus moves the session to `to` only when its current status
	// is one of `from`. It reports whether a row changed.
	TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	// ResetRound deletes every vote of the session and sets its status in one
	// atomic unit.
	ResetRound(ctx context.Context, id string, status string) error

	// AddParticipant inserts p unless a participant with the same
	// (SessionID, ExternalID) exists, in which case the existing one is returned.
	AddParticipant(ctx context.Context, p Participant) (Participant, bool, error)
	GetParticipantByExternalID(ctx context.Context, sessionID, externalID string) (Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]Participant, error)

	// UpsertVote inserts v or replaces the value of the existing vote keyed by
	// (SessionID, ParticipantID).
	UpsertVote(ctx context.Context, v Vote) (Vote, error)
	ListVotes(ctx context.Context, sessionID string) ([]Vote, error)
	// CountVotes counts votes with a non-empty value.
	CountVotes(ctx context.Context, sessionID string) (int, error)

	Close() error
}
