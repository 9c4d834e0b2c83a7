package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiliankoe/pokerdash/internal/deck"
	"github.com/kiliankoe/pokerdash/internal/storage"
)

const tracerName = "github.com/kiliankoe/pokerdash/internal/game"

// Manager owns the session state machine. All session, participant and vote
// writes go through it.
type Manager struct {
	store  storage.Store
	locks  *sessionLocks
	tracer trace.Tracer
	newID  func() string
}

func NewManager(store storage.Store) *Manager {
	return &Manager{
		store:  store,
		locks:  newSessionLocks(),
		tracer: otel.Tracer(tracerName),
		newID:  uuid.NewString,
	}
}

func (m *Manager) start(ctx context.Context, op, sessionID string) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "game."+op)
	if sessionID != "" {
		span.SetAttributes(attribute.String("session.id", sessionID))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateSession stores a new session in the waiting state.
func (m *Manager) CreateSession(ctx context.Context, p CreateParams) (sess Session, err error) {
	ctx, span := m.start(ctx, "CreateSession", "")
	defer func() { finish(span, err) }()

	kind := p.DeckType
	if kind == "" {
		kind = deck.Standard
	}
	if !deck.Known(kind) {
		log.Warn().Str("deck", string(kind)).Msg("unknown deck type, cards fall back to standard")
	}
	if kind == deck.Custom {
		if err := validateCustomDeck(p.CustomDeck); err != nil {
			return Session{}, err
		}
	}

	rec := storage.Session{
		ID:         m.newID(),
		Name:       strings.TrimSpace(p.Name),
		DeckType:   string(kind),
		CustomDeck: p.CustomDeck,
		Status:     string(StatusWaiting),
	}
	if err := m.store.CreateSession(ctx, rec); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	stored, err := m.store.GetSession(ctx, rec.ID)
	if err != nil {
		return Session{}, fmt.Errorf("load created session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", rec.ID), attribute.String("deck.type", rec.DeckType))
	log.Info().Str("session", rec.ID).Str("deck", rec.DeckType).Msg("session created")
	return sessionFromRecord(stored), nil
}

func validateCustomDeck(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return &ValidationError{Field: "customDeck", Reason: "custom deck is required when deckType is custom"}
	}
	for _, part := range strings.Split(spec, ",") {
		card := strings.TrimSpace(part)
		n, err := strconv.Atoi(card)
		if err != nil || n < 0 {
			return invalidToken("card value", card, "all cards must be non-negative integers")
		}
	}
	return nil
}

// Session returns the stored session.
func (m *Manager) Session(ctx context.Context, id string) (Session, error) {
	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, mapStoreErr(err, ErrSessionNotFound)
	}
	return sessionFromRecord(rec), nil
}

// AdmitParticipant joins externalID to the session. Joining again with the
// same external identifier returns the participant created the first time.
func (m *Manager) AdmitParticipant(ctx context.Context, sessionID, nickname, externalID string) (p Participant, err error) {
	ctx, span := m.start(ctx, "AdmitParticipant", sessionID)
	defer func() { finish(span, err) }()

	if _, err := m.Session(ctx, sessionID); err != nil {
		return Participant{}, err
	}
	rec, created, err := m.store.AddParticipant(ctx, storage.Participant{
		ID:         m.newID(),
		SessionID:  sessionID,
		Nickname:   nickname,
		ExternalID: externalID,
	})
	if err != nil {
		return Participant{}, mapStoreErr(err, ErrSessionNotFound)
	}
	if created {
		log.Info().Str("session", sessionID).Str("participant", rec.ID).Msg("participant joined")
	}
	return participantFromRecord(rec), nil
}

// ParticipantByIdentity finds the participant bound to externalID. A missing
// participant is reported through ok, not as an error.
func (m *Manager) ParticipantByIdentity(ctx context.Context, sessionID, externalID string) (p Participant, ok bool, err error) {
	if externalID == "" {
		return Participant{}, false, nil
	}
	rec, err := m.store.GetParticipantByExternalID(ctx, sessionID, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return Participant{}, false, nil
	}
	if err != nil {
		return Participant{}, false, fmt.Errorf("lookup participant: %w", err)
	}
	return participantFromRecord(rec), true, nil
}

// CastVote records or replaces the participant's vote for the current round.
// The first vote of a round moves a waiting session to voting.
func (m *Manager) CastVote(ctx context.Context, sessionID, participantID, value string) (v Vote, err error) {
	ctx, span := m.start(ctx, "CastVote", sessionID)
	defer func() { finish(span, err) }()

	unlock := m.locks.lock(sessionID)
	defer unlock()

	sess, err := m.Session(ctx, sessionID)
	if err != nil {
		return Vote{}, err
	}
	if sess.Status == StatusRevealed {
		return Vote{}, ErrVotingClosed
	}
	cards := sess.Cards()
	if _, ok := deck.Lookup(cards, value); !ok {
		return Vote{}, invalidToken("vote value", value, "not allowed, available cards: "+strings.Join(deck.IDs(cards), ", "))
	}

	rec, err := m.store.UpsertVote(ctx, storage.Vote{
		ID:            m.newID(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Value:         value,
	})
	if err != nil {
		return Vote{}, mapStoreErr(err, ErrParticipantNotFound)
	}

	count, err := m.store.CountVotes(ctx, sessionID)
	if err != nil {
		return Vote{}, fmt.Errorf("count votes: %w", err)
	}
	if count > 0 && sess.Status == StatusWaiting {
		if err := m.transition(ctx, sessionID, StatusVoting, StatusWaiting); err != nil {
			return Vote{}, err
		}
	}
	return voteFromRecord(rec), nil
}

// Reveal shows all votes. Revealing an already revealed session is a no-op.
func (m *Manager) Reveal(ctx context.Context, sessionID string) (sess Session, err error) {
	ctx, span := m.start(ctx, "Reveal", sessionID)
	defer func() { finish(span, err) }()

	unlock := m.locks.lock(sessionID)
	defer unlock()

	sess, err = m.Session(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == StatusRevealed {
		return sess, nil
	}
	if err := m.transition(ctx, sessionID, StatusRevealed, StatusWaiting, StatusVoting); err != nil {
		return Session{}, err
	}
	return m.Session(ctx, sessionID)
}

// ResetRound deletes every vote and returns the session to waiting, whatever
// its current status. Name and deck are kept.
func (m *Manager) ResetRound(ctx context.Context, sessionID string) (sess Session, err error) {
	ctx, span := m.start(ctx, "ResetRound", sessionID)
	defer func() { finish(span, err) }()

	unlock := m.locks.lock(sessionID)
	defer unlock()

	prev, err := m.Session(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := m.store.ResetRound(ctx, sessionID, string(StatusWaiting)); err != nil {
		return Session{}, mapStoreErr(err, ErrSessionNotFound)
	}
	log.Info().Str("session", sessionID).Str("from", string(prev.Status)).Str("to", string(StatusWaiting)).Msg("round reset")
	return m.Session(ctx, sessionID)
}

func (m *Manager) transition(ctx context.Context, sessionID string, to Status, from ...Status) error {
	froms := make([]string, len(from))
	for i, f := range from {
		froms[i] = string(f)
	}
	changed, err := m.store.TransitionStatus(ctx, sessionID, froms, string(to))
	if err != nil {
		return mapStoreErr(err, ErrSessionNotFound)
	}
	if changed {
		log.Info().Str("session", sessionID).Strs("from", froms).Str("to", string(to)).Msg("status transition")
	}
	return nil
}

func mapStoreErr(err error, notFound error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return notFound
	}
	return err
}

func sessionFromRecord(r storage.Session) Session {
	return Session{
		ID:         r.ID,
		Name:       r.Name,
		DeckType:   deck.Kind(r.DeckType),
		CustomDeck: r.CustomDeck,
		Status:     Status(r.Status),
		CreatedAt:  r.CreatedAt,
	}
}

func participantFromRecord(r storage.Participant) Participant {
	return Participant{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Nickname:   r.Nickname,
		ExternalID: r.ExternalID,
		CreatedAt:  r.CreatedAt,
	}
}

func voteFromRecord(r storage.Vote) Vote {
	return Vote{
		ID:            r.ID,
		SessionID:     r.SessionID,
		ParticipantID: r.ParticipantID,
		Value:         r.Value,
	}
}
