// Package memory is an in-process storage.Store. State is lost on restart.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kiliankoe/pokerdash/internal/storage"
)

type sessionState struct {
	session      storage.Session
	participants []storage.Participant
	byExternal   map[string]int // externalID -> index into participants
	byID         map[string]int // participantID -> index into participants
	votes        []storage.Vote
	byVoter      map[string]int // participantID -> index into votes
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	now      func() time.Time
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*sessionState),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateSession(ctx context.Context, sess storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return storage.ErrAlreadyExists
	}
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	s.sessions[sess.ID] = &sessionState{
		session:    sess,
		byExternal: make(map[string]int),
		byID:       make(map[string]int),
		byVoter:    make(map[string]int),
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.sessions[id]
	if st == nil {
		return storage.Session{}, storage.ErrNotFound
	}
	return st.session, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[id]
	if st == nil {
		return false, storage.ErrNotFound
	}
	if !slices.Contains(from, st.session.Status) {
		return false, nil
	}
	st.session.Status = to
	st.session.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) ResetRound(ctx context.Context, id string, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[id]
	if st == nil {
		return storage.ErrNotFound
	}
	st.votes = nil
	st.byVoter = make(map[string]int)
	st.session.Status = status
	st.session.UpdatedAt = s.now()
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p storage.Participant) (storage.Participant, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.Participant{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[p.SessionID]
	if st == nil {
		return storage.Participant{}, false, storage.ErrNotFound
	}
	if ix, ok := st.byExternal[p.ExternalID]; ok {
		return st.participants[ix], false, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	st.byExternal[p.ExternalID] = len(st.participants)
	st.byID[p.ID] = len(st.participants)
	st.participants = append(st.participants, p)
	return p, true, nil
}

func (s *Store) GetParticipantByExternalID(ctx context.Context, sessionID, externalID string) (storage.Participant, error) {
	if err := ctx.Err(); err != nil {
		return storage.Participant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.sessions[sessionID]
	if st == nil {
		return storage.Participant{}, storage.ErrNotFound
	}
	ix, ok := st.byExternal[externalID]
	if !ok {
		return storage.Participant{}, storage.ErrNotFound
	}
	return st.participants[ix], nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]storage.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.sessions[sessionID]
	if st == nil {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(st.participants), nil
}

func (s *Store) UpsertVote(ctx context.Context, v storage.Vote) (storage.Vote, error) {
	if err := ctx.Err(); err != nil {
		return storage.Vote{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[v.SessionID]
	if st == nil {
		return storage.Vote{}, storage.ErrNotFound
	}
	// votes belong to a participant of the same session
	if _, ok := st.byID[v.ParticipantID]; !ok {
		return storage.Vote{}, storage.ErrNotFound
	}
	now := s.now()
	if ix, ok := st.byVoter[v.ParticipantID]; ok {
		existing := &st.votes[ix]
		existing.Value = v.Value
		existing.UpdatedAt = now
		return *existing, nil
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	st.byVoter[v.ParticipantID] = len(st.votes)
	st.votes = append(st.votes, v)
	return v, nil
}

func (s *Store) ListVotes(ctx context.Context, sessionID string) ([]storage.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.sessions[sessionID]
	if st == nil {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(st.votes), nil
}

func (s *Store) CountVotes(ctx context.Context, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.sessions[sessionID]
	if st == nil {
		return 0, storage.ErrNotFound
	}
	n := 0
	for _, v := range st.votes {
		if v.Value != "" {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

var _ storage.Store = (*Store)(nil)
