package game

import (
	"context"
	"fmt"

	"github.com/kiliankoe/pokerdash/internal/deck"
)

// Snapshot assembles everything a client needs to render the session. Votes
// are always included; clients hide values until the status is revealed.
// The reads hold the session lock so status and votes come from one state.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (snap Snapshot, err error) {
	ctx, span := m.start(ctx, "Snapshot", sessionID)
	defer func() { finish(span, err) }()

	unlock := m.locks.lock(sessionID)
	defer unlock()

	sess, err := m.Session(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	participants, err := m.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list participants: %w", mapStoreErr(err, ErrSessionNotFound))
	}
	votes, err := m.store.ListVotes(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list votes: %w", mapStoreErr(err, ErrSessionNotFound))
	}

	cards := sess.Cards()
	snap = Snapshot{
		ID:             sess.ID,
		Status:         sess.Status,
		DeckType:       sess.DeckType,
		AvailableCards: deck.IDs(cards),
		Cards:          cards,
		Players:        make([]PlayerView, 0, len(participants)),
		Votes:          make([]VoteView, 0, len(votes)),
	}
	if sess.Name != "" {
		name := sess.Name
		snap.Name = &name
	}

	nicknames := make(map[string]string, len(participants))
	for _, p := range participants {
		nicknames[p.ID] = p.Nickname
		snap.Players = append(snap.Players, PlayerView{ID: p.ID, Nickname: p.Nickname, CreatedAt: p.CreatedAt})
	}

	values := make([]string, 0, len(votes))
	for _, v := range votes {
		view := VoteView{PlayerID: v.ParticipantID, PlayerNickname: nicknames[v.ParticipantID]}
		if v.Value != "" {
			value := v.Value
			view.Value = &value
			snap.Progress.Voted++
			values = append(values, value)
		}
		snap.Votes = append(snap.Votes, view)
	}
	snap.Progress.Total = len(participants)

	if sess.Status == StatusRevealed && deck.AverageEnabled(sess.DeckType) {
		snap.AverageScore = Average(cards, values)
	}
	return snap, nil
}

// Average is the mean of the numeric cards among values. Symbolic cards are
// skipped; nil means no numeric vote was cast.
func Average(cards []deck.Card, values []string) *float64 {
	var (
		sum float64
		n   int
	)
	for _, id := range values {
		card, ok := deck.Lookup(cards, id)
		if !ok {
			continue
		}
		if v, ok := card.Value(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
