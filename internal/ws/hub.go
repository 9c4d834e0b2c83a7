// Package ws routes realtime commands from connected browsers to the game
// engine and fans the resulting session snapshot out to every connection
// attached to that session.
package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/pokerdash/internal/game"
)

// Conn is one live client connection. Send must not block for long.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Engine is the subset of game.Manager the hub drives.
type Engine interface {
	ParticipantByIdentity(ctx context.Context, sessionID, externalID string) (game.Participant, bool, error)
	CastVote(ctx context.Context, sessionID, participantID, value string) (game.Vote, error)
	Reveal(ctx context.Context, sessionID string) (game.Session, error)
	ResetRound(ctx context.Context, sessionID string) (game.Session, error)
	Snapshot(ctx context.Context, sessionID string) (game.Snapshot, error)
}

// ConnCtx is what the hub knows about a connection. SessionID and
// ParticipantID stay empty until JOIN_GAME succeeds.
type ConnCtx struct {
	ExternalID    string
	SessionID     string
	ParticipantID string
}

type member struct {
	conn Conn
	ctx  ConnCtx
}

type Hub struct {
	engine Engine

	mu      sync.RWMutex
	members map[string]*member // connID -> member
}

func NewHub(engine Engine) *Hub {
	return &Hub{engine: engine, members: make(map[string]*member)}
}

// Register tracks a freshly opened connection. externalID is the browser's
// identity cookie and may be empty.
func (h *Hub) Register(c Conn, externalID string) {
	h.mu.Lock()
	h.members[c.ID()] = &member{conn: c, ctx: ConnCtx{ExternalID: externalID}}
	h.mu.Unlock()
	log.Info().Str("sid", c.ID()).Bool("identified", externalID != "").Msg("socket connected")
}

// Unregister drops the connection and, if it was attached to a session,
// broadcasts so the remaining members see the change.
func (h *Hub) Unregister(ctx context.Context, c Conn) {
	h.mu.Lock()
	m, ok := h.members[c.ID()]
	delete(h.members, c.ID())
	h.mu.Unlock()
	if !ok {
		return
	}
	log.Info().Str("sid", c.ID()).Str("session", m.ctx.SessionID).Msg("socket disconnected")
	if m.ctx.SessionID != "" {
		h.Broadcast(ctx, m.ctx.SessionID)
	}
}

// Context returns the binding of a registered connection.
func (h *Hub) Context(connID string) (ConnCtx, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[connID]
	if !ok {
		return ConnCtx{}, false
	}
	return m.ctx, true
}

// HandleMessage runs one inbound frame: decode, apply, then broadcast the
// affected session. Failures are answered to c alone.
func (h *Hub) HandleMessage(ctx context.Context, c Conn, data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		h.replyError(c, err)
		return
	}
	affected, err := h.apply(ctx, c, cmd)
	if err != nil {
		h.replyError(c, err)
		return
	}
	for _, sessionID := range affected {
		h.Broadcast(ctx, sessionID)
	}
}

// apply executes cmd and returns the sessions whose state must be re-sent.
func (h *Hub) apply(ctx context.Context, c Conn, cmd Command) ([]string, error) {
	cc, ok := h.Context(c.ID())
	if !ok {
		return nil, protocolErrorf("connection is not registered")
	}

	if join, ok := cmd.(JoinGame); ok {
		return h.join(ctx, c, cc, join.SessionID)
	}

	if cc.SessionID == "" || cc.ParticipantID == "" {
		return nil, protocolErrorf("Not joined to game")
	}
	var err error
	switch cmd := cmd.(type) {
	case CastVote:
		_, err = h.engine.CastVote(ctx, cc.SessionID, cc.ParticipantID, cmd.Value)
	case Reveal:
		_, err = h.engine.Reveal(ctx, cc.SessionID)
	case Reset:
		_, err = h.engine.ResetRound(ctx, cc.SessionID)
	default:
		err = protocolErrorf("Unknown message type")
	}
	if err != nil {
		return nil, err
	}
	return []string{cc.SessionID}, nil
}

func (h *Hub) join(ctx context.Context, c Conn, cc ConnCtx, sessionID string) ([]string, error) {
	if cc.ExternalID == "" {
		return nil, protocolErrorf("Session ID not found in cookies")
	}
	p, found, err := h.engine.ParticipantByIdentity(ctx, sessionID, cc.ExternalID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, protocolErrorf("Player not found. Please join the game first via HTTP API.")
	}

	h.mu.Lock()
	m, ok := h.members[c.ID()]
	if ok {
		m.ctx.SessionID = sessionID
		m.ctx.ParticipantID = p.ID
	}
	h.mu.Unlock()
	if !ok {
		return nil, protocolErrorf("connection is not registered")
	}

	log.Info().Str("sid", c.ID()).Str("session", sessionID).Str("participant", p.ID).Msg("JOIN_GAME")
	affected := []string{sessionID}
	if cc.SessionID != "" && cc.SessionID != sessionID {
		affected = append(affected, cc.SessionID)
	}
	return affected, nil
}

// Broadcast sends the current snapshot of sessionID to every connection
// attached to it.
func (h *Hub) Broadcast(ctx context.Context, sessionID string) {
	snap, err := h.engine.Snapshot(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("failed to build snapshot")
		return
	}
	payload, err := encodeGameUpdate(snap)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("failed to encode snapshot")
		return
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.members))
	for _, m := range h.members {
		if m.ctx.SessionID == sessionID {
			targets = append(targets, m.conn)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			log.Warn().Err(err).Str("sid", c.ID()).Str("session", sessionID).Msg("failed to send game update")
		}
	}
}

func (h *Hub) replyError(c Conn, err error) {
	msg := publicMessage(err)
	log.Warn().Err(err).Str("sid", c.ID()).Msg("command failed")
	if sendErr := c.Send(encodeError(msg)); sendErr != nil {
		log.Warn().Err(sendErr).Str("sid", c.ID()).Msg("failed to send error")
	}
}

func publicMessage(err error) string {
	var perr *protocolError
	if errors.As(err, &perr) || game.IsNotFound(err) || game.IsValidation(err) || game.IsConflict(err) {
		return err.Error()
	}
	return "internal server error"
}

// Close disconnects every connection. Used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.members))
	for _, m := range h.members {
		conns = append(conns, m.conn)
	}
	h.members = make(map[string]*member)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
