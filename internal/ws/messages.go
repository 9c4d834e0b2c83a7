package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/kiliankoe/pokerdash/internal/game"
)

const (
	TypeJoinGame   = "JOIN_GAME"
	TypeVote       = "VOTE"
	TypeReveal     = "REVEAL"
	TypeReset      = "RESET"
	TypeGameUpdate = "GAME_UPDATE"
	TypeError      = "ERROR"
)

const maxVoteLength = 32

// Command is one decoded inbound message: JoinGame, CastVote, Reveal or Reset.
type Command interface {
	commandType() string
}

type JoinGame struct{ SessionID string }

type CastVote struct{ Value string }

type Reveal struct{}

type Reset struct{}

func (JoinGame) commandType() string { return TypeJoinGame }
func (CastVote) commandType() string { return TypeVote }
func (Reveal) commandType() string { return TypeReveal }
func (Reset) commandType() string { return TypeReset }

// protocolError is a client mistake reported back verbatim.
type protocolError struct{ msg string }

func (e *protocolError) Error() string { return e.msg }

func protocolErrorf(format string, args ...any) error {
	return &protocolError{msg: fmt.Sprintf(format, args...)}
}

type envelope struct {
	Type      string          `json:"type"`
	GameID    string          `json:"gameId"`
	SessionID string          `json:"sessionId"`
	Value     json.RawMessage `json:"value"`
}

// DecodeCommand parses one inbound frame. JOIN_GAME accepts the session id
// as either gameId or sessionId. VOTE values may be strings or numbers;
// null or a missing value decodes to the empty string.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, protocolErrorf("malformed message: %v", err)
	}
	switch env.Type {
	case TypeJoinGame:
		id := env.GameID
		if id == "" {
			id = env.SessionID
		}
		if id == "" {
			return nil, protocolErrorf("gameId is required")
		}
		return JoinGame{SessionID: id}, nil
	case TypeVote:
		value, err := voteValue(env.Value)
		if err != nil {
			return nil, err
		}
		return CastVote{Value: value}, nil
	case TypeReveal:
		return Reveal{}, nil
	case TypeReset:
		return Reset{}, nil
	default:
		return nil, protocolErrorf("Unknown message type")
	}
}

func voteValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", protocolErrorf("malformed vote value: %v", err)
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return "", protocolErrorf("vote value must be a string or a number")
	}
	if utf8.RuneCountInString(s) > maxVoteLength {
		return "", protocolErrorf("vote value must be at most %d characters", maxVoteLength)
	}
	return s, nil
}

type gameUpdate struct {
	Type string        `json:"type"`
	Game game.Snapshot `json:"game"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeGameUpdate(snap game.Snapshot) ([]byte, error) {
	return json.Marshal(gameUpdate{Type: TypeGameUpdate, Game: snap})
}

func encodeError(message string) []byte {
	b, _ := json.Marshal(errorMessage{Type: TypeError, Message: message})
	return b
}
