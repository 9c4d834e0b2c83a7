package ws

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeJoinGameAcceptsBothIDFields(t *testing.T) {
	for _, raw := range []string{
		`{"type":"JOIN_GAME","gameId":"g1"}`,
		`{"type":"JOIN_GAME","sessionId":"g1"}`,
	} {
		cmd, err := DecodeCommand([]byte(raw))
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		join, ok := cmd.(JoinGame)
		if !ok || join.SessionID != "g1" {
			t.Fatalf("expected JoinGame{g1} for %s, got %#v", raw, cmd)
		}
	}

	if _, err := DecodeCommand([]byte(`{"type":"JOIN_GAME"}`)); err == nil || err.Error() != "gameId is required" {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

func TestDecodeVoteValues(t *testing.T) {
	cases := []struct{ raw, want string }{
		{`{"type":"VOTE","value":"5"}`, "5"},
		{`{"type":"VOTE","value":5}`, "5"},
		{`{"type":"VOTE","value":0.5}`, "0.5"},
		{`{"type":"VOTE","value":null}`, ""},
		{`{"type":"VOTE"}`, ""},
		{`{"type":"VOTE","value":"coffee"}`, "coffee"},
	}
	for _, tc := range cases {
		raw, want := tc.raw, tc.want
		cmd, err := DecodeCommand([]byte(raw))
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		vote, ok := cmd.(CastVote)
		if !ok {
			t.Fatalf("expected CastVote for %s, got %#v", raw, cmd)
		}
		if vote.Value != want {
			t.Fatalf("decode %s: expected %q, got %q", raw, want, vote.Value)
		}
	}
}

func TestDecodeVoteRejectsOtherTypes(t *testing.T) {
	for _, raw := range []string{
		`{"type":"VOTE","value":true}`,
		`{"type":"VOTE","value":{"a":1}}`,
		`{"type":"VOTE","value":[1]}`,
		`{"type":"VOTE","value":"` + strings.Repeat("x", maxVoteLength+1) + `"}`,
	} {
		if _, err := DecodeCommand([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"type":"DANCE"}`))
	if err == nil || err.Error() != "Unknown message type" {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if _, err := DecodeCommand([]byte(`not json`)); err == nil {
		t.Fatal("expected malformed message error")
	}
	for _, raw := range []string{`{"type":"REVEAL"}`, `{"type":"RESET"}`} {
		if _, err := DecodeCommand([]byte(raw)); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
}

func TestEncodeError(t *testing.T) {
	var msg struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(encodeError("boom"), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != TypeError || msg.Message != "boom" {
		t.Fatalf("unexpected error frame %+v", msg)
	}
}

func TestUnwrapFrame(t *testing.T) {
	obj := json.RawMessage(`{"type":"REVEAL"}`)
	if got := string(unwrapFrame(obj)); got != `{"type":"REVEAL"}` {
		t.Fatalf("object frame changed: %s", got)
	}
	str := json.RawMessage(`"{\"type\":\"RESET\"}"`)
	if got := string(unwrapFrame(str)); got != `{"type":"RESET"}` {
		t.Fatalf("string frame not unwrapped: %s", got)
	}
}
