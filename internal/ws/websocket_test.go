package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kiliankoe/pokerdash/internal/game"
	"github.com/kiliankoe/pokerdash/internal/storage/memory"
)

func newWSServer(t *testing.T) (*httptest.Server, *game.Manager, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := game.NewManager(memory.New())
	hub := NewHub(mgr)
	r := gin.New()
	r.GET("/ws", hub.WebSocketHandler(WebSocketOptions{
		CookieName:   "sessionId",
		PingInterval: time.Second,
		CheckOrigin:  func(*http.Request) bool { return true },
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, mgr, hub
}

func dial(t *testing.T, srv *httptest.Server, cookie string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", "sessionId="+cookie)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("frame is not valid json: %v", err)
	}
	return f
}

func TestWebSocketJoinAndVote(t *testing.T) {
	srv, mgr, _ := newWSServer(t)
	ctx := context.Background()
	sess, err := mgr.CreateSession(ctx, game.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.AdmitParticipant(ctx, sess.ID, "alice", "cookie-alice"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	conn := dial(t, srv, "cookie-alice")
	join := fmt.Sprintf(`{"type":"JOIN_GAME","gameId":%q}`, sess.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(join)); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, conn)
	if f.Type != TypeGameUpdate || f.Game.ID != sess.ID {
		t.Fatalf("expected GAME_UPDATE for %s, got %+v", sess.ID, f)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"VOTE","value":"13"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	f = readFrame(t, conn)
	if f.Type != TypeError || !strings.Contains(f.Message, "13") {
		t.Fatalf("expected validation error naming the card, got %+v", f)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"VOTE","value":"3"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	f = readFrame(t, conn)
	if f.Type != TypeGameUpdate || f.Game.Status != game.StatusVoting {
		t.Fatalf("expected voting update, got %+v", f)
	}
}

func TestWebSocketJoinWithoutCookie(t *testing.T) {
	srv, mgr, _ := newWSServer(t)
	sess, err := mgr.CreateSession(context.Background(), game.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := dial(t, srv, "")
	join := fmt.Sprintf(`{"type":"JOIN_GAME","gameId":%q}`, sess.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(join)); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, conn)
	if f.Type != TypeError || f.Message != "Session ID not found in cookies" {
		t.Fatalf("expected cookie error, got %+v", f)
	}
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	srv, _, hub := newWSServer(t)
	conn := dial(t, srv, "someone")

	deadline := time.Now().Add(5 * time.Second)
	for hub.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
