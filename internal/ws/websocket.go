package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 32
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send queue full")
)

type WebSocketOptions struct {
	CookieName   string
	PingInterval time.Duration
	CheckOrigin  func(r *http.Request) bool
}

// WebSocketHandler upgrades the request and serves the connection until the
// client goes away. The identity cookie is read once at upgrade time.
func (h *Hub) WebSocketHandler(opts WebSocketOptions) gin.HandlerFunc {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     opts.CheckOrigin,
	}
	return func(c *gin.Context) {
		var externalID string
		if ck, err := c.Request.Cookie(opts.CookieName); err == nil {
			externalID = ck.Value
		}

		raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		conn := newWSConn(raw, opts.PingInterval)
		ctx := context.WithoutCancel(c.Request.Context())
		h.Register(conn, externalID)
		go conn.writePump()
		conn.readLoop(ctx, h)
		h.Unregister(ctx, conn)
		_ = conn.Close()
	}
}

type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	ping time.Duration

	closeOnce sync.Once
}

func newWSConn(raw *websocket.Conn, ping time.Duration) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   raw,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		ping: ping,
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues payload for the writer goroutine. A client that cannot keep up
// is disconnected rather than stalling the broadcaster.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		_ = c.Close()
		return errSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) readLoop(ctx context.Context, h *Hub) {
	c.ws.SetReadLimit(maxMessageSize)
	pongWait := 2 * c.ping
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("sid", c.id).Msg("websocket read error")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		h.HandleMessage(ctx, c, data)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
