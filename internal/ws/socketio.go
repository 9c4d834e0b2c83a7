package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	eiows "github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/rs/zerolog/log"
)

// SocketIOEvent carries protocol frames in both directions.
const SocketIOEvent = "message"

type SocketIOOptions struct {
	CookieName  string
	CheckOrigin func(r *http.Request) bool
}

// MountSocketIO attaches a Socket.IO endpoint speaking the same JOIN_GAME /
// VOTE / REVEAL / RESET protocol as /ws. Frames travel as the payload of the
// "message" event.
func (h *Hub) MountSocketIO(r *gin.Engine, opts SocketIOOptions) *socketio.Server {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: checkOrigin},
			&eiows.Transport{CheckOrigin: checkOrigin},
		},
	})
	ctx := context.Background()

	io.OnConnect("/", func(s socketio.Conn) error {
		var externalID string
		req := &http.Request{Header: s.RemoteHeader()}
		if ck, err := req.Cookie(opts.CookieName); err == nil {
			externalID = ck.Value
		}
		h.Register(sioConn{s}, externalID)
		return nil
	})

	io.OnEvent("/", SocketIOEvent, func(s socketio.Conn, msg json.RawMessage) {
		h.HandleMessage(ctx, sioConn{s}, unwrapFrame(msg))
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket.io error")
			return
		}
		log.Error().Str("sid", "sio-"+s.ID()).Err(e).Msg("socket.io error")
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if s == nil {
			return
		}
		log.Debug().Str("sid", "sio-"+s.ID()).Str("reason", reason).Msg("socket.io disconnect")
		h.Unregister(ctx, sioConn{s})
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	return io
}

// unwrapFrame accepts both an object payload and a JSON-encoded string
// containing the object, since clients emit either form.
func unwrapFrame(msg json.RawMessage) []byte {
	var s string
	if len(msg) > 0 && msg[0] == '"' && json.Unmarshal(msg, &s) == nil {
		return []byte(s)
	}
	return msg
}

type sioConn struct{ s socketio.Conn }

func (c sioConn) ID() string { return "sio-" + c.s.ID() }

func (c sioConn) Send(payload []byte) error {
	c.s.Emit(SocketIOEvent, json.RawMessage(payload))
	return nil
}

func (c sioConn) Close() error { return c.s.Close() }
