package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/hub"
	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/internal/types"
	pub "github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	hubTimeout   = 5 * time.Second
)

// conn is the per-connection bookkeeping: a connection hosts at most one
// session and holds at most one joined slot.
type conn struct {
	hub    *hub.Hub
	ws     *websocket.Conn
	log    *zap.Logger
	hosted string
	joined string
}

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer wsConn.Close(websocket.StatusNormalClosure, "bye")

		c := &conn{hub: h, ws: wsConn, log: log.With(zap.String("remote", r.RemoteAddr))}
		defer c.release()

		// Reader loop. No read deadline: a host keeps its connection open for
		// as long as the session should stay advertised.
		for {
			_, data, err := wsConn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				c.log.Debug("read failed", zap.Error(err))
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				if err := c.write(r.Context(), types.ServerMessage{Type: pub.MsgError, Error: "bad json"}); err != nil {
					return
				}
				continue
			}

			reply, ok := c.handle(r.Context(), cm)
			if !ok {
				reply = types.ServerMessage{Type: pub.MsgError, Error: "unknown type"}
			}
			if err := c.write(r.Context(), reply); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *conn) handle(parent context.Context, m types.ClientMessage) (types.ServerMessage, bool) {
	ctx, cancel := context.WithTimeout(parent, hubTimeout)
	defer cancel()

	switch m.Type {
	case pub.MsgCreateSession:
		return c.create(ctx, m), true

	case pub.MsgFindSessions:
		ads, err := c.hub.Find(ctx, m.MaxResults)
		if err != nil {
			return types.ServerMessage{Type: pub.MsgFindSessionsComplete, Success: false, Error: err.Error()}, true
		}
		return types.ServerMessage{Type: pub.MsgFindSessionsComplete, Success: true, Sessions: ads}, true

	case pub.MsgJoinSession:
		return c.join(ctx, m.SessionID), true

	case pub.MsgDestroySession:
		return types.ServerMessage{Type: pub.MsgDestroySessionComplete, Success: c.destroyHosted(ctx)}, true

	case pub.MsgStartSession:
		ok := false
		if c.hosted != "" {
			ok, _ = c.hub.Start(ctx, c.hosted)
		}
		return types.ServerMessage{Type: pub.MsgStartSessionComplete, Success: ok}, true

	default:
		return types.ServerMessage{}, false
	}
}

func (c *conn) create(ctx context.Context, m types.ClientMessage) types.ServerMessage {
	if c.hosted != "" {
		return types.ServerMessage{Type: pub.MsgCreateSessionComplete, Success: false, Error: "already hosting"}
	}
	ad, err := c.hub.Create(ctx, pub.SessionAd{
		MatchType:      m.MatchType,
		HostAddress:    m.HostAddress,
		MaxConnections: m.MaxConnections,
		Attributes:     m.Attributes,
	})
	if err != nil {
		c.log.Info("create session failed", zap.Error(err))
		return types.ServerMessage{Type: pub.MsgCreateSessionComplete, Success: false, Error: err.Error()}
	}
	c.hosted = ad.ID
	return types.ServerMessage{Type: pub.MsgCreateSessionComplete, Success: true, Session: &ad}
}

func (c *conn) join(ctx context.Context, id string) types.ServerMessage {
	if c.joined != "" || (c.hosted != "" && c.hosted == id) {
		return types.ServerMessage{Type: pub.MsgJoinSessionComplete, Result: string(session.JoinAlreadyInSession)}
	}
	res, err := c.hub.Join(ctx, id)
	if err != nil {
		return types.ServerMessage{Type: pub.MsgJoinSessionComplete, Result: string(session.JoinUnknownError), Error: err.Error()}
	}

	msg := types.ServerMessage{Type: pub.MsgJoinSessionComplete, Result: string(res.Result), Success: res.Result == session.JoinSuccess}
	if msg.Success {
		c.joined = id
		msg.Session = &res.Ad
	}
	return msg
}

func (c *conn) destroyHosted(ctx context.Context) bool {
	if c.hosted == "" {
		return false
	}
	ok, err := c.hub.Destroy(ctx, c.hosted)
	if err != nil {
		return false
	}
	c.hosted = ""
	return ok
}

// release gives back whatever the connection held when it goes away.
func (c *conn) release() {
	ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
	defer cancel()

	if c.hosted != "" {
		id := c.hosted
		if c.destroyHosted(ctx) {
			c.log.Info("host disconnected, session destroyed", zap.String("session_id", id))
		}
	}
	if c.joined != "" {
		_ = c.hub.Leave(ctx, c.joined)
		c.joined = ""
	}
}

func (c *conn) write(ctx context.Context, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, payload)
}
