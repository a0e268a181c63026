// Package remote is a session.Backend talking to the matchmaking service over
// its websocket protocol.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/backend"
	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/internal/types"
	pub "github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

const (
	defaultWriteTimeout = 3 * time.Second
	readLimit           = 4 << 20
)

var completionFor = map[string]session.CompletionKind{
	pub.MsgCreateSessionComplete:  session.CompletionCreateSession,
	pub.MsgFindSessionsComplete:   session.CompletionFindSessions,
	pub.MsgJoinSessionComplete:    session.CompletionJoinSession,
	pub.MsgDestroySessionComplete: session.CompletionDestroySession,
	pub.MsgStartSessionComplete:   session.CompletionStartSession,
}

type Client struct {
	session.Listeners

	conn         *websocket.Conn
	hostAddress  string
	writeTimeout time.Duration
	log          *zap.Logger

	mu         sync.Mutex
	inflight   []session.CompletionKind // in request order; the service answers in order
	joinedAddr string
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Client)

// WithHostAddress sets the address advertised for sessions this client hosts.
func WithHostAddress(addr string) Option { return func(c *Client) { c.hostAddress = addr } }

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Dial connects to the service's websocket endpoint, e.g.
// ws://localhost:8080/ws.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
		log:          zap.NewNop(),
		ctx:          cctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("remote_backend")

	go c.readLoop()
	return c, nil
}

func (c *Client) CreateSession(ctx context.Context, maxConnections int, matchType string) error {
	return c.send(ctx, session.CompletionCreateSession, types.ClientMessage{
		Type:           pub.MsgCreateSession,
		MaxConnections: maxConnections,
		MatchType:      matchType,
		HostAddress:    c.hostAddress,
	})
}

func (c *Client) FindSessions(ctx context.Context, maxResults int) error {
	return c.send(ctx, session.CompletionFindSessions, types.ClientMessage{Type: pub.MsgFindSessions, MaxResults: maxResults})
}

func (c *Client) JoinSession(ctx context.Context, cand session.Candidate) error {
	c.mu.Lock()
	c.joinedAddr = ""
	c.mu.Unlock()
	return c.send(ctx, session.CompletionJoinSession, types.ClientMessage{Type: pub.MsgJoinSession, SessionID: cand.ID})
}

func (c *Client) DestroySession(ctx context.Context) error {
	return c.send(ctx, session.CompletionDestroySession, types.ClientMessage{Type: pub.MsgDestroySession})
}

func (c *Client) StartSession(ctx context.Context) error {
	return c.send(ctx, session.CompletionStartSession, types.ClientMessage{Type: pub.MsgStartSession})
}

func (c *Client) ResolveConnectString() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinedAddr, c.joinedAddr != ""
}

// Close ends the connection. Requests still in flight complete as failures.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	<-c.done
	return err
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) send(ctx context.Context, kind session.CompletionKind, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.ErrBackendUnavailable
	}
	c.inflight = append(c.inflight, kind)
	c.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		c.mu.Lock()
		c.removeLast(kind)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", session.ErrBackendUnavailable, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.failInflight()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("connection closed")
			default:
				if c.ctx.Err() == nil {
					c.log.Warn("connection lost", zap.Error(err))
				}
			}
			return
		}

		var sm types.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}
		if sm.Type == pub.MsgError {
			c.log.Warn("server error", zap.String("error", sm.Error))
			// the service answers in order, so the error belongs to the oldest request
			c.mu.Lock()
			kind, ok := c.popOldest()
			c.mu.Unlock()
			if ok {
				c.Publish(failed(kind, sm.Error))
			}
			continue
		}

		comp, ok := c.toCompletion(sm)
		if !ok {
			c.log.Warn("unknown server message", zap.String("type", sm.Type))
			continue
		}

		c.mu.Lock()
		if !c.removeFirst(comp.Kind) {
			c.mu.Unlock()
			c.log.Warn("completion without request", zap.String("kind", string(comp.Kind)))
			continue
		}
		if comp.Kind == session.CompletionJoinSession && comp.Outcome.Succeeded() && sm.Session != nil {
			c.joinedAddr = sm.Session.HostAddress
		}
		c.mu.Unlock()

		c.Publish(comp)
	}
}

func (c *Client) toCompletion(sm types.ServerMessage) (session.Completion, bool) {
	kind, ok := completionFor[sm.Type]
	if !ok {
		return session.Completion{}, false
	}
	switch kind {
	case session.CompletionCreateSession:
		return session.CreateCompleted(sm.Success), true
	case session.CompletionFindSessions:
		return session.FindCompleted(backend.Candidates(sm.Sessions), sm.Success), true
	case session.CompletionJoinSession:
		result := session.JoinResult(sm.Result)
		if result == session.JoinSuccess {
			if sm.Session == nil || sm.Session.HostAddress == "" {
				return session.JoinCompleted(session.JoinFailed(session.JoinCouldNotRetrieveAddress, "")), true
			}
			return session.JoinCompleted(session.Joined()), true
		}
		return session.JoinCompleted(session.JoinFailed(result, sm.Error)), true
	case session.CompletionDestroySession:
		return session.DestroyCompleted(sm.Success), true
	default:
		return session.StartCompleted(sm.Success), true
	}
}

// failInflight completes every outstanding request as a failure so no
// caller waits on a connection that is gone.
func (c *Client) failInflight() {
	c.mu.Lock()
	c.closed = true
	pending := c.inflight
	c.inflight = nil
	c.mu.Unlock()

	for _, kind := range pending {
		c.Publish(failed(kind, "connection lost"))
	}
}

// failed is the completion reported for a request the service never answered
// normally.
func failed(kind session.CompletionKind, reason string) session.Completion {
	switch kind {
	case session.CompletionCreateSession:
		return session.CreateCompleted(false)
	case session.CompletionFindSessions:
		return session.FindCompleted(nil, false)
	case session.CompletionJoinSession:
		return session.JoinCompleted(session.JoinFailed(session.JoinUnknownError, reason))
	case session.CompletionDestroySession:
		return session.DestroyCompleted(false)
	default:
		return session.StartCompleted(false)
	}
}

func (c *Client) popOldest() (session.CompletionKind, bool) {
	if len(c.inflight) == 0 {
		return "", false
	}
	kind := c.inflight[0]
	c.inflight = c.inflight[1:]
	return kind, true
}

func (c *Client) removeFirst(kind session.CompletionKind) bool {
	for i, k := range c.inflight {
		if k == kind {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Client) removeLast(kind session.CompletionKind) {
	for i := len(c.inflight) - 1; i >= 0; i-- {
		if c.inflight[i] == kind {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			return
		}
	}
}
