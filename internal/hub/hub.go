package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

var ErrInvalidSession = errors.New("invalid session advertisement")

// Store persists the live session registry. Destroyed sessions are deleted,
// nothing is kept as history.
type Store interface {
	SaveSession(ctx context.Context, ad types.SessionAd) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]types.SessionAd, error)
}

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Ad    types.SessionAd // ID is assigned by the hub
	Reply chan CreateResult
}

type CreateResult struct {
	Ad  types.SessionAd
	Err error
}

type FindSessions struct {
	MaxResults int
	Reply      chan []types.SessionAd
}

type JoinSession struct {
	ID    string
	Reply chan JoinResult
}

type JoinResult struct {
	Ad     types.SessionAd
	Result session.JoinResult
}

// LeaveSession frees the slot a joined client held.
type LeaveSession struct {
	ID string
}

type DestroySession struct {
	ID    string
	Reply chan bool
}

type StartSession struct {
	ID    string
	Reply chan bool
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg()  {}
func (FindSessions) isHubMsg()   {}
func (JoinSession) isHubMsg()    {}
func (LeaveSession) isHubMsg()   {}
func (DestroySession) isHubMsg() {}
func (StartSession) isHubMsg()   {}
func (ShutdownHub) isHubMsg()    {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*types.SessionAd
	order    []string // creation order, used for search results
	store    Store
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

type Option func(*Hub)

func WithStore(s Store) Option { return func(h *Hub) { h.store = s } }

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHub starts the registry. With a store configured, previously advertised
// sessions are restored before the hub accepts messages.
func NewHub(parent context.Context, opts ...Option) (*Hub, error) {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*types.SessionAd),
		log:      zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.Named("hub")

	if h.store != nil {
		ads, err := h.store.ListSessions(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("restore sessions: %w", err)
		}
		for i := range ads {
			ad := ads[i]
			h.sessions[ad.ID] = &ad
			h.order = append(h.order, ad.ID)
		}
		h.log.Info("sessions restored", zap.Int("count", len(ads)))
	}

	go h.loop()
	return h, nil
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				ad, err := h.create(msg.Ad)
				msg.Reply <- CreateResult{Ad: ad, Err: err}

			case FindSessions:
				msg.Reply <- h.find(msg.MaxResults)

			case JoinSession:
				msg.Reply <- h.join(msg.ID)

			case LeaveSession:
				if ad := h.sessions[msg.ID]; ad != nil && ad.NumPlayers > 0 {
					ad.NumPlayers--
					h.persist(*ad)
				}

			case DestroySession:
				msg.Reply <- h.destroy(msg.ID)

			case StartSession:
				ad := h.sessions[msg.ID]
				if ad == nil {
					msg.Reply <- false
					break
				}
				ad.Started = true
				msg.Reply <- h.persist(*ad)

			case ShutdownHub:
				clear(h.sessions)
				h.order = nil
				h.cancel()
			}
		}
	}
}

func (h *Hub) create(ad types.SessionAd) (types.SessionAd, error) {
	if ad.MaxConnections < 1 || ad.MatchType == "" || ad.HostAddress == "" {
		return types.SessionAd{}, ErrInvalidSession
	}

	var id string
	for {
		c, err := NewSessionID()
		if err != nil {
			return types.SessionAd{}, fmt.Errorf("generate session id: %w", err)
		}
		if h.sessions[c] == nil {
			id = c
			break
		}
		h.log.Debug("collision on session id, regenerating")
	}

	ad.ID = id
	ad.NumPlayers = 0
	ad.Started = false
	attrs := make(map[string]string, len(ad.Attributes)+1)
	for k, v := range ad.Attributes {
		attrs[k] = v
	}
	attrs[session.AttrMatchType] = ad.MatchType
	ad.Attributes = attrs

	if h.store != nil {
		if err := h.store.SaveSession(h.ctx, ad); err != nil {
			return types.SessionAd{}, fmt.Errorf("save session: %w", err)
		}
	}
	h.sessions[id] = &ad
	h.order = append(h.order, id)
	h.log.Info("session created", zap.String("session_id", id), zap.String("match_type", ad.MatchType))
	return ad, nil
}

func (h *Hub) find(maxResults int) []types.SessionAd {
	out := make([]types.SessionAd, 0, min(len(h.order), max(maxResults, 0)))
	for _, id := range h.order {
		if len(out) >= maxResults {
			break
		}
		out = append(out, *h.sessions[id])
	}
	return out
}

func (h *Hub) join(id string) JoinResult {
	ad := h.sessions[id]
	if ad == nil {
		return JoinResult{Result: session.JoinSessionDoesNotExist}
	}
	if ad.OpenConnections() == 0 {
		return JoinResult{Ad: *ad, Result: session.JoinSessionIsFull}
	}
	if ad.HostAddress == "" {
		return JoinResult{Ad: *ad, Result: session.JoinCouldNotRetrieveAddress}
	}
	ad.NumPlayers++
	if !h.persist(*ad) {
		ad.NumPlayers--
		return JoinResult{Ad: *ad, Result: session.JoinUnknownError}
	}
	return JoinResult{Ad: *ad, Result: session.JoinSuccess}
}

func (h *Hub) destroy(id string) bool {
	if h.sessions[id] == nil {
		return false
	}
	if h.store != nil {
		if err := h.store.DeleteSession(h.ctx, id); err != nil {
			h.log.Error("delete session", zap.String("session_id", id), zap.Error(err))
			return false
		}
	}
	delete(h.sessions, id)
	for i, oid := range h.order {
		if oid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.log.Info("session destroyed", zap.String("session_id", id))
	return true
}

func (h *Hub) persist(ad types.SessionAd) bool {
	if h.store == nil {
		return true
	}
	if err := h.store.SaveSession(h.ctx, ad); err != nil {
		h.log.Error("save session", zap.String("session_id", ad.ID), zap.Error(err))
		return false
	}
	return true
}

const (
	SessionIDLength = 8
	// no 0/O or 1/I/L, players read IDs aloud and type them in
	sessionIDAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// NewSessionID returns a random ID for a session advertisement.
func NewSessionID() (string, error) {
	id := make([]byte, SessionIDLength)
	n := big.NewInt(int64(len(sessionIDAlphabet)))
	for i := range id {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		id[i] = sessionIDAlphabet[k.Int64()]
	}
	return string(id), nil
}
