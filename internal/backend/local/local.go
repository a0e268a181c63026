// Package local is a session.Backend over an in-process hub. Useful for
// single-process games and tests.
package local

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/backend"
	"github.com/DoyleJ11/multiplayer-sessions/internal/hub"
	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

const callTimeout = 5 * time.Second

type Backend struct {
	session.Listeners

	hub         *hub.Hub
	hostAddress string
	log         *zap.Logger

	mu         sync.Mutex
	hosted     string
	joinedAddr string
}

type Option func(*Backend)

func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// New returns a backend advertising hostAddress for sessions it creates.
func New(h *hub.Hub, hostAddress string, opts ...Option) *Backend {
	b := &Backend{hub: h, hostAddress: hostAddress, log: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("local_backend")
	return b
}

func (b *Backend) CreateSession(ctx context.Context, maxConnections int, matchType string) error {
	return b.async(ctx, func(ctx context.Context) session.Completion {
		ad, err := b.hub.Create(ctx, types.SessionAd{
			MatchType:      matchType,
			HostAddress:    b.hostAddress,
			MaxConnections: maxConnections,
		})
		if err != nil {
			b.log.Info("create session failed", zap.Error(err))
			return session.CreateCompleted(false)
		}
		b.mu.Lock()
		b.hosted = ad.ID
		b.mu.Unlock()
		return session.CreateCompleted(true)
	})
}

func (b *Backend) FindSessions(ctx context.Context, maxResults int) error {
	return b.async(ctx, func(ctx context.Context) session.Completion {
		ads, err := b.hub.Find(ctx, maxResults)
		if err != nil {
			return session.FindCompleted(nil, false)
		}
		return session.FindCompleted(backend.Candidates(ads), true)
	})
}

// JoinSession joins c. The connect string only ever reflects the outcome of
// the most recent join.
func (b *Backend) JoinSession(ctx context.Context, c session.Candidate) error {
	b.mu.Lock()
	b.joinedAddr = ""
	b.mu.Unlock()

	return b.async(ctx, func(ctx context.Context) session.Completion {
		res, err := b.hub.Join(ctx, c.ID)
		if err != nil {
			return session.JoinCompleted(session.JoinFailed(session.JoinUnknownError, err.Error()))
		}
		if res.Result != session.JoinSuccess {
			return session.JoinCompleted(session.JoinFailed(res.Result, ""))
		}
		b.mu.Lock()
		b.joinedAddr = res.Ad.HostAddress
		b.mu.Unlock()
		return session.JoinCompleted(session.Joined())
	})
}

func (b *Backend) DestroySession(ctx context.Context) error {
	return b.async(ctx, func(ctx context.Context) session.Completion {
		b.mu.Lock()
		id := b.hosted
		b.mu.Unlock()
		if id == "" {
			return session.DestroyCompleted(false)
		}
		ok, err := b.hub.Destroy(ctx, id)
		if err != nil || !ok {
			return session.DestroyCompleted(false)
		}
		b.mu.Lock()
		b.hosted = ""
		b.mu.Unlock()
		return session.DestroyCompleted(true)
	})
}

func (b *Backend) StartSession(ctx context.Context) error {
	return b.async(ctx, func(ctx context.Context) session.Completion {
		b.mu.Lock()
		id := b.hosted
		b.mu.Unlock()
		if id == "" {
			return session.StartCompleted(false)
		}
		ok, err := b.hub.Start(ctx, id)
		return session.StartCompleted(err == nil && ok)
	})
}

func (b *Backend) ResolveConnectString() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joinedAddr, b.joinedAddr != ""
}

// async issues op on its own goroutine and publishes the completion. The
// request outlives cancellation of the caller's context.
func (b *Backend) async(ctx context.Context, op func(context.Context) session.Completion) error {
	select {
	case <-b.hub.Done():
		return session.ErrBackendUnavailable
	default:
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callTimeout)
	go func() {
		defer cancel()
		b.Publish(op(opCtx))
	}()
	return nil
}
