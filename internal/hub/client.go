package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

var ErrHubClosed = errors.New("hub closed")

// Request helpers for callers outside the hub goroutine. Each gives up when
// ctx is done or the hub has shut down.

func (h *Hub) Create(ctx context.Context, ad types.SessionAd) (types.SessionAd, error) {
	reply := make(chan CreateResult, 1)
	if err := h.send(ctx, CreateSession{Ad: ad, Reply: reply}); err != nil {
		return types.SessionAd{}, err
	}
	res, err := await(ctx, h, reply)
	if err != nil {
		return types.SessionAd{}, err
	}
	return res.Ad, res.Err
}

func (h *Hub) Find(ctx context.Context, maxResults int) ([]types.SessionAd, error) {
	reply := make(chan []types.SessionAd, 1)
	if err := h.send(ctx, FindSessions{MaxResults: maxResults, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

func (h *Hub) Join(ctx context.Context, id string) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	if err := h.send(ctx, JoinSession{ID: id, Reply: reply}); err != nil {
		return JoinResult{Result: session.JoinUnknownError}, err
	}
	res, err := await(ctx, h, reply)
	if err != nil {
		return JoinResult{Result: session.JoinUnknownError}, err
	}
	return res, nil
}

func (h *Hub) Leave(ctx context.Context, id string) error {
	return h.send(ctx, LeaveSession{ID: id})
}

func (h *Hub) Destroy(ctx context.Context, id string) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.send(ctx, DestroySession{ID: id, Reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, h, reply)
}

func (h *Hub) Start(ctx context.Context, id string) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.send(ctx, StartSession{ID: id, Reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, h, reply)
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
