package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/multiplayer-sessions/internal/engine"
	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
)

// fakeBackend records every issued call; tests deliver completions by hand.
type fakeBackend struct {
	session.Listeners

	mu       sync.Mutex
	creates  int
	finds    []int
	joins    []session.Candidate
	failCall error
	failJoin error
}

func (b *fakeBackend) CreateSession(_ context.Context, _ int, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failCall != nil {
		return b.failCall
	}
	b.creates++
	return nil
}

func (b *fakeBackend) FindSessions(_ context.Context, maxResults int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failCall != nil {
		return b.failCall
	}
	b.finds = append(b.finds, maxResults)
	return nil
}

func (b *fakeBackend) JoinSession(_ context.Context, c session.Candidate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failJoin != nil {
		return b.failJoin
	}
	b.joins = append(b.joins, c)
	return nil
}

func (b *fakeBackend) DestroySession(context.Context) error { return nil }
func (b *fakeBackend) StartSession(context.Context) error   { return nil }

func (b *fakeBackend) counts() (creates, finds, joins int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creates, len(b.finds), len(b.joins)
}

type staticResolver struct {
	addr string
	ok   bool
}

func (r staticResolver) ResolveConnectString() (string, bool) { return r.addr, r.ok }

type effect struct {
	kind    string
	address string
	mode    engine.TravelMode
	control engine.Control
	enabled bool
	failure engine.FailureKind
}

type recordingActivation struct {
	effects chan effect
}

func newRecordingActivation() *recordingActivation {
	return &recordingActivation{effects: make(chan effect, 32)}
}

func (a *recordingActivation) TravelRequested(address string, mode engine.TravelMode) {
	a.effects <- effect{kind: "travel", address: address, mode: mode}
}

func (a *recordingActivation) ControlEnableChanged(control engine.Control, enabled bool) {
	a.effects <- effect{kind: "control", control: control, enabled: enabled}
}

func (a *recordingActivation) FailureReported(kind engine.FailureKind) {
	a.effects <- effect{kind: "failure", failure: kind}
}

// helper: receive one effect with a timeout so tests never hang
func recvEffect(t *testing.T, ch <-chan effect, within time.Duration) effect {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(within):
		t.Fatalf("timed out waiting for effect")
		return effect{} // unreachable
	}
}

func recvNoEffect(t *testing.T, ch <-chan effect, within time.Duration) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("expected no effect within %v, but got: %+v", within, e)
	case <-time.After(within):
		// good: nothing emitted
	}
}

func setup(t *testing.T, opts ...Option) (*Coordinator, *fakeBackend, *recordingActivation) {
	t.Helper()
	backend := &fakeBackend{}
	act := newRecordingActivation()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)

	c, err := New(context.Background(), backend, act, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.Configure(engine.Config{MaxPublicConnections: 4, MatchType: "FreeForAll", LobbyPath: "/Game/Lobby"}))
	return c, backend, act
}

func requireState(t *testing.T, c *Coordinator, want engine.RequestState) engine.State {
	t.Helper()
	v, err := c.View()
	require.NoError(t, err)
	require.Equal(t, want, v.State.Request)
	return v.State
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), nil, newRecordingActivation())
	assert.ErrorIs(t, err, ErrNilBackend)

	_, err = New(context.Background(), &fakeBackend{}, nil)
	assert.ErrorIs(t, err, ErrNilActivation)
}

func TestHost_SuccessTravelsToListenLobby(t *testing.T) {
	c, backend, act := setup(t)

	require.NoError(t, c.RequestHost())
	disabled := recvEffect(t, act.effects, 100*time.Millisecond)
	assert.Equal(t, effect{kind: "control", control: engine.ControlHost, enabled: false}, disabled)

	backend.Publish(session.CreateCompleted(true))

	travel := recvEffect(t, act.effects, 100*time.Millisecond)
	assert.Equal(t, effect{kind: "travel", address: "/Game/Lobby?listen", mode: engine.TravelListenHost}, travel)
	requireState(t, c, engine.StateIdle)
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestHost_FailureReEnablesControl(t *testing.T) {
	c, backend, act := setup(t)

	require.NoError(t, c.RequestHost())
	_ = recvEffect(t, act.effects, 100*time.Millisecond) // disable

	backend.Publish(session.CreateCompleted(false))

	assert.Equal(t, effect{kind: "control", control: engine.ControlHost, enabled: true}, recvEffect(t, act.effects, 100*time.Millisecond))
	assert.Equal(t, effect{kind: "failure", failure: engine.FailureHostFailed}, recvEffect(t, act.effects, 100*time.Millisecond))
	st := requireState(t, c, engine.StateIdle)
	assert.True(t, st.HostEnabled)
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestHost_DuplicateRequestsIssueOneCreate(t *testing.T) {
	c, backend, _ := setup(t)

	require.NoError(t, c.RequestHost())
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, c.RequestHost(), engine.ErrRequestPending)
	}
	assert.ErrorIs(t, c.RequestJoin(), engine.ErrRequestPending)

	creates, finds, _ := backend.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, finds)
}

func TestHost_BackendUnavailable(t *testing.T) {
	c, backend, act := setup(t)
	backend.failCall = session.ErrBackendUnavailable

	err := c.RequestHost()
	require.ErrorIs(t, err, session.ErrBackendUnavailable)

	assert.Equal(t, effect{kind: "control", control: engine.ControlHost, enabled: false}, recvEffect(t, act.effects, 100*time.Millisecond))
	assert.Equal(t, effect{kind: "control", control: engine.ControlHost, enabled: true}, recvEffect(t, act.effects, 100*time.Millisecond))
	assert.Equal(t, effect{kind: "failure", failure: engine.FailureBackendUnavailable}, recvEffect(t, act.effects, 100*time.Millisecond))

	st := requireState(t, c, engine.StateIdle)
	assert.True(t, st.HostEnabled)

	// a later request goes through once the backend is back
	backend.mu.Lock()
	backend.failCall = nil
	backend.mu.Unlock()
	require.NoError(t, c.RequestHost())
}

func TestJoin_FiltersByMatchTypeAndJoinsFirstMatch(t *testing.T) {
	c, backend, act := setup(t)

	require.NoError(t, c.RequestJoin())
	_ = recvEffect(t, act.effects, 100*time.Millisecond) // disable join

	backend.Publish(session.FindCompleted([]session.Candidate{
		{ID: "ranked", Attributes: map[string]string{session.AttrMatchType: "Ranked"}},
		{ID: "ffa", Attributes: map[string]string{session.AttrMatchType: "FreeForAll"}},
	}, true))

	// still pending until the join completes
	requireState(t, c, engine.StateJoinPending)

	backend.mu.Lock()
	require.Len(t, backend.joins, 1)
	assert.Equal(t, "ffa", backend.joins[0].ID)
	assert.Equal(t, []int{engine.MaxSearchResults}, backend.finds)
	backend.mu.Unlock()
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestJoin_CallErrorReportsBackendUnavailable(t *testing.T) {
	c, backend, act := setup(t)
	backend.mu.Lock()
	backend.failJoin = errors.New("connection refused")
	backend.mu.Unlock()

	require.NoError(t, c.RequestJoin())
	_ = recvEffect(t, act.effects, 100*time.Millisecond) // disable join

	backend.Publish(session.FindCompleted([]session.Candidate{
		{ID: "ffa", Attributes: map[string]string{session.AttrMatchType: "FreeForAll"}},
	}, true))

	assert.Equal(t, effect{kind: "control", control: engine.ControlJoin, enabled: true}, recvEffect(t, act.effects, 100*time.Millisecond))
	assert.Equal(t, effect{kind: "failure", failure: engine.FailureBackendUnavailable}, recvEffect(t, act.effects, 100*time.Millisecond))
	st := requireState(t, c, engine.StateIdle)
	assert.True(t, st.JoinEnabled)
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestJoin_EmptyResultReportsNoMatch(t *testing.T) {
	c, backend, act := setup(t)

	require.NoError(t, c.RequestJoin())
	_ = recvEffect(t, act.effects, 100*time.Millisecond)

	backend.Publish(session.FindCompleted(nil, true))

	assert.Equal(t, effect{kind: "control", control: engine.ControlJoin, enabled: true}, recvEffect(t, act.effects, 100*time.Millisecond))
	assert.Equal(t, effect{kind: "failure", failure: engine.FailureNoMatchFound}, recvEffect(t, act.effects, 100*time.Millisecond))
	requireState(t, c, engine.StateIdle)

	_, _, joins := backend.counts()
	assert.Zero(t, joins)
}

func joinUntilJoining(t *testing.T, c *Coordinator, backend *fakeBackend, act *recordingActivation) {
	t.Helper()
	require.NoError(t, c.RequestJoin())
	_ = recvEffect(t, act.effects, 100*time.Millisecond)
	backend.Publish(session.FindCompleted([]session.Candidate{
		{ID: "ffa", Attributes: map[string]string{session.AttrMatchType: "FreeForAll"}},
	}, true))
	requireState(t, c, engine.StateJoinPending)
}

func TestJoin_SuccessTravelsToResolvedAddress(t *testing.T) {
	c, backend, act := setup(t, WithResolver(staticResolver{addr: "127.0.0.1:7777", ok: true}))
	joinUntilJoining(t, c, backend, act)

	backend.Publish(session.JoinCompleted(session.Joined()))

	travel := recvEffect(t, act.effects, 100*time.Millisecond)
	assert.Equal(t, effect{kind: "travel", address: "127.0.0.1:7777", mode: engine.TravelClientConnect}, travel)
	requireState(t, c, engine.StateIdle)
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestJoin_FailureStillAttemptsTravel(t *testing.T) {
	c, backend, act := setup(t, WithResolver(staticResolver{addr: "10.0.0.5:7777", ok: true}))
	joinUntilJoining(t, c, backend, act)

	backend.Publish(session.JoinCompleted(session.JoinFailed(session.JoinSessionIsFull, "full")))

	assert.Equal(t, "travel", recvEffect(t, act.effects, 100*time.Millisecond).kind)
	assert.Equal(t, effect{kind: "control", control: engine.ControlJoin, enabled: true}, recvEffect(t, act.effects, 100*time.Millisecond))
	assert.Equal(t, effect{kind: "failure", failure: engine.FailureJoinFailed}, recvEffect(t, act.effects, 100*time.Millisecond))
	requireState(t, c, engine.StateIdle)
}

func TestJoin_UnresolvedAddressSkipsTravel(t *testing.T) {
	c, backend, act := setup(t, WithResolver(staticResolver{ok: false}))
	joinUntilJoining(t, c, backend, act)

	backend.Publish(session.JoinCompleted(session.Joined()))

	requireState(t, c, engine.StateIdle)
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestUnexpectedCompletion_IsIgnored(t *testing.T) {
	c, backend, act := setup(t)

	backend.Publish(session.CreateCompleted(true))
	backend.Publish(session.JoinCompleted(session.Joined()))
	backend.Publish(session.DestroyCompleted(true))
	backend.Publish(session.StartCompleted(true))

	requireState(t, c, engine.StateIdle)
	recvNoEffect(t, act.effects, 50*time.Millisecond)
}

func TestClose_DetachesAndIgnoresLateCompletions(t *testing.T) {
	backend := &fakeBackend{}
	act := newRecordingActivation()
	c, err := New(context.Background(), backend, act, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, c.Configure(engine.DefaultConfig()))
	require.NoError(t, c.RequestHost())
	_ = recvEffect(t, act.effects, 100*time.Millisecond)

	c.Close()
	assert.Equal(t, 0, backend.Len(), "listener should be unsubscribed")

	// late delivery, both through the backend and directly
	backend.Publish(session.CreateCompleted(true))
	c.Deliver(session.CreateCompleted(true))
	recvNoEffect(t, act.effects, 50*time.Millisecond)

	assert.True(t, errors.Is(c.RequestHost(), ErrClosed))
	_, err = c.View()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParentCancel_TearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &fakeBackend{}
	c, err := New(ctx, backend, newRecordingActivation())
	require.NoError(t, err)

	cancel()
	select {
	case <-c.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("coordinator did not stop after parent cancel")
	}
	assert.Equal(t, 0, backend.Len())
}

// retryingActivation asks for another session from inside its failure
// callback, the way a menu retrying on error would.
type retryingActivation struct {
	*recordingActivation
	co      *Coordinator
	retried chan error
}

func (a *retryingActivation) FailureReported(kind engine.FailureKind) {
	a.recordingActivation.FailureReported(kind)
	a.retried <- a.co.RequestHost()
}

func TestActivation_MayCallBackIntoCoordinator(t *testing.T) {
	backend := &fakeBackend{}
	act := &retryingActivation{recordingActivation: newRecordingActivation(), retried: make(chan error, 1)}
	c, err := New(context.Background(), backend, act, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	act.co = c
	require.NoError(t, c.Configure(engine.DefaultConfig()))

	require.NoError(t, c.RequestHost())
	backend.Publish(session.CreateCompleted(false))

	select {
	case err := <-act.retried:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("request from inside a callback never returned")
	}
	creates, _, _ := backend.counts()
	assert.Equal(t, 2, creates)
	requireState(t, c, engine.StateHostPending)
}
