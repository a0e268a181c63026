package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/engine"
	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
)

var ErrClosed = errors.New("coordinator closed")
var ErrNilBackend = errors.New("nil session backend")
var ErrNilActivation = errors.New("nil activation")

// Activation is the owner of a coordinator (the menu). It consumes outward
// effects in the order they were produced. Calls arrive on a single notifier
// goroutine, never the coordinator's own, so a callback may call back into
// the Coordinator.
type Activation interface {
	TravelRequested(address string, mode engine.TravelMode)
	ControlEnableChanged(control engine.Control, enabled bool)
	FailureReported(kind engine.FailureKind)
}

type Msg interface{ isCoordinatorMsg() }

type Configure struct {
	Config engine.Config
	Reply  chan error
}

func (Configure) isCoordinatorMsg() {}

type RequestHost struct{ Reply chan error }

func (RequestHost) isCoordinatorMsg() {}

type RequestJoin struct{ Reply chan error }

func (RequestJoin) isCoordinatorMsg() {}

// Completed carries a backend completion onto the coordinator goroutine.
type Completed struct{ Completion session.Completion }

func (Completed) isCoordinatorMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isCoordinatorMsg() {}

type Shutdown struct{}

func (Shutdown) isCoordinatorMsg() {}

type View struct {
	State engine.State
}

type Coordinator struct {
	inbox      chan Msg
	state      engine.State
	backend    session.Backend
	resolver   session.AddressResolver
	activation Activation
	sub        session.Subscription
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	noticeMu sync.Mutex
	notices  []engine.Effect
	stopped  bool
	wake     chan struct{}
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithResolver overrides the address resolver. By default the backend is
// used when it implements session.AddressResolver.
func WithResolver(r session.AddressResolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

func New(parent context.Context, backend session.Backend, activation Activation, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if activation == nil {
		return nil, ErrNilActivation
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		inbox:      make(chan Msg, 64),
		state:      engine.NewState(),
		backend:    backend,
		activation: activation,
		log:        zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
	}
	if r, ok := backend.(session.AddressResolver); ok {
		c.resolver = r
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("coordinator")

	c.sub = backend.Subscribe(c.Deliver)

	go c.loop()
	go c.notify()
	return c, nil
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Configure:
				msg.Reply <- c.apply(engine.Command{Type: engine.CmdConfigure, Config: msg.Config})

			case RequestHost:
				msg.Reply <- c.request(engine.CmdRequestHost)

			case RequestJoin:
				msg.Reply <- c.request(engine.CmdRequestJoin)

			case Completed:
				c.complete(msg.Completion)

			case GetState:
				msg.Reply <- View{State: c.state}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	c.sub.Unsubscribe()
	c.cancel()
	c.noticeMu.Lock()
	c.stopped = true
	c.noticeMu.Unlock()
	c.signal()
	c.log.Debug("torn down", zap.String("state", string(c.state.Request)))
	close(c.done)
}

func (c *Coordinator) request(typ engine.CommandType) error {
	err := c.apply(engine.Command{Type: typ})
	switch {
	case err == nil:
		c.log.Info("request issued", zap.String("request", string(typ)), zap.String("match_type", c.state.Config.MatchType))
	case errors.Is(err, engine.ErrRequestPending):
		c.log.Info("request ignored", zap.String("request", string(typ)), zap.String("state", string(c.state.Request)))
	default:
		c.log.Warn("request failed", zap.String("request", string(typ)), zap.Error(err))
	}
	return err
}

func (c *Coordinator) complete(comp session.Completion) {
	before := c.state.Request
	err := c.apply(engine.Command{Type: engine.CmdComplete, Completion: comp})
	switch {
	case errors.Is(err, engine.ErrUnexpectedCompletion):
		c.log.Warn("unexpected completion ignored", zap.String("kind", string(comp.Kind)), zap.String("state", string(before)))
	case errors.Is(err, session.ErrBackendUnavailable):
		c.log.Warn("follow-up call not issued", zap.String("kind", string(comp.Kind)), zap.String("to", string(c.state.Request)))
	case err != nil:
		c.log.Error("completion failed", zap.String("kind", string(comp.Kind)), zap.Error(err))
	default:
		c.log.Info("completion handled",
			zap.String("kind", string(comp.Kind)),
			zap.Bool("success", comp.Success),
			zap.String("from", string(before)),
			zap.String("to", string(c.state.Request)),
		)
	}
}

// apply runs cmd through the engine and performs the resulting effects in
// order. A backend call that cannot be issued is fed back as CmdCallFailed.
func (c *Coordinator) apply(cmd engine.Command) error {
	effects, next, err := engine.Apply(c.state, cmd)
	if err != nil {
		return err
	}
	c.state = next

	for _, eff := range effects {
		call, callErr := c.perform(eff)
		if callErr == nil {
			continue
		}
		c.log.Warn("backend call not issued", zap.String("call", string(call)), zap.Error(callErr))
		if err := c.apply(engine.Command{Type: engine.CmdCallFailed, Call: call}); err != nil {
			return err
		}
		return fmt.Errorf("%w: %v", session.ErrBackendUnavailable, callErr)
	}
	return nil
}

// perform executes one effect. For backend calls it reports which call was
// made and whether it could be issued.
func (c *Coordinator) perform(eff engine.Effect) (session.CompletionKind, error) {
	switch eff.Type {
	case engine.EffCreateSession:
		return session.CompletionCreateSession, c.backend.CreateSession(c.ctx, eff.MaxConnections, eff.MatchType)

	case engine.EffFindSessions:
		return session.CompletionFindSessions, c.backend.FindSessions(c.ctx, eff.MaxResults)

	case engine.EffJoinSession:
		c.log.Info("joining session", zap.String("session_id", eff.Candidate.ID))
		return session.CompletionJoinSession, c.backend.JoinSession(c.ctx, eff.Candidate)

	case engine.EffTravel, engine.EffControlEnabled:
		c.post(eff)

	case engine.EffClientTravel:
		c.clientTravel()

	case engine.EffFailure:
		c.log.Warn("failure reported", zap.String("kind", string(eff.Failure)))
		c.post(eff)
	}
	return "", nil
}

func (c *Coordinator) clientTravel() {
	if c.resolver == nil {
		c.log.Debug("no address resolver, skipping client travel")
		return
	}
	addr, ok := c.resolver.ResolveConnectString()
	if !ok || addr == "" {
		c.log.Debug("connect string did not resolve, skipping client travel")
		return
	}
	c.post(engine.Effect{Type: engine.EffTravel, Address: addr, Mode: engine.TravelClientConnect})
}

// post queues an outward effect for the notifier.
func (c *Coordinator) post(eff engine.Effect) {
	c.noticeMu.Lock()
	c.notices = append(c.notices, eff)
	c.noticeMu.Unlock()
	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// notify hands queued effects to the Activation until the coordinator is torn
// down. Effects queued before teardown are still delivered.
func (c *Coordinator) notify() {
	for range c.wake {
		c.noticeMu.Lock()
		batch := c.notices
		c.notices = nil
		stopped := c.stopped
		c.noticeMu.Unlock()

		for _, eff := range batch {
			switch eff.Type {
			case engine.EffTravel:
				c.activation.TravelRequested(eff.Address, eff.Mode)
			case engine.EffControlEnabled:
				c.activation.ControlEnableChanged(eff.Control, eff.Enabled)
			case engine.EffFailure:
				c.activation.FailureReported(eff.Failure)
			}
		}
		if stopped {
			return
		}
	}
}

// Deliver hands a backend completion to the coordinator. It is safe to call
// from any goroutine and is a no-op once the coordinator is closed.
func (c *Coordinator) Deliver(comp session.Completion) {
	if c.ctx.Err() != nil {
		c.log.Debug("completion after teardown dropped", zap.String("kind", string(comp.Kind)))
		return
	}
	select {
	case c.inbox <- Completed{Completion: comp}:
	case <-c.ctx.Done():
		c.log.Debug("completion after teardown dropped", zap.String("kind", string(comp.Kind)))
	}
}

func (c *Coordinator) Configure(cfg engine.Config) error {
	return c.ask(func(reply chan error) Msg { return Configure{Config: cfg, Reply: reply} })
}

// RequestHost asks the backend to create a session. It returns
// engine.ErrRequestPending while another request is in flight.
func (c *Coordinator) RequestHost() error {
	return c.ask(func(reply chan error) Msg { return RequestHost{Reply: reply} })
}

// RequestJoin starts a search; a matching session is joined automatically.
func (c *Coordinator) RequestJoin() error {
	return c.ask(func(reply chan error) Msg { return RequestJoin{Reply: reply} })
}

func (c *Coordinator) View() (View, error) {
	reply := make(chan View, 1)
	select {
	case c.inbox <- GetState{Reply: reply}:
	case <-c.ctx.Done():
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	}
}

// Close detaches from the backend and stops the coordinator. Completions
// arriving afterwards are ignored; effects already produced still reach the
// Activation.
func (c *Coordinator) Close() {
	c.cancel()
	<-c.done
}

// Done is closed once the coordinator has been torn down.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) ask(build func(chan error) Msg) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- build(reply):
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}
