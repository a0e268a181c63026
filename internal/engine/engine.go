package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
)

var ErrRequestPending = errors.New("request already pending")
var ErrNotConfigured = errors.New("session request not configured")
var ErrAlreadyConfigured = errors.New("session request already configured")
var ErrInvalidConfig = errors.New("invalid session request config")
var ErrUnexpectedCompletion = errors.New("unexpected completion")
var ErrIllegalTransition = errors.New("illegal request state transition")
var ErrUnsupportedCommand = errors.New("unsupported command")

type RequestState string

const (
	StateIdle        RequestState = "idle"
	StateHostPending RequestState = "host_pending"
	StateJoinPending RequestState = "join_pending"
)

type Control string

const (
	ControlHost Control = "host"
	ControlJoin Control = "join"
)

type TravelMode string

const (
	TravelListenHost    TravelMode = "listen_host"
	TravelClientConnect TravelMode = "client_connect"
)

type FailureKind string

const (
	FailureBackendUnavailable FailureKind = "BackendUnavailable"
	FailureHostFailed         FailureKind = "HostFailed"
	FailureNoMatchFound       FailureKind = "NoMatchFound"
	FailureJoinFailed         FailureKind = "JoinFailed"
)

// MaxSearchResults is how many sessions a join request asks the backend for.
const MaxSearchResults = 10000

type Config struct {
	MaxPublicConnections int
	MatchType            string
	LobbyPath            string
}

func (c Config) Validate() error {
	switch {
	case c.MaxPublicConnections < 1:
		return fmt.Errorf("%w: max public connections must be >= 1, got %d", ErrInvalidConfig, c.MaxPublicConnections)
	case c.MatchType == "":
		return fmt.Errorf("%w: match type is empty", ErrInvalidConfig)
	case c.LobbyPath == "":
		return fmt.Errorf("%w: lobby path is empty", ErrInvalidConfig)
	}
	return nil
}

type State struct {
	Request    RequestState
	Config     Config
	Configured bool

	// Awaiting is the completion the pending request is waiting on. Empty
	// when Request is idle.
	Awaiting session.CompletionKind

	HostEnabled bool
	JoinEnabled bool
}

type CommandType string

const (
	CmdConfigure   CommandType = "Configure"
	CmdRequestHost CommandType = "RequestHost"
	CmdRequestJoin CommandType = "RequestJoin"
	CmdCallFailed  CommandType = "CallFailed"
	CmdComplete    CommandType = "Complete"
)

/*
	CmdConfigure   -> (no effects)
	CmdRequestHost -> EffControlEnabled(host,false) -> EffCreateSession
	CmdRequestJoin -> EffControlEnabled(join,false) -> EffFindSessions
	CmdCallFailed  -> EffControlEnabled(kind,true)  -> EffFailure(BackendUnavailable)
	CmdComplete:
		CreateSession ok   -> EffTravel(lobby?listen)
		CreateSession fail -> EffControlEnabled(host,true) -> EffFailure(HostFailed)
		FindSessions match -> EffJoinSession
		FindSessions none  -> EffControlEnabled(join,true) -> EffFailure(NoMatchFound)
		JoinSession ok     -> EffClientTravel
		JoinSession fail   -> EffClientTravel -> EffControlEnabled(join,true) -> EffFailure(JoinFailed)
		Destroy/Start      -> (no effects)
*/

type Command struct {
	Type       CommandType
	Config     Config                 // CmdConfigure
	Call       session.CompletionKind // CmdCallFailed: the call that could not be issued
	Completion session.Completion     // CmdComplete
}

type EffectType string

const (
	EffCreateSession  EffectType = "CreateSession"
	EffFindSessions   EffectType = "FindSessions"
	EffJoinSession    EffectType = "JoinSession"
	EffTravel         EffectType = "Travel"
	EffClientTravel   EffectType = "ClientTravel" // resolve the joined address, travel if it resolves
	EffControlEnabled EffectType = "ControlEnabled"
	EffFailure        EffectType = "Failure"
)

type Effect struct {
	Type EffectType

	MaxConnections int               // EffCreateSession
	MatchType      string            // EffCreateSession
	MaxResults     int               // EffFindSessions
	Candidate      session.Candidate // EffJoinSession

	Address string     // EffTravel
	Mode    TravelMode // EffTravel

	Control Control // EffControlEnabled
	Enabled bool    // EffControlEnabled

	Failure FailureKind // EffFailure
}

func Apply(s State, cmd Command) ([]Effect, State, error) {
	switch cmd.Type {
	case CmdConfigure:
		if s.Configured {
			return nil, s, ErrAlreadyConfigured
		}
		if err := cmd.Config.Validate(); err != nil {
			return nil, s, err
		}
		newState := s
		newState.Config = cmd.Config
		newState.Configured = true
		newState.HostEnabled = true
		newState.JoinEnabled = true
		return nil, newState, nil

	case CmdRequestHost:
		if err := canRequest(s); err != nil {
			return nil, s, err
		}
		newState := s
		newState.HostEnabled = false
		effects := []Effect{
			controlEffect(ControlHost, false),
			{Type: EffCreateSession, MaxConnections: s.Config.MaxPublicConnections, MatchType: s.Config.MatchType},
		}
		return commit(s, pending(newState, StateHostPending, session.CompletionCreateSession), effects)

	case CmdRequestJoin:
		if err := canRequest(s); err != nil {
			return nil, s, err
		}
		newState := s
		newState.JoinEnabled = false
		effects := []Effect{
			controlEffect(ControlJoin, false),
			{Type: EffFindSessions, MaxResults: MaxSearchResults},
		}
		return commit(s, pending(newState, StateJoinPending, session.CompletionFindSessions), effects)

	case CmdCallFailed:
		if s.Request == StateIdle || cmd.Call != s.Awaiting {
			return nil, s, fmt.Errorf("%w: %s call failed while %s", ErrUnexpectedCompletion, cmd.Call, s.Request)
		}
		return fail(s, FailureBackendUnavailable)

	case CmdComplete:
		return complete(s, cmd.Completion)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func complete(s State, c session.Completion) ([]Effect, State, error) {
	switch c.Kind {
	case session.CompletionDestroySession, session.CompletionStartSession:
		// Accepted in every state; no policy attached yet.
		return nil, s, nil
	}

	if s.Request == StateIdle || c.Kind != s.Awaiting {
		return nil, s, fmt.Errorf("%w: %s while %s", ErrUnexpectedCompletion, c.Kind, s.Request)
	}

	switch c.Kind {
	case session.CompletionCreateSession:
		if !c.Success {
			return fail(s, FailureHostFailed)
		}
		effects := []Effect{{Type: EffTravel, Address: ListenURL(s.Config.LobbyPath), Mode: TravelListenHost}}
		return commit(s, idle(s), effects)

	case session.CompletionFindSessions:
		if !c.Success {
			return fail(s, FailureNoMatchFound)
		}
		match, ok := MatchFilter(c.Candidates, s.Config.MatchType)
		if !ok {
			return fail(s, FailureNoMatchFound)
		}
		newState := s
		newState.Awaiting = session.CompletionJoinSession
		return commit(s, newState, []Effect{{Type: EffJoinSession, Candidate: match}})

	case session.CompletionJoinSession:
		effects := []Effect{{Type: EffClientTravel, Mode: TravelClientConnect}}
		if c.Outcome.Succeeded() {
			return commit(s, idle(s), effects)
		}
		failEffects, newState, err := fail(s, FailureJoinFailed)
		if err != nil {
			return nil, s, err
		}
		return append(effects, failEffects...), newState, nil

	default:
		return nil, s, fmt.Errorf("%w: kind %q", ErrUnsupportedCommand, c.Kind)
	}
}

// fail resolves the pending request: back to idle, re-enable the control that
// triggered it and report kind.
func fail(s State, kind FailureKind) ([]Effect, State, error) {
	control := controlFor(s.Request)
	newState := idle(s)
	setEnabled(&newState, control, true)
	effects := []Effect{
		controlEffect(control, true),
		{Type: EffFailure, Failure: kind},
	}
	return commit(s, newState, effects)
}

func commit(from State, to State, effects []Effect) ([]Effect, State, error) {
	if !CanTransition(from.Request, to.Request) {
		return nil, from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from.Request, to.Request)
	}
	return effects, to, nil
}

func canRequest(s State) error {
	if !s.Configured {
		return ErrNotConfigured
	}
	if s.Request != StateIdle {
		return fmt.Errorf("%w: %s", ErrRequestPending, s.Request)
	}
	return nil
}
