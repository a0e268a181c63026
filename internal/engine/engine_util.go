package engine

import "github.com/DoyleJ11/multiplayer-sessions/internal/session"

// Defaults mirror the menu's stock setup.
const (
	DefaultPublicConnections = 4
	DefaultMatchType         = "FreeForAll"
	DefaultLobbyPath         = "/Game/Lobby"
)

func DefaultConfig() Config {
	return Config{
		MaxPublicConnections: DefaultPublicConnections,
		MatchType:            DefaultMatchType,
		LobbyPath:            DefaultLobbyPath,
	}
}

func NewState() State {
	return State{Request: StateIdle}
}

// ListenURL is the travel target for a listen host.
func ListenURL(lobbyPath string) string {
	return lobbyPath + "?listen"
}

func ContainsEffect(effects []Effect, effectType EffectType) bool {
	for _, effect := range effects {
		if effect.Type == effectType {
			return true
		}
	}
	return false
}

func ControlEnabled(s State, c Control) bool {
	switch c {
	case ControlHost:
		return s.HostEnabled
	case ControlJoin:
		return s.JoinEnabled
	}
	return false
}

func pending(s State, req RequestState, awaiting session.CompletionKind) State {
	s.Request = req
	s.Awaiting = awaiting
	return s
}

func idle(s State) State {
	s.Request = StateIdle
	s.Awaiting = ""
	return s
}

func controlFor(req RequestState) Control {
	if req == StateHostPending {
		return ControlHost
	}
	return ControlJoin
}

func setEnabled(s *State, c Control, enabled bool) {
	switch c {
	case ControlHost:
		s.HostEnabled = enabled
	case ControlJoin:
		s.JoinEnabled = enabled
	}
}

func controlEffect(c Control, enabled bool) Effect {
	return Effect{Type: EffControlEnabled, Control: c, Enabled: enabled}
}
