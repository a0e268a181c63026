package types

// SessionAd is a session as advertised by the matchmaking service.
type SessionAd struct {
	ID             string            `json:"id"`
	MatchType      string            `json:"match_type"`
	HostAddress    string            `json:"host_address"`
	MaxConnections int               `json:"max_connections"`
	NumPlayers     int               `json:"num_players"` // joined clients, host excluded
	Started        bool              `json:"started"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// OpenConnections is how many more clients may join.
func (a SessionAd) OpenConnections() int {
	if n := a.MaxConnections - a.NumPlayers; n > 0 {
		return n
	}
	return 0
}
