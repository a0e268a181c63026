package types

import pub "github.com/DoyleJ11/multiplayer-sessions/pkg/types"

type ClientMessage struct {
	Type           string            `json:"type"`
	MaxConnections int               `json:"max_connections,omitempty"`
	MatchType      string            `json:"match_type,omitempty"`
	HostAddress    string            `json:"host_address,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	MaxResults     int               `json:"max_results,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
}

type ServerMessage struct {
	Type     string          `json:"type"` // "...Complete" | "Error"
	Success  bool            `json:"success"`
	Result   string          `json:"result,omitempty"`
	Session  *pub.SessionAd  `json:"session,omitempty"`
	Sessions []pub.SessionAd `json:"sessions,omitempty"`
	Error    string          `json:"error,omitempty"`
}
