package engine

import "github.com/DoyleJ11/multiplayer-sessions/internal/session"

// MatchFilter returns the first candidate, in result order, whose match type
// attribute equals matchType. Candidates without the attribute never match.
func MatchFilter(candidates []session.Candidate, matchType string) (session.Candidate, bool) {
	for _, c := range candidates {
		if mt, ok := c.MatchType(); ok && mt == matchType {
			return c, true
		}
	}
	return session.Candidate{}, false
}
