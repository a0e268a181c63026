// Package backend holds what the session.Backend implementations share.
package backend

import (
	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

// Candidates converts advertised sessions into search results, keeping order.
func Candidates(ads []types.SessionAd) []session.Candidate {
	out := make([]session.Candidate, 0, len(ads))
	for _, ad := range ads {
		attrs := make(map[string]string, len(ad.Attributes)+1)
		for k, v := range ad.Attributes {
			attrs[k] = v
		}
		if _, ok := attrs[session.AttrMatchType]; !ok && ad.MatchType != "" {
			attrs[session.AttrMatchType] = ad.MatchType
		}
		out = append(out, session.Candidate{ID: ad.ID, Attributes: attrs})
	}
	return out
}
