package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/multiplayer-sessions/internal/session"
	"github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

func TestCandidates(t *testing.T) {
	got := Candidates([]types.SessionAd{
		{ID: "A", MatchType: "Ranked"},
		{ID: "B", MatchType: "FreeForAll", Attributes: map[string]string{"Map": "Arena"}},
		{ID: "C"},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, "Ranked", got[0].Attributes[session.AttrMatchType])
	assert.Equal(t, "Arena", got[1].Attributes["Map"])
	_, ok := got[2].MatchType()
	assert.False(t, ok)
}
