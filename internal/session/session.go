package session

import "errors"

// ErrBackendUnavailable is returned by a Backend when a request could not be
// issued at all (no connection, backend shut down). No completion follows.
var ErrBackendUnavailable = errors.New("session backend unavailable")

// AttrMatchType is the candidate attribute carrying the match type tag.
const AttrMatchType = "MatchType"

// Candidate is a session discovered by FindSessions.
type Candidate struct {
	ID         string
	Attributes map[string]string
}

// MatchType returns the candidate's match type, if it advertises one.
func (c Candidate) MatchType() (string, bool) {
	mt, ok := c.Attributes[AttrMatchType]
	return mt, ok
}

type JoinResult string

const (
	JoinSuccess                 JoinResult = "Success"
	JoinSessionIsFull           JoinResult = "SessionIsFull"
	JoinSessionDoesNotExist     JoinResult = "SessionDoesNotExist"
	JoinCouldNotRetrieveAddress JoinResult = "CouldNotRetrieveAddress"
	JoinAlreadyInSession        JoinResult = "AlreadyInSession"
	JoinUnknownError            JoinResult = "UnknownError"
)

// JoinOutcome is Success or Failed(reason).
type JoinOutcome struct {
	Result JoinResult
	Reason string
}

func (o JoinOutcome) Succeeded() bool { return o.Result == JoinSuccess }

// Joined is the successful outcome.
func Joined() JoinOutcome { return JoinOutcome{Result: JoinSuccess} }

// JoinFailed builds a failed outcome. An empty result becomes UnknownError.
func JoinFailed(result JoinResult, reason string) JoinOutcome {
	if result == "" || result == JoinSuccess {
		result = JoinUnknownError
	}
	return JoinOutcome{Result: result, Reason: reason}
}
