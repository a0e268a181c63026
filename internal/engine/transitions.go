package engine

// RequestTransitions lists every edge the request state may take. Staying in
// the same state is always allowed.
var RequestTransitions = map[RequestState][]RequestState{
	StateIdle:        {StateHostPending, StateJoinPending},
	StateHostPending: {StateIdle},
	StateJoinPending: {StateIdle},
}

func CanTransition(from, to RequestState) bool {
	if from == to {
		return true
	}
	for _, next := range RequestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
