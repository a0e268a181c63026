package session

import (
	"context"
	"sync"
)

type CompletionKind string

const (
	CompletionCreateSession  CompletionKind = "CreateSession"
	CompletionFindSessions   CompletionKind = "FindSessions"
	CompletionJoinSession    CompletionKind = "JoinSession"
	CompletionDestroySession CompletionKind = "DestroySession"
	CompletionStartSession   CompletionKind = "StartSession"
)

// Completion is the single message a Backend emits when an issued request
// finishes. Which fields are meaningful depends on Kind:
//
//	CreateSession, DestroySession, StartSession -> Success
//	FindSessions                                -> Success, Candidates
//	JoinSession                                 -> Outcome
type Completion struct {
	Kind       CompletionKind
	Success    bool
	Candidates []Candidate
	Outcome    JoinOutcome
}

func CreateCompleted(success bool) Completion {
	return Completion{Kind: CompletionCreateSession, Success: success}
}

func FindCompleted(candidates []Candidate, success bool) Completion {
	return Completion{Kind: CompletionFindSessions, Success: success, Candidates: candidates}
}

func JoinCompleted(outcome JoinOutcome) Completion {
	return Completion{Kind: CompletionJoinSession, Success: outcome.Succeeded(), Outcome: outcome}
}

func DestroyCompleted(success bool) Completion {
	return Completion{Kind: CompletionDestroySession, Success: success}
}

func StartCompleted(success bool) Completion {
	return Completion{Kind: CompletionStartSession, Success: success}
}

// Listener receives completions. It may be invoked from any goroutine.
type Listener func(Completion)

// Subscription detaches a Listener. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Backend is the contract the coordinator needs from an online session
// subsystem. Every request method either returns an error (the request was
// not issued) or returns nil and later delivers exactly one Completion of the
// matching kind to the current subscribers.
type Backend interface {
	CreateSession(ctx context.Context, maxConnections int, matchType string) error
	FindSessions(ctx context.Context, maxResults int) error
	JoinSession(ctx context.Context, c Candidate) error
	DestroySession(ctx context.Context) error
	StartSession(ctx context.Context) error
	Subscribe(l Listener) Subscription
}

// AddressResolver yields the connect string of the most recently joined
// session. ok is false when nothing can be resolved.
type AddressResolver interface {
	ResolveConnectString() (addr string, ok bool)
}

// Listeners is a small fan-out registry that Backend implementations embed
// to manage subscriptions.
type Listeners struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Listener
}

func (ls *Listeners) Subscribe(l Listener) Subscription {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.subs == nil {
		ls.subs = make(map[int]Listener)
	}
	id := ls.nextID
	ls.nextID++
	ls.subs[id] = l
	return &subscription{ls: ls, id: id}
}

// Publish hands c to every current subscriber.
func (ls *Listeners) Publish(c Completion) {
	ls.mu.Lock()
	targets := make([]Listener, 0, len(ls.subs))
	for _, l := range ls.subs {
		targets = append(targets, l)
	}
	ls.mu.Unlock()

	for _, l := range targets {
		l(c)
	}
}

func (ls *Listeners) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.subs)
}

type subscription struct {
	ls   *Listeners
	id   int
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.ls.mu.Lock()
		delete(s.ls.subs, s.id)
		s.ls.mu.Unlock()
	})
}
