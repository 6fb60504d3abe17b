package dialogue

import (
	"sync"
	"time"

	"github.com/hamyarlab/yadavar/internal/recur"
)

// State is where a single owner's dialogue currently stands. Committed and
// Cancelled are terminal and never stored: the session is reset instead.
type State int

const (
	StateStart State = iota
	StateAwaitingTask
	StateAwaitingDate
	StateAwaitingTime
	StateAwaitingDateTime
	StateAwaitingMeridiem
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StateAwaitingTask:
		return "awaiting_task"
	case StateAwaitingDate:
		return "awaiting_date"
	case StateAwaitingTime:
		return "awaiting_time"
	case StateAwaitingDateTime:
		return "awaiting_datetime"
	case StateAwaitingMeridiem:
		return "awaiting_meridiem"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	}
	return "start"
}

// Slots is everything collected so far toward one reminder.
type Slots struct {
	Task          string
	DateExpr      string
	TimeExpr      string
	ResolvedAt    time.Time // zero until the resolver completes
	Recurrence    recur.Rule
	AmbiguousHour int // bare hour awaiting a meridiem answer, -1 when none
}

type Session struct {
	OwnerID    int64
	State      State
	Slots      Slots
	LastActive time.Time
}

// SessionStore holds at most one live session per owner, in memory only.
// Sessions idle past the TTL are treated as abandoned and dropped on the
// next access; losing them on restart is acceptable.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]*Session
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the owner's live session, or nil when none exists or the
// existing one has gone stale (stale sessions are discarded here).
func (s *SessionStore) Get(ownerID int64, now time.Time) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ownerID]
	if !ok {
		return nil
	}
	if now.Sub(sess.LastActive) > s.ttl {
		delete(s.sessions, ownerID)
		return nil
	}
	return sess
}

// Put stores the session and refreshes its activity timestamp.
func (s *SessionStore) Put(sess *Session, now time.Time) {
	sess.LastActive = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.OwnerID] = sess
}

// Reset drops the owner's session; used on every terminal transition.
func (s *SessionStore) Reset(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, ownerID)
}

// Sweep drops every stale session. Staleness is normally handled lazily in
// Get; this just bounds memory for owners who never come back.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
