package qa

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one conversation. Appends are serialized, so concurrent
// questions on the same session never interleave history writes.
type Session struct {
	ID string

	mu      sync.Mutex
	history *History
	created time.Time
	updated time.Time
}

// NewSession creates a session with a fresh id.
func NewSession(historySize int) *Session {
	now := time.Now()
	return &Session{
		ID:      uuid.NewString(),
		history: NewHistory(historySize),
		created: now,
		updated: now,
	}
}

// Record appends a finished exchange.
func (s *Session) Record(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.history.Add(Exchange{Question: question, Answer: answer, At: now})
	s.updated = now
}

// History returns the remembered exchanges, oldest first.
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Exchanges()
}

// Reset forgets the conversation but keeps the id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Clear()
	s.updated = time.Now()
}

// SessionState is the serializable form of a Session.
type SessionState struct {
	ID        string     `json:"id"`
	Limit     int        `json:"limit"`
	Exchanges []Exchange `json:"exchanges"`
	Created   time.Time  `json:"created"`
	Updated   time.Time  `json:"updated"`
}

// State snapshots the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		ID:        s.ID,
		Limit:     s.history.Limit(),
		Exchanges: s.history.Exchanges(),
		Created:   s.created,
		Updated:   s.updated,
	}
}

// RestoreSession rebuilds a session from a snapshot.
func RestoreSession(st SessionState) *Session {
	h := NewHistory(st.Limit)
	for _, e := range st.Exchanges {
		h.Add(e)
	}
	return &Session{
		ID:      st.ID,
		history: h,
		created: st.Created,
		updated: st.Updated,
	}
}
