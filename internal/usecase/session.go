package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agentgw/internal/domain"
)

// Session is the in-memory, append-only conversation state for one agent.
// Messages are never evicted or rewritten here; persistence happens through
// the history store as each message lands.
type Session struct {
	mu        sync.RWMutex
	ID        string           `json:"id"` // ULID
	SkillName string           `json:"skill_name"`
	Msgs      []domain.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSession creates a new empty session with a generated ULID.
func NewSession(skillName string) *Session {
	now := time.Now()
	return &Session{
		ID:        generateULID(now),
		SkillName: skillName,
		Msgs:      make([]domain.Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResumeSession rebuilds a session from persisted history.
func ResumeSession(id, skillName string, history []domain.Message) *Session {
	now := time.Now()
	msgs := make([]domain.Message, len(history))
	copy(msgs, history)
	return &Session{
		ID:        id,
		SkillName: skillName,
		Msgs:      msgs,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AddMessage appends a message and updates the timestamp (thread-safe).
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Msgs = append(s.Msgs, msg)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of the message history (thread-safe).
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.Msgs))
	copy(cp, s.Msgs)
	return cp
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Msgs)
}
