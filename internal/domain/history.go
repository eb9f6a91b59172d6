package domain

import (
	"context"
	"time"
)

// SessionRecord is a persisted session row.
type SessionRecord struct {
	ID        string    `json:"id"`
	SkillName string    `json:"skill_name"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Feedback is a user rating attached to an assistant message.
type Feedback struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"` // 1 = positive, -1 = negative
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists conversation history. The agent loop writes through
// it after every message lands in the in-memory session; read paths serve
// resumption and the API surface.
type HistoryStore interface {
	CreateSession(ctx context.Context, id, skillName string) error
	TouchSession(ctx context.Context, id string) error
	SaveMessage(ctx context.Context, sessionID, skillName string, msg Message) (int64, error)
	History(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	SessionMessages(ctx context.Context, sessionID string) ([]Message, error)
	LastAssistantMessageID(ctx context.Context, sessionID string) (int64, error)
	SaveFeedback(ctx context.Context, fb Feedback) (int64, error)
}
