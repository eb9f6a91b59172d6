package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"agentgw/internal/domain"
)

// defaultHistoryLimit bounds the number of messages replayed into a prompt.
const defaultHistoryLimit = 50

// Store implements domain.HistoryStore backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface assertion.
var _ domain.HistoryStore = (*Store)(nil)

// New opens (or creates) a SQLite database at dbPath, runs migrations, and
// returns a ready Store.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrHistoryStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrHistoryStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrHistoryStore, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateSession inserts a session row. Inserting an existing ID is a no-op.
func (s *Store) CreateSession(ctx context.Context, id, skillName string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, skill_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, skillName, now, now)
	if err != nil {
		return fmt.Errorf("%w: create session: %v", domain.ErrHistoryStore, err)
	}
	return nil
}

// TouchSession bumps a session's updated_at timestamp.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("%w: touch session: %v", domain.ErrHistoryStore, err)
	}
	return nil
}

// SaveMessage appends a message row and bumps the session timestamp.
// Returns the new message's row ID.
func (s *Store) SaveMessage(ctx context.Context, sessionID, skillName string, msg domain.Message) (int64, error) {
	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return 0, fmt.Errorf("%w: marshal tool calls: %v", domain.ErrHistoryStore, err)
		}
		toolCalls = string(data)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, skill_name, role, content, tool_calls, tool_call_id, tool_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, skillName, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.Name, ts.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("%w: save message: %v", domain.ErrHistoryStore, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %v", domain.ErrHistoryStore, err)
	}

	if err := s.TouchSession(ctx, sessionID); err != nil {
		return 0, err
	}
	return id, nil
}

// History returns the most recent messages for a session in chronological
// order. limit <= 0 applies the default.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id, tool_name, created_at
		FROM (
			SELECT id, role, content, tool_calls, tool_call_id, tool_name, created_at
			FROM conversations
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query history: %v", domain.ErrHistoryStore, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SessionMessages returns the displayable transcript of a session:
// user and assistant messages with non-empty content.
func (s *Store) SessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id, tool_name, created_at
		FROM conversations
		WHERE session_id = ? AND role IN ('user', 'assistant') AND content != ''
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: query session messages: %v", domain.ErrHistoryStore, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var msgs []domain.Message
	for rows.Next() {
		var (
			msg       domain.Message
			toolCalls sql.NullString
			createdAt string
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", domain.ErrHistoryStore, err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("%w: unmarshal tool calls: %v", domain.ErrHistoryStore, err)
			}
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			msg.Timestamp = ts
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// ListSessions returns sessions ordered by recency.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_name, summary, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrHistoryStore, err)
	}
	defer rows.Close()

	var recs []domain.SessionRecord
	for rows.Next() {
		var (
			rec                  domain.SessionRecord
			createdAt, updatedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SkillName, &rec.Summary, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", domain.ErrHistoryStore, err)
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			rec.UpdatedAt = ts
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LastAssistantMessageID returns the row ID of the most recent assistant
// message in a session, for attaching feedback.
func (s *Store) LastAssistantMessageID(ctx context.Context, sessionID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations
		WHERE session_id = ? AND role = 'assistant'
		ORDER BY id DESC LIMIT 1
	`, sessionID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, domain.NewDomainError("Store.LastAssistantMessageID", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: last assistant message: %v", domain.ErrHistoryStore, err)
	}
	return id, nil
}

// SaveFeedback records a rating for a message. Returns the feedback row ID.
func (s *Store) SaveFeedback(ctx context.Context, fb domain.Feedback) (int64, error) {
	if fb.Rating != 1 && fb.Rating != -1 {
		return 0, domain.NewDomainError("Store.SaveFeedback", domain.ErrInvalidInput,
			fmt.Sprintf("rating must be 1 or -1, got %d", fb.Rating))
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (message_id, session_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, fb.MessageID, fb.SessionID, fb.Rating, fb.Comment, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("%w: save feedback: %v", domain.ErrHistoryStore, err)
	}
	return res.LastInsertId()
}
