package memory

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			skill_name TEXT NOT NULL DEFAULT '',
			summary    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id   TEXT NOT NULL,
			skill_name   TEXT NOT NULL DEFAULT '',
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			tool_calls   TEXT,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_name    TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS feedback (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			rating     INTEGER NOT NULL,
			comment    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_session
			ON conversations(session_id, id);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated
			ON sessions(updated_at);
		CREATE INDEX IF NOT EXISTS idx_feedback_session
			ON feedback(session_id);
	`
	_, err := db.Exec(schema)
	return err
}
