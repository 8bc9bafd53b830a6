package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens or creates the database at path and prepares the schema.
// WAL mode keeps readers from blocking the synchronous writes the
// services perform inside their operations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id             TEXT PRIMARY KEY,
			sender_id      TEXT NOT NULL,
			receiver_id    TEXT DEFAULT '',
			body           TEXT NOT NULL,
			kind           TEXT NOT NULL DEFAULT 'text',
			is_read        INTEGER NOT NULL DEFAULT 0,
			read_at        INTEGER,
			appointment_id TEXT DEFAULT '',
			helpline       INTEGER NOT NULL DEFAULT 0,
			deleted        INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, receiver_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_appointment ON messages (appointment_id, created_at);

		CREATE TABLE IF NOT EXISTS calls (
			call_id        TEXT PRIMARY KEY,
			room_id        TEXT NOT NULL,
			caller_id      TEXT NOT NULL,
			receiver_id    TEXT NOT NULL,
			kind           TEXT NOT NULL,
			status         TEXT NOT NULL,
			start_time     INTEGER,
			end_time       INTEGER,
			duration       INTEGER NOT NULL DEFAULT 0,
			appointment_id TEXT DEFAULT '',
			emergency      INTEGER NOT NULL DEFAULT 0,
			quality        TEXT DEFAULT '',
			notes          TEXT DEFAULT '',
			created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls (caller_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_calls_receiver ON calls (receiver_id, created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
