package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// createSchema is safe to call on every start.
func createSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS game_session (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    deck_type TEXT NOT NULL DEFAULT 'standard',
    custom_deck TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'waiting' CHECK (status IN ('waiting', 'voting', 'revealed')),
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS participant (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES game_session(id) ON DELETE CASCADE,
    nickname TEXT NOT NULL,
    external_id TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    UNIQUE (session_id, external_id),
    UNIQUE (session_id, id)
);

CREATE INDEX IF NOT EXISTS idx_participant_session_id ON participant(session_id);

CREATE TABLE IF NOT EXISTS vote (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES game_session(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE (session_id, participant_id),
    FOREIGN KEY (session_id, participant_id) REFERENCES participant(session_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_vote_session_id ON vote(session_id);
`
