// Package sqlstore persists sessions in SQLite (modernc.org/sqlite) or
// PostgreSQL (lib/pq) behind the storage.Store contract.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/kiliankoe/pokerdash/internal/storage"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open connects to the database and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	switch driver {
	case DriverSQLite:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases alive across calls
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if err := createSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateSession(ctx context.Context, sess storage.Session) error {
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO game_session (id, name, deck_type, custom_deck, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		sess.ID, sess.Name, sess.DeckType, sess.CustomDeck, sess.Status,
		toMillis(sess.CreatedAt), toMillis(sess.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	return s.getSession(ctx, s.db, id)
}

func (s *Store) getSession(ctx context.Context, q queryer, id string) (storage.Session, error) {
	var (
		sess             storage.Session
		created, updated int64
	)
	err := q.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, deck_type, custom_deck, status, created_at, updated_at
		FROM game_session WHERE id = ?`), id,
	).Scan(&sess.ID, &sess.Name, &sess.DeckType, &sess.CustomDeck, &sess.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = fromMillis(created)
	sess.UpdatedAt = fromMillis(updated)
	return sess, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{to, toMillis(s.now()), id}
	marks := make([]string, len(from))
	for i, f := range from {
		marks[i] = "?"
		args = append(args, f)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE game_session SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (`+strings.Join(marks, ", ")+`)`), args...)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetSession(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ResetRound(ctx context.Context, id string, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE game_session SET status = ?, updated_at = ? WHERE id = ?`),
		status, toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("reset status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reset status: %w", err)
	} else if n == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM vote WHERE session_id = ?`), id); err != nil {
		return fmt.Errorf("delete votes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p storage.Participant) (storage.Participant, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Participant{}, false, fmt.Errorf("begin add participant: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.getSession(ctx, tx, p.SessionID); err != nil {
		return storage.Participant{}, false, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO participant (id, session_id, nickname, external_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, external_id) DO NOTHING`),
		p.ID, p.SessionID, p.Nickname, p.ExternalID, toMillis(p.CreatedAt))
	if err != nil {
		return storage.Participant{}, false, fmt.Errorf("insert participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Participant{}, false, fmt.Errorf("insert participant: %w", err)
	}
	stored, err := s.getParticipant(ctx, tx, p.SessionID, p.ExternalID)
	if err != nil {
		return storage.Participant{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return storage.Participant{}, false, fmt.Errorf("commit add participant: %w", err)
	}
	return stored, n > 0, nil
}

func (s *Store) GetParticipantByExternalID(ctx context.Context, sessionID, externalID string) (storage.Participant, error) {
	return s.getParticipant(ctx, s.db, sessionID, externalID)
}

func (s *Store) getParticipant(ctx context.Context, q queryer, sessionID, externalID string) (storage.Participant, error) {
	var (
		p       storage.Participant
		created int64
	)
	err := q.QueryRowContext(ctx, s.rebind(`
		SELECT id, session_id, nickname, external_id, created_at
		FROM participant WHERE session_id = ? AND external_id = ?`), sessionID, externalID,
	).Scan(&p.ID, &p.SessionID, &p.Nickname, &p.ExternalID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Participant{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]storage.Participant, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, nickname, external_id, created_at
		FROM participant WHERE session_id = ?
		ORDER BY created_at, id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := []storage.Participant{}
	for rows.Next() {
		var (
			p       storage.Participant
			created int64
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Nickname, &p.ExternalID, &created); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertVote(ctx context.Context, v storage.Vote) (storage.Vote, error) {
	now := toMillis(s.now())
	var created, updated int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO vote (id, session_id, participant_id, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, participant_id)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`),
		v.ID, v.SessionID, v.ParticipantID, v.Value, now, now,
	).Scan(&v.ID, &created, &updated)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.Vote{}, storage.ErrNotFound
		}
		return storage.Vote{}, fmt.Errorf("upsert vote: %w", err)
	}
	v.CreatedAt = fromMillis(created)
	v.UpdatedAt = fromMillis(updated)
	return v, nil
}

func (s *Store) ListVotes(ctx context.Context, sessionID string) ([]storage.Vote, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, participant_id, value, created_at, updated_at
		FROM vote WHERE session_id = ?
		ORDER BY created_at, id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	out := []storage.Vote{}
	for rows.Next() {
		var (
			v                storage.Vote
			created, updated int64
		)
		if err := rows.Scan(&v.ID, &v.SessionID, &v.ParticipantID, &v.Value, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.CreatedAt = fromMillis(created)
		v.UpdatedAt = fromMillis(updated)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return out, nil
}

func (s *Store) CountVotes(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM vote WHERE session_id = ? AND value <> ''`), sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}

var _ storage.Store = (*Store)(nil)
