// Package sqlite is a single-file store for credentials and scheduled
// messages. It is meant for local runs and tests; production uses the
// postgres store in package db.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"SlackScheduler/internal/core"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store implements core.CredentialStore and core.MessageStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// WithClock replaces the clock used for validation and timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertCredential(ctx context.Context, c core.Credential) error {
	if err := c.Owner.Validate(); err != nil {
		return err
	}
	now := s.now().UTC().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials(user_id, team_id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, team_id) DO UPDATE SET
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_at=excluded.expires_at,
			updated_at=excluded.updated_at`,
		c.UserID, c.TeamID, c.AccessToken, c.RefreshToken, c.ExpiresAt.UTC().UnixNano(), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, owner core.Owner) (core.Credential, bool, error) {
	var c core.Credential
	var expires, created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, team_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM credentials WHERE user_id = ? AND team_id = ?`,
		owner.UserID, owner.TeamID,
	).Scan(&c.UserID, &c.TeamID, &c.AccessToken, &c.RefreshToken, &expires, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Credential{}, false, nil
	}
	if err != nil {
		return core.Credential{}, false, fmt.Errorf("get credential: %w", err)
	}
	c.ExpiresAt = fromNanos(expires)
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return c, true, nil
}

func (s *Store) CreateMessage(ctx context.Context, m core.NewMessage) (core.ScheduledMessage, error) {
	now := s.now().UTC()
	if err := m.Validate(now); err != nil {
		return core.ScheduledMessage{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_messages(user_id, team_id, channel_id, text, scheduled_for, state, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		m.UserID, m.TeamID, m.ChannelID, m.Text, m.ScheduledFor.UTC().UnixNano(), string(core.StatePending),
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return core.ScheduledMessage{}, fmt.Errorf("create message: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.ScheduledMessage{}, fmt.Errorf("create message: last insert id: %w", err)
	}
	return s.GetMessage(ctx, id)
}

const messageColumns = `id, user_id, team_id, channel_id, text, scheduled_for, state, attempts, last_error, sent_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (core.ScheduledMessage, error) {
	var m core.ScheduledMessage
	var state string
	var scheduledFor, created, updated int64
	var sentAt sql.NullInt64
	err := row.Scan(&m.ID, &m.UserID, &m.TeamID, &m.ChannelID, &m.Text, &scheduledFor, &state,
		&m.Attempts, &m.LastError, &sentAt, &created, &updated)
	if err != nil {
		return core.ScheduledMessage{}, err
	}
	m.State = core.State(state)
	if !m.State.Valid() {
		return core.ScheduledMessage{}, fmt.Errorf("message %d: unknown state %q", m.ID, state)
	}
	m.ScheduledFor = fromNanos(scheduledFor)
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	if sentAt.Valid {
		t := fromNanos(sentAt.Int64)
		m.SentAt = &t
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (core.ScheduledMessage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM scheduled_messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ScheduledMessage{}, fmt.Errorf("get message %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ScheduledMessage{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

func (s *Store) ListPending(ctx context.Context, owner core.Owner) ([]core.ScheduledMessage, error) {
	return s.query(ctx, "list pending",
		`SELECT `+messageColumns+` FROM scheduled_messages
		 WHERE user_id = ? AND team_id = ? AND state = ?
		 ORDER BY scheduled_for ASC, id ASC`,
		owner.UserID, owner.TeamID, string(core.StatePending))
}

func (s *Store) FindDue(ctx context.Context, now time.Time, limit int) ([]core.ScheduledMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, "find due",
		`SELECT `+messageColumns+` FROM scheduled_messages
		 WHERE state = ? AND scheduled_for <= ?
		 ORDER BY scheduled_for ASC, id ASC
		 LIMIT ?`,
		string(core.StatePending), now.UTC().UnixNano(), limit)
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]core.ScheduledMessage, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []core.ScheduledMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	now := s.now().UTC().UnixNano()
	return s.transition(ctx, "mark sent", id,
		`UPDATE scheduled_messages SET state = ?, sent_at = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(core.StateSent), now, now, id, string(core.StatePending))
}

func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	now := s.now().UTC().UnixNano()
	return s.transition(ctx, "mark failed", id,
		`UPDATE scheduled_messages SET state = ?, last_error = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND state = ?`,
		string(core.StateFailed), reason, now, id, string(core.StatePending))
}

func (s *Store) Cancel(ctx context.Context, id int64) error {
	now := s.now().UTC().UnixNano()
	return s.transition(ctx, "cancel", id,
		`UPDATE scheduled_messages SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(core.StateCancelled), now, id, string(core.StatePending))
}

// transition runs a conditional update and, when it changed nothing, tells
// a missing id apart from a message that is already terminal.
func (s *Store) transition(ctx context.Context, op string, id int64, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", op, id, err)
	}
	if n == 1 {
		return nil
	}

	var state string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM scheduled_messages WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", op, id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	return fmt.Errorf("%s: %w", op, &core.TerminalError{ID: id, State: core.State(state)})
}

func (s *Store) RecordAttempt(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ? AND state = ?`,
		reason, s.now().UTC().UnixNano(), id, string(core.StatePending))
	if err != nil {
		return fmt.Errorf("record attempt %d: %w", id, err)
	}
	return nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
