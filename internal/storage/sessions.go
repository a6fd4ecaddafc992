package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nelfy/internal/core"
	"nelfy/internal/session"
)

// Sessions persists browser sessions in sqlite.
type Sessions struct {
	db *sql.DB
}

var _ session.Store = (*Sessions)(nil)

// Sessions returns the session repository of d.
func (d *DB) Sessions() *Sessions {
	return &Sessions{db: d.db}
}

const upsertSession = `
INSERT INTO sessions (id, token, user_id, user_name, user_email, user_role, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    token = excluded.token,
    user_name = excluded.user_name,
    user_email = excluded.user_email,
    user_role = excluded.user_role,
    expires_at = excluded.expires_at`

func (r *Sessions) Save(ctx context.Context, s session.Session) error {
	_, err := r.db.ExecContext(ctx, upsertSession,
		s.ID, s.Token, s.User.ID, s.User.Name, s.User.Email, string(s.User.Role),
		s.CreatedAt.Unix(), s.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *Sessions) Get(ctx context.Context, id string) (session.Session, error) {
	var (
		s                  session.Session
		role               string
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, token, user_id, user_name, user_email, user_role, created_at, expires_at
FROM sessions WHERE id = ?`, id).Scan(
		&s.ID, &s.Token, &s.User.ID, &s.User.Name, &s.User.Email, &role, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	s.User.Role = core.Role(role).Normalize()
	s.CreatedAt = time.Unix(created, 0)
	s.ExpiresAt = time.Unix(expiresAt, 0)
	return s, nil
}

func (r *Sessions) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// CountActive returns the number of sessions still valid at now.
func (r *Sessions) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE expires_at > ?`, now.Unix()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
