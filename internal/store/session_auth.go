package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pavelanni/academy/internal/model"
)

// CreateAuthSession records a new token session for a user. The returned id
// becomes the token's jti.
func (s *Store) CreateAuthSession(ctx context.Context, userID string, ttl time.Duration) (*model.AuthSession, error) {
	t := now()
	sess := &model.AuthSession{
		ID:        newID(),
		UserID:    userID,
		CreatedAt: t,
		ExpiresAt: t.Add(ttl),
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return sess, nil
}

// GetAuthSession returns the auth session with the given id, or nil if it is
// missing or expired.
func (s *Store) GetAuthSession(ctx context.Context, id string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(ctx, id)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession revokes a session.
func (s *Store) DeleteAuthSession(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, id)
	return err
}

// DeleteUserSessions revokes every session of a user.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM auth_sessions WHERE user_id = ?`, userID)
	return err
}

// CleanupExpiredSessions removes all expired auth sessions.
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < ?`, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
