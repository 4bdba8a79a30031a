package store

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pavelanni/academy/internal/model"
)

const userColumns = `id, username, email, name, phone, password_hash, role, active, created_at`

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	if err := sc.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.Phone,
		&u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user and returns its id.
func (s *Store) CreateUser(ctx context.Context, u model.User) (string, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users (id, username, email, name, phone, password_hash, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.Name, u.Phone, u.PasswordHash, u.Role, u.Active, now(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return "", mapErr(err)
	}
	slog.Info("created user", "id", u.ID, "username", u.Username, "role", u.Role)
	return u.ID, nil
}

// GetUserByUsername returns a user by username, or nil if none exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetUserByID returns a user by ID, or nil if none exists.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUsers returns all users, optionally restricted to one role.
func (s *Store) ListUsers(ctx context.Context, role model.UserRole) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateProfile changes a user's contact details.
func (s *Store) UpdateProfile(ctx context.Context, id, name, phone, email string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET name = ?, phone = ?, email = ? WHERE id = ?`,
		name, phone, email, id)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

// SetPassword replaces a user's password hash.
func (s *Store) SetPassword(ctx context.Context, id, hash string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ToggleUserActive flips the active flag on a user.
func (s *Store) ToggleUserActive(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET active = NOT active WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

// expectOne returns ErrNotFound unless exactly one row changed.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
