package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleAdmin can manage every record.
	UserRoleAdmin UserRole = "admin"
	// UserRoleManager is academy office staff.
	UserRoleManager UserRole = "manager"
	// UserRoleTeacher owns courses, questions and exams.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleStudent is a login linked to a trainee profile.
	UserRoleStudent UserRole = "student"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleTeacher, UserRoleStudent:
		return true
	}
	return false
}

// User represents a login identity.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an issued token. Deleting the row revokes the token.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Principal is the authenticated caller of an operation. TraineeID is set
// only for student logins linked to a trainee profile.
type Principal struct {
	UserID    string
	Role      UserRole
	TraineeID string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == UserRoleAdmin }

// IsStaff reports whether the principal is academy staff (not a student).
func (p Principal) IsStaff() bool {
	return p.Role == UserRoleAdmin || p.Role == UserRoleManager || p.Role == UserRoleTeacher
}

// CanManage reports whether the principal may modify a record owned by ownerID.
func (p Principal) CanManage(ownerID string) bool {
	return p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID)
}

type principalCtxKey struct{}

// ContextWithPrincipal stores the caller in the request context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext retrieves the caller from context. ok is false for
// unauthenticated requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type authSessionCtxKey struct{}

// ContextWithAuthSession stores the token's session id in context.
func ContextWithAuthSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, authSessionCtxKey{}, id)
}

// AuthSessionFromContext retrieves the session id of the current token.
func AuthSessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(authSessionCtxKey{}).(string)
	return id
}

// Page describes a slice of a list query.
type Page struct {
	Limit  int
	Offset int
	SortBy string
	Order  string // asc or desc
}

// Pagination is returned alongside list results.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes page metadata for a total row count.
func NewPagination(total int, p Page) Pagination {
	limit := p.Limit
	if limit <= 0 {
		limit = 1
	}
	pages := (total + limit - 1) / limit
	return Pagination{
		Total:      total,
		Page:       p.Offset/limit + 1,
		Limit:      p.Limit,
		TotalPages: pages,
	}
}

// CountBy is one bucket of a grouped count.
type CountBy struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
