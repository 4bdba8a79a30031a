package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

// requireAuth is middleware that checks for a valid bearer token backed by a
// live auth session, and resolves the caller into a model.Principal.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || raw == "" {
			h.fail(w, r, errUnauthorized)
			return
		}
		claims, err := h.issuer.Parse(strings.TrimSpace(raw))
		if err != nil {
			slog.Debug("rejected token", "error", err)
			h.fail(w, r, errUnauthorized)
			return
		}

		ctx := r.Context()
		authSess, err := h.store.GetAuthSession(ctx, claims.ID)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			h.fail(w, r, err)
			return
		}
		if authSess == nil || authSess.UserID != claims.Subject {
			h.fail(w, r, errUnauthorized)
			return
		}

		user, err := h.store.GetUserByID(ctx, authSess.UserID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if user == nil || !user.Active {
			h.fail(w, r, errUnauthorized)
			return
		}

		p := model.Principal{UserID: user.ID, Role: user.Role}
		if user.Role == model.UserRoleStudent {
			tr, err := h.store.GetTraineeByUserID(ctx, user.ID)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			if tr != nil {
				p.TraineeID = tr.ID
			}
		}

		ctx = model.ContextWithUser(ctx, user)
		ctx = model.ContextWithPrincipal(ctx, p)
		ctx = model.ContextWithAuthSession(ctx, authSess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := model.PrincipalFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, envelope{Message: message(r, "Unauthorized")})
				return
			}
			for _, role := range allowed {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, envelope{Message: message(r, "Forbidden")})
		})
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	User      *model.User `json:"user"`
	TraineeID string      `json:"trainee_id,omitempty"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		h.fail(w, r, err)
		return
	}
	if user == nil {
		h.fail(w, r, errInvalidCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Info("failed login", "username", req.Username)
		h.fail(w, r, errInvalidCredentials)
		return
	}
	if !user.Active {
		h.fail(w, r, errAccountInactive)
		return
	}

	resp, err := h.issueToken(r, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)
	h.ok(w, r, "LoggedIn", resp)
}

func (h *Handler) issueToken(r *http.Request, user *model.User) (*tokenResponse, error) {
	sess, err := h.store.CreateAuthSession(r.Context(), user.ID, h.config.TokenTTL)
	if err != nil {
		return nil, err
	}
	token, err := h.issuer.Issue(user, sess)
	if err != nil {
		return nil, err
	}
	resp := &tokenResponse{User: user, Token: token, ExpiresAt: sess.ExpiresAt}
	if user.Role == model.UserRoleStudent {
		if tr, err := h.store.GetTraineeByUserID(r.Context(), user.ID); err == nil && tr != nil {
			resp.TraineeID = tr.ID
		}
	}
	return resp, nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAuthSession(r.Context(), model.AuthSessionFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "LoggedOut", nil)
}

type meResponse struct {
	*model.User
	TraineeID string `json:"trainee_id,omitempty"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	h.ok(w, r, "", meResponse{
		User:      model.UserFromContext(r.Context()),
		TraineeID: principal(r).TraineeID,
	})
}

type profileRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"omitempty,max=30"`
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := principal(r)
	if err := h.store.UpdateProfile(r.Context(), p.UserID, req.Name, req.Phone, req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// handleChangePassword revokes every session of the user and returns a
// fresh token for the caller.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user := model.UserFromContext(r.Context())
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		h.fail(w, r, errWrongPassword)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.SetPassword(r.Context(), user.ID, string(hash)); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteUserSessions(r.Context(), user.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.issueToken(r, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	slog.Info("password changed", "user_id", user.ID)
	h.ok(w, r, "PasswordChanged", resp)
}

type registerRequest struct {
	Username  string         `json:"username" validate:"required,min=3,max=50"`
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required,min=8,max=72"`
	Name      string         `json:"name" validate:"required,max=100"`
	Phone     string         `json:"phone" validate:"omitempty,max=30"`
	Role      model.UserRole `json:"role" validate:"required,oneof=admin manager teacher student"`
	TraineeID string         `json:"trainee_id"`
}

// handleRegister creates a login. A student login may be linked to an
// existing trainee profile in the same transaction.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.TraineeID != "" && req.Role != model.UserRoleStudent {
		h.fail(w, r, model.Invalid("trainee_id", "student_only"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var user *model.User
	err = h.store.InTx(r.Context(), func(tx *store.Store) error {
		id, err := tx.CreateUser(r.Context(), model.User{
			Username:     req.Username,
			Email:        req.Email,
			Name:         req.Name,
			Phone:        req.Phone,
			PasswordHash: string(hash),
			Role:         req.Role,
			Active:       true,
		})
		if err != nil {
			return err
		}
		if req.TraineeID != "" {
			tr, err := tx.GetTrainee(r.Context(), req.TraineeID)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return model.Invalid("trainee_id", "exists")
				}
				return err
			}
			if tr.UserID != "" {
				return model.ErrConflict
			}
			tr.UserID = id
			if err := tx.UpdateTrainee(r.Context(), *tr); err != nil {
				return err
			}
		}
		user, err = tx.GetUserByID(r.Context(), id)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", user)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := model.UserRole(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		h.fail(w, r, model.Invalid("role", "oneof"))
		return
	}
	users, err := h.store.ListUsers(r.Context(), role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", users)
}

func (h *Handler) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if id == principal(r).UserID {
		h.fail(w, r, model.Invalid("id", "self"))
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteUserSessions(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", user)
}
