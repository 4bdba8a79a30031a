package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	appI18n "github.com/pavelanni/academy/internal/i18n"
	"github.com/pavelanni/academy/internal/model"
)

const maxBodyBytes = 1 << 20

var (
	errUnauthorized       = errors.New("unauthorized")
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountInactive    = errors.New("account inactive")
	errWrongPassword      = errors.New("wrong password")
)

// envelope is the body of every JSON response.
type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Data       any               `json:"data,omitempty"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func message(r *http.Request, msgID string) string {
	if msgID == "" {
		return ""
	}
	return appI18n.T(r.Context(), msgID)
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, msgID string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message(r, msgID), Data: data})
}

func (h *Handler) created(w http.ResponseWriter, r *http.Request, msgID string, data any) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: message(r, msgID), Data: data})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, data any, pg model.Pagination) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &pg})
}

// fail maps an error onto a status code and localized message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := classify(err)
	body := envelope{Message: message(r, msgID)}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body.Errors = make(map[string]string, len(ve.Fields))
		for _, f := range ve.Fields {
			body.Errors[f.Field] = f.Tag
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "ValidationFailed"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, model.ErrOutsideWindow):
		return http.StatusForbidden, "OutsideWindow"
	case errors.Is(err, model.ErrExamInactive):
		return http.StatusForbidden, "ExamInactive"
	case errors.Is(err, model.ErrAlreadyCompleted):
		return http.StatusForbidden, "AlreadyCompleted"
	case errors.Is(err, model.ErrAlreadySubmitted):
		return http.StatusForbidden, "AlreadySubmitted"
	case errors.Is(err, model.ErrNotSubmitted):
		return http.StatusForbidden, "NotSubmitted"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable, "Unavailable"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, errInvalidCredentials):
		return http.StatusUnauthorized, "InvalidCredentials"
	case errors.Is(err, errAccountInactive):
		return http.StatusForbidden, "AccountInactive"
	case errors.Is(err, errWrongPassword):
		return http.StatusBadRequest, "WrongPassword"
	}
	return http.StatusInternalServerError, "InternalError"
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names rather than Go names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		return model.Invalid("body", "json")
	}
	return h.check(v)
}

// check runs struct validation and converts failures to a ValidationError.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &model.ValidationError{}
	for _, fe := range verrs {
		field := fe.Namespace()
		// Drop the struct type prefix.
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		ve.Fields = append(ve.Fields, model.FieldError{Field: field, Tag: fe.Tag()})
	}
	return ve
}

const (
	defaultLimit = 20
	maxLimit     = 100
	maxPage      = math.MaxInt / maxLimit
)

// parsePage reads page, limit, sort_by and order query parameters.
func parsePage(r *http.Request) model.Page {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	order := strings.ToLower(q.Get("order"))
	if order != "asc" {
		order = "desc"
	}
	return model.Page{
		Limit:  limit,
		Offset: (page - 1) * limit,
		SortBy: q.Get("sort_by"),
		Order:  order,
	}
}

func principal(r *http.Request) model.Principal {
	p, _ := model.PrincipalFromContext(r.Context())
	return p
}

func urlID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
