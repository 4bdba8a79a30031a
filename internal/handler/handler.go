package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/academy/internal/auth"
	"github.com/pavelanni/academy/internal/exam"
	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/pdfimport"
	"github.com/pavelanni/academy/internal/store"
)

// Analyzer summarizes consultation records.
type Analyzer interface {
	AnalyzeConsultation(ctx context.Context, content, lang string) (*model.ConsultationAnalysis, error)
}

// Config holds HTTP-level settings.
type Config struct {
	TokenTTL       time.Duration
	MaxUploadBytes int64
	LoginRate      int // login attempts per IP per minute
}

// Deps are the services the handlers call into. Analyzer may be nil when no
// LLM is configured.
type Deps struct {
	Store    *store.Store
	Engine   *exam.Engine
	Issuer   *auth.Issuer
	Importer *pdfimport.Importer
	Analyzer Analyzer
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	engine   *exam.Engine
	issuer   *auth.Issuer
	importer *pdfimport.Importer
	analyzer Analyzer
	validate *validator.Validate
	config   Config
	now      func() time.Time
}

// New creates a new Handler.
func New(d Deps, cfg Config) (*Handler, error) {
	if d.Store == nil || d.Engine == nil || d.Issuer == nil || d.Importer == nil {
		return nil, errors.New("handler: store, engine, issuer and importer are required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 10
	}
	return &Handler{
		store:    d.Store,
		engine:   d.Engine,
		issuer:   d.Issuer,
		importer: d.Importer,
		analyzer: d.Analyzer,
		validate: newValidator(),
		config:   cfg,
		now:      time.Now,
	}, nil
}

var (
	staffRoles   = []model.UserRole{model.UserRoleAdmin, model.UserRoleManager, model.UserRoleTeacher}
	teacherRoles = []model.UserRole{model.UserRoleAdmin, model.UserRoleTeacher}
)

// Routes registers all HTTP routes under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.With(httprate.LimitByIP(h.config.LoginRate, time.Minute)).Post("/login", h.handleLogin)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Post("/logout", h.handleLogout)
				r.Get("/me", h.handleMe)
				r.Put("/profile", h.handleUpdateProfile)
				r.Put("/change-password", h.handleChangePassword)
				r.With(requireRole(model.UserRoleAdmin)).Post("/register", h.handleRegister)
				r.With(requireRole(model.UserRoleAdmin)).Get("/users", h.handleListUsers)
				r.With(requireRole(model.UserRoleAdmin)).Put("/users/{id}/toggle-active", h.handleToggleUser)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Route("/students", func(r chi.Router) {
				r.Use(requireRole(staffRoles...))
				r.Get("/stats/overview", h.handleStudentStats)
				r.Get("/", h.handleListStudents)
				r.Post("/", h.handleCreateStudent)
				r.Get("/{id}", h.handleGetStudent)
				r.Put("/{id}", h.handleUpdateStudent)
				r.With(requireRole(model.UserRoleAdmin)).Delete("/{id}", h.handleDeleteStudent)
				r.Get("/{id}/employments", h.handleListEmployments)
				r.Post("/{id}/employments", h.handleCreateEmployment)
			})

			r.Route("/courses", func(r chi.Router) {
				r.Use(requireRole(staffRoles...))
				r.Get("/", h.handleListCourses)
				r.Post("/", h.handleCreateCourse)
				r.Get("/{id}", h.handleGetCourse)
				r.Get("/{id}/enrollments", h.handleListEnrollments)
				r.Post("/{id}/enrollments", h.handleEnroll)
				r.Put("/{id}/enrollments/{traineeID}", h.handleSetEnrollmentStatus)
			})

			r.Route("/consultations", func(r chi.Router) {
				r.Use(requireRole(staffRoles...))
				r.Get("/upcoming/follow-ups", h.handleUpcomingFollowUps)
				r.Get("/today", h.handleTodayConsultations)
				r.Get("/stats/overview", h.handleConsultationStats)
				r.Post("/analyze", h.handleAnalyzeConsultation)
				r.Get("/", h.handleListConsultations)
				r.Post("/", h.handleCreateConsultation)
				r.Get("/{id}", h.handleGetConsultation)
				r.Put("/{id}", h.handleUpdateConsultation)
				r.Delete("/{id}", h.handleDeleteConsultation)
			})

			r.Route("/exam-questions", func(r chi.Router) {
				r.Get("/{id}", h.handleGetQuestion)
				r.Group(func(r chi.Router) {
					r.Use(requireRole(teacherRoles...))
					r.Get("/stats/overview", h.handleQuestionStats)
					r.Post("/upload-pdf", h.handleUploadPDF)
					r.Post("/batch", h.handleBatchCreateQuestions)
					r.Get("/", h.handleListQuestions)
					r.Post("/", h.handleCreateQuestion)
					r.Put("/{id}", h.handleUpdateQuestion)
					r.Delete("/{id}", h.handleDeleteQuestion)
				})
			})

			r.Route("/exams", func(r chi.Router) {
				r.Use(requireRole(teacherRoles...))
				r.Get("/", h.handleListExams)
				r.Post("/", h.handleCreateExam)
				r.Get("/{id}", h.handleGetExam)
				r.Put("/{id}", h.handleUpdateExam)
				r.Delete("/{id}", h.handleDeleteExam)
				r.Get("/{id}/submissions", h.handleExamSubmissions)
				r.Get("/{id}/export", h.handleExportExam)
			})

			r.Route("/exam-submissions", func(r chi.Router) {
				r.With(requireRole(model.UserRoleStudent)).Get("/available", h.handleAvailableExams)
				r.With(requireRole(model.UserRoleStudent)).Post("/{id}/start", h.handleStartExam)
				r.With(requireRole(model.UserRoleStudent)).Post("/{id}/submit", h.handleSubmitExam)
				r.Get("/{id}", h.handleGetSubmission)
				r.Get("/{id}/report", h.handleSubmissionReport)
				r.With(requireRole(teacherRoles...)).Put("/{id}/grade", h.handleGradeSubmission)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.ok(w, r, "", map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC(),
	})
}
