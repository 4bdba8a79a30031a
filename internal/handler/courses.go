package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

type courseRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Subject     string `json:"subject" validate:"omitempty,max=100"`
	TeacherID   string `json:"teacher_id"`
	MaxStudents int    `json:"max_students" validate:"gte=0"`
	StartDate   string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Active      *bool  `json:"is_active"`
	Description string `json:"description"`
}

// handleListCourses lists all courses, or a teacher's own with ?mine=true.
func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	teacherID := r.URL.Query().Get("teacher_id")
	if r.URL.Query().Get("mine") == "true" {
		teacherID = principal(r).UserID
	}
	courses, err := h.store.ListCourses(r.Context(), teacherID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", courses)
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := principal(r)
	c := model.Course{
		Name:        req.Name,
		Subject:     req.Subject,
		TeacherID:   req.TeacherID,
		MaxStudents: req.MaxStudents,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Active:      req.Active == nil || *req.Active,
		Description: req.Description,
	}
	// Teachers create courses for themselves.
	if p.Role == model.UserRoleTeacher || c.TeacherID == "" {
		c.TeacherID = p.UserID
	}
	created, err := h.store.CreateCourse(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", created)
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCourse(r.Context(), urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", c)
}

func (h *Handler) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.store.GetCourse(ctx, urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.store.ListCourseEnrollments(ctx, c.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", list)
}

type enrollRequest struct {
	TraineeID string `json:"trainee_id" validate:"required"`
}

// handleEnroll adds a trainee to a course, respecting max_students when set.
func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	var enrollment *model.Enrollment
	err := h.store.InTx(ctx, func(tx *store.Store) error {
		c, err := tx.GetCourse(ctx, urlID(r))
		if err != nil {
			return err
		}
		if c.MaxStudents > 0 {
			existing, err := tx.ListCourseEnrollments(ctx, c.ID)
			if err != nil {
				return err
			}
			active := 0
			for _, e := range existing {
				if e.Status == model.EnrollmentActive {
					active++
				}
			}
			if active >= c.MaxStudents {
				return model.Invalid("course_id", "course_full")
			}
		}
		enrollment, err = tx.Enroll(ctx, req.TraineeID, c.ID)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Enrolled", enrollment)
}

type enrollmentStatusRequest struct {
	Status model.EnrollmentStatus `json:"status" validate:"required,oneof=active completed dropped"`
}

func (h *Handler) handleSetEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	var req enrollmentStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.store.SetEnrollmentStatus(r.Context(), chi.URLParam(r, "traineeID"), urlID(r), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", nil)
}

type employmentRequest struct {
	CompanyName    string `json:"company_name" validate:"required,max=200"`
	Position       string `json:"position" validate:"omitempty,max=100"`
	EmploymentType string `json:"employment_type" validate:"omitempty,oneof=full_time part_time contract self_employed"`
	StartDate      string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Verified       bool   `json:"verified"`
	Notes          string `json:"notes"`
}

func (h *Handler) handleListEmployments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tr, err := h.store.GetTrainee(ctx, urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.store.ListEmployments(ctx, tr.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", list)
}

// handleCreateEmployment records a placement; the store also updates the
// trainee's employment status.
func (h *Handler) handleCreateEmployment(w http.ResponseWriter, r *http.Request) {
	var req employmentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	tr, err := h.store.GetTrainee(ctx, urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.store.CreateEmployment(ctx, model.Employment{
		TraineeID:      tr.ID,
		CounselorID:    principal(r).UserID,
		CompanyName:    req.CompanyName,
		Position:       req.Position,
		EmploymentType: req.EmploymentType,
		StartDate:      req.StartDate,
		Verified:       req.Verified,
		Notes:          req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", e)
}
