package handler

import (
	"net/http"

	"github.com/pavelanni/academy/internal/model"
)

type traineeRequest struct {
	Name              string                 `json:"name" validate:"required,max=50"`
	TraineeNumber     string                 `json:"trainee_number" validate:"required,max=20"`
	TraineeType       model.TraineeType      `json:"trainee_type" validate:"omitempty,oneof=employed job_seeker"`
	CourseType        string                 `json:"course_type" validate:"omitempty,max=100"`
	Phone             string                 `json:"phone" validate:"omitempty,max=20"`
	Email             string                 `json:"email" validate:"omitempty,email"`
	BirthDate         string                 `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address           string                 `json:"address" validate:"omitempty,max=255"`
	Status            model.TraineeStatus    `json:"status" validate:"omitempty,oneof=waiting active completed dropped expelled"`
	EnrollmentDate    string                 `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
	CompletionDate    string                 `json:"completion_date" validate:"omitempty,datetime=2006-01-02"`
	EmploymentStatus  model.EmploymentStatus `json:"employment_status" validate:"omitempty,oneof=unemployed employed self_employed"`
	EmploymentCompany string                 `json:"employment_company" validate:"omitempty,max=100"`
	Notes             string                 `json:"notes"`
}

func (req traineeRequest) apply(t *model.Trainee) {
	t.Name = req.Name
	t.TraineeNumber = req.TraineeNumber
	t.CourseType = req.CourseType
	t.Phone = req.Phone
	t.Email = req.Email
	t.BirthDate = req.BirthDate
	t.Address = req.Address
	t.EnrollmentDate = req.EnrollmentDate
	t.CompletionDate = req.CompletionDate
	t.EmploymentCompany = req.EmploymentCompany
	t.Notes = req.Notes
	if req.TraineeType != "" {
		t.TraineeType = req.TraineeType
	}
	if req.Status != "" {
		t.Status = req.Status
	}
	if req.EmploymentStatus != "" {
		t.EmploymentStatus = req.EmploymentStatus
	}
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.TraineeFilter{
		Status:      model.TraineeStatus(q.Get("status")),
		TraineeType: model.TraineeType(q.Get("trainee_type")),
		Search:      q.Get("search"),
	}
	p := parsePage(r)
	trainees, total, err := h.store.ListTrainees(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.list(w, r, trainees, model.NewPagination(total, p))
}

type traineeDetail struct {
	*model.Trainee
	Consultations []model.Consultation `json:"consultations"`
	Enrollments   []model.Enrollment   `json:"enrollments"`
	Employments   []model.Employment   `json:"employments"`
}

func (h *Handler) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tr, err := h.store.GetTrainee(ctx, urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail := traineeDetail{Trainee: tr}
	if detail.Consultations, err = h.store.ListTraineeConsultations(ctx, tr.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	if detail.Enrollments, err = h.store.ListTraineeEnrollments(ctx, tr.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	if detail.Employments, err = h.store.ListEmployments(ctx, tr.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", detail)
}

func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req traineeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var t model.Trainee
	req.apply(&t)
	created, err := h.store.CreateTrainee(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", created)
}

func (h *Handler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req traineeRequest
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
	req.apply(tr)
	if err := h.store.UpdateTrainee(ctx, *tr); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.GetTrainee(ctx, tr.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", updated)
}

func (h *Handler) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteTrainee(r.Context(), urlID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Deleted", nil)
}

func (h *Handler) handleStudentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.TraineeStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", stats)
}
