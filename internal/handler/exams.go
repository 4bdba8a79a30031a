package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pavelanni/academy/internal/model"
)

const defaultTotalScore = 100

type examRequest struct {
	CourseID             string                  `json:"course_id" validate:"required"`
	Title                string                  `json:"title" validate:"required,max=200"`
	Description          string                  `json:"description"`
	ExamType             model.ExamType          `json:"exam_type" validate:"omitempty,oneof=midterm final quiz assignment practice"`
	Questions            []model.ExamQuestionRef `json:"questions" validate:"required,min=1"`
	TotalScore           int                     `json:"total_score" validate:"gte=0"`
	TimeLimit            int                     `json:"time_limit" validate:"gte=0"`
	StartTime            time.Time               `json:"start_time" validate:"required"`
	EndTime              time.Time               `json:"end_time" validate:"required"`
	ShuffleQuestions     bool                    `json:"shuffle_questions"`
	ShowResultsImmediate bool                    `json:"show_results_immediately"`
	AllowReview          *bool                   `json:"allow_review"`
	PreventBrowserExit   bool                    `json:"prevent_browser_exit"`
	Active               *bool                   `json:"is_active"`
}

// checkRefs rejects empty, duplicate or negative-score references.
func checkRefs(refs []model.ExamQuestionRef) error {
	seen := make(map[string]bool, len(refs))
	for i, ref := range refs {
		field := fmt.Sprintf("questions[%d]", i)
		if ref.QuestionID == "" {
			return model.Invalid(field+".question_id", "required")
		}
		if seen[ref.QuestionID] {
			return model.Invalid(field+".question_id", "unique")
		}
		seen[ref.QuestionID] = true
		if ref.Score != nil && *ref.Score < 0 {
			return model.Invalid(field+".score", "gte")
		}
	}
	return nil
}

// buildExam validates the request against the store and returns the exam it
// describes. base carries the fields the request does not set.
func (h *Handler) buildExam(r *http.Request, req examRequest, base model.Exam) (model.Exam, error) {
	if !req.EndTime.After(req.StartTime) {
		return base, model.Invalid("end_time", "gtfield")
	}
	if err := checkRefs(req.Questions); err != nil {
		return base, err
	}
	ctx := r.Context()
	if _, err := h.store.GetCourse(ctx, req.CourseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return base, model.Invalid("course_id", "exists")
		}
		return base, err
	}
	ids := make([]string, len(req.Questions))
	for i, ref := range req.Questions {
		ids[i] = ref.QuestionID
	}
	found, err := h.store.GetQuestions(ctx, ids)
	if err != nil {
		return base, err
	}
	for i, id := range ids {
		if found[id] == nil {
			return base, model.Invalid(fmt.Sprintf("questions[%d].question_id", i), "exists")
		}
	}

	e := base
	e.CourseID = req.CourseID
	e.Title = req.Title
	e.Description = req.Description
	e.ExamType = req.ExamType
	if e.ExamType == "" {
		e.ExamType = model.ExamQuiz
	}
	e.Questions = req.Questions
	e.TotalScore = req.TotalScore
	if e.TotalScore == 0 {
		e.TotalScore = defaultTotalScore
	}
	e.TimeLimit = req.TimeLimit
	e.StartTime = req.StartTime
	e.EndTime = req.EndTime
	e.ShuffleQuestions = req.ShuffleQuestions
	e.ShowResultsImmediate = req.ShowResultsImmediate
	e.PreventBrowserExit = req.PreventBrowserExit
	if req.AllowReview != nil {
		e.AllowReview = *req.AllowReview
	}
	if req.Active != nil {
		e.Active = *req.Active
	}
	return e, nil
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.ExamFilter{
		CourseID: q.Get("course_id"),
		ExamType: model.ExamType(q.Get("exam_type")),
	}
	if p := principal(r); !p.IsAdmin() {
		f.TeacherID = p.UserID
	}
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, model.Invalid("is_active", "boolean"))
			return
		}
		f.Active = &active
	}
	page := parsePage(r)
	list, total, err := h.store.ListExams(r.Context(), f, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.list(w, r, list, model.NewPagination(total, page))
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req examRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.buildExam(r, req, model.Exam{
		TeacherID:   principal(r).UserID,
		AllowReview: true,
		Active:      true,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.store.CreateExam(r.Context(), e)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", created)
}

// ownExam loads an exam the caller may manage.
func (h *Handler) ownExam(r *http.Request) (*model.Exam, error) {
	e, err := h.store.GetExam(r.Context(), urlID(r))
	if err != nil {
		return nil, err
	}
	if !principal(r).CanManage(e.TeacherID) {
		return nil, model.ErrForbidden
	}
	return e, nil
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.ownExam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", e)
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	var req examRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	current, err := h.ownExam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.buildExam(r, req, *current)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if err := h.store.UpdateExam(ctx, e); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.GetExam(ctx, e.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", updated)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.ownExam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteExam(r.Context(), e.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Deleted", nil)
}

func (h *Handler) handleExamSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.engine.Submissions(r.Context(), principal(r), urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", subs)
}

// handleExportExam downloads every result of an exam as a JSON document.
func (h *Handler) handleExportExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.ownExam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	export, err := h.store.ExportExam(r.Context(), e.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="exam-%s.json"`, e.ID))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		slog.Error("encode export", "exam_id", e.ID, "error", err)
	}
}
