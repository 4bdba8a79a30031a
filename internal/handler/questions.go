package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	appI18n "github.com/pavelanni/academy/internal/i18n"
	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/pdfimport"
)

type questionRequest struct {
	CourseID      string             `json:"course_id"`
	Type          model.QuestionType `json:"question_type" validate:"required,oneof=multiple_choice multiple_answer short_answer essay true_false"`
	Difficulty    model.Difficulty   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Text          string             `json:"question_text" validate:"required"`
	Options       []string           `json:"options" validate:"omitempty,max=10,dive,required"`
	CorrectAnswer json.RawMessage    `json:"correct_answer"`
	Explanation   string             `json:"explanation"`
	ScoreWeight   int                `json:"score_weight" validate:"gte=0,lte=100"`
	Tags          []string           `json:"tags" validate:"omitempty,dive,max=50"`
	NCSUnitCode   string             `json:"ncs_unit_code" validate:"omitempty,max=50"`
	Active        *bool              `json:"is_active"`
}

// keyText reads a correct answer given either as a JSON string or as any
// other JSON value such as an array of options.
func keyText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// apply validates the cross-field rules and copies the request onto q.
func (req questionRequest) apply(q *model.Question) error {
	if req.Type.HasOptions() && len(req.Options) < 2 {
		return model.Invalid("options", "min")
	}
	key, err := model.ParseKey(req.Type, keyText(req.CorrectAnswer))
	if err != nil {
		return model.Invalid("correct_answer", "answer_key")
	}

	q.CourseID = req.CourseID
	q.Type = req.Type
	q.Text = req.Text
	q.Options = nil
	if req.Type.HasOptions() {
		q.Options = req.Options
	}
	q.CorrectAnswer = key.Canonical()
	q.Key = key
	q.Explanation = req.Explanation
	q.Tags = req.Tags
	q.NCSUnitCode = req.NCSUnitCode
	q.Difficulty = req.Difficulty
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	q.DefaultWeight = req.ScoreWeight
	if q.DefaultWeight == 0 {
		q.DefaultWeight = pdfimport.DefaultWeight
	}
	if req.Active != nil {
		q.Active = *req.Active
	}
	return nil
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.QuestionFilter{
		CourseID:    q.Get("course_id"),
		Type:        model.QuestionType(q.Get("question_type")),
		Difficulty:  model.Difficulty(q.Get("difficulty")),
		NCSUnitCode: q.Get("ncs_unit_code"),
		Search:      q.Get("search"),
	}
	if p := principal(r); !p.IsAdmin() {
		f.TeacherID = p.UserID
	}
	if f.Type != "" && !f.Type.Valid() {
		h.fail(w, r, model.Invalid("question_type", "oneof"))
		return
	}
	page := parsePage(r)
	list, total, err := h.store.ListQuestions(r.Context(), f, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.list(w, r, list, model.NewPagination(total, page))
}

// handleGetQuestion serves a question. Students get only active questions
// and never see the answer key.
func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.store.GetQuestion(r.Context(), urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if p := principal(r); !p.IsStaff() {
		if !q.Active {
			h.fail(w, r, model.ErrNotFound)
			return
		}
		h.ok(w, r, "", q.Redacted())
		return
	}
	h.ok(w, r, "", q)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q := model.Question{TeacherID: principal(r).UserID, Active: true}
	if err := req.apply(&q); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.store.CreateQuestion(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", created)
}

type batchQuestionsRequest struct {
	Questions []questionRequest `json:"questions" validate:"required,min=1,max=200,dive"`
}

// handleBatchCreateQuestions stores reviewed import drafts. Either every
// question is saved or none is.
func (h *Handler) handleBatchCreateQuestions(w http.ResponseWriter, r *http.Request) {
	var req batchQuestionsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	teacherID := principal(r).UserID
	qs := make([]model.Question, len(req.Questions))
	for i, qr := range req.Questions {
		qs[i] = model.Question{TeacherID: teacherID, Active: true}
		if err := qr.apply(&qs[i]); err != nil {
			h.fail(w, r, prefixFields(err, fmt.Sprintf("questions[%d].", i)))
			return
		}
	}
	created, err := h.store.CreateQuestions(r.Context(), qs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: appI18n.Tp(r.Context(), "QuestionsImported", len(created)),
		Data:    created,
	})
}

func prefixFields(err error, prefix string) error {
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	out := &model.ValidationError{Fields: make([]model.FieldError, len(ve.Fields))}
	for i, f := range ve.Fields {
		out.Fields[i] = model.FieldError{Field: prefix + f.Field, Tag: f.Tag}
	}
	return out
}

// ownQuestion loads a question the caller may modify.
func (h *Handler) ownQuestion(r *http.Request) (*model.Question, error) {
	q, err := h.store.GetQuestion(r.Context(), urlID(r))
	if err != nil {
		return nil, err
	}
	if !principal(r).CanManage(q.TeacherID) {
		return nil, model.ErrForbidden
	}
	return q, nil
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.ownQuestion(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.apply(q); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if err := h.store.UpdateQuestion(ctx, *q); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.GetQuestion(ctx, q.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", updated)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.ownQuestion(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteQuestion(r.Context(), q.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Deleted", nil)
}

func (h *Handler) handleQuestionStats(w http.ResponseWriter, r *http.Request) {
	teacherID := ""
	if p := principal(r); !p.IsAdmin() {
		teacherID = p.UserID
	}
	stats, err := h.store.QuestionStats(r.Context(), teacherID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", stats)
}

// handleUploadPDF extracts question drafts from an uploaded exam paper. The
// drafts are returned for review; nothing is stored until the batch call.
func (h *Handler) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, r, model.Invalid("pdf", "max_size"))
			return
		}
		h.fail(w, r, model.Invalid("pdf", "multipart"))
		return
	}
	file, header, err := r.FormFile("pdf")
	if err != nil {
		h.fail(w, r, model.Invalid("pdf", "required"))
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		h.fail(w, r, model.Invalid("pdf", "pdf_file"))
		return
	}

	force := r.FormValue("force") == "true"
	res, err := h.importer.Import(r.Context(), pdfimport.Upload{
		Filename:  header.Filename,
		TeacherID: principal(r).UserID,
		Body:      file,
		Force:     force,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	msg := appI18n.Tp(r.Context(), "QuestionsImported", res.TotalQuestions)
	if res.Duplicate && !force {
		msg = appI18n.Td(r.Context(), "DuplicateUpload", map[string]any{
			"Date": res.PreviousImport.Format("2006-01-02 15:04"),
		})
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: res})
}
