package handler

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	appI18n "github.com/pavelanni/academy/internal/i18n"
	"github.com/pavelanni/academy/internal/model"
)

const followUpWindow = 7 * 24 * time.Hour

type consultationRequest struct {
	TraineeID        string              `json:"trainee_id" validate:"required"`
	ConsultDate      *time.Time          `json:"consult_date"`
	Phase            model.ConsultPhase  `json:"phase" validate:"omitempty,oneof=pre_admission during_training post_training employment"`
	ContactMethod    string              `json:"contact_method" validate:"omitempty,max=50"`
	Category         string              `json:"category" validate:"required"`
	Content          string              `json:"content" validate:"required"`
	Importance       int                 `json:"importance" validate:"omitempty,min=1,max=5"`
	Status           model.ConsultStatus `json:"status" validate:"omitempty,oneof=pending completed scheduled cancelled"`
	NextFollowUp     *time.Time          `json:"next_follow_up_date"`
	FollowUpReminder bool                `json:"follow_up_reminder"`
}

func (req consultationRequest) apply(c *model.Consultation) error {
	if !slices.Contains(model.ConsultCategories, req.Category) {
		return model.Invalid("category", "oneof")
	}
	c.Category = req.Category
	c.Content = req.Content
	c.ContactMethod = req.ContactMethod
	c.NextFollowUp = req.NextFollowUp
	c.FollowUpReminder = req.FollowUpReminder && req.NextFollowUp != nil
	if req.ConsultDate != nil {
		c.ConsultDate = *req.ConsultDate
	}
	c.Phase = req.Phase
	if c.Phase == "" {
		c.Phase = model.PhaseDuringTraining
	}
	c.Status = req.Status
	if c.Status == "" {
		c.Status = model.ConsultCompleted
	}
	c.Importance = req.Importance
	if c.Importance == 0 {
		c.Importance = 3
	}
	return nil
}

// counselorScope returns the counselor id a caller's queries are limited to.
// Admins see every counselor's records.
func counselorScope(p model.Principal) string {
	if p.IsAdmin() {
		return ""
	}
	return p.UserID
}

func (h *Handler) handleListConsultations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.ConsultationFilter{
		TraineeID:   q.Get("student_id"),
		CounselorID: counselorScope(principal(r)),
		Category:    q.Get("category"),
		Status:      model.ConsultStatus(q.Get("status")),
		Search:      q.Get("search"),
	}
	if f.Category != "" && !slices.Contains(model.ConsultCategories, f.Category) {
		h.fail(w, r, model.Invalid("category", "oneof"))
		return
	}
	if v := q.Get("min_importance"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 5 {
			h.fail(w, r, model.Invalid("min_importance", "range"))
			return
		}
		f.MinImportance = n
	}
	var err error
	if f.From, err = queryDate(r, "start_date", false); err != nil {
		h.fail(w, r, err)
		return
	}
	if f.To, err = queryDate(r, "end_date", true); err != nil {
		h.fail(w, r, err)
		return
	}

	p := parsePage(r)
	list, total, err := h.store.ListConsultations(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.list(w, r, list, model.NewPagination(total, p))
}

// queryDate parses a YYYY-MM-DD query parameter. With endOfDay the result is
// the last instant of that day.
func queryDate(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, model.Invalid(name, "datetime")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) handleCreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := model.Consultation{TraineeID: req.TraineeID, CounselorID: principal(r).UserID}
	if err := req.apply(&c); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if _, err := h.store.GetTrainee(ctx, req.TraineeID); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.store.CreateConsultation(ctx, c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, "Created", created)
}

// ownConsultation loads a consultation the caller may manage.
func (h *Handler) ownConsultation(r *http.Request) (*model.Consultation, error) {
	c, err := h.store.GetConsultation(r.Context(), urlID(r))
	if err != nil {
		return nil, err
	}
	if !principal(r).CanManage(c.CounselorID) {
		return nil, model.ErrForbidden
	}
	return c, nil
}

func (h *Handler) handleGetConsultation(w http.ResponseWriter, r *http.Request) {
	c, err := h.ownConsultation(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", c)
}

func (h *Handler) handleUpdateConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.ownConsultation(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.TraineeID != c.TraineeID {
		h.fail(w, r, model.Invalid("trainee_id", "immutable"))
		return
	}
	if err := req.apply(c); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if err := h.store.UpdateConsultation(ctx, *c); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.GetConsultation(ctx, c.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Updated", updated)
}

func (h *Handler) handleDeleteConsultation(w http.ResponseWriter, r *http.Request) {
	c, err := h.ownConsultation(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteConsultation(r.Context(), c.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "Deleted", nil)
}

func (h *Handler) handleUpcomingFollowUps(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	list, err := h.store.UpcomingFollowUps(r.Context(), counselorScope(principal(r)), now, now.Add(followUpWindow))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", list)
}

func (h *Handler) handleTodayConsultations(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	list, err := h.store.ConsultationsBetween(r.Context(), counselorScope(principal(r)), day, day.AddDate(0, 0, 1))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", list)
}

func (h *Handler) handleConsultationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.ConsultationStats(r.Context(), counselorScope(principal(r)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", stats)
}

type analyzeRequest struct {
	Content string `json:"content" validate:"required"`
}

// handleAnalyzeConsultation summarizes a consultation text with the LLM. The
// response language follows the request locale.
func (h *Handler) handleAnalyzeConsultation(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.analyzer == nil {
		h.fail(w, r, model.ErrUnavailable)
		return
	}
	res, err := h.analyzer.AnalyzeConsultation(r.Context(), req.Content, appI18n.Lang(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "AnalysisDone", res)
}
