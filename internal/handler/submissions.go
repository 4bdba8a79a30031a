package handler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/pavelanni/academy/internal/exam"
	"github.com/pavelanni/academy/internal/handler/views"
)

func (h *Handler) handleAvailableExams(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Available(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", list)
}

// clientIP returns the host part of RemoteAddr, which middleware.RealIP has
// already resolved from trusted proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Start(r.Context(), principal(r), urlID(r), exam.ClientInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msgID := "ExamStarted"
	if sess.Resumed {
		msgID = "ExamResumed"
	}
	h.ok(w, r, msgID, sess)
}

type submitRequest struct {
	Answers          map[string]json.RawMessage `json:"answers" validate:"required"`
	TimeTaken        int                        `json:"time_taken" validate:"gte=0"`
	BrowserExitCount int                        `json:"browser_exit_count" validate:"gte=0"`
}

func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.Submit(r.Context(), principal(r), urlID(r), exam.SubmitInput{
		Answers:          req.Answers,
		TimeTaken:        req.TimeTaken,
		BrowserExitCount: req.BrowserExitCount,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "ExamSubmitted", res)
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Result(r.Context(), principal(r), urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "", view)
}

// handleSubmissionReport renders a printable result sheet in the request
// language. Access rules are the same as for the JSON result.
func (h *Handler) handleSubmissionReport(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Result(r.Context(), principal(r), urlID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultReport(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

type gradeRequest struct {
	Scores   map[string]float64 `json:"scores" validate:"required"`
	Comments map[string]string  `json:"comments"`
	Feedback string             `json:"feedback"`
}

func (h *Handler) handleGradeSubmission(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.engine.Grade(r.Context(), principal(r), urlID(r), exam.ManualGradeInput{
		Scores:   req.Scores,
		Comments: req.Comments,
		Feedback: req.Feedback,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, "GradeSaved", sub)
}
