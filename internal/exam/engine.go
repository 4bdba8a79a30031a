// Package exam runs exam sessions: listing available exams, starting a
// session, submitting answers for grading, manual grading and result views.
//
// Every operation takes the caller as an explicit model.Principal. Each one
// runs in a single store transaction.
package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/academy/internal/grading"
	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

// Engine coordinates exam sessions over the store.
type Engine struct {
	store   *store.Store
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithShuffle overrides the function used to shuffle question order.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(e *Engine) { e.shuffle = shuffle }
}

func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		now:     time.Now,
		shuffle: rand.Shuffle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClientInfo is request metadata recorded when a session starts.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// StudentQuestion is a question as served during a session, without its
// answer key. Score is the question's effective weight in the exam.
type StudentQuestion struct {
	ID         string             `json:"id"`
	Type       model.QuestionType `json:"question_type"`
	Difficulty model.Difficulty   `json:"difficulty"`
	Text       string             `json:"question_text"`
	Options    []string           `json:"options,omitempty"`
	Score      int                `json:"score"`
}

// ExamSummary is the subset of an exam shown to a trainee taking it.
type ExamSummary struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	TimeLimit          int       `json:"time_limit"`
	TotalScore         int       `json:"total_score"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	PreventBrowserExit bool      `json:"prevent_browser_exit"`
}

// Session is returned by Start.
type Session struct {
	Exam         ExamSummary       `json:"exam"`
	SubmissionID string            `json:"submission_id"`
	StartedAt    time.Time         `json:"started_at"`
	Resumed      bool              `json:"resumed"`
	Questions    []StudentQuestion `json:"questions"`
}

// AvailableExam is an exam the trainee may take now, with their progress.
type AvailableExam struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	CourseName   string         `json:"course_title"`
	ExamType     model.ExamType `json:"exam_type"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	TimeLimit    int            `json:"time_limit"`
	TotalScore   int            `json:"total_score"`
	Status       string         `json:"status"`
	SubmissionID string         `json:"submission_id,omitempty"`
	Score        *float64       `json:"score"`
}

// StatusNotStarted is reported for exams without a submission.
const StatusNotStarted = "not_started"

func requireTrainee(p model.Principal) error {
	if p.TraineeID == "" {
		return fmt.Errorf("%w: no trainee profile linked", model.ErrForbidden)
	}
	return nil
}

// Available lists active exams within their window for the courses the trainee
// is actively enrolled in.
func (e *Engine) Available(ctx context.Context, p model.Principal) ([]AvailableExam, error) {
	if err := requireTrainee(p); err != nil {
		return nil, err
	}
	enrollments, err := e.store.ListTraineeEnrollments(ctx, p.TraineeID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	courseNames := make(map[string]string, len(enrollments))
	for _, en := range enrollments {
		courseNames[en.CourseID] = en.CourseName
	}
	exams, err := e.store.ListEnrolledExams(ctx, p.TraineeID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	subs, err := e.store.ListTraineeSubmissions(ctx, p.TraineeID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	now := e.now()
	out := []AvailableExam{}
	for _, ex := range exams {
		if !ex.InWindow(now) {
			continue
		}
		a := AvailableExam{
			ID:         ex.ID,
			Title:      ex.Title,
			CourseName: courseNames[ex.CourseID],
			ExamType:   ex.ExamType,
			StartTime:  ex.StartTime,
			EndTime:    ex.EndTime,
			TimeLimit:  ex.TimeLimit,
			TotalScore: ex.TotalScore,
			Status:     StatusNotStarted,
		}
		if sub, ok := subs[ex.ID]; ok {
			a.Status = string(sub.Status)
			a.SubmissionID = sub.ID
			if sub.Status == model.GradingCompleted {
				a.Score = sub.Score
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// Start opens a session for the trainee. An existing pending submission is
// reused so repeated starts return the same submission id.
func (e *Engine) Start(ctx context.Context, p model.Principal, examID string, client ClientInfo) (*Session, error) {
	if err := requireTrainee(p); err != nil {
		return nil, err
	}
	var out *Session
	err := e.store.InTx(ctx, func(tx *store.Store) error {
		ex, err := tx.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if !ex.Active {
			return model.ErrExamInactive
		}
		now := e.now()
		if !ex.InWindow(now) {
			return model.ErrOutsideWindow
		}
		enrolled, err := tx.HasActiveEnrollment(ctx, p.TraineeID, ex.CourseID)
		if err != nil {
			return err
		}
		if !enrolled {
			return fmt.Errorf("%w: not enrolled in course", model.ErrForbidden)
		}

		resumed := true
		sub, err := tx.FindSubmission(ctx, examID, p.TraineeID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			resumed = false
			sub, err = tx.CreateSubmission(ctx, model.Submission{
				ExamID:    examID,
				TraineeID: p.TraineeID,
				StartedAt: now.UTC(),
				IPAddress: client.IP,
				UserAgent: client.UserAgent,
			})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		case sub.Submitted() || sub.Status != model.GradingPending:
			return model.ErrAlreadyCompleted
		}

		questions, err := tx.GetQuestions(ctx, questionIDs(ex))
		if err != nil {
			return err
		}
		out = &Session{
			Exam:         summarize(ex),
			SubmissionID: sub.ID,
			StartedAt:    sub.StartedAt,
			Resumed:      resumed,
			Questions:    e.studentQuestions(ex, questions),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) studentQuestions(ex *model.Exam, questions map[string]*model.Question) []StudentQuestion {
	out := make([]StudentQuestion, 0, len(ex.Questions))
	for _, ref := range ex.Questions {
		q := questions[ref.QuestionID]
		if q == nil {
			continue
		}
		out = append(out, StudentQuestion{
			ID:         q.ID,
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Text:       q.Text,
			Options:    q.Options,
			Score:      model.EffectiveWeight(ref, q),
		})
	}
	if ex.ShuffleQuestions {
		e.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

func summarize(ex *model.Exam) ExamSummary {
	return ExamSummary{
		ID:                 ex.ID,
		Title:              ex.Title,
		Description:        ex.Description,
		TimeLimit:          ex.TimeLimit,
		TotalScore:         ex.TotalScore,
		StartTime:          ex.StartTime,
		EndTime:            ex.EndTime,
		PreventBrowserExit: ex.PreventBrowserExit,
	}
}

func questionIDs(ex *model.Exam) []string {
	ids := make([]string, len(ex.Questions))
	for i, ref := range ex.Questions {
		ids[i] = ref.QuestionID
	}
	return ids
}

// SubmitInput is a trainee's answer sheet.
type SubmitInput struct {
	Answers          map[string]json.RawMessage
	TimeTaken        int // seconds
	BrowserExitCount int
}

// SubmitResult summarizes a graded submission. Score and Percentage stay nil
// until grading is completed. ShowResults tells the client to open the result
// view right away.
type SubmitResult struct {
	SubmissionID string              `json:"submission_id"`
	Score        *float64            `json:"score"`
	TotalScore   int                 `json:"total_score"`
	MaxScore     int                 `json:"max_score"`
	Percentage   *float64            `json:"percentage"`
	Status       model.GradingStatus `json:"grading_status"`
	ShowResults  bool                `json:"show_results"`
}

// Submit grades the trainee's answers and stores the result. The stored
// score is computed once here; a second submit fails with
// ErrAlreadySubmitted and leaves the first result unchanged.
func (e *Engine) Submit(ctx context.Context, p model.Principal, examID string, in SubmitInput) (*SubmitResult, error) {
	if err := requireTrainee(p); err != nil {
		return nil, err
	}
	if in.Answers == nil {
		return nil, model.Invalid("answers", "required")
	}
	if in.TimeTaken < 0 {
		return nil, model.Invalid("time_taken", "min")
	}
	if in.BrowserExitCount < 0 {
		return nil, model.Invalid("browser_exit_count", "min")
	}

	var (
		out   *SubmitResult
		score float64
	)
	err := e.store.InTx(ctx, func(tx *store.Store) error {
		sub, err := tx.FindSubmission(ctx, examID, p.TraineeID)
		if err != nil {
			return err
		}
		if sub.Submitted() {
			return model.ErrAlreadySubmitted
		}
		ex, err := tx.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		questions, err := tx.GetQuestions(ctx, questionIDs(ex))
		if err != nil {
			return err
		}

		decoded, kept, err := decodeAnswers(ex, questions, in.Answers)
		if err != nil {
			return err
		}
		res := grading.Grade(ex, questions, decoded)

		submittedAt := e.now().UTC()
		sub.SubmittedAt = &submittedAt
		sub.TimeTaken = in.TimeTaken
		sub.BrowserExitCount = in.BrowserExitCount
		sub.Answers = kept
		sub.Score = &res.Score
		sub.Percentage = &res.Percentage
		sub.Status = res.Status
		sub.Feedback = res.Feedback
		completed := res.Status == model.GradingCompleted
		if completed {
			sub.GradedAt = &submittedAt
		}
		if err := tx.FinalizeSubmission(ctx, *sub); err != nil {
			return err
		}
		if err := tx.RefreshExamStats(ctx, examID); err != nil {
			return fmt.Errorf("refresh exam stats: %w", err)
		}

		out = &SubmitResult{
			SubmissionID: sub.ID,
			TotalScore:   ex.TotalScore,
			MaxScore:     res.MaxScore,
			Status:       res.Status,
			ShowResults:  ex.ShowResultsImmediate && completed,
		}
		if completed {
			out.Score = sub.Score
			out.Percentage = sub.Percentage
		}
		score = res.Score
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("exam submitted", "submission_id", out.SubmissionID, "exam_id", examID,
		"score", score, "status", out.Status)
	return out, nil
}

// decodeAnswers decodes the raw answers of every question the exam
// references. Answers to other ids are dropped.
func decodeAnswers(ex *model.Exam, questions map[string]*model.Question, raw map[string]json.RawMessage) (map[string]model.Answer, map[string]json.RawMessage, error) {
	decoded := make(map[string]model.Answer, len(ex.Questions))
	kept := make(map[string]json.RawMessage, len(ex.Questions))
	for _, ref := range ex.Questions {
		q := questions[ref.QuestionID]
		v, ok := raw[ref.QuestionID]
		if q == nil || !ok {
			continue
		}
		a, err := model.DecodeAnswer(q.Type, v)
		if err != nil {
			return nil, nil, &model.ValidationError{Fields: []model.FieldError{{Field: "answers." + ref.QuestionID, Tag: "answer"}}}
		}
		decoded[ref.QuestionID] = a
		kept[ref.QuestionID] = v
	}
	return decoded, kept, nil
}
