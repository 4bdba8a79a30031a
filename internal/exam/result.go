package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pavelanni/academy/internal/grading"
	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

// ResultExam describes the exam in a result view.
type ResultExam struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CourseName  string `json:"course_name"`
	TotalScore  int    `json:"total_score"`
	MaxScore    int    `json:"max_score"`
	TimeLimit   int    `json:"time_limit"`
	AllowReview bool   `json:"allow_review"`
}

// ResultSubmission describes the submission in a result view.
type ResultSubmission struct {
	ID               string              `json:"id"`
	TraineeName      string              `json:"trainee_name"`
	TraineeNumber    string              `json:"trainee_number"`
	Status           model.GradingStatus `json:"grading_status"`
	Score            *float64            `json:"score"`
	Percentage       *float64            `json:"percentage"`
	StartedAt        time.Time           `json:"started_at"`
	SubmittedAt      *time.Time          `json:"submitted_at"`
	TimeTaken        int                 `json:"time_taken"`
	OverTimeLimit    bool                `json:"over_time_limit"`
	BrowserExitCount int                 `json:"browser_exit_count"`
	TeacherComment   string              `json:"teacher_feedback,omitempty"`
}

// ReviewItem is one question with its answer key and the trainee's answer.
type ReviewItem struct {
	ID            string             `json:"id"`
	Type          model.QuestionType `json:"question_type,omitempty"`
	Text          string             `json:"question_text,omitempty"`
	Options       []string           `json:"options,omitempty"`
	CorrectAnswer string             `json:"correct_answer,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	ScoreWeight   int                `json:"score_weight"`
	StudentAnswer json.RawMessage    `json:"student_answer"`
	IsCorrect     *bool              `json:"is_correct"`
	EarnedScore   float64            `json:"earned_score"`
	NeedsManual   bool               `json:"needs_manual_grading,omitempty"`
	Missing       bool               `json:"missing,omitempty"`
	Comment       string             `json:"comment,omitempty"`
}

// ResultView is a submitted exam as seen by its trainee or by staff.
// Questions is empty unless Reviewable.
type ResultView struct {
	Exam       ResultExam       `json:"exam"`
	Submission ResultSubmission `json:"submission"`
	Reviewable bool             `json:"reviewable"`
	Questions  []ReviewItem     `json:"questions,omitempty"`
}

// Result returns a submitted exam. Trainees may only see their own
// submission, and see per-question detail only when the exam allows review
// and grading is complete. Teachers see their exams' submissions in full.
func (e *Engine) Result(ctx context.Context, p model.Principal, submissionID string) (*ResultView, error) {
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	ex, err := e.store.GetExam(ctx, sub.ExamID)
	if err != nil {
		return nil, err
	}

	staff := p.IsStaff() && p.CanManage(ex.TeacherID)
	if !staff {
		if p.TraineeID == "" || p.TraineeID != sub.TraineeID {
			// Do not reveal other trainees' submission ids.
			return nil, fmt.Errorf("submission %s: %w", submissionID, model.ErrNotFound)
		}
		if !sub.Submitted() {
			return nil, model.ErrNotSubmitted
		}
	}

	courseName := ""
	if c, err := e.store.GetCourse(ctx, ex.CourseID); err == nil {
		courseName = c.Name
	}

	view := &ResultView{
		Exam: ResultExam{
			ID:          ex.ID,
			Title:       ex.Title,
			CourseName:  courseName,
			TotalScore:  ex.TotalScore,
			TimeLimit:   ex.TimeLimit,
			AllowReview: ex.AllowReview,
		},
		Submission: ResultSubmission{
			ID:               sub.ID,
			TraineeName:      sub.TraineeName,
			TraineeNumber:    sub.TraineeNumber,
			Status:           sub.Status,
			Score:            sub.Score,
			Percentage:       sub.Percentage,
			StartedAt:        sub.StartedAt,
			SubmittedAt:      sub.SubmittedAt,
			TimeTaken:        sub.TimeTaken,
			OverTimeLimit:    ex.TimeLimit > 0 && sub.TimeTaken > ex.TimeLimit*60,
			BrowserExitCount: sub.BrowserExitCount,
			TeacherComment:   sub.TeacherComment,
		},
		Reviewable: staff || (ex.AllowReview && sub.Status == model.GradingCompleted),
	}
	if !staff && sub.Status != model.GradingCompleted {
		view.Submission.Score = nil
		view.Submission.Percentage = nil
	}
	for _, fb := range sub.Feedback {
		view.Exam.MaxScore += fb.MaxScore
	}
	if !view.Reviewable {
		return view, nil
	}

	questions, err := e.store.GetQuestions(ctx, questionIDs(ex))
	if err != nil {
		return nil, err
	}
	for _, ref := range ex.Questions {
		q := questions[ref.QuestionID]
		fb, graded := sub.Feedback[ref.QuestionID]
		item := ReviewItem{
			ID:            ref.QuestionID,
			ScoreWeight:   model.EffectiveWeight(ref, q),
			StudentAnswer: sub.Answers[ref.QuestionID],
			IsCorrect:     fb.IsCorrect,
			EarnedScore:   fb.Score,
			NeedsManual:   fb.NeedsManual,
			Missing:       fb.Missing || q == nil,
			Comment:       fb.Comment,
		}
		if graded {
			item.ScoreWeight = fb.MaxScore
		}
		if q != nil {
			item.Type = q.Type
			item.Text = q.Text
			item.Options = q.Options
			item.CorrectAnswer = q.CorrectAnswer
			item.Explanation = q.Explanation
		}
		view.Questions = append(view.Questions, item)
	}
	return view, nil
}

// ManualGradeInput carries a teacher's scores for manually graded items.
type ManualGradeInput struct {
	Scores   map[string]float64
	Comments map[string]string
	Feedback string
}

// Grade records manual scores for items awaiting manual grading. Scores are
// clamped to the item's weight. The submission becomes completed once every
// such item has a score.
func (e *Engine) Grade(ctx context.Context, p model.Principal, submissionID string, in ManualGradeInput) (*model.Submission, error) {
	if !p.IsStaff() {
		return nil, model.ErrForbidden
	}
	var out *model.Submission
	err := e.store.InTx(ctx, func(tx *store.Store) error {
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		ex, err := tx.GetExam(ctx, sub.ExamID)
		if err != nil {
			return err
		}
		if !p.CanManage(ex.TeacherID) {
			return model.ErrForbidden
		}
		if !sub.Submitted() {
			return model.ErrNotSubmitted
		}

		for qid, score := range in.Scores {
			fb, ok := sub.Feedback[qid]
			if !ok {
				return model.Invalid("scores."+qid, "unknown_question")
			}
			if !fb.NeedsManual {
				return model.Invalid("scores."+qid, "not_manual")
			}
			if score < 0 || math.IsNaN(score) {
				return model.Invalid("scores."+qid, "min")
			}
			fb.Score = math.Min(score, float64(fb.MaxScore))
			full := fb.Score >= float64(fb.MaxScore)
			fb.IsCorrect = &full
			sub.Feedback[qid] = fb
		}
		for qid, comment := range in.Comments {
			fb, ok := sub.Feedback[qid]
			if !ok {
				return model.Invalid("comments."+qid, "unknown_question")
			}
			fb.Comment = comment
			sub.Feedback[qid] = fb
		}

		res := grading.Recompute(ex.TotalScore, sub.Feedback)
		sub.Score = &res.Score
		sub.Percentage = &res.Percentage
		sub.Status = res.Status
		if in.Feedback != "" {
			sub.TeacherComment = in.Feedback
		}
		at := e.now().UTC()
		if err := tx.SaveManualGrade(ctx, *sub, p.UserID, at); err != nil {
			return err
		}
		if err := tx.RefreshExamStats(ctx, ex.ID); err != nil {
			return fmt.Errorf("refresh exam stats: %w", err)
		}
		sub.GradedBy = p.UserID
		sub.GradedAt = &at
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("submission graded", "submission_id", submissionID, "by", p.UserID, "status", out.Status)
	return out, nil
}

// Submissions lists every submission of an exam for its teacher.
func (e *Engine) Submissions(ctx context.Context, p model.Principal, examID string) ([]model.Submission, error) {
	ex, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() || !p.CanManage(ex.TeacherID) {
		return nil, model.ErrForbidden
	}
	return e.store.ListExamSubmissions(ctx, examID)
}
