package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/academy/internal/model"
)

const submissionSelect = `SELECT s.id, s.exam_id, s.trainee_id, s.started_at, s.submitted_at,
	s.time_taken, s.submitted_answers, s.score, s.percentage, s.grading_status, s.feedback,
	s.teacher_feedback, s.graded_by, s.graded_at, s.browser_exit_count, s.ip_address,
	s.user_agent, s.created_at, t.name, t.trainee_number
	FROM exam_submissions s JOIN trainees t ON t.id = s.trainee_id`

func scanSubmission(sc scanner) (*model.Submission, error) {
	var sub model.Submission
	var submittedAt, gradedAt sql.NullTime
	var score, pct sql.NullFloat64
	var gradedBy sql.NullString
	var answers, feedback string
	if err := sc.Scan(&sub.ID, &sub.ExamID, &sub.TraineeID, &sub.StartedAt, &submittedAt,
		&sub.TimeTaken, &answers, &score, &pct, &sub.Status, &feedback, &sub.TeacherComment,
		&gradedBy, &gradedAt, &sub.BrowserExitCount, &sub.IPAddress, &sub.UserAgent,
		&sub.CreatedAt, &sub.TraineeName, &sub.TraineeNumber); err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		sub.SubmittedAt = &submittedAt.Time
	}
	if gradedAt.Valid {
		sub.GradedAt = &gradedAt.Time
	}
	if score.Valid {
		sub.Score = &score.Float64
	}
	if pct.Valid {
		sub.Percentage = &pct.Float64
	}
	sub.GradedBy = gradedBy.String
	if err := decodeJSON(answers, &sub.Answers); err != nil {
		return nil, fmt.Errorf("submission %s answers: %w", sub.ID, err)
	}
	if err := decodeJSON(feedback, &sub.Feedback); err != nil {
		return nil, fmt.Errorf("submission %s feedback: %w", sub.ID, err)
	}
	return &sub, nil
}

// CreateSubmission inserts a pending submission. A second submission for the
// same (exam, trainee) pair is a conflict.
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (*model.Submission, error) {
	sub.ID = newID()
	sub.CreatedAt = now()
	sub.Status = model.GradingPending
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO exam_submissions (id, exam_id, trainee_id, started_at, grading_status,
		 ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExamID, sub.TraineeID, sub.StartedAt.UTC(), sub.Status,
		sub.IPAddress, sub.UserAgent, sub.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	slog.Info("started exam", "submission_id", sub.ID, "exam_id", sub.ExamID, "trainee_id", sub.TraineeID)
	return &sub, nil
}

// GetSubmission returns a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := scanSubmission(s.q.QueryRowContext(ctx, submissionSelect+` WHERE s.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission %s: %w", id, model.ErrNotFound)
	}
	return sub, err
}

// FindSubmission returns the trainee's submission for an exam.
func (s *Store) FindSubmission(ctx context.Context, examID, traineeID string) (*model.Submission, error) {
	sub, err := scanSubmission(s.q.QueryRowContext(ctx,
		submissionSelect+` WHERE s.exam_id = ? AND s.trainee_id = ?`, examID, traineeID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission for exam %s: %w", examID, model.ErrNotFound)
	}
	return sub, err
}

// FinalizeSubmission stores the graded answers of a pending submission.
// GradedAt is set when auto-grading already completed it. It only succeeds while submitted_at is unset; otherwise it returns
// ErrAlreadySubmitted and leaves the row untouched.
func (s *Store) FinalizeSubmission(ctx context.Context, sub model.Submission) error {
	answers, err := encodeJSON(sub.Answers)
	if err != nil {
		return err
	}
	feedback, err := encodeJSON(sub.Feedback)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE exam_submissions SET submitted_at = ?, time_taken = ?, submitted_answers = ?,
		 score = ?, percentage = ?, grading_status = ?, feedback = ?, browser_exit_count = ?,
		 graded_at = ?
		 WHERE id = ? AND submitted_at IS NULL`,
		sub.SubmittedAt.UTC(), sub.TimeTaken, answers, sub.Score, sub.Percentage, sub.Status,
		feedback, sub.BrowserExitCount, utcPtr(sub.GradedAt), sub.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("submission %s: %w", sub.ID, model.ErrAlreadySubmitted)
	}
	return nil
}

// SaveManualGrade stores a teacher's grading of a submitted submission.
func (s *Store) SaveManualGrade(ctx context.Context, sub model.Submission, gradedBy string, at time.Time) error {
	feedback, err := encodeJSON(sub.Feedback)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE exam_submissions SET score = ?, percentage = ?, grading_status = ?, feedback = ?,
		 teacher_feedback = ?, graded_by = ?, graded_at = ?
		 WHERE id = ? AND submitted_at IS NOT NULL`,
		sub.Score, sub.Percentage, sub.Status, feedback, sub.TeacherComment,
		gradedBy, at.UTC(), sub.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]model.Submission, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *sub)
	}
	return list, rows.Err()
}

// ListExamSubmissions returns all submissions of an exam ordered by trainee number.
func (s *Store) ListExamSubmissions(ctx context.Context, examID string) ([]model.Submission, error) {
	return s.querySubmissions(ctx, submissionSelect+` WHERE s.exam_id = ? ORDER BY t.trainee_number`, examID)
}

// ListTraineeSubmissions returns all submissions of a trainee keyed by exam id.
func (s *Store) ListTraineeSubmissions(ctx context.Context, traineeID string) (map[string]model.Submission, error) {
	list, err := s.querySubmissions(ctx, submissionSelect+` WHERE s.trainee_id = ?`, traineeID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Submission, len(list))
	for _, sub := range list {
		out[sub.ExamID] = sub
	}
	return out, nil
}
