package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pavelanni/academy/internal/model"
)

const examColumns = `id, course_id, teacher_id, title, description, exam_type, questions, total_score,
	time_limit, start_time, end_time, shuffle_questions, show_results_immediately, allow_review,
	prevent_browser_exit, active, total_submissions, average_score, created_at, updated_at`

var examSorts = map[string]string{
	"start_time": "start_time",
	"end_time":   "end_time",
	"title":      "title",
	"created_at": "created_at",
}

func scanExam(sc scanner) (*model.Exam, error) {
	var e model.Exam
	var questions string
	var avg sql.NullFloat64
	if err := sc.Scan(&e.ID, &e.CourseID, &e.TeacherID, &e.Title, &e.Description, &e.ExamType,
		&questions, &e.TotalScore, &e.TimeLimit, &e.StartTime, &e.EndTime, &e.ShuffleQuestions,
		&e.ShowResultsImmediate, &e.AllowReview, &e.PreventBrowserExit, &e.Active,
		&e.TotalSubmissions, &avg, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(questions, &e.Questions); err != nil {
		return nil, fmt.Errorf("exam %s questions: %w", e.ID, err)
	}
	if e.Questions == nil {
		e.Questions = []model.ExamQuestionRef{}
	}
	if avg.Valid {
		e.AverageScore = &avg.Float64
	}
	return &e, nil
}

// CreateExam inserts an exam.
func (s *Store) CreateExam(ctx context.Context, e model.Exam) (*model.Exam, error) {
	e.ID = newID()
	e.CreatedAt = now()
	e.UpdatedAt = e.CreatedAt
	e.TotalSubmissions = 0
	e.AverageScore = nil
	questions, err := encodeJSON(e.Questions)
	if err != nil {
		return nil, err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO exams (`+examColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CourseID, e.TeacherID, e.Title, e.Description, e.ExamType, questions, e.TotalScore,
		e.TimeLimit, e.StartTime.UTC(), e.EndTime.UTC(), e.ShuffleQuestions,
		e.ShowResultsImmediate, e.AllowReview, e.PreventBrowserExit, e.Active,
		0, nil, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		slog.Error("failed to create exam", "title", e.Title, "error", err)
		return nil, mapErr(err)
	}
	slog.Info("created exam", "id", e.ID, "title", e.Title, "questions", len(e.Questions))
	return &e, nil
}

// GetExam returns an exam by id.
func (s *Store) GetExam(ctx context.Context, id string) (*model.Exam, error) {
	e, err := scanExam(s.q.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
	}
	return e, err
}

// UpdateExam overwrites the mutable fields of an exam. Statistics are kept.
func (s *Store) UpdateExam(ctx context.Context, e model.Exam) error {
	questions, err := encodeJSON(e.Questions)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE exams SET course_id = ?, title = ?, description = ?, exam_type = ?, questions = ?,
		 total_score = ?, time_limit = ?, start_time = ?, end_time = ?, shuffle_questions = ?,
		 show_results_immediately = ?, allow_review = ?, prevent_browser_exit = ?, active = ?,
		 updated_at = ?
		 WHERE id = ?`,
		e.CourseID, e.Title, e.Description, e.ExamType, questions, e.TotalScore, e.TimeLimit,
		e.StartTime.UTC(), e.EndTime.UTC(), e.ShuffleQuestions, e.ShowResultsImmediate,
		e.AllowReview, e.PreventBrowserExit, e.Active, now(), e.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

// DeleteExam removes an exam and its submissions.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return fmt.Errorf("exam %s: %w", id, err)
	}
	slog.Info("deleted exam", "id", id)
	return nil
}

func (s *Store) queryExams(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// ListExams returns one page of exams matching f and the total count.
func (s *Store) ListExams(ctx context.Context, f model.ExamFilter, p model.Page) ([]model.Exam, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.TeacherID != "" {
		where += ` AND teacher_id = ?`
		args = append(args, f.TeacherID)
	}
	if f.CourseID != "" {
		where += ` AND course_id = ?`
		args = append(args, f.CourseID)
	}
	if f.ExamType != "" {
		where += ` AND exam_type = ?`
		args = append(args, f.ExamType)
	}
	if f.Active != nil {
		where += ` AND active = ?`
		args = append(args, *f.Active)
	}
	total, err := s.count(ctx, `SELECT COUNT(*) FROM exams`+where, args...)
	if err != nil {
		return nil, 0, err
	}
	lim, limArgs := limitOffset(p)
	list, err := s.queryExams(ctx,
		`SELECT `+examColumns+` FROM exams`+where+orderBy(p, examSorts, "start_time DESC")+lim,
		append(args, limArgs...)...)
	return list, total, err
}

// ListEnrolledExams returns active exams of courses the trainee is actively
// enrolled in. Time windows are checked by the caller.
func (s *Store) ListEnrolledExams(ctx context.Context, traineeID string) ([]model.Exam, error) {
	return s.queryExams(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE active = 1 AND course_id IN (
			SELECT course_id FROM enrollments WHERE trainee_id = ? AND status = 'active')
		 ORDER BY start_time`, traineeID)
}

// RefreshExamStats recomputes total_submissions and average_score from the
// exam's completed submissions.
func (s *Store) RefreshExamStats(ctx context.Context, examID string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE exams SET
		 total_submissions = (SELECT COUNT(*) FROM exam_submissions
			WHERE exam_id = ? AND grading_status = 'completed'),
		 average_score = (SELECT AVG(score) FROM exam_submissions
			WHERE exam_id = ? AND grading_status = 'completed')
		 WHERE id = ?`, examID, examID, examID)
	return err
}
