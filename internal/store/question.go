package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/academy/internal/model"
)

const questionColumns = `id, teacher_id, course_id, question_type, difficulty, question_text, options,
	correct_answer, explanation, score_weight, tags, ncs_unit_code, active, created_at, updated_at`

var questionSorts = map[string]string{
	"created_at":   "created_at",
	"difficulty":   "difficulty",
	"type":         "question_type",
	"score_weight": "score_weight",
}

func scanQuestion(sc scanner) (*model.Question, error) {
	var q model.Question
	var courseID sql.NullString
	var options, tags string
	if err := sc.Scan(&q.ID, &q.TeacherID, &courseID, &q.Type, &q.Difficulty, &q.Text, &options,
		&q.CorrectAnswer, &q.Explanation, &q.DefaultWeight, &tags, &q.NCSUnitCode, &q.Active,
		&q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.CourseID = courseID.String
	if err := decodeJSON(options, &q.Options); err != nil {
		return nil, fmt.Errorf("question %s options: %w", q.ID, err)
	}
	if err := decodeJSON(tags, &q.Tags); err != nil {
		return nil, fmt.Errorf("question %s tags: %w", q.ID, err)
	}
	key, err := model.ParseKey(q.Type, q.CorrectAnswer)
	if err != nil {
		slog.Warn("stored answer key does not decode", "question_id", q.ID, "error", err)
	}
	q.Key = key
	return &q, nil
}

func questionArgs(q *model.Question) ([]any, error) {
	options, err := encodeJSON(nonNil(q.Options))
	if err != nil {
		return nil, err
	}
	tags, err := encodeJSON(nonNil(q.Tags))
	if err != nil {
		return nil, err
	}
	return []any{q.TeacherID, nullString(q.CourseID), q.Type, q.Difficulty, q.Text, options,
		q.CorrectAnswer, q.Explanation, q.DefaultWeight, tags, q.NCSUnitCode, q.Active}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CreateQuestion inserts a question into the bank.
func (s *Store) CreateQuestion(ctx context.Context, q model.Question) (*model.Question, error) {
	q.ID = newID()
	q.CreatedAt = now()
	q.UpdatedAt = q.CreatedAt
	args, err := questionArgs(&q)
	if err != nil {
		return nil, err
	}
	args = append([]any{q.ID}, args...)
	args = append(args, q.CreatedAt, q.UpdatedAt)
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO exam_questions (`+questionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return &q, nil
}

// CreateQuestions inserts all questions or none.
func (s *Store) CreateQuestions(ctx context.Context, qs []model.Question) ([]model.Question, error) {
	created := make([]model.Question, 0, len(qs))
	err := s.InTx(ctx, func(tx *Store) error {
		for i, q := range qs {
			c, err := tx.CreateQuestion(ctx, q)
			if err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			created = append(created, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("created questions", "count", len(created))
	return created, nil
}

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(s.q.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM exam_questions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("question %s: %w", id, model.ErrNotFound)
	}
	return q, err
}

// GetQuestions returns the questions with the given ids keyed by id. Missing
// ids are absent from the map.
func (s *Store) GetQuestions(ctx context.Context, ids []string) (map[string]*model.Question, error) {
	out := make(map[string]*model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM exam_questions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

// UpdateQuestion overwrites the mutable fields of a question.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	args, err := questionArgs(&q)
	if err != nil {
		return err
	}
	// teacher_id is not reassigned on update.
	args = append(args[1:], now(), q.ID)
	res, err := s.q.ExecContext(ctx,
		`UPDATE exam_questions SET course_id = ?, question_type = ?, difficulty = ?,
		 question_text = ?, options = ?, correct_answer = ?, explanation = ?, score_weight = ?,
		 tags = ?, ncs_unit_code = ?, active = ?, updated_at = ?
		 WHERE id = ?`, args...)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

// DeleteQuestion removes a question. Exams referencing it grade it as missing.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM exam_questions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListQuestions returns one page of questions matching f and the total count.
func (s *Store) ListQuestions(ctx context.Context, f model.QuestionFilter, p model.Page) ([]model.Question, int, error) {
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
	if f.Type != "" {
		where += ` AND question_type = ?`
		args = append(args, f.Type)
	}
	if f.Difficulty != "" {
		where += ` AND difficulty = ?`
		args = append(args, f.Difficulty)
	}
	if f.NCSUnitCode != "" {
		where += ` AND ncs_unit_code = ?`
		args = append(args, f.NCSUnitCode)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		where += ` AND (question_text LIKE ? OR tags LIKE ?)`
		args = append(args, like, like)
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM exam_questions`+where, args...)
	if err != nil {
		return nil, 0, err
	}
	lim, limArgs := limitOffset(p)
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM exam_questions`+where+orderBy(p, questionSorts, "created_at DESC")+lim,
		append(args, limArgs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *q)
	}
	return list, total, rows.Err()
}

// QuestionStats summarizes the bank, optionally for one teacher.
func (s *Store) QuestionStats(ctx context.Context, teacherID string) (*model.QuestionStats, error) {
	where := ` WHERE 1=1`
	var args []any
	if teacherID != "" {
		where += ` AND teacher_id = ?`
		args = append(args, teacherID)
	}
	var st model.QuestionStats
	var err error
	if st.Total, err = s.count(ctx, `SELECT COUNT(*) FROM exam_questions`+where, args...); err != nil {
		return nil, err
	}
	if st.ByType, err = s.countBy(ctx,
		`SELECT question_type, COUNT(*) FROM exam_questions`+where+` GROUP BY question_type ORDER BY question_type`, args...); err != nil {
		return nil, err
	}
	if st.ByDifficulty, err = s.countBy(ctx,
		`SELECT difficulty, COUNT(*) FROM exam_questions`+where+` GROUP BY difficulty ORDER BY difficulty`, args...); err != nil {
		return nil, err
	}
	return &st, nil
}
