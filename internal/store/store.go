package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pavelanni/academy/internal/model"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db *sql.DB
	q  queryer
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn against a Store bound to a single transaction. fn must use the
// Store it is given; the outer Store blocks until the transaction ends. Calls
// on an already transactional Store run fn directly.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapErr(err))
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'manager', 'teacher', 'student')),
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS trainees (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE,
		name TEXT NOT NULL,
		trainee_number TEXT NOT NULL UNIQUE,
		trainee_type TEXT NOT NULL DEFAULT 'job_seeker',
		course_type TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		birth_date TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'waiting',
		enrollment_date TEXT NOT NULL DEFAULT '',
		completion_date TEXT NOT NULL DEFAULT '',
		employment_status TEXT NOT NULL DEFAULT 'unemployed',
		employment_company TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		teacher_id TEXT,
		max_students INTEGER NOT NULL DEFAULT 30,
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (teacher_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		trainee_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		enrolled_at DATETIME NOT NULL,
		UNIQUE (trainee_id, course_id),
		FOREIGN KEY (trainee_id) REFERENCES trainees(id) ON DELETE CASCADE,
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS consultations (
		id TEXT PRIMARY KEY,
		trainee_id TEXT NOT NULL,
		counselor_id TEXT NOT NULL,
		consult_date DATETIME NOT NULL,
		phase TEXT NOT NULL DEFAULT 'during_training',
		contact_method TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		importance INTEGER NOT NULL DEFAULT 3 CHECK (importance BETWEEN 1 AND 5),
		status TEXT NOT NULL DEFAULT 'completed',
		next_follow_up_date DATETIME,
		follow_up_reminder INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (trainee_id) REFERENCES trainees(id) ON DELETE CASCADE,
		FOREIGN KEY (counselor_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS employments (
		id TEXT PRIMARY KEY,
		trainee_id TEXT NOT NULL,
		counselor_id TEXT,
		company_name TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		employment_type TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		verified INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (trainee_id) REFERENCES trainees(id) ON DELETE CASCADE,
		FOREIGN KEY (counselor_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		course_id TEXT,
		question_type TEXT NOT NULL CHECK (question_type IN
			('multiple_choice', 'multiple_answer', 'short_answer', 'essay', 'true_false')),
		difficulty TEXT NOT NULL DEFAULT 'medium',
		question_text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		score_weight INTEGER NOT NULL DEFAULT 5 CHECK (score_weight >= 0),
		tags TEXT NOT NULL DEFAULT '[]',
		ncs_unit_code TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (teacher_id) REFERENCES users(id),
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		exam_type TEXT NOT NULL DEFAULT 'quiz',
		questions TEXT NOT NULL DEFAULT '[]',
		total_score INTEGER NOT NULL DEFAULT 100,
		time_limit INTEGER NOT NULL DEFAULT 0,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		shuffle_questions INTEGER NOT NULL DEFAULT 0,
		show_results_immediately INTEGER NOT NULL DEFAULT 1,
		allow_review INTEGER NOT NULL DEFAULT 1,
		prevent_browser_exit INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		total_submissions INTEGER NOT NULL DEFAULT 0,
		average_score REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE,
		FOREIGN KEY (teacher_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_submissions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		trainee_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		time_taken INTEGER NOT NULL DEFAULT 0,
		submitted_answers TEXT NOT NULL DEFAULT '{}',
		score REAL,
		percentage REAL,
		grading_status TEXT NOT NULL DEFAULT 'pending',
		feedback TEXT NOT NULL DEFAULT '{}',
		teacher_feedback TEXT NOT NULL DEFAULT '',
		graded_by TEXT,
		graded_at DATETIME,
		browser_exit_count INTEGER NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		UNIQUE (exam_id, trainee_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id) ON DELETE CASCADE,
		FOREIGN KEY (trainee_id) REFERENCES trainees(id) ON DELETE CASCADE,
		FOREIGN KEY (graded_by) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		hash TEXT PRIMARY KEY,
		filename TEXT NOT NULL DEFAULT '',
		teacher_id TEXT NOT NULL,
		question_count INTEGER NOT NULL DEFAULT 0,
		imported_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_consultations_trainee ON consultations(trainee_id);
	CREATE INDEX IF NOT EXISTS idx_consultations_counselor ON consultations(counselor_id);
	CREATE INDEX IF NOT EXISTS idx_exam_questions_teacher ON exam_questions(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_exams_course ON exams(course_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_exam ON exam_submissions(exam_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// mapErr translates SQLite constraint failures into model error kinds.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %v", model.ErrConflict, err)
		}
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return err
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

// nullString stores empty strings as NULL for optional foreign keys.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// orderBy returns a safe ORDER BY clause. sortBy must be a key of allowed;
// anything else falls back to fallback.
func orderBy(p model.Page, allowed map[string]string, fallback string) string {
	col, ok := allowed[p.SortBy]
	if !ok {
		return " ORDER BY " + fallback
	}
	dir := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir
}

func limitOffset(p model.Page) (string, []any) {
	if p.Limit <= 0 {
		return "", nil
	}
	return " LIMIT ? OFFSET ?", []any{p.Limit, p.Offset}
}

// count runs a COUNT(*) query.
func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// countBy runs a two-column (key, count) grouping query.
func (s *Store) countBy(ctx context.Context, query string, args ...any) ([]model.CountBy, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CountBy{}
	for rows.Next() {
		var c model.CountBy
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// startOfMonth returns the first instant of t's month in UTC.
func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
