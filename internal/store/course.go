package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/academy/internal/model"
)

const courseColumns = `id, name, subject, teacher_id, max_students, start_date, end_date, active, description, created_at`

func scanCourse(sc scanner) (*model.Course, error) {
	var c model.Course
	var teacherID sql.NullString
	if err := sc.Scan(&c.ID, &c.Name, &c.Subject, &teacherID, &c.MaxStudents,
		&c.StartDate, &c.EndDate, &c.Active, &c.Description, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.TeacherID = teacherID.String
	return &c, nil
}

// CreateCourse inserts a course.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) (*model.Course, error) {
	c.ID = newID()
	c.CreatedAt = now()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO courses (`+courseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subject, nullString(c.TeacherID), c.MaxStudents,
		c.StartDate, c.EndDate, c.Active, c.Description, c.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// GetCourse returns a course by id.
func (s *Store) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	c, err := scanCourse(s.q.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course %s: %w", id, model.ErrNotFound)
	}
	return c, err
}

// ListCourses returns courses, optionally only those taught by teacherID.
func (s *Store) ListCourses(ctx context.Context, teacherID string) ([]model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	var args []any
	if teacherID != "" {
		query += ` WHERE teacher_id = ?`
		args = append(args, teacherID)
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// Enroll adds a trainee to a course. Enrolling the same pair twice is a
// conflict.
func (s *Store) Enroll(ctx context.Context, traineeID, courseID string) (*model.Enrollment, error) {
	e := &model.Enrollment{
		ID:         newID(),
		TraineeID:  traineeID,
		CourseID:   courseID,
		Status:     model.EnrollmentActive,
		EnrolledAt: now(),
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO enrollments (id, trainee_id, course_id, status, enrolled_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.TraineeID, e.CourseID, e.Status, e.EnrolledAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// SetEnrollmentStatus changes the state of an enrollment.
func (s *Store) SetEnrollmentStatus(ctx context.Context, traineeID, courseID string, status model.EnrollmentStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE enrollments SET status = ? WHERE trainee_id = ? AND course_id = ?`,
		status, traineeID, courseID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// HasActiveEnrollment reports whether the trainee is actively enrolled in course.
func (s *Store) HasActiveEnrollment(ctx context.Context, traineeID, courseID string) (bool, error) {
	n, err := s.count(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE trainee_id = ? AND course_id = ? AND status = 'active'`,
		traineeID, courseID)
	return n > 0, err
}

const enrollmentSelect = `SELECT e.id, e.trainee_id, e.course_id, c.name, e.status, e.enrolled_at
	FROM enrollments e JOIN courses c ON c.id = e.course_id`

func (s *Store) listEnrollments(ctx context.Context, where string, arg any) ([]model.Enrollment, error) {
	rows, err := s.q.QueryContext(ctx, enrollmentSelect+where+` ORDER BY e.enrolled_at`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Enrollment{}
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.TraineeID, &e.CourseID, &e.CourseName, &e.Status, &e.EnrolledAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ListCourseEnrollments returns all enrollments of a course.
func (s *Store) ListCourseEnrollments(ctx context.Context, courseID string) ([]model.Enrollment, error) {
	return s.listEnrollments(ctx, ` WHERE e.course_id = ?`, courseID)
}

// ListTraineeEnrollments returns all enrollments of a trainee.
func (s *Store) ListTraineeEnrollments(ctx context.Context, traineeID string) ([]model.Enrollment, error) {
	return s.listEnrollments(ctx, ` WHERE e.trainee_id = ?`, traineeID)
}
