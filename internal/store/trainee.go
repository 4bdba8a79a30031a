package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pavelanni/academy/internal/model"
)

const traineeColumns = `id, user_id, name, trainee_number, trainee_type, course_type, phone, email,
	birth_date, address, status, enrollment_date, completion_date, employment_status,
	employment_company, notes, created_at, updated_at`

var traineeSorts = map[string]string{
	"name":            "name",
	"trainee_number":  "trainee_number",
	"status":          "status",
	"enrollment_date": "enrollment_date",
	"created_at":      "created_at",
}

func scanTrainee(sc scanner) (*model.Trainee, error) {
	var t model.Trainee
	var userID sql.NullString
	if err := sc.Scan(&t.ID, &userID, &t.Name, &t.TraineeNumber, &t.TraineeType, &t.CourseType,
		&t.Phone, &t.Email, &t.BirthDate, &t.Address, &t.Status, &t.EnrollmentDate,
		&t.CompletionDate, &t.EmploymentStatus, &t.EmploymentCompany, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.UserID = userID.String
	return &t, nil
}

// CreateTrainee inserts a trainee and returns it with id and timestamps set.
func (s *Store) CreateTrainee(ctx context.Context, t model.Trainee) (*model.Trainee, error) {
	t.ID = newID()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	if t.Status == "" {
		t.Status = model.TraineeWaiting
	}
	if t.TraineeType == "" {
		t.TraineeType = model.TraineeJobSeeker
	}
	if t.EmploymentStatus == "" {
		t.EmploymentStatus = model.Unemployed
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO trainees (`+traineeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, nullString(t.UserID), t.Name, t.TraineeNumber, t.TraineeType, t.CourseType,
		t.Phone, t.Email, t.BirthDate, t.Address, t.Status, t.EnrollmentDate,
		t.CompletionDate, t.EmploymentStatus, t.EmploymentCompany, t.Notes,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		slog.Error("failed to create trainee", "trainee_number", t.TraineeNumber, "error", err)
		return nil, mapErr(err)
	}
	slog.Info("created trainee", "id", t.ID, "trainee_number", t.TraineeNumber)
	return &t, nil
}

// GetTrainee returns a trainee by id.
func (s *Store) GetTrainee(ctx context.Context, id string) (*model.Trainee, error) {
	t, err := scanTrainee(s.q.QueryRowContext(ctx,
		`SELECT `+traineeColumns+` FROM trainees WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trainee %s: %w", id, model.ErrNotFound)
	}
	return t, err
}

// GetTraineeByUserID returns the trainee linked to a login, or nil.
func (s *Store) GetTraineeByUserID(ctx context.Context, userID string) (*model.Trainee, error) {
	t, err := scanTrainee(s.q.QueryRowContext(ctx,
		`SELECT `+traineeColumns+` FROM trainees WHERE user_id = ?`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// UpdateTrainee overwrites the mutable fields of a trainee.
func (s *Store) UpdateTrainee(ctx context.Context, t model.Trainee) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE trainees SET user_id = ?, name = ?, trainee_number = ?, trainee_type = ?,
		 course_type = ?, phone = ?, email = ?, birth_date = ?, address = ?, status = ?,
		 enrollment_date = ?, completion_date = ?, employment_status = ?,
		 employment_company = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(t.UserID), t.Name, t.TraineeNumber, t.TraineeType, t.CourseType,
		t.Phone, t.Email, t.BirthDate, t.Address, t.Status, t.EnrollmentDate,
		t.CompletionDate, t.EmploymentStatus, t.EmploymentCompany, t.Notes, now(), t.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

// SetTraineeEmployment records a placement on the trainee profile.
func (s *Store) SetTraineeEmployment(ctx context.Context, id string, status model.EmploymentStatus, company string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE trainees SET employment_status = ?, employment_company = ?, updated_at = ? WHERE id = ?`,
		status, company, now(), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteTrainee removes a trainee and, by cascade, their records.
func (s *Store) DeleteTrainee(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM trainees WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	if err := expectOne(res); err != nil {
		return fmt.Errorf("trainee %s: %w", id, err)
	}
	slog.Info("deleted trainee", "id", id)
	return nil
}

// ListTrainees returns one page of trainees matching f and the total count.
func (s *Store) ListTrainees(ctx context.Context, f model.TraineeFilter, p model.Page) ([]model.Trainee, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.TraineeType != "" {
		where += ` AND trainee_type = ?`
		args = append(args, f.TraineeType)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		where += ` AND (name LIKE ? OR phone LIKE ? OR email LIKE ? OR trainee_number LIKE ?)`
		args = append(args, like, like, like, like)
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM trainees`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	lim, limArgs := limitOffset(p)
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+traineeColumns+` FROM trainees`+where+orderBy(p, traineeSorts, "created_at DESC")+lim,
		append(args, limArgs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list := []model.Trainee{}
	for rows.Next() {
		t, err := scanTrainee(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *t)
	}
	return list, total, rows.Err()
}

// TraineeStats summarizes the trainee population.
func (s *Store) TraineeStats(ctx context.Context) (*model.TraineeStats, error) {
	var st model.TraineeStats
	var err error
	if st.Total, err = s.count(ctx, `SELECT COUNT(*) FROM trainees`); err != nil {
		return nil, err
	}
	if st.ByStatus, err = s.countBy(ctx,
		`SELECT status, COUNT(*) FROM trainees GROUP BY status ORDER BY status`); err != nil {
		return nil, err
	}
	if st.NewThisMonth, err = s.count(ctx,
		`SELECT COUNT(*) FROM trainees WHERE created_at >= ?`, startOfMonth(now())); err != nil {
		return nil, err
	}
	if st.Employed, err = s.count(ctx,
		`SELECT COUNT(*) FROM trainees WHERE employment_status IN ('employed', 'self_employed')`); err != nil {
		return nil, err
	}
	return &st, nil
}
