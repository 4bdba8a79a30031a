package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/academy/internal/model"
)

// CreateEmployment records a placement and marks the trainee as employed.
func (s *Store) CreateEmployment(ctx context.Context, e model.Employment) (*model.Employment, error) {
	e.ID = newID()
	e.CreatedAt = now()
	err := s.InTx(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx,
			`INSERT INTO employments (id, trainee_id, counselor_id, company_name, position,
			 employment_type, start_date, verified, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TraineeID, nullString(e.CounselorID), e.CompanyName, e.Position,
			e.EmploymentType, e.StartDate, e.Verified, e.Notes, e.CreatedAt,
		)
		if err != nil {
			return mapErr(err)
		}
		status := model.Employed
		if e.EmploymentType == string(model.SelfEmployed) {
			status = model.SelfEmployed
		}
		return tx.SetTraineeEmployment(ctx, e.TraineeID, status, e.CompanyName)
	})
	if err != nil {
		return nil, fmt.Errorf("create employment: %w", err)
	}
	return &e, nil
}

// ListEmployments returns a trainee's placements, newest first.
func (s *Store) ListEmployments(ctx context.Context, traineeID string) ([]model.Employment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, trainee_id, counselor_id, company_name, position, employment_type,
		 start_date, verified, notes, created_at
		 FROM employments WHERE trainee_id = ? ORDER BY created_at DESC`, traineeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Employment{}
	for rows.Next() {
		var e model.Employment
		var counselor sql.NullString
		if err := rows.Scan(&e.ID, &e.TraineeID, &counselor, &e.CompanyName, &e.Position,
			&e.EmploymentType, &e.StartDate, &e.Verified, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CounselorID = counselor.String
		list = append(list, e)
	}
	return list, rows.Err()
}
