package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/academy/internal/model"
)

const consultationSelect = `SELECT c.id, c.trainee_id, t.name, c.counselor_id, c.consult_date, c.phase,
	c.contact_method, c.category, c.content, c.importance, c.status, c.next_follow_up_date,
	c.follow_up_reminder, c.created_at, c.updated_at
	FROM consultations c JOIN trainees t ON t.id = c.trainee_id`

var consultationSorts = map[string]string{
	"consult_date": "c.consult_date",
	"importance":   "c.importance",
	"category":     "c.category",
	"status":       "c.status",
	"created_at":   "c.created_at",
}

func scanConsultation(sc scanner) (*model.Consultation, error) {
	var c model.Consultation
	var next sql.NullTime
	if err := sc.Scan(&c.ID, &c.TraineeID, &c.TraineeName, &c.CounselorID, &c.ConsultDate,
		&c.Phase, &c.ContactMethod, &c.Category, &c.Content, &c.Importance, &c.Status,
		&next, &c.FollowUpReminder, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if next.Valid {
		c.NextFollowUp = &next.Time
	}
	return &c, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// CreateConsultation inserts a consultation log entry.
func (s *Store) CreateConsultation(ctx context.Context, c model.Consultation) (*model.Consultation, error) {
	c.ID = newID()
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	if c.ConsultDate.IsZero() {
		c.ConsultDate = c.CreatedAt
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO consultations (id, trainee_id, counselor_id, consult_date, phase, contact_method,
		 category, content, importance, status, next_follow_up_date, follow_up_reminder,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TraineeID, c.CounselorID, c.ConsultDate.UTC(), c.Phase, c.ContactMethod,
		c.Category, c.Content, c.Importance, c.Status, utcPtr(c.NextFollowUp), c.FollowUpReminder,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return s.GetConsultation(ctx, c.ID)
}

// GetConsultation returns a consultation by id.
func (s *Store) GetConsultation(ctx context.Context, id string) (*model.Consultation, error) {
	c, err := scanConsultation(s.q.QueryRowContext(ctx, consultationSelect+` WHERE c.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("consultation %s: %w", id, model.ErrNotFound)
	}
	return c, err
}

// UpdateConsultation overwrites the mutable fields of a consultation.
func (s *Store) UpdateConsultation(ctx context.Context, c model.Consultation) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE consultations SET consult_date = ?, phase = ?, contact_method = ?, category = ?,
		 content = ?, importance = ?, status = ?, next_follow_up_date = ?, follow_up_reminder = ?,
		 updated_at = ?
		 WHERE id = ?`,
		c.ConsultDate.UTC(), c.Phase, c.ContactMethod, c.Category, c.Content, c.Importance,
		c.Status, utcPtr(c.NextFollowUp), c.FollowUpReminder, now(), c.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

// DeleteConsultation removes a consultation.
func (s *Store) DeleteConsultation(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM consultations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func consultationWhere(f model.ConsultationFilter) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	if f.TraineeID != "" {
		where += ` AND c.trainee_id = ?`
		args = append(args, f.TraineeID)
	}
	if f.CounselorID != "" {
		where += ` AND c.counselor_id = ?`
		args = append(args, f.CounselorID)
	}
	if f.Category != "" {
		where += ` AND c.category = ?`
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where += ` AND c.status = ?`
		args = append(args, f.Status)
	}
	if f.MinImportance > 0 {
		where += ` AND c.importance >= ?`
		args = append(args, f.MinImportance)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		where += ` AND (c.content LIKE ? OR t.name LIKE ?)`
		args = append(args, like, like)
	}
	if f.From != nil {
		where += ` AND c.consult_date >= ?`
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where += ` AND c.consult_date <= ?`
		args = append(args, f.To.UTC())
	}
	return where, args
}

func (s *Store) queryConsultations(ctx context.Context, query string, args ...any) ([]model.Consultation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Consultation{}
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// ListConsultations returns one page of consultations matching f and the total count.
func (s *Store) ListConsultations(ctx context.Context, f model.ConsultationFilter, p model.Page) ([]model.Consultation, int, error) {
	where, args := consultationWhere(f)
	total, err := s.count(ctx,
		`SELECT COUNT(*) FROM consultations c JOIN trainees t ON t.id = c.trainee_id`+where, args...)
	if err != nil {
		return nil, 0, err
	}
	lim, limArgs := limitOffset(p)
	list, err := s.queryConsultations(ctx,
		consultationSelect+where+orderBy(p, consultationSorts, "c.consult_date DESC")+lim,
		append(args, limArgs...)...)
	return list, total, err
}

// ListTraineeConsultations returns a trainee's consultations, newest first.
func (s *Store) ListTraineeConsultations(ctx context.Context, traineeID string) ([]model.Consultation, error) {
	return s.queryConsultations(ctx,
		consultationSelect+` WHERE c.trainee_id = ? ORDER BY c.consult_date DESC`, traineeID)
}

// UpcomingFollowUps returns consultations with a reminder due in [from, to].
// An empty counselorID matches all counselors.
func (s *Store) UpcomingFollowUps(ctx context.Context, counselorID string, from, to time.Time) ([]model.Consultation, error) {
	query := consultationSelect + ` WHERE c.follow_up_reminder = 1
		AND c.next_follow_up_date >= ? AND c.next_follow_up_date <= ?`
	args := []any{from.UTC(), to.UTC()}
	if counselorID != "" {
		query += ` AND c.counselor_id = ?`
		args = append(args, counselorID)
	}
	return s.queryConsultations(ctx, query+` ORDER BY c.next_follow_up_date`, args...)
}

// ConsultationsBetween returns consultations dated within [from, to).
func (s *Store) ConsultationsBetween(ctx context.Context, counselorID string, from, to time.Time) ([]model.Consultation, error) {
	query := consultationSelect + ` WHERE c.consult_date >= ? AND c.consult_date < ?`
	args := []any{from.UTC(), to.UTC()}
	if counselorID != "" {
		query += ` AND c.counselor_id = ?`
		args = append(args, counselorID)
	}
	return s.queryConsultations(ctx, query+` ORDER BY c.consult_date`, args...)
}

// ConsultationStats summarizes consultations, optionally for one counselor.
func (s *Store) ConsultationStats(ctx context.Context, counselorID string) (*model.ConsultationStats, error) {
	where := ` WHERE 1=1`
	var args []any
	if counselorID != "" {
		where += ` AND counselor_id = ?`
		args = append(args, counselorID)
	}
	var st model.ConsultationStats
	var err error
	if st.Total, err = s.count(ctx, `SELECT COUNT(*) FROM consultations`+where, args...); err != nil {
		return nil, err
	}
	month := append(append([]any{}, args...), startOfMonth(now()))
	if st.ThisMonth, err = s.count(ctx,
		`SELECT COUNT(*) FROM consultations`+where+` AND consult_date >= ?`, month...); err != nil {
		return nil, err
	}
	if st.ByCategory, err = s.countBy(ctx,
		`SELECT category, COUNT(*) FROM consultations`+where+` GROUP BY category ORDER BY COUNT(*) DESC`, args...); err != nil {
		return nil, err
	}
	if st.ByStatus, err = s.countBy(ctx,
		`SELECT status, COUNT(*) FROM consultations`+where+` GROUP BY status ORDER BY status`, args...); err != nil {
		return nil, err
	}
	return &st, nil
}
