package store

import (
	"context"
	"database/sql"
	"time"
)

// ImportedFile records a PDF whose content has already been parsed.
type ImportedFile struct {
	Hash          string
	Filename      string
	TeacherID     string
	QuestionCount int
	ImportedAt    time.Time
}

// RecordImportedFile upserts the import record for a content hash.
func (s *Store) RecordImportedFile(ctx context.Context, f ImportedFile) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO imported_files (hash, filename, teacher_id, question_count, imported_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET filename = excluded.filename,
		 teacher_id = excluded.teacher_id, question_count = excluded.question_count,
		 imported_at = excluded.imported_at`,
		f.Hash, f.Filename, f.TeacherID, f.QuestionCount, now(),
	)
	return err
}

// GetImportedFile returns the import record for a content hash.
// Returns nil and nil error if the hash was never imported.
func (s *Store) GetImportedFile(ctx context.Context, hash string) (*ImportedFile, error) {
	var f ImportedFile
	err := s.q.QueryRowContext(ctx,
		`SELECT hash, filename, teacher_id, question_count, imported_at FROM imported_files WHERE hash = ?`, hash,
	).Scan(&f.Hash, &f.Filename, &f.TeacherID, &f.QuestionCount, &f.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
