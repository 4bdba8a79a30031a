package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/academy/internal/model"
)

// ExportExam builds an export-ready document with every submission of an exam.
func (s *Store) ExportExam(ctx context.Context, examID string) (*model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(exam.Questions))
	for i, ref := range exam.Questions {
		ids[i] = ref.QuestionID
	}
	questions, err := s.GetQuestions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	subs, err := s.ListExamSubmissions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := &model.ExamExport{
		ExamID:       exam.ID,
		Title:        exam.Title,
		CourseID:     exam.CourseID,
		StartTime:    exam.StartTime,
		EndTime:      exam.EndTime,
		TotalScore:   exam.TotalScore,
		NumQuestions: len(exam.Questions),
		AverageScore: exam.AverageScore,
		Results:      []model.TraineeResult{},
	}

	for _, sub := range subs {
		var qs []model.QuestionResult
		for _, ref := range exam.Questions {
			q := questions[ref.QuestionID]
			qr := model.QuestionResult{
				QuestionID: ref.QuestionID,
				MaxScore:   model.EffectiveWeight(ref, q),
				Answer:     sub.Answers[ref.QuestionID],
			}
			if q != nil {
				qr.Type = q.Type
				qr.Text = q.Text
			}
			if fb, ok := sub.Feedback[ref.QuestionID]; ok {
				qr.Score = fb.Score
				qr.MaxScore = fb.MaxScore
				qr.IsCorrect = fb.IsCorrect
			}
			qs = append(qs, qr)
		}

		out.Results = append(out.Results, model.TraineeResult{
			TraineeNumber:    sub.TraineeNumber,
			TraineeName:      sub.TraineeName,
			Status:           sub.Status,
			StartedAt:        sub.StartedAt,
			SubmittedAt:      sub.SubmittedAt,
			TimeTaken:        sub.TimeTaken,
			Score:            sub.Score,
			Percentage:       sub.Percentage,
			BrowserExitCount: sub.BrowserExitCount,
			Questions:        qs,
		})
	}

	return out, nil
}
