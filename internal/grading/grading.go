// Package grading scores submitted answers against an exam's question map.
// It is pure: callers load the exam and questions and persist the result.
package grading

import (
	"math"
	"slices"
	"strings"

	"github.com/pavelanni/academy/internal/model"
)

// Result is the outcome of grading one submission.
type Result struct {
	Score      float64
	MaxScore   int
	Percentage float64
	Status     model.GradingStatus
	Feedback   map[string]model.QuestionFeedback
}

// Grade scores answers for every question referenced by the exam. questions
// maps question id to the bank entry; a missing entry is graded as zero.
// answers must already be decoded per question type.
func Grade(exam *model.Exam, questions map[string]*model.Question, answers map[string]model.Answer) Result {
	res := Result{
		Status:   model.GradingCompleted,
		Feedback: make(map[string]model.QuestionFeedback, len(exam.Questions)),
	}

	for _, ref := range exam.Questions {
		q := questions[ref.QuestionID]
		weight := model.EffectiveWeight(ref, q)
		res.MaxScore += weight

		fb := model.QuestionFeedback{MaxScore: weight}
		switch {
		case q == nil:
			fb.Missing = true
			fb.IsCorrect = boolPtr(false)
		case q.Type.NeedsManualGrading():
			fb.NeedsManual = true
			res.Status = model.GradingAutoGraded
		default:
			ok := Correct(q.Key, answers[ref.QuestionID])
			fb.IsCorrect = boolPtr(ok)
			if ok {
				fb.Score = float64(weight)
			}
		}
		res.Score += fb.Score
		res.Feedback[ref.QuestionID] = fb
	}

	res.Percentage = Percentage(res.Score, exam.TotalScore, res.MaxScore)
	return res
}

// Correct reports whether a submitted answer matches the key. Absent answers
// are never correct.
func Correct(key, got model.Answer) bool {
	if !got.Present || !key.Present {
		return false
	}
	switch key.Type {
	case model.MultipleChoice, model.TrueFalse:
		return got.Text == key.Text
	case model.MultipleAnswer:
		return slices.Equal(got.Set, key.Set)
	case model.ShortAnswer:
		return strings.EqualFold(strings.TrimSpace(got.Text), strings.TrimSpace(key.Text))
	}
	return false
}

// Recompute sums awarded scores from the feedback recorded at submission,
// used after manual grading. The status is completed only when no item still
// awaits manual grading.
func Recompute(totalScore int, feedback map[string]model.QuestionFeedback) Result {
	res := Result{Status: model.GradingCompleted, Feedback: feedback}
	for _, fb := range feedback {
		res.Score += fb.Score
		res.MaxScore += fb.MaxScore
		if fb.NeedsManual && fb.IsCorrect == nil {
			res.Status = model.GradingAutoGraded
		}
	}
	res.Percentage = Percentage(res.Score, totalScore, res.MaxScore)
	return res
}

// Percentage computes score as a percentage of the declared total, falling
// back to the sum of weights when the exam declares none. The result is
// rounded to two decimals.
func Percentage(score float64, totalScore, maxScore int) float64 {
	denom := totalScore
	if denom <= 0 {
		denom = maxScore
	}
	if denom <= 0 {
		return 0
	}
	return math.Round(score/float64(denom)*100*100) / 100
}

func boolPtr(b bool) *bool { return &b }
