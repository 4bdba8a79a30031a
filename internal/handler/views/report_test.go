package views

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/academy/internal/exam"
	appI18n "github.com/pavelanni/academy/internal/i18n"
	"github.com/pavelanni/academy/internal/model"
)

func render(t *testing.T, lang string, v *exam.ResultView) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var buf bytes.Buffer
	ctx := appI18n.WithLang(context.Background(), lang)
	if err := ResultReport(v).Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func sampleView() *exam.ResultView {
	score, pct := 50.0, 50.0
	submitted := time.Date(2026, 3, 10, 10, 20, 0, 0, time.UTC)
	yes, no := true, false
	return &exam.ResultView{
		Exam: exam.ResultExam{ID: "e1", Title: "Midterm <HTML>", CourseName: "Frontend", TotalScore: 100},
		Submission: exam.ResultSubmission{
			ID:            "s1",
			TraineeName:   "Kim",
			TraineeNumber: "T001",
			Status:        model.GradingCompleted,
			Score:         &score,
			Percentage:    &pct,
			StartedAt:     submitted.Add(-20 * time.Minute),
			SubmittedAt:   &submitted,
			TimeTaken:     1200,
		},
		Reviewable: true,
		Questions: []exam.ReviewItem{
			{
				ID:            "q1",
				Type:          model.MultipleChoice,
				Text:          "What is 1+1?",
				Options:       []string{"1", "2"},
				CorrectAnswer: "2",
				ScoreWeight:   20,
				StudentAnswer: json.RawMessage(`"2"`),
				IsCorrect:     &yes,
				EarnedScore:   20,
			},
			{
				ID:            "q2",
				Type:          model.MultipleAnswer,
				Text:          "Pick <b>two</b>",
				ScoreWeight:   30,
				StudentAnswer: json.RawMessage(`["a","c"]`),
				IsCorrect:     &no,
			},
			{ID: "q3", ScoreWeight: 10, Missing: true},
		},
	}
}

func TestResultReportEnglish(t *testing.T) {
	out := render(t, "en", sampleView())

	for _, want := range []string{
		`<html lang="en">`,
		"Exam result: Midterm &lt;HTML&gt;",
		"<td>T001</td>",
		"<td>50 / 100</td>",
		"<td>50%</td>",
		"20 minutes",
		"Completed",
		`<span class="correct">Correct</span>`,
		`<span class="incorrect">Incorrect</span>`,
		"Pick &lt;b&gt;two&lt;/b&gt;",
		"<td>a, c</td>",
		"This question was removed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(out, "<b>two</b>") {
		t.Error("question text was not escaped")
	}
}

func TestResultReportKorean(t *testing.T) {
	out := render(t, "ko", sampleView())
	if !strings.Contains(out, `<html lang="ko">`) {
		t.Error("missing ko lang attribute")
	}
	if !strings.Contains(out, "20분") {
		t.Errorf("expected Korean minutes label in report")
	}
}

func TestResultReportWithoutReview(t *testing.T) {
	v := sampleView()
	v.Reviewable = false
	v.Questions = nil
	out := render(t, "en", v)
	if !strings.Contains(out, "Question review is not available") {
		t.Error("missing review unavailable notice")
	}
	if strings.Contains(out, "<h3>") {
		t.Error("questions rendered without review")
	}
}

func TestTrimFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50, "50"},
		{66.67, "66.67"},
		{12.5, "12.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := trimFloat(tt.in); got != tt.want {
			t.Errorf("trimFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReportMarksOverTimeLimit(t *testing.T) {
	v := sampleView()
	v.Submission.TimeTaken = 61
	v.Submission.OverTimeLimit = true
	out := render(t, "en", v)
	if !strings.Contains(out, "2 minutes") {
		t.Error("time taken should round up to whole minutes")
	}
	if !strings.Contains(out, `<span class="incorrect">(`) {
		t.Error("missing over time limit marker")
	}
}
