package grading

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pavelanni/academy/internal/model"
)

func mustKey(t *testing.T, qt model.QuestionType, key string) model.Answer {
	t.Helper()
	a, err := model.ParseKey(qt, key)
	if err != nil {
		t.Fatalf("ParseKey(%s, %q): %v", qt, key, err)
	}
	return a
}

func mustAnswer(t *testing.T, qt model.QuestionType, raw string) model.Answer {
	t.Helper()
	a, err := model.DecodeAnswer(qt, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("DecodeAnswer(%s, %s): %v", qt, raw, err)
	}
	return a
}

func intPtr(i int) *int { return &i }

func TestCorrect(t *testing.T) {
	tests := []struct {
		name string
		qt   model.QuestionType
		key  string
		got  string
		want bool
	}{
		{"choice exact", model.MultipleChoice, "2", `"2"`, true},
		{"choice number", model.MultipleChoice, "2", `2`, true},
		{"choice wrong", model.MultipleChoice, "2", `"3"`, false},
		{"choice absent", model.MultipleChoice, "2", `null`, false},
		{"true false", model.TrueFalse, "true", `true`, true},
		{"true false case sensitive", model.TrueFalse, "O", `"o"`, false},
		{"multi order independent", model.MultipleAnswer, `["a","b"]`, `["b","a"]`, true},
		{"multi duplicates collapse", model.MultipleAnswer, `["a","b"]`, `["a","b","a"]`, true},
		{"multi subset", model.MultipleAnswer, `["a","b"]`, `["a"]`, false},
		{"multi superset", model.MultipleAnswer, `["a","b"]`, `["a","b","c"]`, false},
		{"multi encoded string", model.MultipleAnswer, `[1,3]`, `"[3,1]"`, true},
		{"multi single value", model.MultipleAnswer, `["a"]`, `"a"`, true},
		{"short answer folds case and space", model.ShortAnswer, "document object model", `" Document Object Model "`, true},
		{"short answer inner text differs", model.ShortAnswer, "document object model", `"document model"`, false},
		{"short answer empty", model.ShortAnswer, "dom", `""`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := mustKey(t, tt.qt, tt.key)
			got := mustAnswer(t, tt.qt, tt.got)
			if ok := Correct(key, got); ok != tt.want {
				t.Errorf("Correct() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestGradeExample(t *testing.T) {
	questions := map[string]*model.Question{
		"q1": {ID: "q1", Type: model.MultipleChoice, DefaultWeight: 5},
		"q2": {ID: "q2", Type: model.MultipleChoice, DefaultWeight: 5},
		"q3": {ID: "q3", Type: model.ShortAnswer, DefaultWeight: 5},
	}
	questions["q1"].Key = mustKey(t, model.MultipleChoice, "1")
	questions["q2"].Key = mustKey(t, model.MultipleChoice, "4")
	questions["q3"].Key = mustKey(t, model.ShortAnswer, "document object model")

	exam := &model.Exam{
		TotalScore: 100,
		Questions: []model.ExamQuestionRef{
			{QuestionID: "q1", Score: intPtr(20)},
			{QuestionID: "q2", Score: intPtr(20)},
			{QuestionID: "q3", Score: intPtr(30)},
		},
	}
	answers := map[string]model.Answer{
		"q1": mustAnswer(t, model.MultipleChoice, `"1"`),
		"q2": mustAnswer(t, model.MultipleChoice, `"2"`),
		"q3": mustAnswer(t, model.ShortAnswer, `" Document Object Model "`),
	}

	res := Grade(exam, questions, answers)
	if res.Score != 50 {
		t.Errorf("score = %v, want 50", res.Score)
	}
	if res.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", res.Percentage)
	}
	if res.MaxScore != 70 {
		t.Errorf("max score = %d, want 70", res.MaxScore)
	}
	if res.Status != model.GradingCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
	if fb := res.Feedback["q2"]; fb.IsCorrect == nil || *fb.IsCorrect || fb.Score != 0 {
		t.Errorf("q2 feedback = %+v, want incorrect with 0", fb)
	}
	if fb := res.Feedback["q3"]; fb.Score != 30 || fb.MaxScore != 30 {
		t.Errorf("q3 feedback = %+v, want 30/30", fb)
	}
}

func TestGradeSumMatchesScore(t *testing.T) {
	questions := map[string]*model.Question{
		"a": {ID: "a", Type: model.TrueFalse, DefaultWeight: 7},
		"b": {ID: "b", Type: model.MultipleAnswer, DefaultWeight: 11},
		"c": {ID: "c", Type: model.Essay, DefaultWeight: 13},
	}
	questions["a"].Key = mustKey(t, model.TrueFalse, "false")
	questions["b"].Key = mustKey(t, model.MultipleAnswer, `["x","y"]`)
	exam := &model.Exam{
		TotalScore: 40,
		Questions: []model.ExamQuestionRef{
			{QuestionID: "a"},
			{QuestionID: "b", Score: intPtr(9)},
			{QuestionID: "c"},
			{QuestionID: "gone", Score: intPtr(3)},
		},
	}
	answers := map[string]model.Answer{
		"a": mustAnswer(t, model.TrueFalse, `false`),
		"b": mustAnswer(t, model.MultipleAnswer, `["y","x"]`),
		"c": mustAnswer(t, model.Essay, `"long text"`),
	}

	res := Grade(exam, questions, answers)

	var sum float64
	for _, fb := range res.Feedback {
		sum += fb.Score
	}
	if sum != res.Score {
		t.Errorf("sum of awarded = %v, score = %v", sum, res.Score)
	}
	if res.Score != 16 {
		t.Errorf("score = %v, want 16", res.Score)
	}
	want := res.Score / float64(exam.TotalScore) * 100
	if math.Abs(res.Percentage-want) > 0.005 {
		t.Errorf("percentage = %v, want %v", res.Percentage, want)
	}
	if res.Status != model.GradingAutoGraded {
		t.Errorf("status = %q, want auto_graded", res.Status)
	}
	if fb := res.Feedback["c"]; !fb.NeedsManual || fb.IsCorrect != nil {
		t.Errorf("essay feedback = %+v, want pending manual", fb)
	}
	if fb := res.Feedback["gone"]; !fb.Missing || fb.MaxScore != 3 || fb.Score != 0 {
		t.Errorf("missing feedback = %+v", fb)
	}
	if res.MaxScore != 7+9+13+3 {
		t.Errorf("max score = %d", res.MaxScore)
	}
}

func TestRecompute(t *testing.T) {
	correct := true
	fb := map[string]model.QuestionFeedback{
		"a": {IsCorrect: &correct, Score: 10, MaxScore: 10},
		"b": {NeedsManual: true, MaxScore: 10},
	}

	res := Recompute(0, fb)
	if res.Status != model.GradingAutoGraded {
		t.Errorf("status = %q, want auto_graded while essay ungraded", res.Status)
	}

	graded := false
	fb["b"] = model.QuestionFeedback{NeedsManual: true, IsCorrect: &graded, Score: 4, MaxScore: 10}
	res = Recompute(0, fb)
	if res.Status != model.GradingCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
	if res.Score != 14 || res.Percentage != 70 {
		t.Errorf("score = %v percentage = %v, want 14 and 70", res.Score, res.Percentage)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		total int
		max   int
		want  float64
	}{
		{"declared total", 50, 100, 70, 50},
		{"fallback to weights", 35, 0, 70, 50},
		{"no denominator", 10, 0, 0, 0},
		{"rounded", 1, 3, 0, 33.33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentage(tt.score, tt.total, tt.max); got != tt.want {
				t.Errorf("Percentage() = %v, want %v", got, tt.want)
			}
		})
	}
}
