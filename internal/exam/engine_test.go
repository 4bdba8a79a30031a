package exam

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.Store
	engine  *Engine
	teacher model.Principal
	student model.Principal
	exam    *model.Exam
	q       map[string]*model.Question // by label
}

func intPtr(i int) *int { return &i }

func newFixture(t *testing.T, mutate func(*model.Exam)) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	teacherID, err := s.CreateUser(ctx, model.User{Username: "teacher", Email: "t@example.com", PasswordHash: "x", Role: model.UserRoleTeacher, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	studentID, err := s.CreateUser(ctx, model.User{Username: "student", Email: "s@example.com", PasswordHash: "x", Role: model.UserRoleStudent, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	tr, err := s.CreateTrainee(ctx, model.Trainee{UserID: studentID, Name: "Kim", TraineeNumber: "T001"})
	if err != nil {
		t.Fatalf("CreateTrainee: %v", err)
	}
	course, err := s.CreateCourse(ctx, model.Course{Name: "Frontend", TeacherID: teacherID, Active: true})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if _, err := s.Enroll(ctx, tr.ID, course.ID); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	f := &fixture{
		store:   s,
		teacher: model.Principal{UserID: teacherID, Role: model.UserRoleTeacher},
		student: model.Principal{UserID: studentID, Role: model.UserRoleStudent, TraineeID: tr.ID},
		q:       map[string]*model.Question{},
	}
	add := func(label string, qt model.QuestionType, key string, opts []string) {
		q, err := s.CreateQuestion(ctx, model.Question{
			TeacherID:     teacherID,
			Type:          qt,
			Text:          label,
			Options:       opts,
			CorrectAnswer: key,
			Explanation:   "because " + label,
			DefaultWeight: 5,
		})
		if err != nil {
			t.Fatalf("CreateQuestion %s: %v", label, err)
		}
		f.q[label] = q
	}
	add("mc", model.MultipleChoice, "1", []string{"A", "B", "C", "D"})
	add("mc2", model.MultipleChoice, "4", []string{"A", "B", "C", "D"})
	add("sa", model.ShortAnswer, "document object model", nil)
	add("essay", model.Essay, "", nil)

	ex := model.Exam{
		CourseID:    course.ID,
		TeacherID:   teacherID,
		Title:       "Midterm",
		ExamType:    model.ExamMidterm,
		TotalScore:  100,
		TimeLimit:   30,
		StartTime:   testNow.Add(-time.Hour),
		EndTime:     testNow.Add(time.Hour),
		AllowReview: true,
		Active:      true,
		Questions: []model.ExamQuestionRef{
			{QuestionID: f.q["mc"].ID, Score: intPtr(20)},
			{QuestionID: f.q["mc2"].ID, Score: intPtr(20)},
			{QuestionID: f.q["sa"].ID, Score: intPtr(30)},
		},
	}
	if mutate != nil {
		mutate(&ex)
	}
	f.exam, err = s.CreateExam(ctx, ex)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	clock := testNow
	f.engine = New(s, WithClock(func() time.Time { return clock }))
	return f
}

func (f *fixture) answers(pairs ...string) map[string]json.RawMessage {
	m := map[string]json.RawMessage{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m[f.q[pairs[i]].ID] = json.RawMessage(pairs[i+1])
	}
	return m
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.Resumed {
		t.Error("first start should not be resumed")
	}
	if len(first.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(first.Questions))
	}
	if first.Questions[0].Score != 20 || first.Questions[2].Score != 30 {
		t.Errorf("expected effective weights 20/../30, got %+v", first.Questions)
	}

	second, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{})
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.SubmissionID != first.SubmissionID {
		t.Errorf("expected same submission id, got %s and %s", first.SubmissionID, second.SubmissionID)
	}
	if !second.Resumed || !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("resumed start should keep started_at: %v vs %v", second.StartedAt, first.StartedAt)
	}

	sub, err := f.store.GetSubmission(ctx, first.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.IPAddress != "10.0.0.1" || sub.UserAgent != "test" {
		t.Errorf("client info not recorded: %+v", sub)
	}
}

func TestStartStripsAnswerKey(t *testing.T) {
	f := newFixture(t, nil)
	sess, err := f.engine.Start(context.Background(), f.student, f.exam.ID, ClientInfo{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, leaked := range []string{"correct_answer", "explanation", "document object model"} {
		if strings.Contains(string(b), leaked) {
			t.Errorf("session payload leaks %q: %s", leaked, b)
		}
	}
}

func TestStartShufflesWhenAsked(t *testing.T) {
	f := newFixture(t, func(e *model.Exam) { e.ShuffleQuestions = true })
	reversed := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	eng := New(f.store, WithClock(func() time.Time { return testNow }), WithShuffle(reversed))
	sess, err := eng.Start(context.Background(), f.student, f.exam.ID, ClientInfo{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Questions[0].ID != f.q["sa"].ID || sess.Questions[2].ID != f.q["mc"].ID {
		t.Errorf("expected reversed order, got %s..%s", sess.Questions[0].Text, sess.Questions[2].Text)
	}
	if len(sess.Questions[0].Options) != 0 || len(sess.Questions[2].Options) != 4 {
		t.Error("options must stay attached to their question")
	}
}

func TestStartRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.Exam)
		wantErr error
	}{
		{"before window", func(e *model.Exam) { e.StartTime = testNow.Add(time.Minute) }, model.ErrOutsideWindow},
		{"after window", func(e *model.Exam) { e.EndTime = testNow.Add(-time.Minute) }, model.ErrOutsideWindow},
		{"inactive", func(e *model.Exam) { e.Active = false }, model.ErrExamInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			ctx := context.Background()
			_, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			subs, err := f.store.ListExamSubmissions(ctx, f.exam.ID)
			if err != nil {
				t.Fatalf("ListExamSubmissions: %v", err)
			}
			if len(subs) != 0 {
				t.Errorf("rejected start created %d submissions", len(subs))
			}
		})
	}

	t.Run("unknown exam", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.Start(context.Background(), f.student, "missing", ClientInfo{})
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("no trainee profile", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.Start(context.Background(), f.teacher, f.exam.ID, ClientInfo{})
		if !errors.Is(err, model.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("not enrolled", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		other, err := f.store.CreateTrainee(ctx, model.Trainee{Name: "Lee", TraineeNumber: "T002"})
		if err != nil {
			t.Fatalf("CreateTrainee: %v", err)
		}
		p := model.Principal{UserID: "x", Role: model.UserRoleStudent, TraineeID: other.ID}
		if _, err := f.engine.Start(ctx, p, f.exam.ID, ClientInfo{}); !errors.Is(err, model.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestSubmitExample(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{
		Answers:   f.answers("mc", `"1"`, "mc2", `"2"`, "sa", `" Document Object Model "`),
		TimeTaken: 600,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score == nil || *res.Score != 50 || *res.Percentage != 50 || res.TotalScore != 100 || res.MaxScore != 70 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Status != model.GradingCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
	if res.ShowResults {
		t.Error("show_results should follow the exam setting")
	}

	ex, err := f.store.GetExam(ctx, f.exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if ex.TotalSubmissions != 1 || ex.AverageScore == nil || *ex.AverageScore != 50 {
		t.Errorf("stats not refreshed: %d %v", ex.TotalSubmissions, ex.AverageScore)
	}

	// Stored score equals the sum recorded in feedback.
	sub, err := f.store.GetSubmission(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	var sum float64
	for _, fb := range sub.Feedback {
		sum += fb.Score
	}
	if sub.Score == nil || *sub.Score != sum {
		t.Errorf("score %v does not match feedback sum %v", sub.Score, sum)
	}
	if sub.GradedAt == nil || !sub.GradedAt.Equal(testNow) {
		t.Errorf("graded_at = %v, want %v", sub.GradedAt, testNow)
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{Answers: f.answers("mc", `"1"`)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{
		Answers: f.answers("mc", `"1"`, "mc2", `"4"`, "sa", `"document object model"`),
	})
	if !errors.Is(err, model.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	sub, err := f.store.GetSubmission(ctx, first.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Score == nil || *sub.Score != *first.Score {
		t.Errorf("rejected submit changed score: %v -> %v", first.Score, sub.Score)
	}

	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); !errors.Is(err, model.ErrAlreadyCompleted) {
		t.Errorf("restart after submit: expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{Answers: f.answers()}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("submit without start: expected ErrNotFound, got %v", err)
	}
	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tests := []struct {
		name string
		in   SubmitInput
	}{
		{"nil answers", SubmitInput{}},
		{"negative time", SubmitInput{Answers: f.answers(), TimeTaken: -1}},
		{"object answer", SubmitInput{Answers: f.answers("mc", `{"x":1}`)}},
		{"array for single choice", SubmitInput{Answers: f.answers("mc", `["1"]`)}},
		{"broken json", SubmitInput{Answers: f.answers("sa", `"unterminated`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Submit(ctx, f.student, f.exam.ID, tt.in)
			if !errors.Is(err, model.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	// Validation failures leave the session open.
	if _, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{Answers: f.answers()}); err != nil {
		t.Errorf("valid submit after rejected ones: %v", err)
	}
}

func TestSubmitMissingQuestion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.store.DeleteQuestion(ctx, f.q["sa"].ID); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}
	res, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{
		Answers: f.answers("mc", `"1"`, "sa", `"document object model"`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score == nil || *res.Score != 20 || res.MaxScore != 70 {
		t.Errorf("unexpected result: %+v", res)
	}
	sub, _ := f.store.GetSubmission(ctx, res.SubmissionID)
	if fb := sub.Feedback[f.q["sa"].ID]; !fb.Missing || fb.Score != 0 {
		t.Errorf("deleted question feedback = %+v", fb)
	}
}

func TestEssayManualGrading(t *testing.T) {
	f := newFixture(t, nil)
	essayID := f.q["essay"].ID
	ctx := context.Background()

	f.exam.Questions = append(f.exam.Questions, model.ExamQuestionRef{QuestionID: essayID, Score: intPtr(30)})
	if err := f.store.UpdateExam(ctx, *f.exam); err != nil {
		t.Fatalf("UpdateExam: %v", err)
	}
	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{
		Answers: f.answers("mc", `"1"`, "mc2", `"4"`, "sa", `"dom"`, "essay", `"my essay"`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != model.GradingAutoGraded || res.Score != nil || res.Percentage != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	sub, err := f.store.GetSubmission(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Score == nil || *sub.Score != 40 || sub.GradedAt != nil {
		t.Errorf("stored partial grade: score=%v graded_at=%v", sub.Score, sub.GradedAt)
	}

	// Not yet completed, so the trainee sees no per-question detail.
	view, err := f.engine.Result(ctx, f.student, res.SubmissionID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if view.Reviewable || len(view.Questions) != 0 {
		t.Errorf("auto-graded result should not be reviewable: %+v", view)
	}
	if view.Submission.Score != nil || view.Submission.Percentage != nil {
		t.Errorf("partial score shown before grading: %+v", view.Submission)
	}
	staffView, err := f.engine.Result(ctx, f.teacher, res.SubmissionID)
	if err != nil {
		t.Fatalf("teacher Result: %v", err)
	}
	if staffView.Submission.Score == nil || *staffView.Submission.Score != 40 {
		t.Errorf("teacher should see the partial score: %+v", staffView.Submission)
	}

	tests := []struct {
		name    string
		p       model.Principal
		in      ManualGradeInput
		wantErr error
	}{
		{"student", f.student, ManualGradeInput{Scores: map[string]float64{essayID: 10}}, model.ErrForbidden},
		{"other teacher", model.Principal{UserID: "other", Role: model.UserRoleTeacher}, ManualGradeInput{}, model.ErrForbidden},
		{"objective item", f.teacher, ManualGradeInput{Scores: map[string]float64{f.q["mc"].ID: 0}}, model.ErrValidation},
		{"negative", f.teacher, ManualGradeInput{Scores: map[string]float64{essayID: -1}}, model.ErrValidation},
		{"unknown", f.teacher, ManualGradeInput{Scores: map[string]float64{"nope": 1}}, model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.Grade(ctx, tt.p, res.SubmissionID, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	graded, err := f.engine.Grade(ctx, f.teacher, res.SubmissionID, ManualGradeInput{
		Scores:   map[string]float64{essayID: 99},
		Comments: map[string]string{essayID: "well argued"},
		Feedback: "good work",
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if graded.Status != model.GradingCompleted {
		t.Errorf("status = %q, want completed", graded.Status)
	}
	if *graded.Score != 70 || *graded.Percentage != 70 {
		t.Errorf("expected clamped essay: score=%v pct=%v", *graded.Score, *graded.Percentage)
	}
	if graded.Feedback[essayID].Score != 30 {
		t.Errorf("essay score not clamped to weight: %v", graded.Feedback[essayID].Score)
	}

	view, err = f.engine.Result(ctx, f.student, res.SubmissionID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !view.Reviewable || len(view.Questions) != 4 {
		t.Fatalf("completed result should be reviewable with 4 items: %+v", view)
	}
	if view.Questions[2].CorrectAnswer != "document object model" || view.Questions[2].Explanation == "" {
		t.Errorf("review should reveal the key: %+v", view.Questions[2])
	}
	if view.Questions[3].Comment != "well argued" || view.Submission.TeacherComment != "good work" {
		t.Errorf("comments missing: %+v", view)
	}

	ex, _ := f.store.GetExam(ctx, f.exam.ID)
	if ex.TotalSubmissions != 1 || *ex.AverageScore != 70 {
		t.Errorf("stats not refreshed after grading: %d %v", ex.TotalSubmissions, ex.AverageScore)
	}
}

func TestResultAccess(t *testing.T) {
	f := newFixture(t, func(e *model.Exam) { e.AllowReview = false })
	ctx := context.Background()
	sess, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := f.engine.Result(ctx, f.student, sess.SubmissionID); !errors.Is(err, model.ErrNotSubmitted) {
		t.Errorf("result before submit: expected ErrNotSubmitted, got %v", err)
	}

	if _, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{Answers: f.answers("mc", `"1"`), TimeTaken: 45 * 60}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view, err := f.engine.Result(ctx, f.student, sess.SubmissionID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if view.Reviewable || len(view.Questions) != 0 {
		t.Error("review disabled: expected score only")
	}
	if view.Submission.Score == nil || *view.Submission.Score != 20 {
		t.Errorf("score missing from result: %+v", view.Submission)
	}
	if !view.Submission.OverTimeLimit {
		t.Error("45 minutes on a 30 minute exam should be reported as over the limit")
	}

	stranger := model.Principal{UserID: "x", Role: model.UserRoleStudent, TraineeID: "someone-else"}
	if _, err := f.engine.Result(ctx, stranger, sess.SubmissionID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("other trainee: expected ErrNotFound, got %v", err)
	}

	staffView, err := f.engine.Result(ctx, f.teacher, sess.SubmissionID)
	if err != nil {
		t.Fatalf("teacher Result: %v", err)
	}
	if !staffView.Reviewable || len(staffView.Questions) != 3 {
		t.Errorf("owning teacher should see full detail: %+v", staffView)
	}
}

func TestAvailable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// A second exam in the same course whose window has passed.
	past := *f.exam
	past.Title = "Old quiz"
	past.StartTime = testNow.Add(-48 * time.Hour)
	past.EndTime = testNow.Add(-24 * time.Hour)
	if _, err := f.store.CreateExam(ctx, past); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	list, err := f.engine.Available(ctx, f.student)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(list) != 1 || list[0].ID != f.exam.ID {
		t.Fatalf("expected only the open exam, got %+v", list)
	}
	if list[0].Status != StatusNotStarted || list[0].CourseName != "Frontend" {
		t.Errorf("unexpected entry: %+v", list[0])
	}

	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	list, _ = f.engine.Available(ctx, f.student)
	if list[0].Status != string(model.GradingPending) || list[0].SubmissionID == "" {
		t.Errorf("expected pending status after start: %+v", list[0])
	}

	subs, err := f.engine.Submissions(ctx, f.teacher, f.exam.ID)
	if err != nil {
		t.Fatalf("Submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("expected 1 submission, got %d", len(subs))
	}
	if _, err := f.engine.Submissions(ctx, f.student, f.exam.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("student listing submissions: expected ErrForbidden, got %v", err)
	}
}

func TestSubmitShowResults(t *testing.T) {
	tests := []struct {
		name      string
		withEssay bool
		status    model.GradingStatus
		show      bool
	}{
		{"objective only", false, model.GradingCompleted, true},
		{"essay pending", true, model.GradingAutoGraded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var essayID string
			f := newFixture(t, func(e *model.Exam) { e.ShowResultsImmediate = true })
			ctx := context.Background()
			if tt.withEssay {
				essayID = f.q["essay"].ID
				f.exam.Questions = append(f.exam.Questions, model.ExamQuestionRef{QuestionID: essayID, Score: intPtr(30)})
				if err := f.store.UpdateExam(ctx, *f.exam); err != nil {
					t.Fatalf("UpdateExam: %v", err)
				}
			}
			if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
				t.Fatalf("Start: %v", err)
			}
			res, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{Answers: f.answers("mc", `"1"`)})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.Status != tt.status || res.ShowResults != tt.show {
				t.Errorf("status=%q show_results=%v, want %q %v", res.Status, res.ShowResults, tt.status, tt.show)
			}
			if got := res.Score != nil; got != tt.show {
				t.Errorf("score visible = %v, want %v", got, tt.show)
			}

			list, err := f.engine.Available(ctx, f.student)
			if err != nil {
				t.Fatalf("Available: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("expected 1 exam, got %d", len(list))
			}
			if got := list[0].Score != nil; got != tt.show {
				t.Errorf("available score visible = %v, want %v", got, tt.show)
			}
		})
	}
}

func TestSubmitConcurrent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.engine.Start(ctx, f.student, f.exam.ID, ClientInfo{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*SubmitResult
		errs    []error
	)
	for i := 0; i < workers; i++ {
		// Each goroutine answers differently so the stored score identifies the winner.
		answers := f.answers("mc", `"1"`)
		if i%2 == 1 {
			answers = f.answers("mc", `"1"`, "mc2", `"4"`)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Submit(ctx, f.student, f.exam.ID, SubmitInput{Answers: answers})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			winners = append(winners, res)
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one successful submit, got %d", len(winners))
	}
	for _, err := range errs {
		if !errors.Is(err, model.ErrAlreadySubmitted) {
			t.Errorf("losing submit: expected ErrAlreadySubmitted, got %v", err)
		}
	}
	sub, err := f.store.GetSubmission(ctx, winners[0].SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Score == nil || *sub.Score != *winners[0].Score {
		t.Errorf("stored score %v, winner score %v", sub.Score, *winners[0].Score)
	}
	ex, err := f.store.GetExam(ctx, f.exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if ex.TotalSubmissions != 1 {
		t.Errorf("total_submissions = %d, want 1", ex.TotalSubmissions)
	}
}
