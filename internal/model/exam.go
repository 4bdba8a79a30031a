package model

import (
	"encoding/json"
	"time"
)

// QuestionType selects how a question is answered and graded.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MultipleAnswer QuestionType = "multiple_answer"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	TrueFalse      QuestionType = "true_false"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, MultipleAnswer, ShortAnswer, Essay, TrueFalse:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type need an option list.
func (t QuestionType) HasOptions() bool {
	return t == MultipleChoice || t == MultipleAnswer
}

// NeedsManualGrading reports whether answers of this type are graded by a
// teacher instead of automatically.
func (t QuestionType) NeedsManualGrading() bool { return t == Essay }

// Difficulty of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is an item in the question bank. CorrectAnswer holds the canonical
// text form; Key is its decoded form and is populated by the store.
type Question struct {
	ID            string       `json:"id"`
	TeacherID     string       `json:"teacher_id"`
	CourseID      string       `json:"course_id,omitempty"`
	Type          QuestionType `json:"question_type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Text          string       `json:"question_text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	DefaultWeight int          `json:"score_weight"`
	Tags          []string     `json:"tags,omitempty"`
	NCSUnitCode   string       `json:"ncs_unit_code,omitempty"`
	Active        bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	Key Answer `json:"-"`
}

// Redacted returns a copy without the answer key and explanation.
func (q Question) Redacted() Question {
	q.CorrectAnswer = ""
	q.Explanation = ""
	q.Key = Answer{}
	return q
}

// QuestionFilter narrows a question bank listing.
type QuestionFilter struct {
	TeacherID   string
	CourseID    string
	Type        QuestionType
	Difficulty  Difficulty
	NCSUnitCode string
	Search      string
}

// QuestionStats summarizes the question bank.
type QuestionStats struct {
	Total        int       `json:"total"`
	ByType       []CountBy `json:"by_type"`
	ByDifficulty []CountBy `json:"by_difficulty"`
}

// QuestionDraft is a candidate question produced by the PDF importer.
type QuestionDraft struct {
	Type          QuestionType `json:"question_type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Text          string       `json:"question_text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	ScoreWeight   int          `json:"score_weight"`
	Tags          []string     `json:"tags,omitempty"`
}

// ExamType classifies an exam.
type ExamType string

const (
	ExamMidterm    ExamType = "midterm"
	ExamFinal      ExamType = "final"
	ExamQuiz       ExamType = "quiz"
	ExamAssignment ExamType = "assignment"
	ExamPractice   ExamType = "practice"
)

// ExamQuestionRef is one ordered entry of an exam's question list. Score, when
// set, overrides the question's default weight for this exam.
type ExamQuestionRef struct {
	QuestionID string `json:"question_id"`
	Score      *int   `json:"score,omitempty"`
}

// UnmarshalJSON accepts both "question_id" and "id" for the question key.
func (r *ExamQuestionRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID string `json:"question_id"`
		ID         string `json:"id"`
		Score      *int   `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.QuestionID = raw.QuestionID
	if r.QuestionID == "" {
		r.QuestionID = raw.ID
	}
	r.Score = raw.Score
	return nil
}

// EffectiveWeight resolves the weight of a question within an exam: the
// exam's override when present, otherwise the question's default weight.
func EffectiveWeight(ref ExamQuestionRef, q *Question) int {
	if ref.Score != nil {
		return *ref.Score
	}
	if q == nil {
		return 0
	}
	return q.DefaultWeight
}

// Exam is a timed test drawn from the question bank.
type Exam struct {
	ID                   string            `json:"id"`
	CourseID             string            `json:"course_id"`
	TeacherID            string            `json:"teacher_id"`
	Title                string            `json:"title"`
	Description          string            `json:"description,omitempty"`
	ExamType             ExamType          `json:"exam_type"`
	Questions            []ExamQuestionRef `json:"questions"`
	TotalScore           int               `json:"total_score"`
	TimeLimit            int               `json:"time_limit,omitempty"` // minutes, 0 means none
	StartTime            time.Time         `json:"start_time"`
	EndTime              time.Time         `json:"end_time"`
	ShuffleQuestions     bool              `json:"shuffle_questions"`
	ShowResultsImmediate bool              `json:"show_results_immediately"`
	AllowReview          bool              `json:"allow_review"`
	PreventBrowserExit   bool              `json:"prevent_browser_exit"`
	Active               bool              `json:"is_active"`
	TotalSubmissions     int               `json:"total_submissions"`
	AverageScore         *float64          `json:"average_score"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// InWindow reports whether t lies within [StartTime, EndTime].
func (e *Exam) InWindow(t time.Time) bool {
	return !t.Before(e.StartTime) && !t.After(e.EndTime)
}

// ExamFilter narrows an exam listing.
type ExamFilter struct {
	TeacherID string
	CourseID  string
	ExamType  ExamType
	Active    *bool
}

// GradingStatus is the lifecycle marker of a submission.
type GradingStatus string

const (
	GradingPending    GradingStatus = "pending"
	GradingAutoGraded GradingStatus = "auto_graded"
	GradingCompleted  GradingStatus = "completed"
)

// QuestionFeedback is the grading outcome of one question. IsCorrect is nil
// for items awaiting manual grading.
type QuestionFeedback struct {
	IsCorrect   *bool   `json:"is_correct"`
	Score       float64 `json:"score"`
	MaxScore    int     `json:"max_score"`
	NeedsManual bool    `json:"needs_manual_grading,omitempty"`
	Missing     bool    `json:"missing,omitempty"`
	Comment     string  `json:"comment,omitempty"`
}

// Submission is a trainee's attempt at an exam. There is at most one per
// (exam, trainee) pair.
type Submission struct {
	ID               string                      `json:"id"`
	ExamID           string                      `json:"exam_id"`
	TraineeID        string                      `json:"trainee_id"`
	StartedAt        time.Time                   `json:"started_at"`
	SubmittedAt      *time.Time                  `json:"submitted_at"`
	TimeTaken        int                         `json:"time_taken"` // seconds
	Answers          map[string]json.RawMessage  `json:"submitted_answers"`
	Score            *float64                    `json:"score"`
	Percentage       *float64                    `json:"percentage"`
	Status           GradingStatus               `json:"grading_status"`
	Feedback         map[string]QuestionFeedback `json:"feedback,omitempty"`
	TeacherComment   string                      `json:"teacher_feedback,omitempty"`
	GradedBy         string                      `json:"graded_by,omitempty"`
	GradedAt         *time.Time                  `json:"graded_at,omitempty"`
	BrowserExitCount int                         `json:"browser_exit_count"`
	IPAddress        string                      `json:"ip_address,omitempty"`
	UserAgent        string                      `json:"user_agent,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`

	TraineeName   string `json:"trainee_name,omitempty"`
	TraineeNumber string `json:"trainee_number,omitempty"`
}

// Submitted reports whether the submission has reached a terminal state.
func (s *Submission) Submitted() bool { return s.SubmittedAt != nil }
