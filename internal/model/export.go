package model

import (
	"encoding/json"
	"time"
)

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID       string          `json:"exam_id"`
	Title        string          `json:"title"`
	CourseID     string          `json:"course_id"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	TotalScore   int             `json:"total_score"`
	NumQuestions int             `json:"num_questions"`
	AverageScore *float64        `json:"average_score"`
	Results      []TraineeResult `json:"results"`
}

// TraineeResult holds one trainee's submission for export.
type TraineeResult struct {
	TraineeNumber    string           `json:"trainee_number"`
	TraineeName      string           `json:"trainee_name"`
	Status           GradingStatus    `json:"grading_status"`
	StartedAt        time.Time        `json:"started_at"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	TimeTaken        int              `json:"time_taken"`
	Score            *float64         `json:"score"`
	Percentage       *float64         `json:"percentage"`
	BrowserExitCount int              `json:"browser_exit_count"`
	Questions        []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID string          `json:"question_id"`
	Type       QuestionType    `json:"question_type,omitempty"`
	Text       string          `json:"question_text,omitempty"`
	MaxScore   int             `json:"max_score"`
	Score      float64         `json:"score"`
	IsCorrect  *bool           `json:"is_correct"`
	Answer     json.RawMessage `json:"answer,omitempty"`
}
