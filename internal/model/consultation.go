package model

import "time"

// ConsultPhase is the stage of training a consultation belongs to.
type ConsultPhase string

const (
	PhasePreAdmission   ConsultPhase = "pre_admission"
	PhaseDuringTraining ConsultPhase = "during_training"
	PhasePostTraining   ConsultPhase = "post_training"
	PhaseEmployment     ConsultPhase = "employment"
)

// ConsultStatus is the state of a consultation.
type ConsultStatus string

const (
	ConsultPending   ConsultStatus = "pending"
	ConsultCompleted ConsultStatus = "completed"
	ConsultScheduled ConsultStatus = "scheduled"
	ConsultCancelled ConsultStatus = "cancelled"
)

// ConsultCategories lists the accepted consultation categories.
var ConsultCategories = []string{
	"admission",
	"career",
	"employment",
	"academic",
	"attendance",
	"personal",
	"financial",
	"certificate",
	"complaint",
	"follow_up",
	"other",
}

// Consultation is a counseling log entry for a trainee.
type Consultation struct {
	ID               string        `json:"id"`
	TraineeID        string        `json:"trainee_id"`
	TraineeName      string        `json:"trainee_name,omitempty"`
	CounselorID      string        `json:"counselor_id"`
	ConsultDate      time.Time     `json:"consult_date"`
	Phase            ConsultPhase  `json:"phase"`
	ContactMethod    string        `json:"contact_method,omitempty"`
	Category         string        `json:"category"`
	Content          string        `json:"content"`
	Importance       int           `json:"importance"`
	Status           ConsultStatus `json:"status"`
	NextFollowUp     *time.Time    `json:"next_follow_up_date,omitempty"`
	FollowUpReminder bool          `json:"follow_up_reminder"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ConsultationFilter narrows a consultation listing. CounselorID is forced to
// the caller for non-admins.
type ConsultationFilter struct {
	TraineeID     string
	CounselorID   string
	Category      string
	Status        ConsultStatus
	MinImportance int
	Search        string
	From          *time.Time
	To            *time.Time
}

// ConsultationStats summarizes consultations visible to a caller.
type ConsultationStats struct {
	Total      int       `json:"total"`
	ThisMonth  int       `json:"this_month"`
	ByCategory []CountBy `json:"by_category"`
	ByStatus   []CountBy `json:"by_status"`
}

// ConsultationAnalysis is the AI summary of a consultation text.
type ConsultationAnalysis struct {
	Summary     string   `json:"summary"`
	Sentiment   string   `json:"sentiment"`
	Keywords    []string `json:"keywords"`
	ActionItems []string `json:"action_items"`
}
