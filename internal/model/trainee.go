package model

import "time"

// TraineeStatus is the lifecycle state of a trainee.
type TraineeStatus string

const (
	TraineeWaiting   TraineeStatus = "waiting"
	TraineeActive    TraineeStatus = "active"
	TraineeCompleted TraineeStatus = "completed"
	TraineeDropped   TraineeStatus = "dropped"
	TraineeExpelled  TraineeStatus = "expelled"
)

// TraineeType distinguishes employed trainees from job seekers.
type TraineeType string

const (
	TraineeEmployed  TraineeType = "employed"
	TraineeJobSeeker TraineeType = "job_seeker"
)

// EmploymentStatus is the trainee's current employment situation.
type EmploymentStatus string

const (
	Unemployed   EmploymentStatus = "unemployed"
	Employed     EmploymentStatus = "employed"
	SelfEmployed EmploymentStatus = "self_employed"
)

// Trainee is a student of the academy. A trainee may exist without a login.
type Trainee struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id,omitempty"`
	Name              string           `json:"name"`
	TraineeNumber     string           `json:"trainee_number"`
	TraineeType       TraineeType      `json:"trainee_type"`
	CourseType        string           `json:"course_type,omitempty"`
	Phone             string           `json:"phone,omitempty"`
	Email             string           `json:"email,omitempty"`
	BirthDate         string           `json:"birth_date,omitempty"`
	Address           string           `json:"address,omitempty"`
	Status            TraineeStatus    `json:"status"`
	EnrollmentDate    string           `json:"enrollment_date,omitempty"`
	CompletionDate    string           `json:"completion_date,omitempty"`
	EmploymentStatus  EmploymentStatus `json:"employment_status"`
	EmploymentCompany string           `json:"employment_company,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TraineeFilter narrows a trainee listing.
type TraineeFilter struct {
	Status      TraineeStatus
	TraineeType TraineeType
	Search      string
}

// TraineeStats summarizes the trainee population.
type TraineeStats struct {
	Total        int       `json:"total"`
	ByStatus     []CountBy `json:"by_status"`
	NewThisMonth int       `json:"new_this_month"`
	Employed     int       `json:"employed"`
}

// Course is a class taught by a teacher.
type Course struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject,omitempty"`
	TeacherID   string    `json:"teacher_id,omitempty"`
	MaxStudents int       `json:"max_students"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	Active      bool      `json:"is_active"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EnrollmentStatus is the state of a trainee in a course.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// Enrollment links a trainee to a course. The pair is unique.
type Enrollment struct {
	ID         string           `json:"id"`
	TraineeID  string           `json:"trainee_id"`
	CourseID   string           `json:"course_id"`
	CourseName string           `json:"course_name,omitempty"`
	Status     EnrollmentStatus `json:"status"`
	EnrolledAt time.Time        `json:"enrolled_at"`
}

// Employment records a job placement.
type Employment struct {
	ID             string    `json:"id"`
	TraineeID      string    `json:"trainee_id"`
	CounselorID    string    `json:"counselor_id,omitempty"`
	CompanyName    string    `json:"company_name"`
	Position       string    `json:"position,omitempty"`
	EmploymentType string    `json:"employment_type,omitempty"`
	StartDate      string    `json:"start_date,omitempty"`
	Verified       bool      `json:"verified"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
