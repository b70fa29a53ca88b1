package conversation

import (
	"time"

	"github.com/alecgard/entretien/internal/user"
)

// Conversation statuses. not_started is virtual: no record exists until the
// first write materializes one.
const (
	StatusNotStarted      = "not_started"
	StatusInProgress      = "in_progress"
	StatusReadyForManager = "ready_for_manager"
	StatusCompleted       = "completed"
)

// Ratings holds the manager's 1-5 scores. Nil means not yet rated.
type Ratings struct {
	Performance   *int `json:"performance"`
	Collaboration *int `json:"collaboration"`
	Growth        *int `json:"growth"`
}

// EmployeeFields is the employee-owned side of a conversation. The content
// is opaque to this core: rich-text markup is stored and returned verbatim.
type EmployeeFields struct {
	SelfReview      string `json:"self_review"`
	Achievements    string `json:"achievements"`
	Challenges      string `json:"challenges"`
	Strengths       string `json:"strengths"`
	GrowthAreas     string `json:"growth_areas"`
	GoalsNextPeriod string `json:"goals_next_period"`
}

// Conversation is the per-employee, per-cycle review record. manager_email
// is a snapshot taken at creation time; read authorization for archived
// history is evaluated against it, not the employee's current manager.
type Conversation struct {
	ID              string         `json:"id"`
	CycleID         string         `json:"cycle_id"`
	EmployeeEmail   string         `json:"employee_email"`
	ManagerEmail    *string        `json:"manager_email"`
	EmployeeFields  EmployeeFields `json:"employee_fields"`
	ManagerFeedback string         `json:"manager_feedback"`
	MeetingDate     *time.Time     `json:"meeting_date"`
	Ratings         Ratings        `json:"ratings"`
	Status          string         `json:"status"`
	UpdatedByEmail  *string        `json:"updated_by_email"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// EmployeeUpdate carries an employee write: any subset of the employee
// fields plus an optional status. Nil fields are left untouched.
type EmployeeUpdate struct {
	SelfReview      *string `json:"self_review"`
	Achievements    *string `json:"achievements"`
	Challenges      *string `json:"challenges"`
	Strengths       *string `json:"strengths"`
	GrowthAreas     *string `json:"growth_areas"`
	GoalsNextPeriod *string `json:"goals_next_period"`
	Status          *string `json:"status"`
}

// ManagerUpdate carries a manager write: feedback, meeting date, ratings,
// plus an optional status. Nil fields are left untouched.
type ManagerUpdate struct {
	ManagerFeedback *string    `json:"manager_feedback"`
	MeetingDate     *time.Time `json:"meeting_date"`
	Ratings         *Ratings   `json:"ratings"`
	Status          *string    `json:"status"`
}

// UpdateInput is the store-level partial update. Only non-nil fields are
// written, so concurrent employee and manager edits to the same
// conversation merge at field level instead of clobbering each other.
type UpdateInput struct {
	SelfReview      *string
	Achievements    *string
	Challenges      *string
	Strengths       *string
	GrowthAreas     *string
	GoalsNextPeriod *string
	ManagerFeedback *string
	MeetingDate     *time.Time
	Ratings         *Ratings
	Status          *string
	UpdatedBy       string
}

// ReportSummary pairs a direct report with the status of their conversation
// in the active cycle.
type ReportSummary struct {
	Employee           *user.User `json:"employee"`
	ConversationID     *string    `json:"conversation_id"`
	ConversationStatus string     `json:"conversation_status"`
}
