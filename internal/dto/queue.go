package dto

import (
	"time"

	"github.com/easypass/easypass-api/internal/models"
)

// JoinQueueRequest is the body for POST /queues. The client sends the
// resource names the legacy API used.
type JoinQueueRequest struct {
	ExamID    string `json:"exam" validate:"required"`
	StudentID string `json:"student" validate:"required"`
}

// QueueStatusResponse is the student-facing poll payload: the ledger entry
// plus the derived batch and wait-time context.
type QueueStatusResponse struct {
	models.QueueEntry
	CourseCode          string     `json:"course_code"`
	TotalStudents       int        `json:"total_students"`
	HallCapacity        int        `json:"hall_capacity"`
	InCurrentBatch      bool       `json:"in_current_batch"`
	AvailableSeats      int        `json:"available_seats"`
	PeopleAhead         int        `json:"people_ahead"`
	EstimatedWaitHours  float64    `json:"estimated_wait_time"`
	FirstCheckInTime    *time.Time `json:"first_check_in_time,omitempty"`
}

// CheckInResponse is returned by POST /check-in.
type CheckInResponse struct {
	TagNumber string                   `json:"tag_number"`
	Message   string                   `json:"message"`
	Queue     *models.QueueEntryDetail `json:"queue,omitempty"`
}

// CheckOutResponse is returned by POST /checkout and the force-complete
// endpoint; it carries the refreshed seat accounting for the exam.
type CheckOutResponse struct {
	Message        string `json:"message"`
	AvailableSeats int    `json:"available_seats"`
	HallCapacity   int    `json:"hall_capacity"`
}

// VerifyStatusResponse answers GET /queues/verify-status.
type VerifyStatusResponse struct {
	Valid bool `json:"valid"`
}

// ClearStatusRequest is the body for POST /queues/clear-status.
type ClearStatusRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ExamID    string `json:"exam_id" validate:"required"`
	Force     bool   `json:"force"`
}

// ClearStatusResponse reports what the reconciliation pass did.
type ClearStatusResponse struct {
	Cleared bool   `json:"cleared"`
	Message string `json:"message"`
}
