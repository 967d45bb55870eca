package models

import "time"

// QueueStatus represents the admission lifecycle state of a queue entry.
type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "waiting"
	QueueStatusCheckedIn QueueStatus = "checked_in"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusAbsent    QueueStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusWaiting, QueueStatusCheckedIn, QueueStatusCompleted, QueueStatusAbsent:
		return true
	default:
		return false
	}
}

// Active reports whether the status still occupies a ledger slot for the
// (exam, student) pair.
func (s QueueStatus) Active() bool {
	return s == QueueStatusWaiting || s == QueueStatusCheckedIn
}

// Terminal reports whether the entry can no longer change state.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusAbsent
}

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusWaiting:   {QueueStatusCheckedIn, QueueStatusAbsent},
	QueueStatusCheckedIn: {QueueStatusCompleted, QueueStatusAbsent},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to QueueStatus) bool {
	for _, allowed := range queueTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// QueueEntry is the central ledger record: one student's place in the
// admission queue for one exam. Position is assigned at join time and never
// reused; tag_number is assigned exactly once at check-in.
type QueueEntry struct {
	ID           string      `db:"id" json:"id"`
	ExamID       string      `db:"exam_id" json:"exam"`
	StudentID    string      `db:"student_id" json:"student"`
	Position     int         `db:"position" json:"position"`
	Status       QueueStatus `db:"status" json:"status"`
	TagNumber    *string     `db:"tag_number" json:"tag_number,omitempty"`
	TagSeq       *int        `db:"tag_seq" json:"-"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	CheckedInAt  *time.Time  `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time  `db:"checked_out_at" json:"checked_out_at,omitempty"`
}

// QueueEntryDetail extends an entry with student and exam metadata for
// admin-facing listings.
type QueueEntryDetail struct {
	QueueEntry
	MatricNo    string `db:"matric_no" json:"username"`
	StudentName string `db:"student_name" json:"student_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
}

// QueueFilter scopes ledger listing queries.
type QueueFilter struct {
	ExamID    string
	StudentID string
	Status    *QueueStatus
}

// BatchInfo captures the two-regime admission math for one position: entries
// within the current batch report available seats, entries beyond it report
// how many people stand between them and the batch boundary.
type BatchInfo struct {
	InCurrentBatch bool `json:"in_current_batch"`
	AvailableSeats int  `json:"available_seats"`
	PeopleAhead    int  `json:"people_ahead"`
}
