package models

import "time"

// DefaultHallCapacity is applied when an exam is created without one.
// Clients assume the same figure when capacity data is unavailable.
const DefaultHallCapacity = 250

// Exam represents a scheduled examination session with a fixed-capacity hall.
// ExamSeq is a small per-installation sequence used as the tag prefix.
type Exam struct {
	ID           string    `db:"id" json:"id"`
	ExamSeq      int       `db:"exam_seq" json:"exam_seq"`
	CourseCode   string    `db:"course_code" json:"course_code"`
	CourseName   string    `db:"course_name" json:"course_name"`
	ExamDate     time.Time `db:"exam_date" json:"exam_date"`
	StartTime    string    `db:"start_time" json:"start_time"`
	Venue        string    `db:"venue" json:"venue"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	HallCapacity int       `db:"hall_capacity" json:"hall_capacity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StartsAt combines the exam date with the scheduled start time. A malformed
// start_time falls back to midnight of the exam date.
func (e *Exam) StartsAt() time.Time {
	t, err := time.Parse("15:04", e.StartTime)
	if err != nil {
		if t, err = time.Parse("15:04:05", e.StartTime); err != nil {
			return e.ExamDate
		}
	}
	return time.Date(e.ExamDate.Year(), e.ExamDate.Month(), e.ExamDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, e.ExamDate.Location())
}

// ExamFilter scopes exam listing queries.
type ExamFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CapacitySnapshot is derived state: seat accounting for one exam at a point
// in time. Occupied is always the count of checked_in queue entries.
type CapacitySnapshot struct {
	ExamID       string `json:"exam_id"`
	HallCapacity int    `json:"hall_capacity"`
	Occupied     int    `json:"occupied"`
	Available    int    `json:"available_seats"`
}
