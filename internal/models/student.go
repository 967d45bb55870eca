package models

import "time"

// Student represents an examinee known to the attendance system. Records are
// created on signup, or on first check-in when the operator runs in test mode.
type Student struct {
	ID        string    `db:"id" json:"id"`
	MatricNo  string    `db:"matric_no" json:"matric_no"`
	FullName  string    `db:"full_name" json:"full_name"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
