package dto

// CreateExamRequest is the body for POST /exams.
type CreateExamRequest struct {
	CourseCode   string `json:"course_code" validate:"required,max=20"`
	CourseName   string `json:"course_name" validate:"required,max=255"`
	ExamDate     string `json:"exam_date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required"`
	Venue        string `json:"venue" validate:"required,max=255"`
	HallCapacity int    `json:"hall_capacity" validate:"omitempty,min=1"`
}

// UpdateExamRequest is the body for PUT /exams/:id. Pointer fields are
// applied only when present.
type UpdateExamRequest struct {
	CourseName   *string `json:"course_name" validate:"omitempty,max=255"`
	ExamDate     *string `json:"exam_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    *string `json:"start_time"`
	Venue        *string `json:"venue" validate:"omitempty,max=255"`
	HallCapacity *int    `json:"hall_capacity" validate:"omitempty,min=1"`
	IsActive     *bool   `json:"is_active"`
}
