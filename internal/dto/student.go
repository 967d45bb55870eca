package dto

// CreateStudentRequest is the body for POST /students.
type CreateStudentRequest struct {
	MatricNo string `json:"matric_no" validate:"required,max=20"`
	FullName string `json:"full_name" validate:"required,max=255"`
}
