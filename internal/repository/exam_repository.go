package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/easypass/easypass-api/internal/models"
)

// ExamRepository manages persistence for exam sessions.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `id, exam_seq, course_code, course_name, exam_date, start_time, venue, is_active, hall_capacity, created_at, updated_at`

// List returns exams matching the provided filters.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(course_code) LIKE $%d OR LOWER(course_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"exam_date":   "exam_date",
		"course_code": "course_code",
		"created_at":  "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "exam_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM exams WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		examColumns, where, column, order, size, offset)

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM exams WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}

// FindByID fetches an exam by ID.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	var exam models.Exam
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE id = $1`, examColumns)
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindActiveByCourseCode resolves the active exam carrying the given course
// code, which is how QR payloads name exams.
func (r *ExamRepository) FindActiveByCourseCode(ctx context.Context, courseCode string) (*models.Exam, error) {
	var exam models.Exam
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE UPPER(course_code) = UPPER($1) AND is_active = true ORDER BY exam_date ASC LIMIT 1`, examColumns)
	if err := r.db.GetContext(ctx, &exam, query, courseCode); err != nil {
		return nil, err
	}
	return &exam, nil
}

// ExistsActiveByCourseCode checks for an active exam with the code,
// optionally excluding an ID.
func (r *ExamRepository) ExistsActiveByCourseCode(ctx context.Context, courseCode string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM exams WHERE UPPER(course_code) = UPPER($1) AND is_active = true"
	args := []interface{}{courseCode}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create inserts a new exam. The tag prefix sequence (exam_seq) is assigned
// by the database.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, course_code, course_name, exam_date, start_time, venue, is_active, hall_capacity, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING exam_seq`
	if err := r.db.GetContext(ctx, &exam.ExamSeq, query,
		exam.ID, exam.CourseCode, exam.CourseName, exam.ExamDate, exam.StartTime,
		exam.Venue, exam.IsActive, exam.HallCapacity, exam.CreatedAt, exam.UpdatedAt); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update modifies an existing exam.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET course_code = :course_code, course_name = :course_name, exam_date = :exam_date,
        start_time = :start_time, venue = :venue, is_active = :is_active, hall_capacity = :hall_capacity, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// Deactivate marks an exam inactive. Queue history survives deactivation.
func (r *ExamRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE exams SET is_active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate exam: %w", err)
	}
	return nil
}
