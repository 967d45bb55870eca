package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/models"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type examRepository interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	ExistsActiveByCourseCode(ctx context.Context, courseCode string, excludeID string) (bool, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	Deactivate(ctx context.Context, id string) error
}

// ExamService manages the exam catalogue.
type ExamService struct {
	exams           examRepository
	capacity        *CapacityService
	defaultCapacity int
	validate        *validator.Validate
	logger          *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(exams examRepository, capacity *CapacityService, defaultCapacity int, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultCapacity <= 0 {
		defaultCapacity = models.DefaultHallCapacity
	}
	return &ExamService{
		exams:           exams,
		capacity:        capacity,
		defaultCapacity: defaultCapacity,
		validate:        validator.New(),
		logger:          logger,
	}
}

// List returns exams matching the filter plus the total count for paging.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	exams, total, err := s.exams.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, total, nil
}

// Get returns a single exam.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.exams.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// Capacity returns the live seat accounting for an exam.
func (s *ExamService) Capacity(ctx context.Context, id string) (*models.CapacitySnapshot, error) {
	return s.capacity.Snapshot(ctx, id)
}

// Create registers a new exam. Course codes are stored uppercase and only
// one active exam may exist per code.
func (s *ExamService) Create(ctx context.Context, req dto.CreateExamRequest) (*models.Exam, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam request")
	}

	courseCode := strings.ToUpper(strings.TrimSpace(req.CourseCode))
	exists, err := s.exams.ExistsActiveByCourseCode(ctx, courseCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active exam already exists for this course code")
	}

	examDate, err := time.Parse("2006-01-02", req.ExamDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam_date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", req.StartTime); err != nil {
		if _, err := time.Parse("15:04:05", req.StartTime); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
		}
	}

	capacity := req.HallCapacity
	if capacity <= 0 {
		capacity = s.defaultCapacity
	}

	exam := &models.Exam{
		CourseCode:   courseCode,
		CourseName:   req.CourseName,
		ExamDate:     examDate,
		StartTime:    req.StartTime,
		Venue:        req.Venue,
		IsActive:     true,
		HallCapacity: capacity,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}

	s.logger.Info("exam created",
		zap.String("exam_id", exam.ID),
		zap.String("course_code", exam.CourseCode),
		zap.Int("hall_capacity", exam.HallCapacity))
	return exam, nil
}

// Update applies a partial update to an exam.
func (s *ExamService) Update(ctx context.Context, id string, req dto.UpdateExamRequest) (*models.Exam, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam request")
	}

	exam, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CourseName != nil {
		exam.CourseName = *req.CourseName
	}
	if req.ExamDate != nil {
		examDate, err := time.Parse("2006-01-02", *req.ExamDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "exam_date must be YYYY-MM-DD")
		}
		exam.ExamDate = examDate
	}
	if req.StartTime != nil {
		exam.StartTime = *req.StartTime
	}
	if req.Venue != nil {
		exam.Venue = *req.Venue
	}
	if req.HallCapacity != nil {
		exam.HallCapacity = *req.HallCapacity
	}
	if req.IsActive != nil {
		exam.IsActive = *req.IsActive
	}

	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}

	// Capacity or activation changes shift the seat math immediately.
	s.capacity.Invalidate(ctx, exam.ID)
	return exam, nil
}

// Deactivate closes an exam to new queue activity. Waiting entries left
// behind are picked up by the reconciliation sweeper.
func (s *ExamService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.exams.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate exam")
	}
	s.capacity.Invalidate(ctx, id)
	s.logger.Info("exam deactivated", zap.String("exam_id", id))
	return nil
}
