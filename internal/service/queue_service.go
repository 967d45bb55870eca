package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/repository"
	"github.com/easypass/easypass-api/pkg/config"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type queueLedgerRepository interface {
	Join(ctx context.Context, examID, studentID string) (*models.QueueEntry, error)
	FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.QueueEntryDetail, error)
	List(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntryDetail, error)
	CountActive(ctx context.Context, examID string) (int, error)
	CountCheckedIn(ctx context.Context, examID string) (int, error)
	FirstCheckInTime(ctx context.Context, examID string) (*time.Time, error)
	DeleteWaiting(ctx context.Context, id string) error
}

type queueExamRepository interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type queueStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// QueueService owns the queue ledger operations: joining, leaving, listing
// and the student-facing status poll with its batch and wait-time estimates.
type QueueService struct {
	queues   queueLedgerRepository
	exams    queueExamRepository
	students queueStudentRepository
	metrics  *MetricsService
	cfg      config.QueueConfig
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewQueueService constructs a QueueService.
func NewQueueService(queues queueLedgerRepository, exams queueExamRepository, students queueStudentRepository, metrics *MetricsService, cfg config.QueueConfig, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		queues:   queues,
		exams:    exams,
		students: students,
		metrics:  metrics,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Join places a student into an exam's queue.
func (s *QueueService) Join(ctx context.Context, req dto.JoinQueueRequest) (*models.QueueEntry, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join request")
	}

	exam, err := s.exams.FindByID(ctx, req.ExamID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if !exam.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "exam is not open for queueing")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	entry, err := s.queues.Join(ctx, req.ExamID, req.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			s.recordJoin("duplicate")
			return nil, appErrors.ErrAlreadyQueued
		}
		s.recordJoin("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join queue")
	}

	s.recordJoin("ok")
	s.logger.Info("student joined queue",
		zap.String("exam_id", req.ExamID),
		zap.String("student_id", req.StudentID),
		zap.Int("position", entry.Position))
	return entry, nil
}

// Remove deletes a waiting entry from the ledger. Entries past the waiting
// state are immutable history and cannot be removed.
func (s *QueueService) Remove(ctx context.Context, queueID string) error {
	err := s.queues.DeleteWaiting(ctx, queueID)
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, "queue entry not found")
	}
	if errors.Is(err, repository.ErrWrongState) {
		return appErrors.Clone(appErrors.ErrInvalidState, "only waiting entries can be removed")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove queue entry")
}

// Get returns a single ledger entry with student and exam metadata.
func (s *QueueService) Get(ctx context.Context, queueID string) (*models.QueueEntryDetail, error) {
	entry, err := s.queues.FindByID(ctx, queueID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue entry")
	}
	return entry, nil
}

// List returns ledger entries matching the filter, ordered by position.
func (s *QueueService) List(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntryDetail, error) {
	entries, err := s.queues.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queue entries")
	}
	if s.metrics != nil && filter.ExamID != "" && filter.Status == nil {
		active := 0
		for _, e := range entries {
			if e.Status.Active() {
				active++
			}
		}
		s.metrics.SetQueueDepth(filter.ExamID, active)
	}
	return entries, nil
}

// Status resolves the student's single active entry and enriches it with the
// batch position and wait-time estimate the client renders.
func (s *QueueService) Status(ctx context.Context, studentID string) (*dto.QueueStatusResponse, error) {
	entry, err := s.queues.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNoActiveQueueEntry
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue status")
	}

	exam, err := s.exams.FindByID(ctx, entry.ExamID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	total, err := s.queues.CountActive(ctx, entry.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count queue")
	}
	occupied, err := s.queues.CountCheckedIn(ctx, entry.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count occupancy")
	}
	firstCheckIn, err := s.queues.FirstCheckInTime(ctx, entry.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load first check-in time")
	}

	batch := ComputeBatch(entry.Position, exam.HallCapacity, occupied)
	wait := s.estimateWait(batch, exam.StartsAt(), firstCheckIn)

	return &dto.QueueStatusResponse{
		QueueEntry:         entry.QueueEntry,
		CourseCode:         entry.CourseCode,
		TotalStudents:      total,
		HallCapacity:       exam.HallCapacity,
		InCurrentBatch:     batch.InCurrentBatch,
		AvailableSeats:     batch.AvailableSeats,
		PeopleAhead:        batch.PeopleAhead,
		EstimatedWaitHours: wait,
		FirstCheckInTime:   firstCheckIn,
	}, nil
}

// ComputeBatch evaluates the two admission regimes for a queue position.
// Positions up to the hall capacity belong to the current batch and contend
// for the remaining seats; positions beyond it count the people between them
// and the batch boundary.
func ComputeBatch(position, hallCapacity, occupied int) models.BatchInfo {
	info := models.BatchInfo{}
	if position <= hallCapacity {
		info.InCurrentBatch = true
		info.AvailableSeats = hallCapacity - occupied
		if info.AvailableSeats < 0 {
			info.AvailableSeats = 0
		}
		return info
	}
	info.PeopleAhead = position - hallCapacity
	return info
}

// estimateWait produces the wait-time heuristic in hours. In-batch students
// wait only for the exam to start. Students beyond the batch wait for seats
// to turn over; before anyone has checked in, turnover hasn't started, so the
// estimate is the time to exam start plus one service interval per person
// ahead.
func (s *QueueService) estimateWait(batch models.BatchInfo, startsAt time.Time, firstCheckIn *time.Time) float64 {
	now := s.now()
	hoursUntilExam := startsAt.Sub(now).Hours()
	if hoursUntilExam < 0 {
		hoursUntilExam = 0
	}

	if batch.InCurrentBatch {
		return hoursUntilExam
	}

	perSeat := s.cfg.PerSeatServiceTime.Hours()
	if perSeat <= 0 {
		perSeat = 1
	}
	if firstCheckIn == nil {
		return hoursUntilExam + float64(batch.PeopleAhead)*perSeat
	}

	elapsed := now.Sub(*firstCheckIn).Hours()
	wait := float64(batch.PeopleAhead)*perSeat - elapsed
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *QueueService) recordJoin(result string) {
	if s.metrics != nil {
		s.metrics.RecordQueueJoin(result)
	}
}
