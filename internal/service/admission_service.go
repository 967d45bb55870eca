package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/repository"
	"github.com/easypass/easypass-api/pkg/config"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type admissionLedgerRepository interface {
	Join(ctx context.Context, examID, studentID string) (*models.QueueEntry, error)
	FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error)
	FindActiveByPair(ctx context.Context, examID, studentID string) (*models.QueueEntryDetail, error)
	FindActiveByMatric(ctx context.Context, examID, matricNo string) (*models.QueueEntryDetail, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.QueueEntryDetail, error)
	FindByTag(ctx context.Context, examID, tagNumber string) (*models.QueueEntryDetail, error)
	CheckIn(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error)
	CheckOut(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error)
	ForceComplete(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error)
}

type admissionExamRepository interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	FindActiveByCourseCode(ctx context.Context, courseCode string) (*models.Exam, error)
}

type admissionStudentRepository interface {
	FindByMatricNo(ctx context.Context, matricNo string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

// AdmissionService drives the check-in/check-out state machine. It resolves
// the loosely-shaped scanner payloads onto ledger entries, delegates the
// state transitions to the transactional repository, and keeps the capacity
// cache honest after every mutation.
type AdmissionService struct {
	queues   admissionLedgerRepository
	exams    admissionExamRepository
	students admissionStudentRepository
	capacity *CapacityService
	metrics  *MetricsService
	cfg      config.AdmissionConfig
	logger   *zap.Logger
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(queues admissionLedgerRepository, exams admissionExamRepository, students admissionStudentRepository, capacity *CapacityService, metrics *MetricsService, cfg config.AdmissionConfig, logger *zap.Logger) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		queues:   queues,
		exams:    exams,
		students: students,
		capacity: capacity,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// CheckIn admits a scanned student: waiting -> checked_in with a freshly
// allocated tag. Scanning an already checked-in student is idempotent and
// returns the tag that was issued the first time.
func (s *AdmissionService) CheckIn(ctx context.Context, payload dto.ScanPayload) (*dto.CheckInResponse, error) {
	if payload.Username == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student identifier is required")
	}
	if payload.ExamCode == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam code is required")
	}

	exam, err := s.resolveExam(ctx, payload.ExamCode)
	if err != nil {
		return nil, err
	}

	entry, err := s.resolveActiveEntry(ctx, exam.ID, payload.Username)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if s.testModeActive(payload) {
			entry, err = s.synthesizeEntry(ctx, exam, payload.Username)
			if err != nil {
				return nil, err
			}
		} else {
			s.recordCheckIn("no_entry")
			return nil, appErrors.ErrNoActiveQueueEntry
		}
	}

	// Fail fast before touching the ledger when the hall is already full.
	// Only waiting entries pre-check: a repeat scan of a checked-in student
	// must still return its tag when the hall is at capacity. The
	// transactional check-in re-verifies the count under the exam row lock.
	if entry.Status == models.QueueStatusWaiting {
		if err := s.capacity.ReserveSeat(ctx, exam.ID); err != nil {
			if errors.Is(err, appErrors.ErrHallFull) {
				s.recordCheckIn("hall_full")
			}
			return nil, err
		}
	}

	updated, already, err := s.queues.CheckIn(ctx, exam.ID, entry.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSeatsExhausted):
			s.recordCheckIn("hall_full")
			return nil, appErrors.ErrHallFull
		case errors.Is(err, repository.ErrWrongState):
			s.recordCheckIn("wrong_state")
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "queue entry cannot be checked in from its current status")
		case errors.Is(err, repository.ErrTagExhausted):
			s.recordCheckIn("exhausted")
			return nil, appErrors.ErrAllocationExhausted
		default:
			s.recordCheckIn("error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check-in failed")
		}
	}

	tag := ""
	if updated.TagNumber != nil {
		tag = *updated.TagNumber
	}

	if already {
		s.recordCheckIn("already")
		detail, err := s.queues.FindByID(ctx, updated.ID)
		if err != nil {
			s.logger.Warn("failed to reload queue entry after repeat scan", zap.String("queue_id", updated.ID), zap.Error(err))
		}
		return &dto.CheckInResponse{
			TagNumber: tag,
			Message:   "student is already checked in",
			Queue:     detail,
		}, nil
	}

	s.capacity.Invalidate(ctx, exam.ID)
	s.recordCheckIn("ok")
	s.logger.Info("student checked in",
		zap.String("exam_id", exam.ID),
		zap.String("queue_id", updated.ID),
		zap.String("tag_number", tag))

	detail, err := s.queues.FindByID(ctx, updated.ID)
	if err != nil {
		s.logger.Warn("failed to reload queue entry after check-in", zap.String("queue_id", updated.ID), zap.Error(err))
	}
	return &dto.CheckInResponse{
		TagNumber: tag,
		Message:   fmt.Sprintf("checked in with tag %s", tag),
		Queue:     detail,
	}, nil
}

// CheckOut completes a checked-in entry and frees its seat. Resolution is
// tag-first: a scanned tag identifies the entry directly, including entries
// that already reached a terminal state, which makes a double scan of the
// same tag a no-op success instead of an error.
func (s *AdmissionService) CheckOut(ctx context.Context, payload dto.ScanPayload) (*dto.CheckOutResponse, error) {
	entry, exam, err := s.resolveForCheckout(ctx, payload)
	if err != nil {
		return nil, err
	}

	updated, already, err := s.queues.CheckOut(ctx, exam.ID, entry.ID)
	if err != nil {
		if errors.Is(err, repository.ErrWrongState) {
			s.recordCheckOut("not_checked_in")
			return nil, appErrors.ErrNotCheckedIn
		}
		s.recordCheckOut("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "checkout failed")
	}

	message := "checked out successfully"
	if already {
		s.recordCheckOut("already")
		message = "student was already checked out"
	} else {
		s.capacity.ReleaseSeat(ctx, exam.ID)
		s.recordCheckOut("ok")
		s.logger.Info("student checked out",
			zap.String("exam_id", exam.ID),
			zap.String("queue_id", updated.ID))
	}

	snapshot, err := s.capacity.Snapshot(ctx, exam.ID)
	if err != nil {
		return nil, err
	}
	return &dto.CheckOutResponse{
		Message:        message,
		AvailableSeats: snapshot.Available,
		HallCapacity:   snapshot.HallCapacity,
	}, nil
}

// ForceComplete is the operator override: a checked-in entry is completed, a
// waiting entry is marked absent. Terminal entries are left untouched.
func (s *AdmissionService) ForceComplete(ctx context.Context, queueID string) (*dto.CheckOutResponse, error) {
	entry, err := s.queues.FindByID(ctx, queueID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue entry")
	}

	updated, already, err := s.queues.ForceComplete(ctx, entry.ExamID, entry.ID)
	if err != nil {
		if errors.Is(err, repository.ErrWrongState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "queue entry cannot be completed from its current status")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "force-complete failed")
	}

	message := "queue entry completed"
	if already {
		message = "queue entry was already finalized"
	} else {
		s.capacity.ReleaseSeat(ctx, entry.ExamID)
		s.logger.Info("queue entry force-completed",
			zap.String("exam_id", entry.ExamID),
			zap.String("queue_id", updated.ID),
			zap.String("status", string(updated.Status)))
	}

	snapshot, err := s.capacity.Snapshot(ctx, entry.ExamID)
	if err != nil {
		return nil, err
	}
	return &dto.CheckOutResponse{
		Message:        message,
		AvailableSeats: snapshot.Available,
		HallCapacity:   snapshot.HallCapacity,
	}, nil
}

func (s *AdmissionService) resolveExam(ctx context.Context, examCode string) (*models.Exam, error) {
	exam, err := s.exams.FindActiveByCourseCode(ctx, examCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no active exam for code %s", examCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve exam")
	}
	return exam, nil
}

// resolveActiveEntry locates the student's active entry for an exam. The
// scanned identifier is tried as a matric number first, then as a raw
// student ID. A nil entry with a nil error means nothing matched.
func (s *AdmissionService) resolveActiveEntry(ctx context.Context, examID, identifier string) (*models.QueueEntryDetail, error) {
	entry, err := s.queues.FindActiveByMatric(ctx, examID, identifier)
	if err == nil {
		return entry, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve queue entry")
	}

	entry, err = s.queues.FindActiveByPair(ctx, examID, identifier)
	if err == nil {
		return entry, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve queue entry")
	}
	return nil, nil
}

// synthesizeEntry backs the operator-gated test mode: a scan for an unknown
// student fabricates the student record and a queue entry so scanner
// hardware can be exercised without seeding data.
func (s *AdmissionService) synthesizeEntry(ctx context.Context, exam *models.Exam, identifier string) (*models.QueueEntryDetail, error) {
	student, err := s.students.FindByMatricNo(ctx, identifier)
	if err == sql.ErrNoRows {
		student = &models.Student{MatricNo: identifier, FullName: identifier}
		if err := s.students.Create(ctx, student); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create test student")
		}
		s.logger.Warn("test mode created student", zap.String("matric_no", identifier))
	} else if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	joined, err := s.queues.Join(ctx, exam.ID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create test queue entry")
	}
	s.logger.Warn("test mode created queue entry",
		zap.String("exam_id", exam.ID),
		zap.String("queue_id", joined.ID))

	return s.queues.FindByID(ctx, joined.ID)
}

func (s *AdmissionService) resolveForCheckout(ctx context.Context, payload dto.ScanPayload) (*models.QueueEntryDetail, *models.Exam, error) {
	if payload.TagNumber != "" && payload.ExamCode != "" {
		exam, err := s.resolveExam(ctx, payload.ExamCode)
		if err != nil {
			return nil, nil, err
		}
		entry, err := s.queues.FindByTag(ctx, exam.ID, payload.TagNumber)
		if err == nil {
			return entry, exam, nil
		}
		if err != sql.ErrNoRows {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve tag")
		}
		// Fall through to identity resolution; a mistyped tag should not
		// strand a student the scanner can still identify.
	}

	if payload.Username == "" {
		s.recordCheckOut("not_checked_in")
		return nil, nil, appErrors.ErrNotCheckedIn
	}

	var entry *models.QueueEntryDetail
	if payload.ExamCode != "" {
		exam, err := s.resolveExam(ctx, payload.ExamCode)
		if err != nil {
			return nil, nil, err
		}
		entry, err = s.resolveActiveEntry(ctx, exam.ID, payload.Username)
		if err != nil {
			return nil, nil, err
		}
		if entry == nil {
			s.recordCheckOut("not_checked_in")
			return nil, nil, appErrors.ErrNotCheckedIn
		}
		return entry, exam, nil
	}

	// No exam scoping: resolve via the student's single active entry.
	student, err := s.students.FindByMatricNo(ctx, payload.Username)
	if err != nil {
		if err == sql.ErrNoRows {
			s.recordCheckOut("not_checked_in")
			return nil, nil, appErrors.ErrNotCheckedIn
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	entry, err = s.queues.FindActiveByStudent(ctx, student.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.recordCheckOut("not_checked_in")
			return nil, nil, appErrors.ErrNotCheckedIn
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve queue entry")
	}

	exam, err := s.exams.FindByID(ctx, entry.ExamID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return entry, exam, nil
}

func (s *AdmissionService) testModeActive(payload dto.ScanPayload) bool {
	return s.cfg.TestMode && payload.TestMode
}

func (s *AdmissionService) recordCheckIn(result string) {
	if s.metrics != nil {
		s.metrics.RecordCheckIn(result)
	}
}

func (s *AdmissionService) recordCheckOut(result string) {
	if s.metrics != nil {
		s.metrics.RecordCheckOut(result)
	}
}
