package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/repository"
	"github.com/easypass/easypass-api/pkg/config"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
	"github.com/easypass/easypass-api/pkg/jobs"
)

type reconcileLedgerRepository interface {
	FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error)
	FindActiveByPair(ctx context.Context, examID, studentID string) (*models.QueueEntryDetail, error)
	ClearActive(ctx context.Context, examID, studentID string, force bool) (bool, error)
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
}

// ReconciliationService repairs divergence between what clients believe and
// what the ledger records: stale local state on a student's device, and
// waiting entries orphaned by exams that have ended.
type ReconciliationService struct {
	queues   reconcileLedgerRepository
	capacity *CapacityService
	metrics  *MetricsService
	cfg      config.ReconcileConfig
	validate *validator.Validate
	logger   *zap.Logger
	sweeper  *jobs.Queue
}

// NewReconciliationService constructs a ReconciliationService.
func NewReconciliationService(queues reconcileLedgerRepository, capacity *CapacityService, metrics *MetricsService, cfg config.ReconcileConfig, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReconciliationService{
		queues:   queues,
		capacity: capacity,
		metrics:  metrics,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
	s.sweeper = jobs.NewQueue("reconcile-sweep", s.handleSweep, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Verify answers the client's "is my cached queue entry still real" poll.
// An entry is valid while it exists and is still active; a terminal or
// deleted entry tells the client to drop its cached state.
func (s *ReconciliationService) Verify(ctx context.Context, queueID string) (*dto.VerifyStatusResponse, error) {
	entry, err := s.queues.FindByID(ctx, queueID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &dto.VerifyStatusResponse{Valid: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify queue entry")
	}
	return &dto.VerifyStatusResponse{Valid: entry.Status.Active()}, nil
}

// ClearStatus removes a student's active entry for an exam. Waiting entries
// are deleted outright; a checked-in entry occupies a seat, so it is only
// finalized (as absent) when the caller passes force.
func (s *ReconciliationService) ClearStatus(ctx context.Context, req dto.ClearStatusRequest) (*dto.ClearStatusResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clear-status request")
	}

	cleared, err := s.queues.ClearActive(ctx, req.ExamID, req.StudentID, req.Force)
	if err != nil {
		if errors.Is(err, repository.ErrWrongState) {
			// The caller believed the entry was clearable but the ledger shows
			// it checked in: their view is stale. Clients re-verify on STALE
			// and retry with force if the operator confirms.
			return nil, appErrors.Clone(appErrors.ErrStale, "entry is checked in; re-verify and pass force to clear it")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear queue status")
	}
	if !cleared {
		return &dto.ClearStatusResponse{Cleared: false, Message: "no active queue entry to clear"}, nil
	}

	s.capacity.Invalidate(ctx, req.ExamID)
	s.logger.Info("queue status cleared",
		zap.String("exam_id", req.ExamID),
		zap.String("student_id", req.StudentID),
		zap.Bool("force", req.Force))
	return &dto.ClearStatusResponse{Cleared: true, Message: "queue status cleared"}, nil
}

// StartSweeper launches the periodic expiry of waiting entries left behind
// by deactivated or past exams. It returns immediately; the ticker goroutine
// stops when ctx is cancelled.
func (s *ReconciliationService) StartSweeper(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("reconciliation sweeper disabled")
		return
	}
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.sweeper.Start(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.sweeper.Stop()
				return
			case <-ticker.C:
				job := jobs.Job{ID: uuid.NewString(), Type: "expire-stale"}
				if err := s.sweeper.Enqueue(job); err != nil {
					s.logger.Warn("failed to enqueue sweep", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("reconciliation sweeper started", zap.Duration("interval", interval))
}

// SweepNow runs one expiry pass synchronously.
func (s *ReconciliationService) SweepNow(ctx context.Context) (int64, error) {
	swept, err := s.queues.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stale-entry sweep failed")
	}
	if swept > 0 {
		s.logger.Info("expired stale queue entries", zap.Int64("count", swept))
		if s.metrics != nil {
			s.metrics.AddStaleEntriesSwept(int(swept))
		}
		if s.capacity != nil {
			s.capacity.InvalidateAll(ctx)
		}
	}
	return swept, nil
}

func (s *ReconciliationService) handleSweep(ctx context.Context, _ jobs.Job) error {
	_, err := s.SweepNow(ctx)
	return err
}
