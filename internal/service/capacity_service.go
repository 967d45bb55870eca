package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/easypass/easypass-api/internal/models"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type capacityExamRepository interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type capacityLedgerRepository interface {
	CountCheckedIn(ctx context.Context, examID string) (int, error)
}

type capacityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CapacityService is the per-exam seat accountant. Occupancy is always the
// count of checked_in ledger entries; the Redis snapshot is a short-lived
// read cache that every seat mutation invalidates, so it can lag polling
// reads but never a decision with side effects.
type CapacityService struct {
	exams    capacityExamRepository
	ledger   capacityLedgerRepository
	cache    capacityCache
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCapacityService constructs the capacity tracker.
func NewCapacityService(exams capacityExamRepository, ledger capacityLedgerRepository, cache capacityCache, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Second
	}
	return &CapacityService{exams: exams, ledger: ledger, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

func capacityCacheKey(examID string) string {
	return fmt.Sprintf("capacity:%s", examID)
}

// Snapshot returns the seat accounting for an exam, preferring the cache.
func (s *CapacityService) Snapshot(ctx context.Context, examID string) (*models.CapacitySnapshot, error) {
	if s.cache != nil {
		var cached models.CapacitySnapshot
		if err := s.cache.Get(ctx, capacityCacheKey(examID), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("capacity cache read failed", zap.String("exam_id", examID), zap.Error(err))
		}
	}
	return s.Recompute(ctx, examID)
}

// Recompute derives a fresh snapshot from the ledger, refreshing the cache.
func (s *CapacityService) Recompute(ctx context.Context, examID string) (*models.CapacitySnapshot, error) {
	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	occupied, err := s.ledger.CountCheckedIn(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count occupancy")
	}

	available := exam.HallCapacity - occupied
	if available < 0 {
		available = 0
	}
	snapshot := &models.CapacitySnapshot{
		ExamID:       examID,
		HallCapacity: exam.HallCapacity,
		Occupied:     occupied,
		Available:    available,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, capacityCacheKey(examID), snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("capacity cache write failed", zap.String("exam_id", examID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.SetSeatsOccupied(examID, occupied)
	}

	return snapshot, nil
}

// ReserveSeat reports whether a seat is available right now. The
// transactional check-in re-verifies the count under the exam row lock; this
// pre-check exists to fail fast and keep the HallFull paths uniform.
func (s *CapacityService) ReserveSeat(ctx context.Context, examID string) error {
	snapshot, err := s.Recompute(ctx, examID)
	if err != nil {
		return err
	}
	if snapshot.Available <= 0 {
		return appErrors.ErrHallFull
	}
	return nil
}

// ReleaseSeat invalidates the snapshot after a seat-freeing mutation.
// Releasing more than was reserved can never drive occupancy negative
// because occupancy is recomputed, never decremented.
func (s *CapacityService) ReleaseSeat(ctx context.Context, examID string) {
	s.Invalidate(ctx, examID)
}

// Invalidate drops the cached snapshot for an exam. Called on every
// check-in, check-out and force-complete.
func (s *CapacityService) Invalidate(ctx context.Context, examID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, capacityCacheKey(examID)); err != nil {
		s.logger.Warn("capacity cache invalidation failed", zap.String("exam_id", examID), zap.Error(err))
	}
}

// InvalidateAll drops every cached snapshot. Used after bulk mutations
// that do not know which exams they touched, such as the stale-entry
// sweep. Backends without pattern deletion simply age out via the TTL.
func (s *CapacityService) InvalidateAll(ctx context.Context) {
	type patternDeleter interface {
		DeleteByPattern(ctx context.Context, pattern string) error
	}
	pd, ok := s.cache.(patternDeleter)
	if !ok {
		return
	}
	if err := pd.DeleteByPattern(ctx, capacityCacheKey("*")); err != nil {
		s.logger.Warn("capacity cache bulk invalidation failed", zap.Error(err))
	}
}
