package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/repository"
	"github.com/easypass/easypass-api/pkg/config"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type recLedger struct {
	byID     *models.QueueEntryDetail
	cleared  bool
	clearErr error
	swept    int64
}

func (f *recLedger) FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error) {
	if f.byID == nil {
		return nil, sql.ErrNoRows
	}
	return f.byID, nil
}

func (f *recLedger) FindActiveByPair(ctx context.Context, examID, studentID string) (*models.QueueEntryDetail, error) {
	return nil, sql.ErrNoRows
}

func (f *recLedger) ClearActive(ctx context.Context, examID, studentID string, force bool) (bool, error) {
	return f.cleared, f.clearErr
}

func (f *recLedger) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	return f.swept, nil
}

func newReconcileFixture(ledger *recLedger) *ReconciliationService {
	exams := &admExams{exam: activeExam()}
	capacity := NewCapacityService(exams, &admLedger{}, nil, nil, time.Second, nil)
	return NewReconciliationService(ledger, capacity, nil, config.ReconcileConfig{}, nil)
}

func TestVerifyActiveEntry(t *testing.T) {
	ledger := &recLedger{byID: &models.QueueEntryDetail{
		QueueEntry: models.QueueEntry{ID: "entry-1", Status: models.QueueStatusWaiting},
	}}
	svc := newReconcileFixture(ledger)

	res, err := svc.Verify(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestVerifyTerminalEntry(t *testing.T) {
	ledger := &recLedger{byID: &models.QueueEntryDetail{
		QueueEntry: models.QueueEntry{ID: "entry-1", Status: models.QueueStatusCompleted},
	}}
	svc := newReconcileFixture(ledger)

	res, err := svc.Verify(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestVerifyMissingEntry(t *testing.T) {
	svc := newReconcileFixture(&recLedger{})

	res, err := svc.Verify(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestClearStatusClearsWaiting(t *testing.T) {
	svc := newReconcileFixture(&recLedger{cleared: true})

	res, err := svc.ClearStatus(context.Background(), dto.ClearStatusRequest{StudentID: "student-1", ExamID: "exam-1"})
	require.NoError(t, err)
	assert.True(t, res.Cleared)
}

func TestClearStatusNothingToClear(t *testing.T) {
	svc := newReconcileFixture(&recLedger{cleared: false})

	res, err := svc.ClearStatus(context.Background(), dto.ClearStatusRequest{StudentID: "student-1", ExamID: "exam-1"})
	require.NoError(t, err)
	assert.False(t, res.Cleared)
}

func TestClearStatusCheckedInReportsStale(t *testing.T) {
	svc := newReconcileFixture(&recLedger{clearErr: repository.ErrWrongState})

	_, err := svc.ClearStatus(context.Background(), dto.ClearStatusRequest{StudentID: "student-1", ExamID: "exam-1"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStale.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "force")
}

func TestClearStatusValidatesInput(t *testing.T) {
	svc := newReconcileFixture(&recLedger{})

	_, err := svc.ClearStatus(context.Background(), dto.ClearStatusRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSweepNowReportsCount(t *testing.T) {
	svc := newReconcileFixture(&recLedger{swept: 4})

	swept, err := svc.SweepNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), swept)
}
