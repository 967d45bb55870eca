package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/service"
	"github.com/easypass/easypass-api/pkg/config"
	"github.com/easypass/easypass-api/pkg/response"
)

type scanLedger struct {
	entry    *models.QueueEntryDetail
	checked  *models.QueueEntry
	already  bool
	occupied int
}

func (f *scanLedger) Join(ctx context.Context, examID, studentID string) (*models.QueueEntry, error) {
	return nil, sql.ErrNoRows
}

func (f *scanLedger) FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error) {
	if f.entry == nil {
		return nil, sql.ErrNoRows
	}
	return f.entry, nil
}

func (f *scanLedger) FindActiveByPair(ctx context.Context, examID, studentID string) (*models.QueueEntryDetail, error) {
	return nil, sql.ErrNoRows
}

func (f *scanLedger) FindActiveByMatric(ctx context.Context, examID, matricNo string) (*models.QueueEntryDetail, error) {
	if f.entry == nil || f.entry.MatricNo != matricNo {
		return nil, sql.ErrNoRows
	}
	return f.entry, nil
}

func (f *scanLedger) FindActiveByStudent(ctx context.Context, studentID string) (*models.QueueEntryDetail, error) {
	return nil, sql.ErrNoRows
}

func (f *scanLedger) FindByTag(ctx context.Context, examID, tagNumber string) (*models.QueueEntryDetail, error) {
	return nil, sql.ErrNoRows
}

func (f *scanLedger) CheckIn(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error) {
	return f.checked, f.already, nil
}

func (f *scanLedger) CheckOut(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error) {
	return f.checked, f.already, nil
}

func (f *scanLedger) ForceComplete(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error) {
	return f.checked, f.already, nil
}

func (f *scanLedger) CountCheckedIn(ctx context.Context, examID string) (int, error) {
	return f.occupied, nil
}

type scanExams struct {
	exam *models.Exam
}

func (f *scanExams) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if f.exam == nil {
		return nil, sql.ErrNoRows
	}
	return f.exam, nil
}

func (f *scanExams) FindActiveByCourseCode(ctx context.Context, courseCode string) (*models.Exam, error) {
	if f.exam == nil || !strings.EqualFold(f.exam.CourseCode, courseCode) {
		return nil, sql.ErrNoRows
	}
	return f.exam, nil
}

type scanStudents struct{}

func (scanStudents) FindByMatricNo(ctx context.Context, matricNo string) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

func (scanStudents) Create(ctx context.Context, student *models.Student) error {
	return nil
}

func newScanFixture(ledger *scanLedger, exam *models.Exam) *AdmissionHandler {
	exams := &scanExams{exam: exam}
	capacity := service.NewCapacityService(exams, ledger, nil, nil, time.Second, nil)
	admission := service.NewAdmissionService(ledger, exams, scanStudents{}, capacity, nil, config.AdmissionConfig{}, nil)
	return NewAdmissionHandler(admission)
}

func testExam() *models.Exam {
	return &models.Exam{
		ID:           "exam-1",
		ExamSeq:      1,
		CourseCode:   "CSC301",
		ExamDate:     time.Now().Add(24 * time.Hour),
		StartTime:    "09:00",
		IsActive:     true,
		HallCapacity: 250,
	}
}

func tagged(tag string) *string { return &tag }

func TestCheckInAcceptsAliasedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exam := testExam()
	ledger := &scanLedger{
		entry: &models.QueueEntryDetail{
			QueueEntry: models.QueueEntry{ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusWaiting},
			MatricNo:   "U2019001",
		},
		checked: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCheckedIn, TagNumber: tagged("T1-0001"),
		},
	}
	handler := newScanFixture(ledger, exam)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/check-in",
		strings.NewReader(`{"matricNumber":"U2019001","examCode":"CSC301"}`))

	handler.CheckIn(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), "T1-0001")
}

func TestCheckInUnknownStudentIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newScanFixture(&scanLedger{}, testExam())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/check-in",
		strings.NewReader(`{"username":"GHOST","exam_code":"CSC301"}`))

	handler.CheckIn(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckInPlainTextBodyMissingExam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newScanFixture(&scanLedger{}, testExam())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/check-in", strings.NewReader("U2019001"))

	handler.CheckIn(c)

	// A bare matric number carries no exam code, so the request is rejected
	// as invalid rather than treated as malformed JSON.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForceCompleteUnknownEntry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newScanFixture(&scanLedger{}, testExam())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/check-in/force-complete/entry-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}

	handler.ForceComplete(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
