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

// admLedger scripts the transactional ledger calls the admission service makes.
type admLedger struct {
	activeByMatric *models.QueueEntryDetail
	activeByPair   *models.QueueEntryDetail
	activeByAny    *models.QueueEntryDetail
	byTag          *models.QueueEntryDetail
	byID           *models.QueueEntryDetail

	checkInEntry   *models.QueueEntry
	checkInAlready bool
	checkInErr     error

	checkOutEntry   *models.QueueEntry
	checkOutAlready bool
	checkOutErr     error

	joined       *models.QueueEntry
	joinCalls    int
	checkedIn    int
	checkedOut   int
	occupiedNow  int
}

func (f *admLedger) Join(ctx context.Context, examID, studentID string) (*models.QueueEntry, error) {
	f.joinCalls++
	if f.joined == nil {
		return nil, sql.ErrNoRows
	}
	return f.joined, nil
}

func (f *admLedger) FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error) {
	if f.byID == nil {
		return nil, sql.ErrNoRows
	}
	return f.byID, nil
}

func (f *admLedger) FindActiveByPair(ctx context.Context, examID, studentID string) (*models.QueueEntryDetail, error) {
	if f.activeByPair == nil {
		return nil, sql.ErrNoRows
	}
	return f.activeByPair, nil
}

func (f *admLedger) FindActiveByMatric(ctx context.Context, examID, matricNo string) (*models.QueueEntryDetail, error) {
	if f.activeByMatric == nil {
		return nil, sql.ErrNoRows
	}
	return f.activeByMatric, nil
}

func (f *admLedger) FindActiveByStudent(ctx context.Context, studentID string) (*models.QueueEntryDetail, error) {
	if f.activeByAny == nil {
		return nil, sql.ErrNoRows
	}
	return f.activeByAny, nil
}

func (f *admLedger) FindByTag(ctx context.Context, examID, tagNumber string) (*models.QueueEntryDetail, error) {
	if f.byTag == nil {
		return nil, sql.ErrNoRows
	}
	return f.byTag, nil
}

func (f *admLedger) CheckIn(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error) {
	f.checkedIn++
	return f.checkInEntry, f.checkInAlready, f.checkInErr
}

func (f *admLedger) CheckOut(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error) {
	f.checkedOut++
	return f.checkOutEntry, f.checkOutAlready, f.checkOutErr
}

func (f *admLedger) ForceComplete(ctx context.Context, examID, entryID string) (*models.QueueEntry, bool, error) {
	return f.checkOutEntry, f.checkOutAlready, f.checkOutErr
}

func (f *admLedger) CountCheckedIn(ctx context.Context, examID string) (int, error) {
	return f.occupiedNow, nil
}

type admExams struct {
	exam *models.Exam
}

func (f *admExams) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if f.exam == nil {
		return nil, sql.ErrNoRows
	}
	return f.exam, nil
}

func (f *admExams) FindActiveByCourseCode(ctx context.Context, courseCode string) (*models.Exam, error) {
	if f.exam == nil {
		return nil, sql.ErrNoRows
	}
	return f.exam, nil
}

type admStudents struct {
	student *models.Student
	created *models.Student
}

func (f *admStudents) FindByMatricNo(ctx context.Context, matricNo string) (*models.Student, error) {
	if f.student == nil {
		return nil, sql.ErrNoRows
	}
	return f.student, nil
}

func (f *admStudents) Create(ctx context.Context, student *models.Student) error {
	student.ID = "synthetic-student"
	f.created = student
	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func newAdmissionFixture(t *testing.T, ledger *admLedger, exam *models.Exam, students *admStudents, cfg config.AdmissionConfig) *AdmissionService {
	t.Helper()
	exams := &admExams{exam: exam}
	capacity := NewCapacityService(exams, ledger, nil, nil, time.Second, nil)
	return NewAdmissionService(ledger, exams, students, capacity, nil, cfg, nil)
}

func waitingDetail(exam *models.Exam) *models.QueueEntryDetail {
	return &models.QueueEntryDetail{
		QueueEntry: models.QueueEntry{ID: "entry-1", ExamID: exam.ID, StudentID: "student-1", Position: 1, Status: models.QueueStatusWaiting},
		MatricNo:   "U2019001",
		CourseCode: exam.CourseCode,
	}
}

func TestCheckInHappyPath(t *testing.T) {
	exam := activeExam()
	detail := waitingDetail(exam)
	ledger := &admLedger{
		activeByMatric: detail,
		byID:           detail,
		checkInEntry: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCheckedIn,
			TagNumber: strPtr("T1-0001"), TagSeq: intPtr(1),
		},
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	res, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "U2019001", ExamCode: "CSC301"})
	require.NoError(t, err)
	assert.Equal(t, "T1-0001", res.TagNumber)
	assert.Equal(t, 1, ledger.checkedIn)
}

func TestCheckInRepeatScanReturnsExistingTag(t *testing.T) {
	exam := activeExam()
	detail := waitingDetail(exam)
	detail.Status = models.QueueStatusCheckedIn
	detail.TagNumber = strPtr("T1-0005")
	ledger := &admLedger{
		activeByMatric: detail,
		byID:           detail,
		checkInEntry: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCheckedIn, TagNumber: strPtr("T1-0005"),
		},
		checkInAlready: true,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	res, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "U2019001", ExamCode: "CSC301"})
	require.NoError(t, err)
	assert.Equal(t, "T1-0005", res.TagNumber)
	assert.Contains(t, res.Message, "already")
}

func TestCheckInFailsFastWhenHallFull(t *testing.T) {
	exam := activeExam()
	ledger := &admLedger{
		activeByMatric: waitingDetail(exam),
		occupiedNow:    exam.HallCapacity,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	_, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "U2019001", ExamCode: "CSC301"})
	assert.ErrorIs(t, err, appErrors.ErrHallFull)
	assert.Equal(t, 0, ledger.checkedIn)
}

func TestCheckInRepeatScanSucceedsWhenHallFull(t *testing.T) {
	exam := activeExam()
	detail := waitingDetail(exam)
	detail.Status = models.QueueStatusCheckedIn
	detail.TagNumber = strPtr("T1-0005")
	ledger := &admLedger{
		activeByMatric: detail,
		byID:           detail,
		checkInEntry: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCheckedIn, TagNumber: strPtr("T1-0005"),
		},
		checkInAlready: true,
		occupiedNow:    exam.HallCapacity,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	res, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "U2019001", ExamCode: "CSC301"})
	require.NoError(t, err)
	assert.Equal(t, "T1-0005", res.TagNumber)
}

func TestCheckInMapsSeatsExhaustedToHallFull(t *testing.T) {
	exam := activeExam()
	ledger := &admLedger{
		activeByMatric: waitingDetail(exam),
		checkInErr:     repository.ErrSeatsExhausted,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	_, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "U2019001", ExamCode: "CSC301"})
	assert.ErrorIs(t, err, appErrors.ErrHallFull)
}

func TestCheckInUnknownStudentWithoutTestMode(t *testing.T) {
	exam := activeExam()
	svc := newAdmissionFixture(t, &admLedger{}, exam, &admStudents{}, config.AdmissionConfig{})

	_, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "GHOST", ExamCode: "CSC301"})
	assert.ErrorIs(t, err, appErrors.ErrNoActiveQueueEntry)
}

func TestCheckInClientTestModeIgnoredWhenOperatorDisabled(t *testing.T) {
	exam := activeExam()
	ledger := &admLedger{joined: &models.QueueEntry{ID: "entry-9", ExamID: exam.ID}}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{TestMode: false})

	_, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "GHOST", ExamCode: "CSC301", TestMode: true})
	assert.ErrorIs(t, err, appErrors.ErrNoActiveQueueEntry)
	assert.Equal(t, 0, ledger.joinCalls)
}

func TestCheckInTestModeSynthesizesEntry(t *testing.T) {
	exam := activeExam()
	synthetic := &models.QueueEntryDetail{
		QueueEntry: models.QueueEntry{ID: "entry-9", ExamID: exam.ID, Status: models.QueueStatusWaiting},
	}
	students := &admStudents{}
	ledger := &admLedger{
		joined: &models.QueueEntry{ID: "entry-9", ExamID: exam.ID},
		byID:   synthetic,
		checkInEntry: &models.QueueEntry{
			ID: "entry-9", ExamID: exam.ID, Status: models.QueueStatusCheckedIn, TagNumber: strPtr("T1-0001"),
		},
	}
	svc := newAdmissionFixture(t, ledger, exam, students, config.AdmissionConfig{TestMode: true})

	res, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "GHOST", ExamCode: "CSC301", TestMode: true})
	require.NoError(t, err)
	assert.Equal(t, "T1-0001", res.TagNumber)
	require.NotNil(t, students.created)
	assert.Equal(t, "GHOST", students.created.MatricNo)
	assert.Equal(t, 1, ledger.joinCalls)
}

func TestCheckInRequiresExamCode(t *testing.T) {
	svc := newAdmissionFixture(t, &admLedger{}, activeExam(), &admStudents{}, config.AdmissionConfig{})

	_, err := svc.CheckIn(context.Background(), dto.ScanPayload{Username: "U2019001"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCheckOutByTag(t *testing.T) {
	exam := activeExam()
	detail := waitingDetail(exam)
	detail.Status = models.QueueStatusCheckedIn
	detail.TagNumber = strPtr("T1-0001")
	ledger := &admLedger{
		byTag: detail,
		checkOutEntry: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCompleted,
		},
		occupiedNow: 4,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	res, err := svc.CheckOut(context.Background(), dto.ScanPayload{TagNumber: "T1-0001", ExamCode: "CSC301"})
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.checkedOut)
	assert.Equal(t, exam.HallCapacity-4, res.AvailableSeats)
}

func TestCheckOutDoubleScanIsNoOp(t *testing.T) {
	exam := activeExam()
	detail := waitingDetail(exam)
	detail.Status = models.QueueStatusCompleted
	detail.TagNumber = strPtr("T1-0001")
	ledger := &admLedger{
		byTag: detail,
		checkOutEntry: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCompleted,
		},
		checkOutAlready: true,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	res, err := svc.CheckOut(context.Background(), dto.ScanPayload{TagNumber: "T1-0001", ExamCode: "CSC301"})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "already")
}

func TestCheckOutOfWaitingEntryIsRejected(t *testing.T) {
	exam := activeExam()
	ledger := &admLedger{
		activeByMatric: waitingDetail(exam),
		checkOutErr:    repository.ErrWrongState,
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	_, err := svc.CheckOut(context.Background(), dto.ScanPayload{Username: "U2019001", ExamCode: "CSC301"})
	assert.ErrorIs(t, err, appErrors.ErrNotCheckedIn)
}

func TestCheckOutUnknownIdentity(t *testing.T) {
	exam := activeExam()
	svc := newAdmissionFixture(t, &admLedger{}, exam, &admStudents{}, config.AdmissionConfig{})

	_, err := svc.CheckOut(context.Background(), dto.ScanPayload{Username: "GHOST", ExamCode: "CSC301"})
	assert.ErrorIs(t, err, appErrors.ErrNotCheckedIn)
}

func TestForceCompleteReleasesSeat(t *testing.T) {
	exam := activeExam()
	detail := waitingDetail(exam)
	detail.Status = models.QueueStatusCheckedIn
	ledger := &admLedger{
		byID: detail,
		checkOutEntry: &models.QueueEntry{
			ID: "entry-1", ExamID: exam.ID, Status: models.QueueStatusCompleted,
		},
	}
	svc := newAdmissionFixture(t, ledger, exam, &admStudents{}, config.AdmissionConfig{})

	res, err := svc.ForceComplete(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "completed")
}
