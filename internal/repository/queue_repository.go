package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/easypass/easypass-api/internal/models"
)

// Sentinel errors surfaced by the transactional ledger operations. The
// service layer maps them onto the typed API error taxonomy.
var (
	ErrDuplicateActive = errors.New("active queue entry already exists for student")
	ErrSeatsExhausted  = errors.New("no seats available in exam hall")
	ErrWrongState      = errors.New("queue entry is not in a valid state for this operation")
)

const queueEntryColumns = `qe.id, qe.exam_id, qe.student_id, qe."position", qe.status, qe.tag_number, qe.tag_seq, qe.created_at, qe.checked_in_at, qe.checked_out_at`

const queueDetailQuery = `SELECT ` + queueEntryColumns + `,
        s.matric_no, s.full_name AS student_name, e.course_code
        FROM queue_entries qe
        JOIN students s ON s.id = qe.student_id
        JOIN exams e ON e.id = qe.exam_id`

// QueueRepository owns the persistent queue ledger. Position assignment,
// check-in and check-out are single transactions holding the exam row lock,
// so ledger state and seat accounting can never diverge; concurrent callers
// on different exams do not contend.
type QueueRepository struct {
	db   *sqlx.DB
	tags TagAllocator
}

// NewQueueRepository constructs a QueueRepository.
func NewQueueRepository(db *sqlx.DB, tags TagAllocator) *QueueRepository {
	if tags == nil {
		tags = NewSequenceTagAllocator(0)
	}
	return &QueueRepository{db: db, tags: tags}
}

// Join appends the student to the exam's queue. The position is computed and
// committed under the exam row lock so two concurrent joiners can never
// receive the same value; positions are never back-filled after removals.
func (r *QueueRepository) Join(ctx context.Context, examID, studentID string) (*models.QueueEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin join: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var examSeq int
	if err := tx.GetContext(ctx, &examSeq,
		`SELECT exam_seq FROM exams WHERE id = $1 FOR UPDATE`, examID); err != nil {
		return nil, err
	}

	var existing int
	err = tx.GetContext(ctx, &existing,
		`SELECT 1 FROM queue_entries WHERE exam_id = $1 AND student_id = $2 AND status IN ('waiting', 'checked_in') LIMIT 1`,
		examID, studentID)
	if err == nil {
		return nil, ErrDuplicateActive
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check active entry: %w", err)
	}

	var position int
	if err := tx.GetContext(ctx, &position,
		`SELECT COALESCE(MAX("position"), 0) + 1 FROM queue_entries WHERE exam_id = $1`, examID); err != nil {
		return nil, fmt.Errorf("next position: %w", err)
	}

	entry := &models.QueueEntry{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		Position:  position,
		Status:    models.QueueStatusWaiting,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO queue_entries (id, exam_id, student_id, "position", status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.ExamID, entry.StudentID, entry.Position, entry.Status, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit join: %w", err)
	}
	commit = true
	return entry, nil
}

// FindByID fetches one entry with student and exam metadata.
func (r *QueueRepository) FindByID(ctx context.Context, id string) (*models.QueueEntryDetail, error) {
	var detail models.QueueEntryDetail
	if err := r.db.GetContext(ctx, &detail, queueDetailQuery+` WHERE qe.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByStudent returns the student's single active entry across all
// exams, if any.
func (r *QueueRepository) FindActiveByStudent(ctx context.Context, studentID string) (*models.QueueEntryDetail, error) {
	var detail models.QueueEntryDetail
	query := queueDetailQuery + ` WHERE qe.student_id = $1 AND qe.status IN ('waiting', 'checked_in') ORDER BY qe.created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &detail, query, studentID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByPair returns the active entry for an (exam, student) pair.
func (r *QueueRepository) FindActiveByPair(ctx context.Context, examID, studentID string) (*models.QueueEntryDetail, error) {
	var detail models.QueueEntryDetail
	query := queueDetailQuery + ` WHERE qe.exam_id = $1 AND qe.student_id = $2 AND qe.status IN ('waiting', 'checked_in') LIMIT 1`
	if err := r.db.GetContext(ctx, &detail, query, examID, studentID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByMatric resolves an active entry through the student's matric
// number, the fallback identifier carried by QR payloads.
func (r *QueueRepository) FindActiveByMatric(ctx context.Context, examID, matricNo string) (*models.QueueEntryDetail, error) {
	var detail models.QueueEntryDetail
	query := queueDetailQuery + ` WHERE qe.exam_id = $1 AND s.matric_no = $2 AND qe.status IN ('waiting', 'checked_in') LIMIT 1`
	if err := r.db.GetContext(ctx, &detail, query, examID, matricNo); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByTag resolves an entry through its tag number regardless of status,
// which lets duplicate checkouts of a completed entry be recognised.
func (r *QueueRepository) FindByTag(ctx context.Context, examID, tagNumber string) (*models.QueueEntryDetail, error) {
	var detail models.QueueEntryDetail
	query := queueDetailQuery + ` WHERE qe.exam_id = $1 AND qe.tag_number = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &detail, query, examID, tagNumber); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns ledger entries ordered by position ascending. That ordering
// is the canonical "who is next" answer; callers must not re-sort.
func (r *QueueRepository) List(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntryDetail, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ExamID != "" {
		conditions = append(conditions, fmt.Sprintf("qe.exam_id = $%d", len(args)+1))
		args = append(args, filter.ExamID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("qe.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("qe.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY qe."position" ASC`, queueDetailQuery, strings.Join(conditions, " AND "))

	var entries []models.QueueEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return entries, nil
}

// CountCheckedIn recomputes seat occupancy from the ledger.
func (r *QueueRepository) CountCheckedIn(ctx context.Context, examID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM queue_entries WHERE exam_id = $1 AND status = 'checked_in'`, examID); err != nil {
		return 0, fmt.Errorf("count checked in: %w", err)
	}
	return count, nil
}

// CountActive returns the number of entries still in the queue for an exam.
func (r *QueueRepository) CountActive(ctx context.Context, examID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM queue_entries WHERE exam_id = $1 AND status IN ('waiting', 'checked_in')`, examID); err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return count, nil
}

// FirstCheckInTime returns the earliest check-in for the exam, or nil when
// nobody has been admitted yet. Feeds the wait-time heuristic.
func (r *QueueRepository) FirstCheckInTime(ctx context.Context, examID string) (*time.Time, error) {
	var first sql.NullTime
	if err := r.db.GetContext(ctx, &first,
		`SELECT MIN(checked_in_at) FROM queue_entries WHERE exam_id = $1 AND checked_in_at IS NOT NULL`, examID); err != nil {
		return nil, fmt.Errorf("first check-in time: %w", err)
	}
	if !first.Valid {
		return nil, nil
	}
	t := first.Time
	return &t, nil
}

// DeleteWaiting removes a waiting entry. Entries that progressed past
// waiting keep their ledger row for history and must go through checkout or
// force-complete instead.
func (r *QueueRepository) DeleteWaiting(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var status models.QueueStatus
	if err := tx.GetContext(ctx, &status,
		`SELECT status FROM queue_entries WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}
	if status != models.QueueStatusWaiting {
		return ErrWrongState
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	commit = true
	return nil
}

// CheckIn transitions a waiting entry to checked_in: seat availability is
// verified, a tag is allocated, and the entry is updated inside one
// transaction holding the exam row lock. A repeated scan of an entry that is
// already checked in returns the existing tag with already=true and mutates
// nothing.
func (r *QueueRepository) CheckIn(ctx context.Context, examID, entryID string) (entry *models.QueueEntry, already bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin check-in: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var exam struct {
		ExamSeq      int `db:"exam_seq"`
		HallCapacity int `db:"hall_capacity"`
	}
	if err := tx.GetContext(ctx, &exam,
		`SELECT exam_seq, hall_capacity FROM exams WHERE id = $1 FOR UPDATE`, examID); err != nil {
		return nil, false, err
	}

	var row models.QueueEntry
	if err := tx.GetContext(ctx, &row,
		`SELECT id, exam_id, student_id, "position", status, tag_number, tag_seq, created_at, checked_in_at, checked_out_at
        FROM queue_entries WHERE id = $1 AND exam_id = $2 FOR UPDATE`, entryID, examID); err != nil {
		return nil, false, err
	}

	if row.Status == models.QueueStatusCheckedIn {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit check-in: %w", err)
		}
		commit = true
		return &row, true, nil
	}
	if !models.CanTransition(row.Status, models.QueueStatusCheckedIn) {
		return nil, false, ErrWrongState
	}

	var occupied int
	if err := tx.GetContext(ctx, &occupied,
		`SELECT COUNT(*) FROM queue_entries WHERE exam_id = $1 AND status = 'checked_in'`, examID); err != nil {
		return nil, false, fmt.Errorf("count occupied: %w", err)
	}
	if occupied >= exam.HallCapacity {
		return nil, false, ErrSeatsExhausted
	}

	tag, seq, err := r.tags.Allocate(ctx, tx, examID, exam.ExamSeq)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET status = 'checked_in', tag_number = $2, tag_seq = $3, checked_in_at = $4 WHERE id = $1`,
		entryID, tag, seq, now); err != nil {
		return nil, false, fmt.Errorf("update check-in: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit check-in: %w", err)
	}
	commit = true

	row.Status = models.QueueStatusCheckedIn
	row.TagNumber = &tag
	row.TagSeq = &seq
	row.CheckedInAt = &now
	return &row, false, nil
}

// CheckOut transitions a checked_in entry to completed, freeing its seat. A
// repeated checkout of an already-completed entry is a no-op success
// (already=true) so double-fired scanners never double-release.
func (r *QueueRepository) CheckOut(ctx context.Context, examID, entryID string) (entry *models.QueueEntry, already bool, err error) {
	return r.complete(ctx, examID, entryID, false)
}

// ForceComplete is the administrative override: a checked_in entry completes
// with normal seat-release semantics, a waiting entry is marked absent, and
// terminal entries are left untouched (already=true).
func (r *QueueRepository) ForceComplete(ctx context.Context, examID, entryID string) (entry *models.QueueEntry, already bool, err error) {
	return r.complete(ctx, examID, entryID, true)
}

func (r *QueueRepository) complete(ctx context.Context, examID, entryID string, force bool) (*models.QueueEntry, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin checkout: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	// Exam row lock keeps checkout serialized with check-in capacity math.
	var examSeq int
	if err := tx.GetContext(ctx, &examSeq,
		`SELECT exam_seq FROM exams WHERE id = $1 FOR UPDATE`, examID); err != nil {
		return nil, false, err
	}

	var row models.QueueEntry
	if err := tx.GetContext(ctx, &row,
		`SELECT id, exam_id, student_id, "position", status, tag_number, tag_seq, created_at, checked_in_at, checked_out_at
        FROM queue_entries WHERE id = $1 AND exam_id = $2 FOR UPDATE`, entryID, examID); err != nil {
		return nil, false, err
	}

	if row.Status.Terminal() {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit checkout: %w", err)
		}
		commit = true
		return &row, true, nil
	}

	now := time.Now().UTC()
	var target models.QueueStatus
	switch {
	case models.CanTransition(row.Status, models.QueueStatusCompleted):
		target = models.QueueStatusCompleted
	case force && models.CanTransition(row.Status, models.QueueStatusAbsent):
		target = models.QueueStatusAbsent
	default:
		return nil, false, ErrWrongState
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET status = $2, checked_out_at = $3 WHERE id = $1`,
		entryID, target, now); err != nil {
		return nil, false, fmt.Errorf("update checkout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit checkout: %w", err)
	}
	commit = true

	row.Status = target
	row.CheckedOutAt = &now
	return &row, false, nil
}

// ClearActive expires whatever active entry exists for the pair: waiting
// entries are deleted, checked_in entries are marked absent when force is
// set. Returns false when there was nothing to clear.
func (r *QueueRepository) ClearActive(ctx context.Context, examID, studentID string, force bool) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin clear: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var examSeq int
	if err := tx.GetContext(ctx, &examSeq,
		`SELECT exam_seq FROM exams WHERE id = $1 FOR UPDATE`, examID); err != nil {
		return false, err
	}

	var row models.QueueEntry
	err = tx.GetContext(ctx, &row,
		`SELECT id, exam_id, student_id, "position", status, tag_number, tag_seq, created_at, checked_in_at, checked_out_at
        FROM queue_entries WHERE exam_id = $1 AND student_id = $2 AND status IN ('waiting', 'checked_in') FOR UPDATE`,
		examID, studentID)
	if err == sql.ErrNoRows {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit clear: %w", err)
		}
		commit = true
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load active entry: %w", err)
	}

	switch row.Status {
	case models.QueueStatusWaiting:
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = $1`, row.ID); err != nil {
			return false, fmt.Errorf("delete waiting entry: %w", err)
		}
	case models.QueueStatusCheckedIn:
		if !force {
			return false, ErrWrongState
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_entries SET status = 'absent', checked_out_at = $2 WHERE id = $1`,
			row.ID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("expire checked-in entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit clear: %w", err)
	}
	commit = true
	return true, nil
}

// ExpireStale marks waiting entries absent when their exam is deactivated or
// its date has passed. Run by the reconciliation sweeper to clean up rows a
// crash or a deactivated exam left behind.
func (r *QueueRepository) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE queue_entries SET status = 'absent'
        FROM exams e
        WHERE queue_entries.exam_id = e.id
          AND queue_entries.status = 'waiting'
          AND (e.is_active = false OR e.exam_date < $1)`, before)
	if err != nil {
		return 0, fmt.Errorf("expire stale entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired entries: %w", err)
	}
	return affected, nil
}
