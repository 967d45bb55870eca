package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrTagExhausted signals that an exam has consumed its tag numbering space.
// This is a configuration problem, not an expected runtime condition.
var ErrTagExhausted = errors.New("tag sequence exhausted for exam")

// TagAllocator produces unique, human-readable check-in tags for an exam.
// Allocate must be invoked inside a transaction that holds the exam row lock;
// the lock is what makes the sequence read collision-free under concurrent
// check-ins.
type TagAllocator interface {
	Allocate(ctx context.Context, tx *sqlx.Tx, examID string, examSeq int) (tag string, seq int, err error)
}

// SequenceTagAllocator issues tags of the form T<examSeq>-<zero-padded seq>,
// e.g. T1-0001. Sequences are monotone per exam and never reused, so a tag
// stays a stable idempotency key even after the entry completes.
type SequenceTagAllocator struct {
	ceiling int
}

// NewSequenceTagAllocator constructs an allocator with the given per-exam
// ceiling (the highest sequence it will issue).
func NewSequenceTagAllocator(ceiling int) *SequenceTagAllocator {
	if ceiling <= 0 {
		ceiling = 9999
	}
	return &SequenceTagAllocator{ceiling: ceiling}
}

// Allocate claims the next tag sequence for the exam.
func (a *SequenceTagAllocator) Allocate(ctx context.Context, tx *sqlx.Tx, examID string, examSeq int) (string, int, error) {
	var next int
	if err := tx.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(tag_seq), 0) + 1 FROM queue_entries WHERE exam_id = $1`, examID); err != nil {
		return "", 0, fmt.Errorf("next tag seq: %w", err)
	}
	if next > a.ceiling {
		return "", 0, ErrTagExhausted
	}
	return fmt.Sprintf("T%d-%04d", examSeq, next), next, nil
}
