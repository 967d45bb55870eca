package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFormatsTag(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(tag_seq), 0) + 1 FROM queue_entries WHERE exam_id = $1`)).
		WithArgs("exam-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	allocator := NewSequenceTagAllocator(9999)
	tag, seq, err := allocator.Allocate(context.Background(), tx, "exam-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "T2-0001", tag)
	assert.Equal(t, 1, seq)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateStopsAtCeiling(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(tag_seq), 0) + 1 FROM queue_entries WHERE exam_id = $1`)).
		WithArgs("exam-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(10000))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	allocator := NewSequenceTagAllocator(9999)
	_, _, err = allocator.Allocate(context.Background(), tx, "exam-1", 1)
	assert.ErrorIs(t, err, ErrTagExhausted)
}
