package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(QueueStatusWaiting, QueueStatusCheckedIn))
	assert.True(t, CanTransition(QueueStatusWaiting, QueueStatusAbsent))
	assert.True(t, CanTransition(QueueStatusCheckedIn, QueueStatusCompleted))
	assert.True(t, CanTransition(QueueStatusCheckedIn, QueueStatusAbsent))

	assert.False(t, CanTransition(QueueStatusWaiting, QueueStatusCompleted))
	assert.False(t, CanTransition(QueueStatusCheckedIn, QueueStatusWaiting))
	assert.False(t, CanTransition(QueueStatusCompleted, QueueStatusCheckedIn))
	assert.False(t, CanTransition(QueueStatusAbsent, QueueStatusWaiting))
}

func TestQueueStatusClassification(t *testing.T) {
	assert.True(t, QueueStatusWaiting.Active())
	assert.True(t, QueueStatusCheckedIn.Active())
	assert.False(t, QueueStatusCompleted.Active())
	assert.False(t, QueueStatusAbsent.Active())

	assert.True(t, QueueStatusCompleted.Terminal())
	assert.True(t, QueueStatusAbsent.Terminal())
	assert.False(t, QueueStatusWaiting.Terminal())

	assert.False(t, QueueStatus("deleted").Valid())
}

func TestExamStartsAt(t *testing.T) {
	exam := Exam{
		ExamDate:  time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
		StartTime: "09:30",
	}
	assert.Equal(t, time.Date(2026, 4, 20, 9, 30, 0, 0, time.UTC), exam.StartsAt())

	exam.StartTime = "09:30:15"
	assert.Equal(t, time.Date(2026, 4, 20, 9, 30, 15, 0, time.UTC), exam.StartsAt())

	exam.StartTime = "not a time"
	assert.Equal(t, exam.ExamDate, exam.StartsAt())
}
