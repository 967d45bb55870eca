package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type fakeCache struct {
	store map[string][]byte
	gets  int
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string][]byte{}}
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	f.gets++
	raw, ok := f.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.store[key] = raw
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	delete(f.store, key)
	return nil
}

func TestSnapshotDerivesFromLedger(t *testing.T) {
	exam := activeExam()
	svc := NewCapacityService(&admExams{exam: exam}, &admLedger{occupiedNow: 30}, nil, nil, time.Second, nil)

	snapshot, err := svc.Snapshot(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 250, snapshot.HallCapacity)
	assert.Equal(t, 30, snapshot.Occupied)
	assert.Equal(t, 220, snapshot.Available)
}

func TestSnapshotClampsAvailableToZero(t *testing.T) {
	exam := activeExam()
	exam.HallCapacity = 10
	svc := NewCapacityService(&admExams{exam: exam}, &admLedger{occupiedNow: 12}, nil, nil, time.Second, nil)

	snapshot, err := svc.Snapshot(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.Available)
}

func TestSnapshotUsesCache(t *testing.T) {
	exam := activeExam()
	cache := newFakeCache()
	svc := NewCapacityService(&admExams{exam: exam}, &admLedger{occupiedNow: 5}, cache, nil, time.Minute, nil)

	first, err := svc.Snapshot(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Snapshot(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets, "second read should come from cache")
}

func TestInvalidateDropsCachedSnapshot(t *testing.T) {
	exam := activeExam()
	cache := newFakeCache()
	ledger := &admLedger{occupiedNow: 5}
	svc := NewCapacityService(&admExams{exam: exam}, ledger, cache, nil, time.Minute, nil)

	_, err := svc.Snapshot(context.Background(), exam.ID)
	require.NoError(t, err)

	svc.Invalidate(context.Background(), exam.ID)
	ledger.occupiedNow = 6

	snapshot, err := svc.Snapshot(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, snapshot.Occupied)
}

func TestReserveSeatWhenFull(t *testing.T) {
	exam := activeExam()
	exam.HallCapacity = 2
	svc := NewCapacityService(&admExams{exam: exam}, &admLedger{occupiedNow: 2}, nil, nil, time.Second, nil)

	err := svc.ReserveSeat(context.Background(), exam.ID)
	assert.ErrorIs(t, err, appErrors.ErrHallFull)
}

func TestReserveSeatWhenAvailable(t *testing.T) {
	exam := activeExam()
	svc := NewCapacityService(&admExams{exam: exam}, &admLedger{occupiedNow: 100}, nil, nil, time.Second, nil)

	assert.NoError(t, svc.ReserveSeat(context.Background(), exam.ID))
}

func TestSnapshotUnknownExam(t *testing.T) {
	svc := NewCapacityService(&admExams{}, &admLedger{}, nil, nil, time.Second, nil)

	_, err := svc.Snapshot(context.Background(), "missing")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
