package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/Fairfood/Navigate-Server/internal/domain"
	"github.com/Fairfood/Navigate-Server/internal/infrastructure/database/dbtest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestJobStore_Transitions(t *testing.T) {
	db := dbtest.New(t)
	store := NewJobStore(db)
	ctx := context.Background()
	farm := seedFarm(t, db, pointGeoJSON)

	entry, err := store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusInQueue, entry.Status)
	assert.Equal(t, []string{farm.ID.String()}, entry.FarmIDs())

	// completing or failing before the claim is rejected
	assert.True(t, errors.Is(store.MarkCompleted(ctx, entry.ID), ErrInvalidTransition))

	ok, err := store.MarkStarted(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkStarted(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	require.NoError(t, store.MarkFailed(ctx, entry.ID, errors.New("boom")))
	got, err := store.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)

	// terminal states are final
	assert.True(t, errors.Is(store.MarkCompleted(ctx, entry.ID), ErrInvalidTransition))
}

func TestJobStore_FinishOnlyToTerminalStatus(t *testing.T) {
	db := dbtest.New(t)
	store := NewJobStore(db)
	ctx := context.Background()
	farm := seedFarm(t, db, pointGeoJSON)

	entry, err := store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	ok, err := store.MarkStarted(ctx, entry.ID)
	require.NoError(t, err)
	require.True(t, ok)

	for _, st := range []domain.SyncStatus{domain.SyncStatusInQueue, domain.SyncStatusStarted} {
		assert.False(t, st.Terminal())
		assert.ErrorIs(t, store.finish(ctx, entry.ID, st, nil), ErrInvalidTransition, st.String())
	}
	got, err := store.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusStarted, got.Status)

	assert.True(t, domain.SyncStatusCompleted.Terminal())
	require.NoError(t, store.finish(ctx, entry.ID, domain.SyncStatusCompleted, nil))
}

func TestJobStore_EnqueueTxRollsBackWithCaller(t *testing.T) {
	db := dbtest.New(t)
	store := NewJobStore(db)
	farm := seedFarm(t, db, pointGeoJSON)

	rollback := errors.New("caller failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := store.EnqueueTx(tx, farm.ID)
		require.NoError(t, err)
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	var n int64
	require.NoError(t, db.Model(&domain.AnalysisQueue{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestJobStore_EnqueueRejectsUnknownFarm(t *testing.T) {
	db := dbtest.New(t)
	store := NewJobStore(db)
	_, err := store.Enqueue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrFarmNotFound)

	_, err = store.Enqueue(context.Background())
	assert.Error(t, err)
}

func TestJobStore_ListQueuedIsFIFOAndCounts(t *testing.T) {
	db := dbtest.New(t)
	store := NewJobStore(db)
	ctx := context.Background()
	a := seedFarm(t, db, pointGeoJSON)
	b := seedFarm(t, db, pointGeoJSON)

	first, err := store.Enqueue(ctx, a.ID)
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, b.ID)
	require.NoError(t, err)
	third, err := store.Enqueue(ctx, a.ID, b.ID)
	require.NoError(t, err)

	ok, err := store.MarkStarted(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, ok)

	queued, err := store.ListQueued(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, first.ID, queued[0].ID)
	assert.Equal(t, third.ID, queued[1].ID)
	assert.Len(t, queued[1].Farms, 2)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["IN_QUEUE"])
	assert.Equal(t, int64(1), counts["STARTED"])
	assert.Equal(t, int64(0), counts["COMPLETED"])

	started := domain.SyncStatusStarted
	list, err := store.List(ctx, &started, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestJobStore_SaveFarmResultRejectsUntrackedDensity(t *testing.T) {
	db := dbtest.New(t)
	store := NewJobStore(db)
	farm := seedFarm(t, db, pointGeoJSON)
	err := store.SaveFarmResult(context.Background(), farm.ID, FarmResult{
		Loss: map[domain.CanopyDensity]map[int]float64{50: {2020: 1}},
	})
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr))
}
