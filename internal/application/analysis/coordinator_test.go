package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fairfood/Navigate-Server/internal/application/forest"
	"github.com/Fairfood/Navigate-Server/internal/application/geometry"
	"github.com/Fairfood/Navigate-Server/internal/domain"
	"github.com/Fairfood/Navigate-Server/internal/infrastructure/database/dbtest"
	"github.com/Fairfood/Navigate-Server/internal/infrastructure/lock"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	pointGeoJSON = `{"type":"Point","coordinates":[30.06,-1.95]}`
	lineGeoJSON  = `{"type":"LineString","coordinates":[[0,0],[1,1]]}`
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  []domain.CanopyDensity
	byDens map[domain.CanopyDensity]*forest.Metrics
	err    error
	hook   func()
}

func (p *fakeProvider) ComputeMetrics(ctx context.Context, polygon []byte, density domain.CanopyDensity) (*forest.Metrics, error) {
	p.mu.Lock()
	p.calls = append(p.calls, density)
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if p.err != nil {
		return nil, p.err
	}
	m, ok := p.byDens[density]
	if !ok {
		return &forest.Metrics{YearlyLoss: map[int]float64{}}, nil
	}
	cp := *m
	return &cp, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type harness struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	store    *JobStore
	provider *fakeProvider
	coord    *SyncCoordinator
	reg      *prometheus.Registry
}

func setupHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.New(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	provider := &fakeProvider{byDens: map[domain.CanopyDensity]*forest.Metrics{
		domain.CanopyDensity30: {
			TreeCoverExtentHa:   12.5,
			PrimaryForestAreaHa: 1.0,
			ProtectedAreaHa:     0,
			YearlyLoss:          map[int]float64{2022: 0.3},
		},
		domain.CanopyDensity10: {YearlyLoss: map[int]float64{}},
	}}
	store := NewJobStore(db)
	reg := prometheus.NewRegistry()
	coord := NewSyncCoordinator(store, lock.NewRedisLock(rdb), geometry.NewResolver(geometry.Options{BufferMeters: 30}), provider, NewMetrics(reg), Options{
		LockTTL:      time.Hour,
		SafetyMargin: 3 * time.Second,
		BufferMeters: 30,
	})
	return &harness{db: db, mr: mr, store: store, provider: provider, coord: coord, reg: reg}
}

func seedFarm(t *testing.T, db *gorm.DB, geo string) domain.Farm {
	t.Helper()
	company := domain.Company{Name: "Acme Cocoa"}
	require.NoError(t, db.Create(&company).Error)
	farmer := domain.Farmer{Name: "Ama", CompanyID: company.ID}
	require.NoError(t, db.Create(&farmer).Error)
	farm := domain.Farm{FarmerID: farmer.ID, ExternalID: "F-" + uuid.NewString()[:8], GeoJSON: datatypes.JSON(geo)}
	require.NoError(t, db.Create(&farm).Error)
	return farm
}

func entryStatus(t *testing.T, db *gorm.DB, id uint) domain.SyncStatus {
	t.Helper()
	var e domain.AnalysisQueue
	require.NoError(t, db.First(&e, id).Error)
	return e.Status
}

func TestRunSyncCycle_PointFarmEndToEnd(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.True(t, res.LockReleased)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 0, res.Failed)

	assert.Equal(t, domain.SyncStatusCompleted, entryStatus(t, h.db, entry.ID))

	var losses []domain.YearlyTreeCoverLoss
	require.NoError(t, h.db.Where("farm_id = ?", farm.ID).Find(&losses).Error)
	require.Len(t, losses, 1)
	assert.Equal(t, 2022, losses[0].Year)
	assert.Equal(t, domain.CanopyDensity30, losses[0].CanopyDensity)
	assert.InDelta(t, 0.3, losses[0].Value, 1e-9)

	var prop domain.FarmProperty
	require.NoError(t, h.db.Where("farm_id = ?", farm.ID).First(&prop).Error)
	assert.InDelta(t, 0.25, prop.TotalArea, 0.005)
	assert.Equal(t, 12.5, prop.TreeCoverExtent)
	assert.Equal(t, 1.0, prop.PrimaryForestArea)
	assert.Equal(t, 0.0, prop.ProtectedArea)

	assert.ElementsMatch(t, []domain.CanopyDensity{domain.CanopyDensity10, domain.CanopyDensity30}, h.provider.calls)
	assert.False(t, h.mr.Exists(DefaultLockKey))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.coord.Metrics.entries.WithLabelValues("COMPLETED")))
}

func TestRunSyncCycle_EntryIsStartedWhileProviderRuns(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusInQueue, entryStatus(t, h.db, entry.ID))

	var seen []domain.SyncStatus
	h.provider.hook = func() {
		var e domain.AnalysisQueue
		if err := h.db.First(&e, entry.ID).Error; err == nil {
			seen = append(seen, e.Status)
		}
	}
	_, err = h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for _, s := range seen {
		assert.Equal(t, domain.SyncStatusStarted, s)
	}
	assert.Equal(t, domain.SyncStatusCompleted, entryStatus(t, h.db, entry.ID))
}

func TestRunSyncCycle_LockContentionTouchesNothing(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)

	require.NoError(t, h.mr.Set(DefaultLockKey, "other-worker"))

	res, err := h.coord.RunSyncCycle(ctx)
	assert.ErrorIs(t, err, ErrLockContention)
	assert.False(t, res.Acquired)
	assert.Zero(t, h.provider.callCount())
	assert.Equal(t, domain.SyncStatusInQueue, entryStatus(t, h.db, entry.ID))

	owner, err := h.mr.Get(DefaultLockKey)
	require.NoError(t, err)
	assert.Equal(t, "other-worker", owner)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.coord.Metrics.cycles.WithLabelValues("contention")))
}

func TestRunSyncCycle_FailureIsIsolatedPerEntry(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	bad := seedFarm(t, h.db, lineGeoJSON)
	good := seedFarm(t, h.db, pointGeoJSON)
	badEntry, err := h.store.Enqueue(ctx, bad.ID)
	require.NoError(t, err)
	goodEntry, err := h.store.Enqueue(ctx, good.ID)
	require.NoError(t, err)

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Failed)

	var failed domain.AnalysisQueue
	require.NoError(t, h.db.First(&failed, badEntry.ID).Error)
	assert.Equal(t, domain.SyncStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "LineString")
	assert.Equal(t, domain.SyncStatusCompleted, entryStatus(t, h.db, goodEntry.ID))

	var n int64
	h.db.Model(&domain.FarmProperty{}).Where("farm_id = ?", bad.ID).Count(&n)
	assert.Zero(t, n)
}

func TestRunSyncCycle_ProviderErrorFailsEntry(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	h.provider.err = errors.New("quota exceeded")

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	var e domain.AnalysisQueue
	require.NoError(t, h.db.First(&e, entry.ID).Error)
	assert.Equal(t, domain.SyncStatusFailed, e.Status)
	require.NotNil(t, e.Error)
	assert.Contains(t, *e.Error, "quota exceeded")
}

func TestRunSyncCycle_NegativeLossFailsEntry(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	h.provider.byDens[domain.CanopyDensity30] = &forest.Metrics{
		YearlyLoss: map[int]float64{2021: 0.3, 2022: -0.3},
	}

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.SyncStatusFailed, entryStatus(t, h.db, entry.ID))

	var n int64
	require.NoError(t, h.db.Model(&domain.YearlyTreeCoverLoss{}).Where("farm_id = ?", farm.ID).Count(&n).Error)
	assert.Zero(t, n, "a malformed series must not be stored")
}

// rejectStatusWrites makes every status update to one of statuses fail.
func rejectStatusWrites(t *testing.T, db *gorm.DB, statuses ...domain.SyncStatus) {
	t.Helper()
	err := db.Callback().Update().Before("gorm:update").Register("test:reject_status", func(tx *gorm.DB) {
		m, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok {
			return
		}
		st, ok := m["status"].(domain.SyncStatus)
		if !ok {
			return
		}
		for _, s := range statuses {
			if st == s {
				_ = tx.AddError(errors.New("disk full"))
				return
			}
		}
	})
	require.NoError(t, err)
}

func TestRunSyncCycle_CompletionWriteFailureMarksFailed(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	rejectStatusWrites(t, h.db, domain.SyncStatusCompleted)

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Skipped)

	var e domain.AnalysisQueue
	require.NoError(t, h.db.First(&e, entry.ID).Error)
	assert.Equal(t, domain.SyncStatusFailed, e.Status)
	require.NotNil(t, e.Error)
	assert.Contains(t, *e.Error, "completion not recorded")
}

func TestRunSyncCycle_NoTerminalWriteCountsStranded(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	entry, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	rejectStatusWrites(t, h.db, domain.SyncStatusCompleted, domain.SyncStatusFailed)

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Stranded)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, domain.SyncStatusStarted, entryStatus(t, h.db, entry.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.coord.Metrics.entries.WithLabelValues("STARTED")))
}

func TestRunSyncCycle_MultiFarmEntryFailsIfAnyFarmFails(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	good := seedFarm(t, h.db, pointGeoJSON)
	bad := seedFarm(t, h.db, lineGeoJSON)
	entry, err := h.store.Enqueue(ctx, good.ID, bad.ID)
	require.NoError(t, err)

	_, err = h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, entryStatus(t, h.db, entry.ID))

	// the farm that succeeded keeps its results
	var n int64
	h.db.Model(&domain.FarmProperty{}).Where("farm_id = ?", good.ID).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestRunSyncCycle_ReanalysisIsIdempotent(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	h.provider.byDens[domain.CanopyDensity30].YearlyLoss = map[int]float64{2015: 0.1, 2022: 0.3}

	_, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	_, err = h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	_, err = h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	_, err = h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)

	var count int64
	h.db.Model(&domain.YearlyTreeCoverLoss{}).Where("farm_id = ?", farm.ID).Count(&count)
	assert.Equal(t, int64(2), count)
	h.db.Model(&domain.FarmProperty{}).Where("farm_id = ?", farm.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	// a year the provider stops reporting is dropped, a changed value is replaced
	h.provider.byDens[domain.CanopyDensity30].YearlyLoss = map[int]float64{2022: 0.4}
	_, err = h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)
	_, err = h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)

	var losses []domain.YearlyTreeCoverLoss
	require.NoError(t, h.db.Where("farm_id = ?", farm.ID).Find(&losses).Error)
	require.Len(t, losses, 1)
	assert.Equal(t, 2022, losses[0].Year)
	assert.InDelta(t, 0.4, losses[0].Value, 1e-9)
}

func TestRunSyncCycle_SkipsReleaseWhenOverrunningTTL(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	farm := seedFarm(t, h.db, pointGeoJSON)
	_, err := h.store.Enqueue(ctx, farm.ID)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	h.coord.Now = func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(h.coord.Opts.LockTTL - time.Second)
	}

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.False(t, res.LockReleased)
	assert.True(t, h.mr.Exists(DefaultLockKey))
}

func TestRunSyncCycle_ConcurrentWorkersDrainQueue(t *testing.T) {
	h := setupHarness(t)
	h.coord.Opts.Concurrency = 3
	ctx := context.Background()
	var ids []uint
	for i := 0; i < 5; i++ {
		farm := seedFarm(t, h.db, pointGeoJSON)
		e, err := h.store.Enqueue(ctx, farm.ID)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	res, err := h.coord.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Completed)
	for _, id := range ids {
		assert.Equal(t, domain.SyncStatusCompleted, entryStatus(t, h.db, id))
	}
}

func TestRunSyncCycle_EmptyQueue(t *testing.T) {
	h := setupHarness(t)
	res, err := h.coord.RunSyncCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.Zero(t, res.Processed)
	assert.False(t, h.mr.Exists(DefaultLockKey))
}

func TestAnalyzeFarm_RadiusOverridesBuffer(t *testing.T) {
	h := setupHarness(t)
	farm := seedFarm(t, h.db, pointGeoJSON)
	zero := 0.0
	farm.AnalysisRadius = &zero

	require.NoError(t, h.coord.AnalyzeFarm(context.Background(), &farm))
	var prop domain.FarmProperty
	require.NoError(t, h.db.Where("farm_id = ?", farm.ID).First(&prop).Error)
	assert.InDelta(t, 0.25, prop.TotalArea, 0.005)
}
