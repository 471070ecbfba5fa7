package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fairfood/Navigate-Server/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobStore persists the analysis queue and the results it produces.
type JobStore struct {
	DB *gorm.DB
}

// NewJobStore returns a JobStore on db.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{DB: db}
}

// Enqueue creates an IN_QUEUE entry referencing farmIDs. Every farm must exist.
func (s *JobStore) Enqueue(ctx context.Context, farmIDs ...uuid.UUID) (*domain.AnalysisQueue, error) {
	var entry *domain.AnalysisQueue
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.EnqueueTx(tx, farmIDs...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// EnqueueTx is Enqueue on the caller's transaction, so a farm write and the
// entry that analyses it commit or roll back together.
func (s *JobStore) EnqueueTx(tx *gorm.DB, farmIDs ...uuid.UUID) (*domain.AnalysisQueue, error) {
	if len(farmIDs) == 0 {
		return nil, errors.New("enqueue: at least one farm id is required")
	}
	unique := make(map[uuid.UUID]struct{}, len(farmIDs))
	for _, id := range farmIDs {
		unique[id] = struct{}{}
	}
	var farms []domain.Farm
	if err := tx.Where("id IN ?", farmIDs).Find(&farms).Error; err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if len(farms) != len(unique) {
		return nil, fmt.Errorf("enqueue: %w", ErrFarmNotFound)
	}
	entry := &domain.AnalysisQueue{Status: domain.SyncStatusInQueue, Farms: farms}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return entry, nil
}

// ListQueued returns IN_QUEUE entries with their farms, oldest first.
func (s *JobStore) ListQueued(ctx context.Context) ([]domain.AnalysisQueue, error) {
	var entries []domain.AnalysisQueue
	err := s.DB.WithContext(ctx).
		Preload("Farms").
		Where("status = ?", domain.SyncStatusInQueue).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// List returns entries newest first, optionally filtered by status.
func (s *JobStore) List(ctx context.Context, status *domain.SyncStatus, limit int) ([]domain.AnalysisQueue, error) {
	q := s.DB.WithContext(ctx).Preload("Farms").Order("id DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []domain.AnalysisQueue
	err := q.Find(&entries).Error
	return entries, err
}

// Get returns one entry with its farms.
func (s *JobStore) Get(ctx context.Context, id uint) (*domain.AnalysisQueue, error) {
	var entry domain.AnalysisQueue
	if err := s.DB.WithContext(ctx).Preload("Farms").First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountByStatus returns the number of entries per status name.
func (s *JobStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status domain.SyncStatus
		Count  int64
	}
	err := s.DB.WithContext(ctx).Model(&domain.AnalysisQueue{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, st := range []domain.SyncStatus{domain.SyncStatusInQueue, domain.SyncStatusStarted, domain.SyncStatusCompleted, domain.SyncStatusFailed} {
		out[st.String()] = 0
	}
	for _, r := range rows {
		out[r.Status.String()] = r.Count
	}
	return out, nil
}

// MarkStarted claims an IN_QUEUE entry. It reports false when the entry was
// already claimed or is no longer queued; the update is a single conditional row write.
func (s *JobStore) MarkStarted(ctx context.Context, id uint) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&domain.AnalysisQueue{}).
		Where("id = ? AND status = ?", id, domain.SyncStatusInQueue).
		Update("status", domain.SyncStatusStarted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted moves a STARTED entry to COMPLETED.
func (s *JobStore) MarkCompleted(ctx context.Context, id uint) error {
	return s.finish(ctx, id, domain.SyncStatusCompleted, nil)
}

// MarkFailed moves a STARTED entry to FAILED and records the cause.
func (s *JobStore) MarkFailed(ctx context.Context, id uint, cause error) error {
	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}
	return s.finish(ctx, id, domain.SyncStatusFailed, msg)
}

func (s *JobStore) finish(ctx context.Context, id uint, status domain.SyncStatus, msg *string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}
	res := s.DB.WithContext(ctx).Model(&domain.AnalysisQueue{}).
		Where("id = ? AND status = ?", id, domain.SyncStatusStarted).
		Updates(map[string]interface{}{"status": status, "error": msg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: entry %d to %s", ErrInvalidTransition, id, status)
	}
	return nil
}

// FarmResult is everything one analysis writes for a farm.
type FarmResult struct {
	Property domain.FarmProperty
	// Loss holds hectares per year for each tracked canopy density.
	Loss map[domain.CanopyDensity]map[int]float64
}

// SaveFarmResult upserts the farm's property row and yearly loss series. For
// every density present in result.Loss the stored series is made equal to it:
// returned years are upserted, years no longer returned are removed.
func (s *JobStore) SaveFarmResult(ctx context.Context, farmID uuid.UUID, result FarmResult) error {
	for d := range result.Loss {
		if !d.Valid() {
			return &PersistenceError{Op: "yearly loss", Err: fmt.Errorf("untracked canopy density %d", d)}
		}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prop := result.Property
		prop.FarmID = farmID
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "farm_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_area", "primary_forest_area", "tree_cover_extent", "protected_area", "updated_at",
			}),
		}).Create(&prop).Error
		if err != nil {
			return &PersistenceError{Op: "farm property", Err: err}
		}

		for _, density := range domain.CanopyDensities {
			series, ok := result.Loss[density]
			if !ok {
				continue
			}
			rows := make([]domain.YearlyTreeCoverLoss, 0, len(series))
			years := make([]int, 0, len(series))
			for year, value := range series {
				rows = append(rows, domain.YearlyTreeCoverLoss{
					FarmID:        farmID,
					Year:          year,
					CanopyDensity: density,
					Value:         value,
					Source:        "Global Forest Change",
				})
				years = append(years, year)
			}

			stale := tx.Where("farm_id = ? AND canopy_density = ?", farmID, density)
			if len(years) > 0 {
				stale = stale.Where("year NOT IN ?", years)
			}
			if err := stale.Delete(&domain.YearlyTreeCoverLoss{}).Error; err != nil {
				return &PersistenceError{Op: "yearly loss cleanup", Err: err}
			}
			if len(rows) == 0 {
				continue
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "farm_id"}, {Name: "year"}, {Name: "canopy_density"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "source", "updated_at"}),
			}).Create(&rows).Error
			if err != nil {
				return &PersistenceError{Op: "yearly loss", Err: err}
			}
		}
		return nil
	})
}
