package report

import (
	"context"

	"github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LossAggregate is the sum and row count of matching yearly loss rows.
type LossAggregate struct {
	Sum   float64 `gorm:"column:loss_sum"`
	Count int64   `gorm:"column:loss_count"`
}

// LossCriteria selects yearly loss rows from MinYear onward at one density.
type LossCriteria struct {
	MinYear       int
	CanopyDensity domain.CanopyDensity
}

// CriteriaFor returns the loss criteria a standard is judged on.
func CriteriaFor(s Standard) LossCriteria {
	return LossCriteria{MinYear: s.MinYear, CanopyDensity: s.CanopyDensity}
}

// Repository exposes the typed aggregates reports are built from.
type Repository struct {
	DB *gorm.DB
}

func (r *Repository) lossRows(ctx context.Context, filter farms.Filter, c LossCriteria) *gorm.DB {
	db := r.DB.WithContext(ctx)
	return db.Model(&domain.YearlyTreeCoverLoss{}).
		Where("farm_id IN (?)", filter.FarmIDs(db)).
		Where("year >= ? AND canopy_density = ?", c.MinYear, c.CanopyDensity)
}

// SumCountLoss aggregates the loss rows of the filtered farms matching c.
func (r *Repository) SumCountLoss(ctx context.Context, filter farms.Filter, c LossCriteria) (LossAggregate, error) {
	var agg LossAggregate
	err := r.lossRows(ctx, filter, c).
		Select("COALESCE(SUM(value), 0) AS loss_sum, COUNT(*) AS loss_count").
		Scan(&agg).Error
	return agg, err
}

// LossByFarm returns the summed loss per farm for rows matching c.
func (r *Repository) LossByFarm(ctx context.Context, filter farms.Filter, c LossCriteria) (map[uuid.UUID]float64, error) {
	var rows []struct {
		FarmID uuid.UUID
		Total  float64
	}
	err := r.lossRows(ctx, filter, c).
		Select("farm_id, SUM(value) AS total").
		Group("farm_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]float64, len(rows))
	for _, row := range rows {
		out[row.FarmID] = row.Total
	}
	return out, nil
}

// ProtectedLossFarms counts filtered farms that hold protected area and have
// a non-zero loss sum under c.
func (r *Repository) ProtectedLossFarms(ctx context.Context, filter farms.Filter, c LossCriteria) (int64, error) {
	db := r.DB.WithContext(ctx)
	lossy := r.lossRows(ctx, filter, c).
		Select("farm_id").
		Group("farm_id").
		Having("SUM(value) <> 0")
	var n int64
	err := db.Model(&domain.FarmProperty{}).
		Where("protected_area > 0").
		Where("farm_id IN (?)", lossy).
		Count(&n).Error
	return n, err
}

// CountFarms counts the filtered farms.
func (r *Repository) CountFarms(ctx context.Context, filter farms.Filter) (int64, error) {
	var n int64
	err := filter.Apply(r.DB.WithContext(ctx).Model(&domain.Farm{})).Count(&n).Error
	return n, err
}

// Properties returns the property rows of the filtered farms that have been analysed.
func (r *Repository) Properties(ctx context.Context, filter farms.Filter) ([]domain.FarmProperty, error) {
	db := r.DB.WithContext(ctx)
	var props []domain.FarmProperty
	err := db.Where("farm_id IN (?)", filter.FarmIDs(db)).Find(&props).Error
	return props, err
}

// AnalysedFarms returns filtered farms that have properties, with farmer
// supply chains loaded, ordered by external id.
func (r *Repository) AnalysedFarms(ctx context.Context, filter farms.Filter) ([]domain.Farm, error) {
	db := r.DB.WithContext(ctx)
	var list []domain.Farm
	err := filter.Apply(db.Model(&domain.Farm{})).
		Where("farms.id IN (?)", db.Session(&gorm.Session{NewDB: true}).Table("farm_properties").Select("farm_id")).
		Preload("Property").
		Preload("Farmer.SupplyChains").
		Order("farms.external_id ASC").
		Find(&list).Error
	return list, err
}

// CommentsByFarm groups the comments of farmIDs, newest first. An empty
// pillar matches every pillar.
func (r *Repository) CommentsByFarm(ctx context.Context, farmIDs []uuid.UUID, pillar domain.Pillar) (map[uuid.UUID][]domain.FarmComment, error) {
	out := map[uuid.UUID][]domain.FarmComment{}
	if len(farmIDs) == 0 {
		return out, nil
	}
	q := r.DB.WithContext(ctx).Where("farm_id IN ?", farmIDs)
	if pillar != "" {
		q = q.Where("pillar = ?", pillar)
	}
	var comments []domain.FarmComment
	if err := q.Order("created_at DESC").Find(&comments).Error; err != nil {
		return nil, err
	}
	for _, c := range comments {
		out[c.FarmID] = append(out[c.FarmID], c)
	}
	return out, nil
}
