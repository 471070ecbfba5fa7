package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanopyDensity is the tree-canopy percentage a pixel must reach to count as tree cover.
type CanopyDensity int

const (
	CanopyDensity10 CanopyDensity = 10
	CanopyDensity30 CanopyDensity = 30
)

// CanopyDensities lists every density the analysis computes and stores.
var CanopyDensities = []CanopyDensity{CanopyDensity10, CanopyDensity30}

// Valid reports whether d is one of the tracked densities.
func (d CanopyDensity) Valid() bool {
	return d == CanopyDensity10 || d == CanopyDensity30
}

// YearlyTreeCoverLoss is hectares of tree cover lost on a farm in one year at one density.
// (farm_id, year, canopy_density) is unique; writes are upserts.
type YearlyTreeCoverLoss struct {
	ID            uuid.UUID     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FarmID        uuid.UUID     `gorm:"column:farm_id;type:uuid;not null;uniqueIndex:idx_loss_farm_year_density,priority:1" json:"farm_id"`
	Year          int           `gorm:"column:year;not null;uniqueIndex:idx_loss_farm_year_density,priority:2" json:"year"`
	CanopyDensity CanopyDensity `gorm:"column:canopy_density;not null;uniqueIndex:idx_loss_farm_year_density,priority:3" json:"canopy_density"`
	Value         float64       `gorm:"column:value;not null;default:0" json:"value"`
	Source        string        `gorm:"column:source;not null;default:'Global Forest Change'" json:"source"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (YearlyTreeCoverLoss) TableName() string {
	return "yearly_tree_cover_losses"
}

func (l *YearlyTreeCoverLoss) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
