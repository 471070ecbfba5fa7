package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pillar labels the sustainability theme a comment or report belongs to.
type Pillar string

const PillarDeforestation Pillar = "DEFORESTATION"

// Farm is a plot of land located by a GeoJSON Point or Polygon.
type Farm struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FarmerID       uuid.UUID      `gorm:"column:farmer_id;type:uuid;not null;index" json:"farmer_id"`
	Farmer         *Farmer        `gorm:"foreignKey:FarmerID" json:"farmer,omitempty"`
	ExternalID     string         `gorm:"column:external_id;not null" json:"external_id"`
	GeoJSON        datatypes.JSON `gorm:"column:geo_json" json:"geo_json"`
	AnalysisRadius *float64       `gorm:"column:analysis_radius" json:"analysis_radius"`
	Property       *FarmProperty  `gorm:"foreignKey:FarmID" json:"property,omitempty"`
	Address
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Farm) TableName() string {
	return "farms"
}

func (f *Farm) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// FarmProperty holds the area metrics of the latest completed analysis.
// One row per farm; writes are upserts keyed on farm_id.
type FarmProperty struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FarmID            uuid.UUID `gorm:"column:farm_id;type:uuid;not null;uniqueIndex" json:"farm_id"`
	TotalArea         float64   `gorm:"column:total_area;not null;default:0" json:"total_area"`
	PrimaryForestArea float64   `gorm:"column:primary_forest_area;not null;default:0" json:"primary_forest_area"`
	TreeCoverExtent   float64   `gorm:"column:tree_cover_extent;not null;default:0" json:"tree_cover_extent"`
	ProtectedArea     float64   `gorm:"column:protected_area;not null;default:0" json:"protected_area"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (FarmProperty) TableName() string {
	return "farm_properties"
}

func (p *FarmProperty) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// FarmComment is a free-text note attached to a farm under a pillar.
type FarmComment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FarmID    uuid.UUID `gorm:"column:farm_id;type:uuid;not null;index" json:"farm_id"`
	Comment   string    `gorm:"column:comment;type:text;not null" json:"comment"`
	FileURL   *string   `gorm:"column:file_url" json:"file_url"`
	Source    string    `gorm:"column:source;not null" json:"source"`
	Pillar    Pillar    `gorm:"column:pillar;type:varchar(64);not null;index" json:"pillar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FarmComment) TableName() string {
	return "farm_comments"
}

func (c *FarmComment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
