package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Address is embedded by every located node (company, farmer, farm).
type Address struct {
	Street  string `gorm:"column:street" json:"street"`
	City    string `gorm:"column:city" json:"city"`
	State   string `gorm:"column:state;index" json:"state"`
	Country string `gorm:"column:country;index" json:"country"`
	ZipCode string `gorm:"column:zip_code" json:"zip_code"`
}

// SupplyChain is a commodity chain (cocoa, coffee, ...).
type SupplyChain struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	ImageURL  *string   `gorm:"column:image_url" json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SupplyChain) TableName() string {
	return "supply_chains"
}

func (s *SupplyChain) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Company is the tenant every farm ultimately belongs to.
type Company struct {
	ID           uuid.UUID     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name         string        `gorm:"column:name;not null" json:"name"`
	ImageURL     *string       `gorm:"column:image_url" json:"image_url"`
	SSOID        *string       `gorm:"column:sso_id" json:"sso_id"`
	SupplyChains []SupplyChain `gorm:"many2many:company_supply_chains" json:"supply_chains,omitempty"`
	Address
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Company) TableName() string {
	return "companies"
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Farmer owns farms and is linked to the supply chains it delivers into.
type Farmer struct {
	ID           uuid.UUID     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ExternalID   *string       `gorm:"column:external_id" json:"external_id"`
	Name         string        `gorm:"column:name;not null" json:"name"`
	CompanyID    uuid.UUID     `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	SupplyChains []SupplyChain `gorm:"many2many:farmer_supply_chains" json:"supply_chains,omitempty"`
	Address
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Farmer) TableName() string {
	return "farmers"
}

func (f *Farmer) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Batch groups farmers whose produce moved together through a supply chain.
type Batch struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ExternalID    string    `gorm:"column:external_id;not null" json:"external_id"`
	SupplyChainID uuid.UUID `gorm:"column:supply_chain_id;type:uuid;not null;index" json:"supply_chain_id"`
	Farmers       []Farmer  `gorm:"many2many:batch_farmers" json:"farmers,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Batch) TableName() string {
	return "batches"
}

func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
