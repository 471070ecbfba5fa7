package farms

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrCompanyRequired is returned when a query is not scoped to a company.
	ErrCompanyRequired = errors.New("company id is required")
	// ErrNotFound is returned when a farm, farmer or comment is not visible to the company.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput wraps field validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// Filter narrows a farm set. CompanyID is mandatory; every other field is an
// optional equality or membership constraint.
type Filter struct {
	CompanyID     uuid.UUID
	Country       string
	State         string
	FarmerID      *uuid.UUID
	SupplyChainID *uuid.UUID
	BatchID       *uuid.UUID
}

// Validate checks the filter is tenant scoped.
func (f Filter) Validate() error {
	if f.CompanyID == uuid.Nil {
		return ErrCompanyRequired
	}
	return nil
}

// Apply adds the filter's constraints to a query over the farms table.
func (f Filter) Apply(q *gorm.DB) *gorm.DB {
	q = q.Where("farms.farmer_id IN (?)",
		q.Session(&gorm.Session{NewDB: true}).Table("farmers").Select("id").Where("company_id = ?", f.CompanyID))
	if f.Country != "" {
		q = q.Where("farms.country = ?", f.Country)
	}
	if f.State != "" {
		q = q.Where("farms.state = ?", f.State)
	}
	if f.FarmerID != nil {
		q = q.Where("farms.farmer_id = ?", *f.FarmerID)
	}
	if f.SupplyChainID != nil {
		q = q.Where("farms.farmer_id IN (?)",
			q.Session(&gorm.Session{NewDB: true}).Table("farmer_supply_chains").Select("farmer_id").Where("supply_chain_id = ?", *f.SupplyChainID))
	}
	if f.BatchID != nil {
		q = q.Where("farms.farmer_id IN (?)",
			q.Session(&gorm.Session{NewDB: true}).Table("batch_farmers").Select("farmer_id").Where("batch_id = ?", *f.BatchID))
	}
	return q
}

// FarmIDs returns a subquery selecting the ids of every farm matching f.
func (f Filter) FarmIDs(db *gorm.DB) *gorm.DB {
	return f.Apply(db.Session(&gorm.Session{NewDB: true}).Table("farms").Select("farms.id"))
}

// FilterFromQuery builds a Filter for companyID from request parameters
// country, state, farmer, supply_chain and batch.
func FilterFromQuery(companyID uuid.UUID, get func(key string) string) (Filter, error) {
	f := Filter{CompanyID: companyID, Country: get("country"), State: get("state")}
	for key, dst := range map[string]**uuid.UUID{
		"farmer":       &f.FarmerID,
		"supply_chain": &f.SupplyChainID,
		"batch":        &f.BatchID,
	} {
		raw := get(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid %s id %q", key, raw)
		}
		*dst = &id
	}
	return f, f.Validate()
}
