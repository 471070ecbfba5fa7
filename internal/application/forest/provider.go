package forest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Fairfood/Navigate-Server/internal/domain"
)

// Metrics is what the geospatial provider reports for one polygon at one canopy density.
// Areas are hectares; YearlyLoss maps a calendar year to hectares of tree cover lost.
type Metrics struct {
	TotalAreaHa         float64         `json:"total_area_ha"`
	TreeCoverExtentHa   float64         `json:"tree_cover_extent_ha"`
	PrimaryForestAreaHa float64         `json:"primary_forest_area_ha"`
	ProtectedAreaHa     float64         `json:"protected_area_ha"`
	YearlyLoss          map[int]float64 `json:"yearly_loss"`
}

// Validate rejects negative or non-finite areas and losses. A negative yearly
// loss would cancel real loss in a standard's sum.
func (m *Metrics) Validate() error {
	if m == nil {
		return errors.New("malformed response: empty metrics")
	}
	for name, v := range map[string]float64{
		"total_area_ha":          m.TotalAreaHa,
		"tree_cover_extent_ha":   m.TreeCoverExtentHa,
		"primary_forest_area_ha": m.PrimaryForestAreaHa,
		"protected_area_ha":      m.ProtectedAreaHa,
	} {
		if !validAmount(v) {
			return fmt.Errorf("malformed response: %s is %v", name, v)
		}
	}
	for year, v := range m.YearlyLoss {
		if !validAmount(v) {
			return fmt.Errorf("malformed response: loss %v for %d", v, year)
		}
	}
	return nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// MetricsProvider computes forest metrics for a GeoJSON polygon.
// Implementations are stateless; callers own retries and failure isolation.
type MetricsProvider interface {
	ComputeMetrics(ctx context.Context, polygon []byte, density domain.CanopyDensity) (*Metrics, error)
}

// ProviderError wraps a failed or malformed provider call.
type ProviderError struct {
	Density domain.CanopyDensity
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("forest metrics provider (canopy density %d): %v", e.Density, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
