package forest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Fairfood/Navigate-Server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const polygon = `{"type":"Polygon","coordinates":[[[0,0],[0.001,0],[0.001,0.001],[0,0]]]}`

func TestParseMetrics_YearKeyed(t *testing.T) {
	m, err := ParseMetrics([]byte(`{
		"total_area_ha": 1.1,
		"tree_cover_extent_ha": 12.5,
		"primary_forest_area_ha": 1.0,
		"protected_area_ha": 0,
		"yearly_loss": {"2022": 0.3, "2015": 0.05}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 12.5, m.TreeCoverExtentHa)
	assert.Equal(t, 1.0, m.PrimaryForestAreaHa)
	assert.Equal(t, map[int]float64{2022: 0.3, 2015: 0.05}, m.YearlyLoss)
}

func TestParseMetrics_EarthEngineGroups(t *testing.T) {
	m, err := ParseMetrics([]byte(`{
		"tree_cover_extent_ha": 3,
		"yearly_loss": {"groups": [{"lossyear": 5, "sum": 0.2}, {"lossyear": 21, "sum": 0.1}]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{2005: 0.2, 2021: 0.1}, m.YearlyLoss)
	assert.Equal(t, 0.0, m.ProtectedAreaHa)
}

func TestParseMetrics_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `{"total_area_ha":`,
		"string area":    `{"total_area_ha":"big"}`,
		"negative area":  `{"protected_area_ha":-1}`,
		"bad year":       `{"yearly_loss":{"last":1}}`,
		"bad group":      `{"yearly_loss":{"groups":[{"lossyear":"x","sum":1}]}}`,
		"loss array":     `{"yearly_loss":[1,2]}`,
		"negative loss":  `{"yearly_loss":{"2021":0.3,"2022":-0.3}}`,
		"negative group": `{"yearly_loss":{"groups":[{"lossyear":21,"sum":-1.5}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMetrics([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestMetrics_Validate(t *testing.T) {
	assert.NoError(t, (&Metrics{TotalAreaHa: 1, YearlyLoss: map[int]float64{2021: 0, 2022: 0.4}}).Validate())
	assert.Error(t, (*Metrics)(nil).Validate())
	assert.Error(t, (&Metrics{YearlyLoss: map[int]float64{2021: 0.3, 2022: -0.3}}).Validate())
	assert.Error(t, (&Metrics{ProtectedAreaHa: math.NaN()}).Validate())
	assert.Error(t, (&Metrics{TreeCoverExtentHa: math.Inf(1)}).Validate())
}

func TestHTTPProvider_ComputeMetrics(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forest-metrics", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tree_cover_extent_ha": 2.5, "yearly_loss": {"2020": 0.4}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", "secret", time.Second)
	m, err := p.ComputeMetrics(context.Background(), []byte(polygon), domain.CanopyDensity30)
	require.NoError(t, err)
	assert.Equal(t, 2.5, m.TreeCoverExtentHa)
	assert.Equal(t, map[int]float64{2020: 0.4}, m.YearlyLoss)
	assert.Equal(t, float64(30), got["canopy_density"])
	assert.Equal(t, "Polygon", got["geometry"].(map[string]interface{})["type"])
}

func TestHTTPProvider_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", time.Second)
	_, err := p.ComputeMetrics(context.Background(), []byte(polygon), domain.CanopyDensity10)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.CanopyDensity10, perr.Density)
	assert.Contains(t, err.Error(), "429")

	_, err = p.ComputeMetrics(context.Background(), []byte(polygon), domain.CanopyDensity(50))
	assert.True(t, errors.As(err, &perr))

	_, err = NewHTTPProvider("", "", 0).ComputeMetrics(context.Background(), []byte(polygon), domain.CanopyDensity30)
	assert.True(t, errors.As(err, &perr))
}
