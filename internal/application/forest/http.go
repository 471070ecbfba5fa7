package forest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Fairfood/Navigate-Server/internal/domain"

	"github.com/tidwall/gjson"
)

// HTTPProvider is a MetricsProvider backed by the geospatial analysis service.
// Create one per process and share it across jobs.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPProvider returns a provider with its own client and timeout.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

var requiredAreaFields = []string{
	"total_area_ha",
	"tree_cover_extent_ha",
	"primary_forest_area_ha",
	"protected_area_ha",
}

// ComputeMetrics POSTs the polygon and density to /v1/forest-metrics.
func (p *HTTPProvider) ComputeMetrics(ctx context.Context, polygon []byte, density domain.CanopyDensity) (*Metrics, error) {
	wrap := func(err error) error { return &ProviderError{Density: density, Err: err} }

	if p.BaseURL == "" {
		return nil, wrap(errors.New("PROVIDER_URL is not set"))
	}
	if !density.Valid() {
		return nil, wrap(fmt.Errorf("unsupported canopy density %d", density))
	}

	body, err := json.Marshal(map[string]interface{}{
		"geometry":       json.RawMessage(polygon),
		"canopy_density": int(density),
	})
	if err != nil {
		return nil, wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/forest-metrics", bytes.NewReader(body))
	if err != nil {
		return nil, wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, wrap(fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrap(fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, wrap(fmt.Errorf("status %d body: %s", resp.StatusCode, string(respBody)))
	}
	m, err := ParseMetrics(respBody)
	if err != nil {
		return nil, wrap(err)
	}
	return m, nil
}

// ParseMetrics decodes a provider response. yearly_loss is either an object keyed
// by year ({"2022": 0.3}) or Earth Engine grouped output
// ({"groups": [{"lossyear": 22, "sum": 0.3}]}, lossyear counted from 2000).
func ParseMetrics(body []byte) (*Metrics, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("malformed response: invalid JSON")
	}
	doc := gjson.ParseBytes(body)

	areas := make([]float64, len(requiredAreaFields))
	for i, field := range requiredAreaFields {
		v := doc.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			areas[i] = 0
			continue
		}
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("malformed response: %s is not a number", field)
		}
		if v.Float() < 0 {
			return nil, fmt.Errorf("malformed response: %s is negative", field)
		}
		areas[i] = v.Float()
	}

	loss, err := parseYearlyLoss(doc.Get("yearly_loss"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		TotalAreaHa:         areas[0],
		TreeCoverExtentHa:   areas[1],
		PrimaryForestAreaHa: areas[2],
		ProtectedAreaHa:     areas[3],
		YearlyLoss:          loss,
	}, nil
}

func parseYearlyLoss(v gjson.Result) (map[int]float64, error) {
	loss := map[int]float64{}
	if !v.Exists() || v.Type == gjson.Null {
		return loss, nil
	}
	if !v.IsObject() {
		return nil, errors.New("malformed response: yearly_loss is not an object")
	}

	var err error
	if groups := v.Get("groups"); groups.Exists() {
		groups.ForEach(func(_, g gjson.Result) bool {
			ly, sum := g.Get("lossyear"), g.Get("sum")
			if ly.Type != gjson.Number || sum.Type != gjson.Number {
				err = errors.New("malformed response: loss group needs numeric lossyear and sum")
				return false
			}
			if sum.Float() < 0 {
				err = fmt.Errorf("malformed response: negative loss %v for lossyear %d", sum.Float(), ly.Int())
				return false
			}
			year := int(ly.Int())
			if year < 100 {
				year += 2000
			}
			loss[year] += sum.Float()
			return true
		})
		return loss, err
	}

	v.ForEach(func(k, val gjson.Result) bool {
		year, convErr := strconv.Atoi(k.String())
		if convErr != nil || val.Type != gjson.Number {
			err = fmt.Errorf("malformed response: yearly_loss entry %q", k.String())
			return false
		}
		if val.Float() < 0 {
			err = fmt.Errorf("malformed response: negative loss %v for %d", val.Float(), year)
			return false
		}
		loss[year] = val.Float()
		return true
	})
	return loss, err
}
