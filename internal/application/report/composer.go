package report

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/domain"

	"github.com/google/uuid"
)

const (
	StatusAcceptable    = "Acceptable"
	StatusNotAcceptable = "Not Acceptable"

	RowLossArea        = "Tree cover loss area"
	RowLossEvents      = "Tree cover loss events"
	RowProtectedEvents = "Forest loss in protected area event"
)

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent is 100*num/den clamped to [0, 100]; 0 when den is 0.
func percent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return math.Max(0, math.Min(100, 100*num/den))
}

// Index is one headline figure of the stats card.
type Index struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

type Stats struct {
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	FarmCount          int64   `json:"farm_count"`
	TreeCoverExtentPct float64 `json:"tree_cover_extent_pct"`
	PrimaryForestPct   float64 `json:"primary_forest_pct"`
	ProtectedAreaPct   float64 `json:"protected_area_pct"`
	TotalHectares      float64 `json:"total_hectares"`
	Indexes            []Index `json:"indexes"`
}

// Column heads the compliance matrix.
type Column struct {
	ID   int         `json:"id"`
	Key  StandardKey `json:"key,omitempty"`
	Name string      `json:"name"`
	Info string      `json:"info,omitempty"`
}

// MatrixRow holds one criterion's value per standard, in column order.
type MatrixRow struct {
	ID       int       `json:"id"`
	Criteria string    `json:"criteria"`
	Values   []float64 `json:"values"`
	Status   string    `json:"status"`
}

type ComplianceReport struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Head        []Column         `json:"head"`
	Rows        []MatrixRow      `json:"rows"`
	Standards   []StandardResult `json:"standards"`
	Passed      bool             `json:"passed"`
}

type DetailComment struct {
	ID        uuid.UUID `json:"id"`
	Comment   string    `json:"comment"`
	Source    string    `json:"source"`
	FileURL   *string   `json:"file_url,omitempty"`
	CreatedAt string    `json:"created_at"`
}

type DetailRow struct {
	FarmID          uuid.UUID       `json:"farm_id"`
	PolygonID       string          `json:"polygon_id"`
	Commodity       string          `json:"commodity"`
	AreaHa          float64         `json:"area_ha"`
	TreeCoverLossHa float64         `json:"tree_cover_loss_ha"`
	Province        string          `json:"province"`
	Country         string          `json:"country"`
	CommentCount    int             `json:"comment_count"`
	Comments        []DetailComment `json:"comments"`
}

type DetailReport struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Standard    *StandardKey  `json:"standard"`
	Methods     []StandardKey `json:"methods"`
	Head        []string      `json:"head"`
	Rows        []DetailRow   `json:"rows"`
}

// Composer builds report payloads for a filtered farm set.
type Composer struct {
	Repo      *Repository
	Evaluator *Evaluator
}

// NewComposer wires a composer and its evaluator on repo.
func NewComposer(repo *Repository) *Composer {
	return &Composer{Repo: repo, Evaluator: &Evaluator{Loss: repo}}
}

// Stats returns the headline figures. Percentages are per-farm shares of
// total area, averaged over analysed farms.
func (c *Composer) Stats(ctx context.Context, filter farms.Filter) (*Stats, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	count, err := c.Repo.CountFarms(ctx, filter)
	if err != nil {
		return nil, err
	}
	props, err := c.Repo.Properties(ctx, filter)
	if err != nil {
		return nil, err
	}

	var extent, primary, protected, hectares float64
	for _, p := range props {
		extent += percent(p.TreeCoverExtent, p.TotalArea)
		primary += percent(p.PrimaryForestArea, p.TotalArea)
		protected += percent(p.ProtectedArea, p.TotalArea)
		hectares += p.TotalArea
	}
	if n := float64(len(props)); n > 0 {
		extent, primary, protected = extent/n, primary/n, protected/n
	}

	s := &Stats{
		Title: "Deforestation assessment",
		Description: fmt.Sprintf("Based on analyzing %d polygon areas. Estimates for overall loss and loss by "+
			"category (e.g. primary forest, protected areas) are based on Hansen et al using tree cover "+
			"extent from 2000 and Landsat satellite imagery.", count),
		FarmCount:          count,
		TreeCoverExtentPct: round2(extent),
		PrimaryForestPct:   round2(primary),
		ProtectedAreaPct:   round2(protected),
		TotalHectares:      round2(hectares),
	}
	s.Indexes = []Index{
		{Name: "Number of locations", Value: float64(s.FarmCount)},
		{Name: "Tree Cover Extent", Value: s.TreeCoverExtentPct, Unit: "%"},
		{Name: "Primary Forest", Value: s.PrimaryForestPct, Unit: "%"},
		{Name: "Protected Area", Value: s.ProtectedAreaPct, Unit: "%"},
		{Name: "Total Hectares", Value: s.TotalHectares, Unit: "ha"},
	}
	return s, nil
}

// Compliance returns the criteria by standard matrix.
func (c *Composer) Compliance(ctx context.Context, filter farms.Filter) (*ComplianceReport, error) {
	ev, err := c.Evaluator.Evaluate(ctx, filter)
	if err != nil {
		return nil, err
	}

	head := []Column{{ID: 1, Name: "Criteria"}}
	area := make([]float64, 0, len(Standards))
	events := make([]float64, 0, len(Standards))
	protected := make([]float64, 0, len(Standards))
	for i, res := range ev.Results {
		s := res.Standard
		head = append(head, Column{ID: i + 2, Key: s.Key, Name: s.Name, Info: s.Info})
		n, err := c.Repo.ProtectedLossFarms(ctx, filter, CriteriaFor(s))
		if err != nil {
			return nil, err
		}
		area = append(area, round2(res.Sum))
		events = append(events, float64(res.Count))
		protected = append(protected, float64(n))
		ev.Results[i].Sum = round2(res.Sum)
	}

	return &ComplianceReport{
		Title: "Summary of deforestation",
		Description: "Risk assessment measures tree cover loss inside a buffered area around each farm " +
			"and loss inside protected areas, following the EUDR, Fairtrade and Rainforest Alliance criteria.",
		Head: head,
		Rows: []MatrixRow{
			matrixRow(1, RowLossArea, area),
			matrixRow(2, RowLossEvents, events),
			matrixRow(3, RowProtectedEvents, protected),
		},
		Standards: ev.Results,
		Passed:    ev.Passed,
	}, nil
}

func matrixRow(id int, criteria string, values []float64) MatrixRow {
	status := StatusAcceptable
	for _, v := range values {
		if v != 0 {
			status = StatusNotAcceptable
			break
		}
	}
	return MatrixRow{ID: id, Criteria: criteria, Values: values, Status: status}
}

// Detail lists analysed farms with their loss and the comments filed under
// label. With an empty standard, loss is every density-10 row; otherwise only
// rows matching the standard count.
func (c *Composer) Detail(ctx context.Context, filter farms.Filter, standard string, label domain.Pillar) (*DetailReport, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	criteria := LossCriteria{MinYear: 0, CanopyDensity: domain.CanopyDensity10}
	var key *StandardKey
	if strings.TrimSpace(standard) != "" {
		s, err := LookupStandard(standard)
		if err != nil {
			return nil, err
		}
		criteria = CriteriaFor(s)
		key = &s.Key
	}
	if label == "" {
		label = domain.PillarDeforestation
	}

	list, err := c.Repo.AnalysedFarms(ctx, filter)
	if err != nil {
		return nil, err
	}
	loss, err := c.Repo.LossByFarm(ctx, filter, criteria)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, f := range list {
		ids = append(ids, f.ID)
	}
	comments, err := c.Repo.CommentsByFarm(ctx, ids, label)
	if err != nil {
		return nil, err
	}

	rows := make([]DetailRow, 0, len(list))
	for _, f := range list {
		row := DetailRow{
			FarmID:          f.ID,
			PolygonID:       f.ExternalID,
			Commodity:       commodity(f.Farmer),
			TreeCoverLossHa: round2(loss[f.ID]),
			Province:        f.State,
			Country:         f.Country,
			Comments:        []DetailComment{},
		}
		if f.Property != nil {
			row.AreaHa = round2(f.Property.TotalArea)
		}
		for _, cm := range comments[f.ID] {
			row.Comments = append(row.Comments, DetailComment{
				ID:        cm.ID,
				Comment:   cm.Comment,
				Source:    cm.Source,
				FileURL:   cm.FileURL,
				CreatedAt: cm.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		row.CommentCount = len(row.Comments)
		rows = append(rows, row)
	}

	return &DetailReport{
		Title: "Tree cover loss events",
		Description: "Tree cover loss events describe the reduction of tree canopy due to factors like " +
			"deforestation, natural disasters, urban development and illegal logging.",
		Standard: key,
		Methods:  StandardKeys(),
		Head:     []string{"Polygon ID", "Commodity", "Size (Ha)", "Tree cover loss (Ha)", "Province", "Country", "Note"},
		Rows:     rows,
	}, nil
}

func commodity(f *domain.Farmer) string {
	if f == nil {
		return ""
	}
	names := make([]string, 0, len(f.SupplyChains))
	for _, sc := range f.SupplyChains {
		names = append(names, sc.Name)
	}
	return strings.Join(names, ", ")
}
