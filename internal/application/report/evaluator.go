package report

import (
	"context"

	"github.com/Fairfood/Navigate-Server/internal/application/farms"
)

// StandardResult is the verdict of one standard over a farm set.
type StandardResult struct {
	Standard Standard `json:"standard"`
	Sum      float64  `json:"sum"`
	Count    int64    `json:"count"`
	Passed   bool     `json:"passed"`
}

// Evaluation holds every standard's verdict in table order.
type Evaluation struct {
	Results []StandardResult `json:"results"`
	Passed  bool             `json:"passed"`
}

// Judge applies the pass rule: the summed loss must be exactly zero. Count is
// informational only.
func Judge(s Standard, agg LossAggregate) StandardResult {
	return StandardResult{
		Standard: s,
		Sum:      agg.Sum,
		Count:    agg.Count,
		Passed:   agg.Sum == 0,
	}
}

// Overall is the conjunction of every result.
func Overall(results []StandardResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// LossAggregator is the aggregate the evaluator needs from storage.
type LossAggregator interface {
	SumCountLoss(ctx context.Context, filter farms.Filter, c LossCriteria) (LossAggregate, error)
}

// Evaluator judges a farm set against the fixed standards.
type Evaluator struct {
	Loss LossAggregator
}

// EvaluateStandard judges the filtered farms against one standard.
func (e *Evaluator) EvaluateStandard(ctx context.Context, filter farms.Filter, s Standard) (StandardResult, error) {
	agg, err := e.Loss.SumCountLoss(ctx, filter, CriteriaFor(s))
	if err != nil {
		return StandardResult{}, err
	}
	return Judge(s, agg), nil
}

// Evaluate judges the filtered farms against every standard.
func (e *Evaluator) Evaluate(ctx context.Context, filter farms.Filter) (*Evaluation, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	ev := &Evaluation{Results: make([]StandardResult, 0, len(Standards))}
	for _, s := range Standards {
		res, err := e.EvaluateStandard(ctx, filter, s)
		if err != nil {
			return nil, err
		}
		ev.Results = append(ev.Results, res)
	}
	ev.Passed = Overall(ev.Results)
	return ev, nil
}
