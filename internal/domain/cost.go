package domain

import "math"

// DefaultCostPerSecond is the price used when no rate is configured.
const DefaultCostPerSecond = 1.5

// CostEstimate totals the expected spend of the selected requests.
type CostEstimate struct {
	TotalSelected int     `json:"total_selected"`
	TotalDuration float64 `json:"total_duration"`
	TotalCost     float64 `json:"total_cost"`
}

// EstimateCost prices selected requests at perSecond. Durations are the
// requested ones, before snapping to legal values.
func EstimateCost(requests []GenerationRequest, perSecond float64) CostEstimate {
	if perSecond <= 0 {
		perSecond = DefaultCostPerSecond
	}
	var est CostEstimate
	for _, req := range requests {
		if !req.Selected {
			continue
		}
		est.TotalSelected++
		if req.Duration > 0 {
			est.TotalDuration += req.Duration
		}
	}
	est.TotalCost = round2(est.TotalDuration * perSecond)
	est.TotalDuration = math.Round(est.TotalDuration*10) / 10
	return est
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
