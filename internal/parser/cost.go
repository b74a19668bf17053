package parser

import (
	"math"
	"strings"
)

// Per-million-token USD rates. Cache reads are cheap, cache writes carry a
// premium over plain input.
type rate struct {
	input       float64
	output      float64
	cacheRead   float64
	cacheCreate float64
}

var modelRates = []struct {
	match string
	rate  rate
}{
	{"opus", rate{15.0, 75.0, 1.50, 18.75}},
	{"sonnet", rate{3.0, 15.0, 0.30, 3.75}},
}

var defaultRate = rate{0.80, 4.0, 0.08, 1.0}

// DefaultCostModel prices aggregate totals that span sessions with mixed or
// unknown models. Rollups assume the flagship tier rather than the cheapest.
const DefaultCostModel = "claude-opus-4-6"

// EstimateCost approximates the USD cost of a session from its token totals
// and model name, rounded to cents.
func EstimateCost(model string, input, output, cacheRead, cacheCreate int64) float64 {
	r := defaultRate
	lower := strings.ToLower(model)
	for _, m := range modelRates {
		if strings.Contains(lower, m.match) {
			r = m.rate
			break
		}
	}
	cost := float64(input)/1e6*r.input +
		float64(output)/1e6*r.output +
		float64(cacheRead)/1e6*r.cacheRead +
		float64(cacheCreate)/1e6*r.cacheCreate
	return math.Round(cost*100) / 100
}
