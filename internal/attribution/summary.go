package attribution

import "sort"

// TouchpointShare is a touchpoint's value and its percentage of the total
type TouchpointShare struct {
	TouchpointID string  `json:"touchpoint_id"`
	Value        float64 `json:"attribution_value"`
	Percentage   float64 `json:"percentage"`
}

// Summary condenses an attribution distribution
type Summary struct {
	TotalValue      float64           `json:"total_attribution_value"`
	TouchpointCount int               `json:"touchpoint_count"`
	Average         float64           `json:"average_attribution_per_touchpoint"`
	TopTouchpoints  []TouchpointShare `json:"top_contributing_touchpoints"`
	Top20Percent    float64           `json:"top_20_percent"`
	Bottom20Percent float64           `json:"bottom_20_percent"`
}

const summaryTopN = 5

// Summarize reports totals, the top five touchpoints, and how much value the
// top and bottom fifth of touchpoints hold.
func Summarize(values map[string]float64) Summary {
	summary := Summary{TopTouchpoints: []TouchpointShare{}}
	if len(values) == 0 {
		return summary
	}

	ranked := make([]TouchpointShare, 0, len(values))
	for id, v := range values {
		ranked = append(ranked, TouchpointShare{TouchpointID: id, Value: v})
		summary.TotalValue += v
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].TouchpointID < ranked[j].TouchpointID
	})

	n := len(ranked)
	summary.TouchpointCount = n
	summary.Average = summary.TotalValue / float64(n)

	for i := range ranked {
		if summary.TotalValue > 0 {
			ranked[i].Percentage = ranked[i].Value / summary.TotalValue * 100
		}
	}

	top := ranked
	if len(top) > summaryTopN {
		top = top[:summaryTopN]
	}
	summary.TopTouchpoints = append(summary.TopTouchpoints, top...)

	fifth := n / 5
	if fifth < 1 {
		fifth = 1
	}
	for _, s := range ranked[:fifth] {
		summary.Top20Percent += s.Value
	}
	for _, s := range ranked[n-fifth:] {
		summary.Bottom20Percent += s.Value
	}

	return summary
}
