package insights

import (
	"fmt"
	"sort"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// ChannelInsight aggregates attributed value and spend for one channel
type ChannelInsight struct {
	Channel            string                 `json:"channel"`
	Rank               int                    `json:"rank"`
	TotalValue         float64                `json:"total_value"`
	TotalCost          float64                `json:"total_cost"`
	ROI                *float64               `json:"roi"`
	ROIUndefined       bool                   `json:"roi_undefined"`
	CostPerValue       float64                `json:"cost_per_attributed_value"`
	TouchpointCount    int                    `json:"touchpoint_count"`
	TouchpointTypes    []types.TouchpointType `json:"touchpoint_types"`
	SalesTouchCount    int                    `json:"sales_touch_count"`
	MarketingTouchOnly int                    `json:"marketing_touch_count"`
}

// roiValue is the ROI or zero when undefined
func (c ChannelInsight) roiValue() float64 {
	if c.ROI == nil {
		return 0
	}
	return *c.ROI
}

// ChannelInsights groups attributed value by channel and ranks channels by
// efficiency. ROI is attributed value over cost; a channel with no cost has
// an undefined ROI and ranks ahead of priced channels when it earned value.
// Attributed ids with no matching touchpoint are ignored.
func ChannelInsights(attributed map[string]float64, touchpoints []types.Touchpoint) []ChannelInsight {
	lookup := make(map[string]types.Touchpoint, len(touchpoints))
	for _, tp := range touchpoints {
		if _, ok := lookup[tp.ID]; !ok {
			lookup[tp.ID] = tp
		}
	}

	byChannel := make(map[string]*ChannelInsight)
	seenTypes := make(map[string]map[types.TouchpointType]struct{})

	for id, value := range attributed {
		tp, ok := lookup[id]
		if !ok {
			continue
		}

		ci, ok := byChannel[tp.Channel]
		if !ok {
			ci = &ChannelInsight{Channel: tp.Channel}
			byChannel[tp.Channel] = ci
			seenTypes[tp.Channel] = make(map[types.TouchpointType]struct{})
		}

		ci.TotalValue += value
		ci.TotalCost += tp.Cost
		ci.TouchpointCount++
		if tp.IsSalesTouch {
			ci.SalesTouchCount++
		} else if tp.IsMarketingTouch {
			ci.MarketingTouchOnly++
		}
		if _, seen := seenTypes[tp.Channel][tp.Type]; !seen && tp.Type != "" {
			seenTypes[tp.Channel][tp.Type] = struct{}{}
			ci.TouchpointTypes = append(ci.TouchpointTypes, tp.Type)
		}
	}

	out := make([]ChannelInsight, 0, len(byChannel))
	for _, ci := range byChannel {
		if ci.TotalCost > 0 {
			roi := ci.TotalValue / ci.TotalCost
			ci.ROI = &roi
			if ci.TotalValue > 0 {
				ci.CostPerValue = ci.TotalCost / ci.TotalValue
			}
		} else {
			ci.ROIUndefined = true
		}
		sort.Slice(ci.TouchpointTypes, func(i, j int) bool {
			return ci.TouchpointTypes[i] < ci.TouchpointTypes[j]
		})
		if ci.TouchpointTypes == nil {
			ci.TouchpointTypes = []types.TouchpointType{}
		}
		out = append(out, *ci)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ai, bi := efficiencyClass(a), efficiencyClass(b); ai != bi {
			return ai < bi
		}
		if a.roiValue() != b.roiValue() {
			return a.roiValue() > b.roiValue()
		}
		if a.TotalValue != b.TotalValue {
			return a.TotalValue > b.TotalValue
		}
		return a.Channel < b.Channel
	})

	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}

// efficiencyClass orders free channels that earned value first, then priced
// channels, then free channels that earned nothing.
func efficiencyClass(c ChannelInsight) int {
	switch {
	case c.ROIUndefined && c.TotalValue > 0:
		return 0
	case !c.ROIUndefined:
		return 1
	default:
		return 2
	}
}

const (
	highVolumeTouchpoints = 10
	highCostThreshold     = 1000.0
)

// ChannelNarrative turns ranked channel insights into short recommendations
func ChannelNarrative(channels []ChannelInsight) []string {
	if len(channels) == 0 {
		return []string{"No channel data available for analysis"}
	}

	var lines []string

	best := channels[0]
	if best.ROIUndefined {
		lines = append(lines, fmt.Sprintf("Best performing channel: %s with %.2f attributed value at no recorded cost", best.Channel, best.TotalValue))
	} else {
		lines = append(lines, fmt.Sprintf("Best performing channel: %s with ROI of %.2f", best.Channel, best.roiValue()))
	}

	if worst := channels[len(channels)-1]; len(channels) > 1 && !worst.ROIUndefined && worst.roiValue() < 1 {
		lines = append(lines, fmt.Sprintf("Consider optimizing %s channel - it returns %.2f per unit of spend", worst.Channel, worst.roiValue()))
	}

	for _, c := range channels {
		if c.ROIUndefined {
			continue
		}
		if c.TouchpointCount > highVolumeTouchpoints && c.roiValue() < 1 {
			lines = append(lines, fmt.Sprintf("%s has high touchpoint volume (%d) but low ROI (%.2f) - opportunity for optimization", c.Channel, c.TouchpointCount, c.roiValue()))
		}
		if c.TotalCost > highCostThreshold && c.roiValue() < 2 {
			lines = append(lines, fmt.Sprintf("%s is a high-cost channel ($%.0f) with moderate ROI (%.2f) - consider cost optimization", c.Channel, c.TotalCost, c.roiValue()))
		}
	}

	return lines
}
