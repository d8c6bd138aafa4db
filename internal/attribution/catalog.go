package attribution

import (
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// TouchpointTypeInfo describes a touchpoint type and its base weight
type TouchpointTypeInfo struct {
	Type        types.TouchpointType `json:"type"`
	Weight      float64              `json:"weight"`
	Category    string               `json:"category"`
	Description string               `json:"description"`
}

var touchpointCategories = map[types.TouchpointType]string{
	types.TouchpointDemoRequest:       "High Intent",
	types.TouchpointSalesCall:         "High Intent",
	types.TouchpointWebinarAttendance: "Engagement",
	types.TouchpointContentDownload:   "Engagement",
	types.TouchpointTradeShow:         "Engagement",
	types.TouchpointEmailEngagement:   "Nurturing",
	types.TouchpointDirectMail:        "Nurturing",
	types.TouchpointWebsiteVisit:      "Awareness",
	types.TouchpointSocialEngagement:  "Awareness",
	types.TouchpointReferral:          "Referral",
}

var touchpointDescriptions = map[types.TouchpointType]string{
	types.TouchpointDemoRequest:       "High-intent touchpoint indicating strong purchase consideration",
	types.TouchpointSalesCall:         "Direct sales interaction with high conversion potential",
	types.TouchpointWebinarAttendance: "Educational content engagement showing interest",
	types.TouchpointContentDownload:   "Content consumption indicating research behavior",
	types.TouchpointTradeShow:         "In-person event interaction with high engagement value",
	types.TouchpointEmailEngagement:   "Email marketing interaction for nurturing",
	types.TouchpointWebsiteVisit:      "General website interaction for awareness building",
	types.TouchpointSocialEngagement:  "Social media interaction and engagement",
	types.TouchpointDirectMail:        "Physical marketing material interaction",
	types.TouchpointReferral:          "Word-of-mouth or partner referral with highest trust value",
}

// TouchpointTypeWeights lists every known touchpoint type with its configured weight
func (e *Engine) TouchpointTypeWeights() []TouchpointTypeInfo {
	out := make([]TouchpointTypeInfo, 0, len(types.AllTouchpointTypes))
	for _, t := range types.AllTouchpointTypes {
		category, ok := touchpointCategories[t]
		if !ok {
			category = "Other"
		}
		out = append(out, TouchpointTypeInfo{
			Type:        t,
			Weight:      e.typeWeight(t),
			Category:    category,
			Description: touchpointDescriptions[t],
		})
	}
	return out
}

// FactorInfo describes one blended factor
type FactorInfo struct {
	Name          string  `json:"name"`
	DefaultWeight float64 `json:"default_weight"`
	Description   string  `json:"description"`
}

// ModelInfo describes the multi-factor model and the tables behind it
type ModelInfo struct {
	Name                string                         `json:"model_name"`
	Version             string                         `json:"version"`
	Description         string                         `json:"description"`
	Factors             []FactorInfo                   `json:"attribution_factors"`
	DefaultWeights      types.FactorWeights            `json:"default_weights"`
	TierMultipliers     map[types.LeadTier]float64     `json:"lead_quality_multipliers"`
	StageWeights        map[types.StageType]float64    `json:"stage_progression_weights"`
	DealSizeMultipliers map[types.DealSizeTier]float64 `json:"deal_size_multipliers"`
	ExpectedCycleDays   map[types.DealSizeTier]int     `json:"expected_cycle_days"`
	DefaultCycleDays    int                            `json:"default_cycle_days"`
	MinHalfLifeDays     float64                        `json:"min_half_life_days"`
	LookbackDays        int                            `json:"lookback_days"`
	ClassicModels       []Model                        `json:"classic_models"`
	DataRequirements    map[string][]string            `json:"data_requirements"`
}

// ModelVersion is reported by ModelInfo
const ModelVersion = "1.0.0"

// ModelInfo reports the engine's configuration for introspection
func (e *Engine) ModelInfo() ModelInfo {
	w := e.cfg.DefaultWeights
	return ModelInfo{
		Name:        "B2B Marketing Attribution Engine",
		Version:     ModelVersion,
		Description: "Five-factor attribution for long B2B sales cycles and account-based marketing",
		Factors: []FactorInfo{
			{Name: "time_decay", DefaultWeight: w.Time, Description: "Exponential decay with a half-life scaled to the sales cycle"},
			{Name: "lead_quality", DefaultWeight: w.Quality, Description: "Touchpoint type weight times the lead's quality tier multiplier"},
			{Name: "account_based", DefaultWeight: w.Account, Description: "Deal size, account complexity, buying committee and cycle length"},
			{Name: "stage_progression", DefaultWeight: w.Stage, Description: "Funnel stage the touchpoint influenced"},
			{Name: "velocity_bonus", DefaultWeight: w.Velocity, Description: "Bonus for deals that closed faster than expected, penalty for slow ones"},
		},
		DefaultWeights:      w,
		TierMultipliers:     e.cfg.TierMultipliers,
		StageWeights:        e.cfg.StageWeights,
		DealSizeMultipliers: e.cfg.DealSizeMultipliers,
		ExpectedCycleDays:   e.cfg.ExpectedCycleDays,
		DefaultCycleDays:    e.cfg.DefaultCycleDays,
		MinHalfLifeDays:     e.cfg.MinHalfLifeDays,
		LookbackDays:        e.cfg.LookbackDays,
		ClassicModels:       AvailableModels(),
		DataRequirements: map[string][]string{
			"leads":         {"lead_id", "lead_score", "lead_quality_tier"},
			"opportunities": {"opportunity_id", "amount", "sales_cycle_days", "deal_size_tier", "decision_makers_count", "influencers_count", "close_date"},
			"touchpoints":   {"touchpoint_id", "timestamp", "touchpoint_type", "channel", "stage_influence", "cost", "is_sales_touch", "is_marketing_touch"},
		},
	}
}
