package attribution

import (
	"fmt"
	"math"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// Credit is one touchpoint's share of a conversion
type Credit struct {
	TouchpointID string               `json:"touchpoint_id"`
	Channel      string               `json:"channel"`
	Type         types.TouchpointType `json:"touchpoint_type"`
	Value        float64              `json:"value"`
	Share        float64              `json:"share"`
	RawScore     float64              `json:"raw_score"`
	Factors      FactorScores         `json:"factors"`
}

// Result is the attribution of a single opportunity
type Result struct {
	OpportunityID   string              `json:"opportunity_id"`
	ConversionValue float64             `json:"conversion_value"`
	ConversionDate  time.Time           `json:"conversion_date"`
	Method          string              `json:"method"`
	Weights         types.FactorWeights `json:"weights"`
	HalfLifeDays    float64             `json:"half_life_days"`
	Credits         []Credit            `json:"attribution"`
	Dropped         []Dropped           `json:"dropped,omitempty"`
}

// Values maps touchpoint id to attributed value
func (r *Result) Values() map[string]float64 {
	out := make(map[string]float64, len(r.Credits))
	for _, c := range r.Credits {
		out[c.TouchpointID] = c.Value
	}
	return out
}

// Engine computes five-factor B2B attribution. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	cfg          ModelConfig
	preprocessor *Preprocessor
}

// NewEngine creates an engine over the given tables. Unset tables fall back
// to DefaultModelConfig.
func NewEngine(cfg ModelConfig) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:          cfg,
		preprocessor: NewPreprocessor(time.Duration(cfg.LookbackDays) * 24 * time.Hour),
	}
}

// Config returns the tables the engine was built with
func (e *Engine) Config() ModelConfig {
	return e.cfg
}

// DefaultWeights returns the engine's configured default blend
func (e *Engine) DefaultWeights() types.FactorWeights {
	return e.cfg.DefaultWeights
}

// ComputeAttribution returns touchpoint id -> attributed value, summing to the opportunity amount
func (e *Engine) ComputeAttribution(touchpoints []types.Touchpoint, leads []types.Lead, opp types.Opportunity, w types.FactorWeights) (map[string]float64, error) {
	result, err := e.Attribute(touchpoints, leads, opp, w)
	if err != nil {
		return nil, err
	}
	return result.Values(), nil
}

// Attribute runs the full pipeline for one opportunity and keeps the per-factor breakdown
func (e *Engine) Attribute(touchpoints []types.Touchpoint, leads []types.Lead, opp types.Opportunity, w types.FactorWeights) (*Result, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	if err := validateOpportunity(opp); err != nil {
		return nil, err
	}

	return e.attribute(touchpoints, LeadIndex(leads), opp, w), nil
}

func (e *Engine) attribute(touchpoints []types.Touchpoint, leads map[string]types.Lead, opp types.Opportunity, w types.FactorWeights) *Result {
	conversion := opp.ConversionDate()
	// unknown cycles fall back to the default cycle inside HalfLife
	cycleDays := opp.SalesCycleDays

	eligible, dropped := e.preprocessor.Process(touchpoints, conversion)

	result := &Result{
		OpportunityID:   opp.ID,
		ConversionValue: opp.Amount,
		ConversionDate:  conversion,
		Weights:         w,
		HalfLifeDays:    e.HalfLife(cycleDays),
		Credits:         []Credit{},
		Dropped:         dropped,
	}

	if len(eligible) == 0 {
		result.Method = MethodUnattributed
		return result
	}

	timeF := e.timeFactors(eligible, conversion, cycleDays)
	qualityF := e.qualityFactors(eligible, leads)
	accountF := e.accountFactors(eligible, opp)
	stageF := e.stageFactors(eligible)
	velocity := e.VelocityFactor(opp)

	scores := make([]FactorScores, len(eligible))
	for i := range eligible {
		scores[i] = FactorScores{
			Time:     timeF[i],
			Quality:  qualityF[i],
			Account:  accountF[i],
			Stage:    stageF[i],
			Velocity: velocity,
		}
	}

	values, method := Blend(scores, w, opp.Amount)
	result.Method = method

	result.Credits = make([]Credit, len(eligible))
	for i, tp := range eligible {
		share := 0.0
		if opp.Amount > 0 {
			share = values[i] / opp.Amount
		}
		result.Credits[i] = Credit{
			TouchpointID: tp.ID,
			Channel:      tp.Channel,
			Type:         tp.Type,
			Value:        values[i],
			Share:        share,
			RawScore:     scores[i].Raw(w),
			Factors:      scores[i],
		}
	}

	return result
}

// LeadIndex keys leads by id
func LeadIndex(leads []types.Lead) map[string]types.Lead {
	out := make(map[string]types.Lead, len(leads))
	for _, l := range leads {
		out[l.ID] = l
	}
	return out
}

func validateOpportunity(opp types.Opportunity) error {
	if math.IsNaN(opp.Amount) || math.IsInf(opp.Amount, 0) {
		return fmt.Errorf("%w: amount is not finite", ErrInvalidOpportunity)
	}
	if opp.Amount < 0 {
		return fmt.Errorf("%w: amount %g is negative", ErrInvalidOpportunity, opp.Amount)
	}
	return nil
}
