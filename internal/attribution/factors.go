package attribution

import (
	"math"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// DecayWeight computes exp(-deltaDays/halfLife).
func DecayWeight(deltaDays, halfLife float64) float64 {
	if halfLife <= 0 {
		return 0
	}
	if deltaDays < 0 {
		deltaDays = 0
	}
	return math.Exp(-deltaDays / halfLife)
}

// daysBetween counts whole days from ts to conversion, clamped at zero
func daysBetween(ts, conversion time.Time) float64 {
	d := conversion.Sub(ts).Hours() / 24
	if d <= 0 {
		return 0
	}
	return math.Floor(d)
}

// HalfLife is max(cycleDays*fraction, minimum)
func (e *Engine) HalfLife(salesCycleDays int) float64 {
	if salesCycleDays <= 0 {
		salesCycleDays = e.cfg.DefaultCycleDays
	}
	return math.Max(float64(salesCycleDays)*e.cfg.HalfLifeCycleFraction, e.cfg.MinHalfLifeDays)
}

// TimeFactor weights each touchpoint by how close it sits to the conversion
func (e *Engine) TimeFactor(touchpoints []types.Touchpoint, conversionDate time.Time, salesCycleDays int) map[string]float64 {
	return byID(touchpoints, e.timeFactors(touchpoints, conversionDate, salesCycleDays))
}

func (e *Engine) timeFactors(touchpoints []types.Touchpoint, conversionDate time.Time, salesCycleDays int) []float64 {
	halfLife := e.HalfLife(salesCycleDays)
	out := make([]float64, len(touchpoints))
	for i, tp := range touchpoints {
		out[i] = DecayWeight(daysBetween(tp.Timestamp, conversionDate), halfLife)
	}
	return out
}

// QualityFactor weights each touchpoint by its type and the quality tier of its lead
func (e *Engine) QualityFactor(touchpoints []types.Touchpoint, leads map[string]types.Lead) map[string]float64 {
	return byID(touchpoints, e.qualityFactors(touchpoints, leads))
}

func (e *Engine) qualityFactors(touchpoints []types.Touchpoint, leads map[string]types.Lead) []float64 {
	out := make([]float64, len(touchpoints))
	for i, tp := range touchpoints {
		out[i] = nonNegative(e.typeWeight(tp.Type) * e.tierMultiplier(leads, tp.LeadID))
	}
	return out
}

func (e *Engine) typeWeight(t types.TouchpointType) float64 {
	if w, ok := e.cfg.TouchpointTypeWeights[t]; ok {
		return w
	}
	return 1.0
}

func (e *Engine) tierMultiplier(leads map[string]types.Lead, leadID string) float64 {
	lead, ok := leads[leadID]
	if !ok {
		return 1.0
	}
	if m, ok := e.cfg.TierMultipliers[lead.Tier()]; ok {
		return m
	}
	return 1.0
}

// AccountComplexity scores how involved a deal is: tier, committee, and cycle length
func (e *Engine) AccountComplexity(opp types.Opportunity) float64 {
	complexity := 1.0

	switch opp.DealSizeTier {
	case types.DealEnterprise:
		complexity += 0.3
	case types.DealMidMarket:
		complexity += 0.15
	}

	switch stakeholders := opp.CommitteeSize(); {
	case stakeholders > 5:
		complexity += 0.2
	case stakeholders > 3:
		complexity += 0.1
	}

	switch {
	case opp.SalesCycleDays > 365:
		complexity += 0.25
	case opp.SalesCycleDays > 180:
		complexity += 0.15
	}

	return complexity
}

// ExpectedCycleDays returns the tier's expected sales cycle
func (e *Engine) ExpectedCycleDays(tier types.DealSizeTier) int {
	if d, ok := e.cfg.ExpectedCycleDays[tier]; ok && d > 0 {
		return d
	}
	return e.cfg.DefaultCycleDays
}

// cycleRatio is actual over expected cycle length, neutral when unknown
func (e *Engine) cycleRatio(opp types.Opportunity) float64 {
	if opp.SalesCycleDays <= 0 {
		return 1.0
	}
	return clip(float64(opp.SalesCycleDays)/float64(e.ExpectedCycleDays(opp.DealSizeTier)), 0.25, 4)
}

// AccountFactor weights touchpoints by deal size, committee, and cycle length
func (e *Engine) AccountFactor(touchpoints []types.Touchpoint, opp types.Opportunity) map[string]float64 {
	return byID(touchpoints, e.accountFactors(touchpoints, opp))
}

func (e *Engine) accountFactors(touchpoints []types.Touchpoint, opp types.Opportunity) []float64 {
	dealSize := 1.0
	if m, ok := e.cfg.DealSizeMultipliers[opp.DealSizeTier]; ok {
		dealSize = m
	}
	committee := opp.CommitteeSize()
	if committee < 1 {
		committee = 1
	}

	base := dealSize * e.AccountComplexity(opp) * (1 / float64(committee)) * e.cycleRatio(opp)

	out := make([]float64, len(touchpoints))
	for i, tp := range touchpoints {
		w := base
		if tp.IsSalesTouch {
			w *= e.cfg.SalesTouchMultiplier
		}
		out[i] = nonNegative(w)
	}
	return out
}

// StageFactor weights touchpoints by the funnel stage they influenced
func (e *Engine) StageFactor(touchpoints []types.Touchpoint) map[string]float64 {
	return byID(touchpoints, e.stageFactors(touchpoints))
}

func (e *Engine) stageFactors(touchpoints []types.Touchpoint) []float64 {
	out := make([]float64, len(touchpoints))
	for i, tp := range touchpoints {
		w, ok := e.cfg.StageWeights[tp.StageInfluence]
		if !ok {
			w = 1.0
		}
		out[i] = nonNegative(w)
	}
	return out
}

// VelocityFactor rewards deals that closed faster than their tier's expected
// cycle and penalizes slow ones down to a floor. The bonus and penalty rates
// differ on purpose.
func (e *Engine) VelocityFactor(opp types.Opportunity) float64 {
	actual := float64(opp.SalesCycleDays)
	if actual <= 0 {
		return 1.0
	}
	expected := float64(e.ExpectedCycleDays(opp.DealSizeTier))

	if actual < expected {
		return 1 + ((expected-actual)/expected)*e.cfg.VelocityFastBonus
	}
	return math.Max(e.cfg.VelocityFloor, 1-((actual-expected)/expected)*e.cfg.VelocitySlowPenalty)
}

func byID(touchpoints []types.Touchpoint, values []float64) map[string]float64 {
	out := make(map[string]float64, len(touchpoints))
	for i, tp := range touchpoints {
		out[tp.ID] = values[i]
	}
	return out
}

// nonNegative maps negative and non-finite factors to zero
func nonNegative(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
