package attribution

import (
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// Attribution methods reported on a Result
const (
	MethodWeighted     = "weighted"
	MethodEqualSplit   = "equal_split"
	MethodUnattributed = "unattributed"
)

// FactorScores are the five per-touchpoint factor outputs
type FactorScores struct {
	Time     float64 `json:"time_decay"`
	Quality  float64 `json:"lead_quality"`
	Account  float64 `json:"account_based"`
	Stage    float64 `json:"stage_progression"`
	Velocity float64 `json:"velocity_bonus"`
}

// Raw is the weighted sum of the factor scores
func (f FactorScores) Raw(w types.FactorWeights) float64 {
	return nonNegative(f.Time*w.Time +
		f.Quality*w.Quality +
		f.Account*w.Account +
		f.Stage*w.Stage +
		f.Velocity*w.Velocity)
}

// Blend turns per-touchpoint factor scores into values that sum to
// conversionValue. When every raw score is zero the value is split equally.
// Weights are assumed to be validated.
func Blend(scores []FactorScores, w types.FactorWeights, conversionValue float64) ([]float64, string) {
	if len(scores) == 0 {
		return nil, MethodUnattributed
	}

	raw := make([]float64, len(scores))
	total := 0.0
	for i, s := range scores {
		raw[i] = s.Raw(w)
		total += raw[i]
	}

	values := make([]float64, len(scores))
	if total <= 0 {
		share := conversionValue / float64(len(scores))
		for i := range values {
			values[i] = share
		}
		return values, MethodEqualSplit
	}

	largest := 0
	sum := 0.0
	for i, r := range raw {
		values[i] = r / total * conversionValue
		sum += values[i]
		if values[i] > values[largest] {
			largest = i
		}
	}

	// Fold floating point residue into the largest share so the sum is exact.
	values[largest] += conversionValue - sum

	return values, MethodWeighted
}
