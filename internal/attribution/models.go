package attribution

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// Model names a rule-based attribution model
type Model string

const (
	ModelFirstTouch Model = "first_touch"
	ModelLastTouch  Model = "last_touch"
	ModelLinear     Model = "linear"
	ModelTimeDecay  Model = "time_decay"
	ModelUShaped    Model = "u_shaped"
	ModelWShaped    Model = "w_shaped"
)

// ErrUnknownModel is returned for model names outside AvailableModels
var ErrUnknownModel = errors.New("unknown attribution model")

const classicHalfLifeDays = 7.0

// AvailableModels lists the rule-based models in display order
func AvailableModels() []Model {
	return []Model{ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelUShaped, ModelWShaped}
}

// ModelResult is one model's distribution in a comparison
type ModelResult struct {
	Model       Model              `json:"model"`
	Attribution map[string]float64 `json:"attribution"`
	TopTouchID  string             `json:"top_touchpoint_id,omitempty"`
}

// ApplyModel distributes value over touchpoints, which must already be
// sorted by timestamp.
func ApplyModel(model Model, touchpoints []types.Touchpoint, value float64, conversion time.Time) (map[string]float64, error) {
	n := len(touchpoints)
	out := make(map[string]float64, n)
	if n == 0 {
		if !isKnownModel(model) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
		}
		return out, nil
	}

	var weights []float64
	switch model {
	case ModelFirstTouch:
		weights = make([]float64, n)
		weights[0] = 1
	case ModelLastTouch:
		weights = make([]float64, n)
		weights[n-1] = 1
	case ModelLinear:
		weights = evenWeights(n)
	case ModelTimeDecay:
		weights = timeDecayWeights(touchpoints, conversion)
	case ModelUShaped:
		weights = uShapedWeights(n)
	case ModelWShaped:
		weights = wShapedWeights(n)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	for i, tp := range touchpoints {
		out[tp.ID] += weights[i] * value
	}
	return out, nil
}

// CompareModels runs each requested model over the same journey. An empty
// model list runs every available model.
func CompareModels(touchpoints []types.Touchpoint, value float64, conversion time.Time, models []Model) ([]ModelResult, error) {
	if len(models) == 0 {
		models = AvailableModels()
	}

	eligible, _ := NewPreprocessor(0).Process(touchpoints, conversion)

	results := make([]ModelResult, 0, len(models))
	for _, m := range models {
		attr, err := ApplyModel(m, eligible, value, conversion)
		if err != nil {
			return nil, err
		}
		results = append(results, ModelResult{
			Model:       m,
			Attribution: attr,
			TopTouchID:  topTouchpoint(eligible, attr),
		})
	}
	return results, nil
}

func isKnownModel(m Model) bool {
	for _, known := range AvailableModels() {
		if m == known {
			return true
		}
	}
	return false
}

func evenWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func timeDecayWeights(touchpoints []types.Touchpoint, conversion time.Time) []float64 {
	if conversion.IsZero() {
		conversion = touchpoints[len(touchpoints)-1].Timestamp
	}

	w := make([]float64, len(touchpoints))
	total := 0.0
	for i, tp := range touchpoints {
		w[i] = math.Pow(2, -daysBetween(tp.Timestamp, conversion)/classicHalfLifeDays)
		total += w[i]
	}
	if total <= 0 {
		return evenWeights(len(touchpoints))
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

// uShapedWeights gives 40% to the first and last touch and splits 20% over the middle
func uShapedWeights(n int) []float64 {
	switch n {
	case 1:
		return []float64{1}
	case 2:
		return []float64{0.5, 0.5}
	}

	w := make([]float64, n)
	w[0], w[n-1] = 0.4, 0.4
	middle := 0.2 / float64(n-2)
	for i := 1; i < n-1; i++ {
		w[i] = middle
	}
	return w
}

// wShapedWeights gives 30% each to the first, middle and last touch and splits 10% over the rest
func wShapedWeights(n int) []float64 {
	if n <= 2 {
		return uShapedWeights(n)
	}
	if n == 3 {
		return evenWeights(3)
	}

	mid := n / 2
	w := make([]float64, n)
	rest := 0.1 / float64(n-3)
	for i := range w {
		switch i {
		case 0, mid, n - 1:
			w[i] = 0.3
		default:
			w[i] = rest
		}
	}
	return w
}

func topTouchpoint(touchpoints []types.Touchpoint, attr map[string]float64) string {
	top, best := "", -1.0
	for _, tp := range touchpoints {
		if v := attr[tp.ID]; v > best {
			top, best = tp.ID, v
		}
	}
	return top
}
