package attribution

import (
	"sort"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// Drop reasons reported by the preprocessor
const (
	DropDuplicate       = "duplicate_id"
	DropAfterConversion = "after_conversion"
	DropOutsideLookback = "outside_lookback"
)

// Dropped records a touchpoint the preprocessor left out of attribution
type Dropped struct {
	TouchpointID string `json:"touchpoint_id"`
	Reason       string `json:"reason"`
}

// Preprocessor orders touchpoints and applies the attribution window
type Preprocessor struct {
	lookback time.Duration
}

// NewPreprocessor creates a preprocessor. A zero lookback means unlimited.
func NewPreprocessor(lookback time.Duration) *Preprocessor {
	return &Preprocessor{lookback: lookback}
}

// Process returns the touchpoints eligible for attribution sorted by
// timestamp, plus the ones it dropped. The input slice is not modified.
func (p *Preprocessor) Process(touchpoints []types.Touchpoint, conversion time.Time) ([]types.Touchpoint, []Dropped) {
	var dropped []Dropped

	seen := make(map[string]struct{}, len(touchpoints))
	kept := make([]types.Touchpoint, 0, len(touchpoints))

	for _, tp := range touchpoints {
		if _, dup := seen[tp.ID]; dup {
			dropped = append(dropped, Dropped{TouchpointID: tp.ID, Reason: DropDuplicate})
			continue
		}
		seen[tp.ID] = struct{}{}

		if !conversion.IsZero() {
			if tp.Timestamp.After(conversion) {
				dropped = append(dropped, Dropped{TouchpointID: tp.ID, Reason: DropAfterConversion})
				continue
			}
			if p.lookback > 0 && tp.Timestamp.Before(conversion.Add(-p.lookback)) {
				dropped = append(dropped, Dropped{TouchpointID: tp.ID, Reason: DropOutsideLookback})
				continue
			}
		}

		kept = append(kept, tp)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	return kept, dropped
}
