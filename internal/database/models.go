package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// Run is one stored attribution result
type Run struct {
	ID              string              `json:"run_id" db:"id"`
	Tenant          string              `json:"tenant" db:"tenant"`
	OpportunityID   string              `json:"opportunity_id" db:"opportunity_id"`
	Method          string              `json:"method" db:"method"`
	ConversionValue float64             `json:"conversion_value" db:"conversion_value"`
	Weights         types.FactorWeights `json:"weights" db:"weights"`
	TouchpointCount int                 `json:"touchpoint_count" db:"touchpoint_count"`
	DroppedCount    int                 `json:"dropped_count" db:"dropped_count"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	Credits         []RunCredit         `json:"credits,omitempty"`
}

// RunCredit is the value one touchpoint received in a run
type RunCredit struct {
	TouchpointID string  `json:"touchpoint_id" db:"touchpoint_id"`
	Channel      string  `json:"channel" db:"channel"`
	Type         string  `json:"touchpoint_type" db:"touchpoint_type"`
	Value        float64 `json:"value" db:"value"`
	Share        float64 `json:"share" db:"share"`
}

// ChannelStanding is one row of the channel leaderboard
type ChannelStanding struct {
	Rank       int     `json:"rank"`
	Channel    string  `json:"channel"`
	TotalValue float64 `json:"total_value"`
	Credits    int     `json:"credits"`
	Runs       int     `json:"runs"`
}

// NewRun builds a storable run from an engine result
func NewRun(tenant string, res *attribution.Result) *Run {
	run := &Run{
		ID:              uuid.New().String(),
		Tenant:          tenant,
		OpportunityID:   res.OpportunityID,
		Method:          res.Method,
		ConversionValue: res.ConversionValue,
		Weights:         res.Weights,
		TouchpointCount: len(res.Credits),
		DroppedCount:    len(res.Dropped),
		CreatedAt:       time.Now().UTC(),
		Credits:         make([]RunCredit, 0, len(res.Credits)),
	}

	for _, c := range res.Credits {
		run.Credits = append(run.Credits, RunCredit{
			TouchpointID: c.TouchpointID,
			Channel:      c.Channel,
			Type:         string(c.Type),
			Value:        c.Value,
			Share:        c.Share,
		})
	}

	return run
}
