package attribution

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

func TestGroupByAccount(t *testing.T) {
	opps := []types.Opportunity{
		{ID: "o1", AccountID: "acct-1", LeadIDs: []string{"lead-x"}},
		{ID: "o2", AccountID: "acct-2"},
		{ID: "o3", AccountID: "acct-3"},
	}
	touchpoints := []types.Touchpoint{
		{ID: "t1", AccountID: "acct-1"},
		{ID: "t2", AccountID: "acct-2"},
		{ID: "t3", AccountID: "acct-1"},
		{ID: "t4", LeadID: "lead-x"},
		{ID: "t5"},
	}

	items := GroupByAccount(opps, touchpoints)
	require.Len(t, items, 3)

	idsOf := func(tps []types.Touchpoint) []string {
		out := make([]string, len(tps))
		for i, tp := range tps {
			out[i] = tp.ID
		}
		return out
	}

	assert.Equal(t, []string{"t1", "t3", "t4"}, idsOf(items[0].Touchpoints))
	assert.Equal(t, []string{"t2"}, idsOf(items[1].Touchpoints))
	assert.Empty(t, items[2].Touchpoints)
}

func TestEngine_BatchAttribute(t *testing.T) {
	e := NewEngine(DefaultModelConfig())

	var items []BatchItem
	for i := 0; i < 25; i++ {
		opp := testOpportunity()
		opp.ID = fmt.Sprintf("opp-%d", i)
		opp.Amount = float64(1000 * (i + 1))

		journey := threeTouchJourney()
		for j := range journey {
			journey[j].ID = fmt.Sprintf("%s-%s", opp.ID, journey[j].ID)
		}
		items = append(items, BatchItem{Opportunity: opp, Touchpoints: journey})
	}

	results, err := e.BatchAttribute(context.Background(), items, nil, DefaultWeights(), 4)
	require.NoError(t, err)
	require.Len(t, results, len(items))

	for i, r := range results {
		assert.Equal(t, items[i].Opportunity.ID, r.OpportunityID, "results keep input order")
		assert.InDelta(t, items[i].Opportunity.Amount, sumValues(r.Values()), 1e-6)
	}
}

func TestEngine_BatchAttribute_Errors(t *testing.T) {
	e := NewEngine(DefaultModelConfig())
	items := []BatchItem{{Opportunity: testOpportunity(), Touchpoints: threeTouchJourney()}}

	t.Run("invalid weights fail before any work", func(t *testing.T) {
		_, err := e.BatchAttribute(context.Background(), items, nil, types.FactorWeights{Time: 2}, 2)
		assert.ErrorIs(t, err, ErrInvalidWeights)
	})

	t.Run("invalid opportunity fails the batch", func(t *testing.T) {
		bad := testOpportunity()
		bad.Amount = -1
		_, err := e.BatchAttribute(context.Background(), append(items, BatchItem{Opportunity: bad}), nil, DefaultWeights(), 2)
		assert.ErrorIs(t, err, ErrInvalidOpportunity)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.BatchAttribute(ctx, items, nil, DefaultWeights(), 2)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
