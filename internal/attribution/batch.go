package attribution

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// BatchItem is one opportunity with the touchpoints that belong to it
type BatchItem struct {
	Opportunity types.Opportunity
	Touchpoints []types.Touchpoint
}

// GroupByAccount assigns touchpoints to opportunities by account id, or by
// lead id when the touchpoint carries no account.
func GroupByAccount(opps []types.Opportunity, touchpoints []types.Touchpoint) []BatchItem {
	byAccount := make(map[string][]types.Touchpoint)
	byLead := make(map[string][]types.Touchpoint)
	for _, tp := range touchpoints {
		if tp.AccountID != "" {
			byAccount[tp.AccountID] = append(byAccount[tp.AccountID], tp)
		} else if tp.LeadID != "" {
			byLead[tp.LeadID] = append(byLead[tp.LeadID], tp)
		}
	}

	items := make([]BatchItem, len(opps))
	for i, opp := range opps {
		tps := append([]types.Touchpoint(nil), byAccount[opp.AccountID]...)
		for _, leadID := range opp.LeadIDs {
			tps = append(tps, byLead[leadID]...)
		}
		items[i] = BatchItem{Opportunity: opp, Touchpoints: tps}
	}
	return items
}

// BatchAttribute attributes every item on a bounded worker pool. Results keep
// input order. The first failing item cancels the rest.
func (e *Engine) BatchAttribute(ctx context.Context, items []BatchItem, leads []types.Lead, w types.FactorWeights, workers int) ([]*Result, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	index := LeadIndex(leads)
	results := make([]*Result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, item := range items {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := validateOpportunity(item.Opportunity); err != nil {
				return fmt.Errorf("opportunity %s: %w", item.Opportunity.ID, err)
			}
			results[i] = e.attribute(item.Touchpoints, index, item.Opportunity, w)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
