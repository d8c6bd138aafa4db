package insights

import (
	"math"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// AlignmentReport compares the value earned by sales and marketing touches
type AlignmentReport struct {
	SalesValue      float64  `json:"sales_attribution"`
	MarketingValue  float64  `json:"marketing_attribution"`
	JointValue      float64  `json:"joint_attribution"`
	UntaggedValue   float64  `json:"untagged_attribution"`
	SalesShare      float64  `json:"sales_share"`
	MarketingShare  float64  `json:"marketing_share"`
	JointShare      float64  `json:"joint_share"`
	Score           float64  `json:"alignment_score"`
	Grade           string   `json:"grade"`
	Recommendations []string `json:"recommendations"`
}

// Alignment buckets attributed value into sales-only, marketing-only and
// joint touches. Shares are relative to the three buckets; touches with
// neither flag are reported separately and excluded from the score.
func Alignment(attributed map[string]float64, touchpoints []types.Touchpoint) AlignmentReport {
	lookup := make(map[string]types.Touchpoint, len(touchpoints))
	for _, tp := range touchpoints {
		if _, ok := lookup[tp.ID]; !ok {
			lookup[tp.ID] = tp
		}
	}

	var r AlignmentReport
	for id, value := range attributed {
		tp, ok := lookup[id]
		if !ok {
			continue
		}
		switch {
		case tp.IsSalesTouch && tp.IsMarketingTouch:
			r.JointValue += value
		case tp.IsSalesTouch:
			r.SalesValue += value
		case tp.IsMarketingTouch:
			r.MarketingValue += value
		default:
			r.UntaggedValue += value
		}
	}

	total := r.SalesValue + r.MarketingValue + r.JointValue
	if total > 0 {
		r.SalesShare = r.SalesValue / total
		r.MarketingShare = r.MarketingValue / total
		r.JointShare = r.JointValue / total
		r.Score = AlignmentScore(r.SalesShare, r.MarketingShare)
	}

	r.Grade = Grade(r.Score)
	r.Recommendations = recommendations(r, total)

	return r
}

// AlignmentScore is 100*(1-|sales-marketing|) clamped to [0,100]
func AlignmentScore(salesShare, marketingShare float64) float64 {
	score := 100 * (1 - math.Abs(salesShare-marketingShare))
	return math.Max(0, math.Min(100, score))
}

// Grade maps an alignment score to a letter grade
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func recommendations(r AlignmentReport, total float64) []string {
	if total <= 0 {
		return []string{"No sales or marketing touchpoints available for analysis"}
	}

	salesPct := r.SalesShare * 100
	marketingPct := r.MarketingShare * 100
	jointPct := r.JointShare * 100

	var recs []string
	if r.Score < 50 {
		recs = append(recs, "Poor sales-marketing alignment detected. Consider implementing joint planning sessions.")
	}

	switch {
	case salesPct > 60:
		recs = append(recs, "Sales is dominating attribution. Increase marketing's role in lead nurturing and qualification.")
	case salesPct < 20:
		recs = append(recs, "Sales involvement is low. Consider more sales-marketing collaboration on qualified leads.")
	}

	switch {
	case marketingPct > 60:
		recs = append(recs, "Marketing is dominating attribution. Ensure sales is properly engaged in the process.")
	case marketingPct < 20:
		recs = append(recs, "Marketing involvement is low. Increase marketing touchpoints throughout the sales cycle.")
	}

	switch {
	case jointPct < 10:
		recs = append(recs, "Very few joint sales-marketing touchpoints. Consider collaborative campaigns and activities.")
	case jointPct > 40:
		recs = append(recs, "High joint touchpoint percentage. Ensure clear ownership and accountability.")
	}

	if r.Score >= 80 {
		recs = append(recs, "Excellent alignment! Continue current collaboration practices and consider sharing best practices.")
	}

	return recs
}
