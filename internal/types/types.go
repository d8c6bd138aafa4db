package types

import "time"

// TouchpointType classifies a marketing or sales interaction
type TouchpointType string

const (
	TouchpointContentDownload   TouchpointType = "content_download"
	TouchpointWebinarAttendance TouchpointType = "webinar_attendance"
	TouchpointDemoRequest       TouchpointType = "demo_request"
	TouchpointTradeShow         TouchpointType = "trade_show"
	TouchpointSalesCall         TouchpointType = "sales_call"
	TouchpointEmailEngagement   TouchpointType = "email_engagement"
	TouchpointWebsiteVisit      TouchpointType = "website_visit"
	TouchpointSocialEngagement  TouchpointType = "social_engagement"
	TouchpointDirectMail        TouchpointType = "direct_mail"
	TouchpointReferral          TouchpointType = "referral"
)

// AllTouchpointTypes lists every known touchpoint type in catalog order
var AllTouchpointTypes = []TouchpointType{
	TouchpointContentDownload,
	TouchpointWebinarAttendance,
	TouchpointDemoRequest,
	TouchpointTradeShow,
	TouchpointSalesCall,
	TouchpointEmailEngagement,
	TouchpointWebsiteVisit,
	TouchpointSocialEngagement,
	TouchpointDirectMail,
	TouchpointReferral,
}

// StageType is a funnel stage
type StageType string

const (
	StageAwareness     StageType = "awareness"
	StageInterest      StageType = "interest"
	StageConsideration StageType = "consideration"
	StageIntent        StageType = "intent"
	StageEvaluation    StageType = "evaluation"
	StagePurchase      StageType = "purchase"
)

// DealSizeTier buckets opportunities by deal size
type DealSizeTier string

const (
	DealEnterprise DealSizeTier = "enterprise"
	DealMidMarket  DealSizeTier = "mid-market"
	DealSMB        DealSizeTier = "smb"
)

// LeadTier is the letter quality tier of a lead
type LeadTier string

const (
	TierA LeadTier = "A"
	TierB LeadTier = "B"
	TierC LeadTier = "C"
	TierD LeadTier = "D"
)

// TierForScore maps a 0-100 lead score to its quality tier
func TierForScore(score float64) LeadTier {
	switch {
	case score >= 80:
		return TierA
	case score >= 60:
		return TierB
	case score >= 40:
		return TierC
	default:
		return TierD
	}
}

// Lead is a prospect record scored by marketing
type Lead struct {
	ID                string    `json:"lead_id" binding:"required"`
	AccountID         string    `json:"account_id"`
	Score             float64   `json:"lead_score"`
	DemographicScore  float64   `json:"demographic_score"`
	BehavioralScore   float64   `json:"behavioral_score"`
	FirmographicScore float64   `json:"firmographic_score"`
	CreatedDate       time.Time `json:"created_date"`
	Stage             StageType `json:"stage"`
	Source            string    `json:"source"`
	QualityTier       LeadTier  `json:"lead_quality_tier"`
}

// Tier returns the explicit quality tier, or derives one from the score
func (l Lead) Tier() LeadTier {
	switch l.QualityTier {
	case TierA, TierB, TierC, TierD:
		return l.QualityTier
	}
	return TierForScore(l.Score)
}

// Opportunity is a deal whose amount is the conversion value to attribute
type Opportunity struct {
	ID                  string       `json:"opportunity_id" binding:"required"`
	AccountID           string       `json:"account_id"`
	LeadIDs             []string     `json:"lead_ids"`
	Stage               string       `json:"stage"`
	Probability         float64      `json:"probability"`
	Amount              float64      `json:"amount"`
	CreatedDate         time.Time    `json:"created_date"`
	CloseDate           time.Time    `json:"close_date"`
	SalesCycleDays      int          `json:"sales_cycle_days"`
	DealSizeTier        DealSizeTier `json:"deal_size_tier"`
	DecisionMakersCount int          `json:"decision_makers_count"`
	InfluencersCount    int          `json:"influencers_count"`
}

// ConversionDate is the close date, falling back to the creation date for open deals
func (o Opportunity) ConversionDate() time.Time {
	if o.CloseDate.IsZero() {
		return o.CreatedDate
	}
	return o.CloseDate
}

// CommitteeSize counts decision makers and influencers
func (o Opportunity) CommitteeSize() int {
	return o.DecisionMakersCount + o.InfluencersCount
}

// Touchpoint is a single interaction on the path to a conversion
type Touchpoint struct {
	ID               string         `json:"touchpoint_id" binding:"required"`
	LeadID           string         `json:"lead_id"`
	AccountID        string         `json:"account_id"`
	Timestamp        time.Time      `json:"timestamp"`
	Type             TouchpointType `json:"touchpoint_type"`
	Channel          string         `json:"channel"`
	CampaignID       string         `json:"campaign_id,omitempty"`
	ContentID        string         `json:"content_id,omitempty"`
	EngagementScore  float64        `json:"engagement_score"`
	StageInfluence   StageType      `json:"stage_influence"`
	Cost             float64        `json:"cost"`
	IsSalesTouch     bool           `json:"is_sales_touch"`
	IsMarketingTouch bool           `json:"is_marketing_touch"`
	SalesRepID       string         `json:"sales_rep_id,omitempty"`
}

// FactorWeights blends the five attribution factors. Weights must be
// non-negative and sum to 1.
type FactorWeights struct {
	Time     float64 `json:"time_decay"`
	Quality  float64 `json:"lead_quality"`
	Account  float64 `json:"account_based"`
	Stage    float64 `json:"stage_progression"`
	Velocity float64 `json:"velocity_bonus"`
}

// Sum adds the five weights
func (w FactorWeights) Sum() float64 {
	return w.Time + w.Quality + w.Account + w.Stage + w.Velocity
}

// AttributionRequest is the body of the single-opportunity endpoints
type AttributionRequest struct {
	Touchpoints []Touchpoint   `json:"touchpoints" binding:"required,dive"`
	Leads       []Lead         `json:"leads"`
	Opportunity Opportunity    `json:"opportunity" binding:"required"`
	Weights     *FactorWeights `json:"weights,omitempty"`
}

// BatchRequest attributes several opportunities in one call
type BatchRequest struct {
	Opportunities []Opportunity  `json:"opportunities" binding:"required,min=1,dive"`
	Touchpoints   []Touchpoint   `json:"touchpoints" binding:"required,dive"`
	Leads         []Lead         `json:"leads"`
	Weights       *FactorWeights `json:"weights,omitempty"`
}

// CompareRequest runs the classic rule-based models over one journey
type CompareRequest struct {
	Touchpoints     []Touchpoint `json:"touchpoints" binding:"required,dive"`
	ConversionValue float64      `json:"conversion_value"`
	ConversionDate  time.Time    `json:"conversion_date"`
	Models          []string     `json:"models,omitempty"`
}
