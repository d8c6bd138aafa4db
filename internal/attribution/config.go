package attribution

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

var (
	// ErrInvalidWeights is returned when blending weights are negative or do not sum to 1
	ErrInvalidWeights = errors.New("invalid attribution weights")
	// ErrInvalidOpportunity is returned for opportunities that cannot carry a conversion value
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	// ErrInvalidTenant is returned for tenant names that are not safe file names
	ErrInvalidTenant = errors.New("invalid tenant name")
	// ErrCorruptConfig is returned when a stored model config cannot be decoded
	ErrCorruptConfig = errors.New("corrupt model config")
)

const weightTolerance = 1e-6

// ModelConfig holds every lookup table and tunable the engine reads.
// Map entries present in a tenant file override the defaults; absent
// entries keep the default value.
type ModelConfig struct {
	TouchpointTypeWeights map[types.TouchpointType]float64 `json:"touchpoint_type_weights"`
	TierMultipliers       map[types.LeadTier]float64       `json:"lead_quality_multipliers"`
	StageWeights          map[types.StageType]float64      `json:"stage_progression_weights"`
	DealSizeMultipliers   map[types.DealSizeTier]float64   `json:"deal_size_multipliers"`
	ExpectedCycleDays     map[types.DealSizeTier]int       `json:"expected_cycle_days"`

	DefaultCycleDays      int     `json:"default_cycle_days"`
	HalfLifeCycleFraction float64 `json:"half_life_cycle_fraction"`
	MinHalfLifeDays       float64 `json:"min_half_life_days"`
	SalesTouchMultiplier  float64 `json:"sales_touch_multiplier"`
	VelocityFastBonus     float64 `json:"velocity_fast_bonus"`
	VelocitySlowPenalty   float64 `json:"velocity_slow_penalty"`
	VelocityFloor         float64 `json:"velocity_floor"`
	LookbackDays          int     `json:"lookback_days"`

	DefaultWeights types.FactorWeights `json:"default_weights"`
}

// DefaultModelConfig returns the stock B2B tables
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		TouchpointTypeWeights: map[types.TouchpointType]float64{
			types.TouchpointDemoRequest:       1.5,
			types.TouchpointSalesCall:         1.4,
			types.TouchpointWebinarAttendance: 1.2,
			types.TouchpointContentDownload:   1.1,
			types.TouchpointTradeShow:         1.3,
			types.TouchpointEmailEngagement:   0.8,
			types.TouchpointWebsiteVisit:      0.6,
			types.TouchpointSocialEngagement:  0.7,
			types.TouchpointDirectMail:        0.9,
			types.TouchpointReferral:          1.6,
		},
		TierMultipliers: map[types.LeadTier]float64{
			types.TierA: 1.5,
			types.TierB: 1.2,
			types.TierC: 1.0,
			types.TierD: 0.7,
		},
		StageWeights: map[types.StageType]float64{
			types.StageAwareness:     0.8,
			types.StageInterest:      1.0,
			types.StageConsideration: 1.2,
			types.StageIntent:        1.4,
			types.StageEvaluation:    1.5,
			types.StagePurchase:      1.3,
		},
		DealSizeMultipliers: map[types.DealSizeTier]float64{
			types.DealEnterprise: 1.4,
			types.DealMidMarket:  1.2,
			types.DealSMB:        1.0,
		},
		ExpectedCycleDays: map[types.DealSizeTier]int{
			types.DealEnterprise: 270,
			types.DealMidMarket:  150,
			types.DealSMB:        60,
		},
		DefaultCycleDays:      180,
		HalfLifeCycleFraction: 0.3,
		MinHalfLifeDays:       14,
		SalesTouchMultiplier:  1.3,
		VelocityFastBonus:     0.5,
		VelocitySlowPenalty:   0.3,
		VelocityFloor:         0.5,
		DefaultWeights:        DefaultWeights(),
	}
}

// DefaultWeights is the stock five-factor blend
func DefaultWeights() types.FactorWeights {
	return types.FactorWeights{
		Time:     0.25,
		Quality:  0.25,
		Account:  0.25,
		Stage:    0.15,
		Velocity: 0.10,
	}
}

// withDefaults fills unset tables and scalars from DefaultModelConfig
func (c ModelConfig) withDefaults() ModelConfig {
	d := DefaultModelConfig()

	c.TouchpointTypeWeights = mergeTable(d.TouchpointTypeWeights, c.TouchpointTypeWeights)
	c.TierMultipliers = mergeTable(d.TierMultipliers, c.TierMultipliers)
	c.StageWeights = mergeTable(d.StageWeights, c.StageWeights)
	c.DealSizeMultipliers = mergeTable(d.DealSizeMultipliers, c.DealSizeMultipliers)
	c.ExpectedCycleDays = mergeTable(d.ExpectedCycleDays, c.ExpectedCycleDays)

	if c.DefaultCycleDays <= 0 {
		c.DefaultCycleDays = d.DefaultCycleDays
	}
	if c.HalfLifeCycleFraction <= 0 {
		c.HalfLifeCycleFraction = d.HalfLifeCycleFraction
	}
	if c.MinHalfLifeDays <= 0 {
		c.MinHalfLifeDays = d.MinHalfLifeDays
	}
	if c.SalesTouchMultiplier <= 0 {
		c.SalesTouchMultiplier = d.SalesTouchMultiplier
	}
	if c.VelocityFastBonus <= 0 {
		c.VelocityFastBonus = d.VelocityFastBonus
	}
	if c.VelocitySlowPenalty <= 0 {
		c.VelocitySlowPenalty = d.VelocitySlowPenalty
	}
	if c.VelocityFloor <= 0 {
		c.VelocityFloor = d.VelocityFloor
	}
	if c.LookbackDays < 0 {
		c.LookbackDays = 0
	}
	if c.DefaultWeights == (types.FactorWeights{}) {
		c.DefaultWeights = d.DefaultWeights
	}

	return c
}

func mergeTable[K comparable, V any](base, override map[K]V) map[K]V {
	out := make(map[K]V, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// ValidateWeights rejects negative, non-finite, or non-unit blends.
// Weights are never renormalized on the caller's behalf.
func ValidateWeights(w types.FactorWeights) error {
	named := []struct {
		name  string
		value float64
	}{
		{"time_decay", w.Time},
		{"lead_quality", w.Quality},
		{"account_based", w.Account},
		{"stage_progression", w.Stage},
		{"velocity_bonus", w.Velocity},
	}

	for _, n := range named {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return fmt.Errorf("%w: %s weight is not finite", ErrInvalidWeights, n.name)
		}
		if n.value < 0 {
			return fmt.Errorf("%w: %s weight %g is negative", ErrInvalidWeights, n.name, n.value)
		}
	}

	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, expected 1.0", ErrInvalidWeights, sum)
	}

	return nil
}

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ConfigStore loads per-tenant model tables from JSON files in a directory
type ConfigStore struct {
	dataDir string

	mu     sync.RWMutex
	loaded map[string]ModelConfig
}

// NewConfigStore creates a config store rooted at dataDir
func NewConfigStore(dataDir string) *ConfigStore {
	return &ConfigStore{
		dataDir: dataDir,
		loaded:  make(map[string]ModelConfig),
	}
}

// Load returns the tenant's model config, or the defaults when the tenant has no file
func (s *ConfigStore) Load(tenant string) (ModelConfig, error) {
	if tenant == "" {
		return DefaultModelConfig(), nil
	}
	if !tenantPattern.MatchString(tenant) {
		return ModelConfig{}, fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}

	s.mu.RLock()
	cfg, ok := s.loaded[tenant]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	filePath := filepath.Join(s.dataDir, fmt.Sprintf("%s.json", tenant))
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return DefaultModelConfig(), nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("failed to open model config: %w", err)
	}
	defer file.Close()

	var raw ModelConfig
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return ModelConfig{}, fmt.Errorf("%w for tenant %s: %v", ErrCorruptConfig, tenant, err)
	}

	cfg = raw.withDefaults()
	if err := ValidateWeights(cfg.DefaultWeights); err != nil {
		return ModelConfig{}, fmt.Errorf("tenant %s: %w", tenant, err)
	}

	s.mu.Lock()
	s.loaded[tenant] = cfg
	s.mu.Unlock()

	return cfg, nil
}

// Save writes the tenant's model config and drops any cached copy
func (s *ConfigStore) Save(tenant string, cfg ModelConfig) error {
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}
	if err := ValidateWeights(cfg.DefaultWeights); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create model config directory: %w", err)
	}

	file, err := os.Create(filepath.Join(s.dataDir, fmt.Sprintf("%s.json", tenant)))
	if err != nil {
		return fmt.Errorf("failed to create model config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode model config: %w", err)
	}

	s.mu.Lock()
	delete(s.loaded, tenant)
	s.mu.Unlock()

	return nil
}
