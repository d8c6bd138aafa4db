package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/auth"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

var closeDate = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func journey() []types.Touchpoint {
	day := 24 * time.Hour
	return []types.Touchpoint{
		{ID: "tp-content", AccountID: "acct-1", Timestamp: closeDate.Add(-60 * day), Type: types.TouchpointContentDownload, Channel: "content", Cost: 50, IsMarketingTouch: true},
		{ID: "tp-demo", AccountID: "acct-1", Timestamp: closeDate.Add(-10 * day), Type: types.TouchpointDemoRequest, Channel: "sales", IsSalesTouch: true},
	}
}

func opportunity(id, account string) types.Opportunity {
	return types.Opportunity{
		ID:             id,
		AccountID:      account,
		Amount:         1000,
		CreatedDate:    closeDate.Add(-180 * 24 * time.Hour),
		CloseDate:      closeDate,
		SalesCycleDays: 180,
	}
}

func writeInput(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"attribute", "--config-dir", t.TempDir()}, args...))
	return out.String(), err
}

func TestParseWeights(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *types.FactorWeights
		wantErr bool
	}{
		{name: "empty means unset", raw: ""},
		{name: "five values", raw: "0.5, 0.5,0,0,0", want: &types.FactorWeights{Time: 0.5, Quality: 0.5}},
		{name: "too few", raw: "0.5,0.5", wantErr: true},
		{name: "not a number", raw: "a,b,c,d,e", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWeights(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateCommand(t *testing.T) {
	input := writeInput(t, types.AttributionRequest{
		Touchpoints: journey(),
		Opportunity: opportunity("opp-1", "acct-1"),
	})

	out, err := run(t, "calculate", "--input", input, "--weights", "0.5,0.5,0,0,0")
	require.NoError(t, err)

	var got struct {
		OpportunityID string               `json:"opportunity_id"`
		Method        string               `json:"method"`
		Weights       types.FactorWeights  `json:"weights"`
		Credits       []attribution.Credit `json:"attribution"`
		Summary       attribution.Summary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "opp-1", got.OpportunityID)
	assert.Equal(t, attribution.MethodWeighted, got.Method)
	assert.Equal(t, types.FactorWeights{Time: 0.5, Quality: 0.5}, got.Weights)
	require.Len(t, got.Credits, 2)
	assert.InDelta(t, 1000.0, got.Credits[0].Value+got.Credits[1].Value, 1e-6)
	assert.Equal(t, 2, got.Summary.TouchpointCount)
}

func TestCalculateCommand_Errors(t *testing.T) {
	input := writeInput(t, types.AttributionRequest{
		Touchpoints: journey(),
		Opportunity: opportunity("opp-1", "acct-1"),
	})

	_, err := run(t, "calculate", "--input", input, "--weights", "1,1,0,0,0")
	assert.ErrorIs(t, err, attribution.ErrInvalidWeights)

	_, err = run(t, "calculate", "--input", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = run(t, "calculate")
	assert.Error(t, err, "input is required")
}

func TestBatchCommand(t *testing.T) {
	tps := append(journey(), types.Touchpoint{
		ID: "tp-other", AccountID: "acct-2", Timestamp: closeDate.Add(-5 * 24 * time.Hour), Type: types.TouchpointSalesCall, Channel: "sales",
	})
	input := writeInput(t, types.BatchRequest{
		Opportunities: []types.Opportunity{opportunity("opp-1", "acct-1"), opportunity("opp-2", "acct-2")},
		Touchpoints:   tps,
	})

	out, err := run(t, "batch", "--input", input, "--workers", "2")
	require.NoError(t, err)

	var got []struct {
		OpportunityID string               `json:"opportunity_id"`
		Credits       []attribution.Credit `json:"attribution"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "opp-1", got[0].OpportunityID)
	assert.Len(t, got[0].Credits, 2)
	assert.Equal(t, "opp-2", got[1].OpportunityID)
	assert.Len(t, got[1].Credits, 1)
}

func TestInsightsCommand(t *testing.T) {
	input := writeInput(t, types.AttributionRequest{
		Touchpoints: journey(),
		Opportunity: opportunity("opp-1", "acct-1"),
	})

	out, err := run(t, "insights", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, `"channels"`)
	assert.Contains(t, out, `"alignment_score"`)
	assert.Contains(t, out, "Best performing channel: sales")
}

func TestCompareCommand(t *testing.T) {
	input := writeInput(t, types.CompareRequest{
		Touchpoints:     journey(),
		ConversionValue: 100,
		ConversionDate:  closeDate,
		Models:          []string{"first_touch", "last_touch"},
	})

	out, err := run(t, "compare", "--input", input)
	require.NoError(t, err)

	var got []attribution.ModelResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "tp-content", got[0].TopTouchID)
	assert.Equal(t, "tp-demo", got[1].TopTouchID)
}

func TestIntrospectionCommands(t *testing.T) {
	out, err := run(t, "touchpoint-types")
	require.NoError(t, err)
	assert.Equal(t, len(types.AllTouchpointTypes), strings.Count(out, `"category"`))

	out, err = run(t, "model-info")
	require.NoError(t, err)
	assert.Contains(t, out, attribution.ModelVersion)

	_, err = run(t, "--tenant", "../etc", "model-info")
	assert.ErrorIs(t, err, attribution.ErrInvalidTenant)
}

func TestAdminTokenCommand(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"

	out, err := run(t, "admin-token", "--secret", secret, "--subject", "ops", "--ttl", "1h")
	require.NoError(t, err)

	a, err := auth.NewAuthenticator(secret, "b2b-attribution")
	require.NoError(t, err)
	claims, err := a.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.True(t, claims.HasScope(auth.ScopeAdmin))

	_, err = run(t, "admin-token", "--secret", "short")
	assert.Error(t, err)
}
