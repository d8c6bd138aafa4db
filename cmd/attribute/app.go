package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/auth"
	"github.com/chocobo244/creatingcustomersegment/internal/insights"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "JSON request file, or - for stdin",
		Required: true,
	}
}

func weightsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "weights",
		Aliases: []string{"w"},
		Usage:   "factor weights as time,quality,account,stage,velocity",
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "attribute",
		Usage: "run B2B multi-touch attribution over JSON files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Usage:   "directory holding per-tenant model configs",
				EnvVars: []string{"ATTRIBUTION_MODEL_CONFIG_DIR"},
				Value:   "./data/tenants",
			},
			&cli.StringFlag{
				Name:    "tenant",
				Aliases: []string{"t"},
				Usage:   "tenant whose model config to use",
				EnvVars: []string{"ATTRIBUTION_TENANT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "calculate",
				Usage:  "attribute one opportunity",
				Flags:  []cli.Flag{inputFlag(), weightsFlag()},
				Action: calculateAction,
			},
			{
				Name:  "batch",
				Usage: "attribute several opportunities in parallel",
				Flags: []cli.Flag{
					inputFlag(),
					weightsFlag(),
					&cli.IntFlag{Name: "workers", Usage: "worker pool size, 0 for one per CPU", EnvVars: []string{"ATTRIBUTION_BATCH_WORKERS"}},
				},
				Action: batchAction,
			},
			{
				Name:   "insights",
				Usage:  "channel ranking and sales-marketing alignment for one opportunity",
				Flags:  []cli.Flag{inputFlag(), weightsFlag()},
				Action: insightsAction,
			},
			{
				Name:   "compare",
				Usage:  "run the classic rule-based models side by side",
				Flags:  []cli.Flag{inputFlag()},
				Action: compareAction,
			},
			{
				Name:   "model-info",
				Usage:  "print the model description and tables",
				Action: modelInfoAction,
			},
			{
				Name:   "touchpoint-types",
				Usage:  "print known touchpoint types and weights",
				Action: touchpointTypesAction,
			},
			{
				Name:  "admin-token",
				Usage: "sign a bearer token for the server's admin routes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "signing secret", Required: true, EnvVars: []string{"ATTRIBUTION_ADMIN_JWT_SECRET"}},
					&cli.StringFlag{Name: "issuer", Value: "b2b-attribution", EnvVars: []string{"ATTRIBUTION_ADMIN_JWT_ISSUER"}},
					&cli.StringFlag{Name: "subject", Usage: "who the token is for", Value: "admin"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: adminTokenAction,
			},
		},
	}
}

// parseWeights reads "t,q,a,s,v"
func parseWeights(raw string) (*types.FactorWeights, error) {
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 5 {
		return nil, fmt.Errorf("expected 5 comma-separated weights, got %d", len(parts))
	}

	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %d: %w", i+1, err)
		}
		values[i] = v
	}

	return &types.FactorWeights{
		Time:     values[0],
		Quality:  values[1],
		Account:  values[2],
		Stage:    values[3],
		Velocity: values[4],
	}, nil
}

func readInput(c *cli.Context, v interface{}) error {
	path := c.String("input")

	var r io.Reader
	if path == "-" {
		r = c.App.Reader
		if r == nil {
			r = os.Stdin
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// engineFor resolves the tenant's engine and the weights to use, with the
// --weights flag taking precedence over the request body.
func engineFor(c *cli.Context, requested *types.FactorWeights) (*attribution.Engine, types.FactorWeights, error) {
	cfg, err := attribution.NewConfigStore(c.String("config-dir")).Load(c.String("tenant"))
	if err != nil {
		return nil, types.FactorWeights{}, err
	}
	engine := attribution.NewEngine(cfg)

	w := engine.DefaultWeights()
	if requested != nil {
		w = *requested
	}

	flagWeights, err := parseWeights(c.String("weights"))
	if err != nil {
		return nil, types.FactorWeights{}, err
	}
	if flagWeights != nil {
		w = *flagWeights
	}

	return engine, w, nil
}

type calculateOutput struct {
	*attribution.Result
	Summary attribution.Summary `json:"summary"`
}

func calculateAction(c *cli.Context) error {
	var req types.AttributionRequest
	if err := readInput(c, &req); err != nil {
		return err
	}

	engine, w, err := engineFor(c, req.Weights)
	if err != nil {
		return err
	}

	res, err := engine.Attribute(req.Touchpoints, req.Leads, req.Opportunity, w)
	if err != nil {
		return err
	}

	return writeJSON(c, calculateOutput{Result: res, Summary: attribution.Summarize(res.Values())})
}

func batchAction(c *cli.Context) error {
	var req types.BatchRequest
	if err := readInput(c, &req); err != nil {
		return err
	}

	engine, w, err := engineFor(c, req.Weights)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
	defer cancel()

	items := attribution.GroupByAccount(req.Opportunities, req.Touchpoints)
	results, err := engine.BatchAttribute(ctx, items, req.Leads, w, c.Int("workers"))
	if err != nil {
		return err
	}

	out := make([]calculateOutput, len(results))
	for i, res := range results {
		out[i] = calculateOutput{Result: res, Summary: attribution.Summarize(res.Values())}
	}
	return writeJSON(c, out)
}

func insightsAction(c *cli.Context) error {
	var req types.AttributionRequest
	if err := readInput(c, &req); err != nil {
		return err
	}

	engine, w, err := engineFor(c, req.Weights)
	if err != nil {
		return err
	}

	res, err := engine.Attribute(req.Touchpoints, req.Leads, req.Opportunity, w)
	if err != nil {
		return err
	}

	values := res.Values()
	channels := insights.ChannelInsights(values, req.Touchpoints)
	return writeJSON(c, map[string]interface{}{
		"opportunity_id": res.OpportunityID,
		"channels":       channels,
		"insights":       insights.ChannelNarrative(channels),
		"alignment":      insights.Alignment(values, req.Touchpoints),
	})
}

func compareAction(c *cli.Context) error {
	var req types.CompareRequest
	if err := readInput(c, &req); err != nil {
		return err
	}

	conversion := req.ConversionDate
	if conversion.IsZero() {
		conversion = time.Now().UTC()
	}

	models := make([]attribution.Model, len(req.Models))
	for i, m := range req.Models {
		models[i] = attribution.Model(m)
	}

	results, err := attribution.CompareModels(req.Touchpoints, req.ConversionValue, conversion, models)
	if err != nil {
		return err
	}
	return writeJSON(c, results)
}

func modelInfoAction(c *cli.Context) error {
	engine, _, err := engineFor(c, nil)
	if err != nil {
		return err
	}
	return writeJSON(c, engine.ModelInfo())
}

func touchpointTypesAction(c *cli.Context) error {
	engine, _, err := engineFor(c, nil)
	if err != nil {
		return err
	}
	return writeJSON(c, engine.TouchpointTypeWeights())
}

func adminTokenAction(c *cli.Context) error {
	a, err := auth.NewAuthenticator(c.String("secret"), c.String("issuer"))
	if err != nil {
		return err
	}
	token, err := a.Issue(c.String("subject"), c.Duration("ttl"), auth.ScopeAdmin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, token)
	return err
}
