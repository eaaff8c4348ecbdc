/*
presets.go - Named scenario parameter sets

PURPOSE:
  Provides pre-built parameter sets so a run can be requested by name
  instead of spelling out every decision variable and exogenous factor.
  Each preset starts from finance.DefaultScenarioParameters and changes
  only what makes it distinct.

AVAILABLE PRESETS:
  baseline:         documented defaults, unmanaged rate
  high-inflation:   6% operating cost inflation, 2% TBC rate inflation
  managed-rate:     uniform rate held flat, RS absorbs the gap
  bounded-rate:     rate moves within [0%, +3%] per year
  schedule-driven:  CIP and reserve flows follow the published schedule
  flexible-cip:     trigger-driven CIP with flexible capital deposits

USAGE VIA API:
  GET  /api/presets
  POST /api/runs {"preset": "managed-rate", "params": {...}}

ADDING NEW PRESETS:
  1. Add to the presets slice with ID, name, description
  2. Set the fields that differ from the defaults in its build func

SEE ALSO:
  - handlers.go: ListPresets, CreateRun
*/
package api

import (
	"encoding/json"
	"fmt"

	"github.com/warp/water-finance/finance"
)

type preset struct {
	ID          string
	Name        string
	Description string
	build       func(p *finance.ScenarioParameters)
}

var presets = []preset{
	{
		ID:          "baseline",
		Name:        "Baseline",
		Description: "Documented defaults with an unmanaged uniform rate",
		build:       func(*finance.ScenarioParameters) {},
	},
	{
		ID:          "high-inflation",
		Name:        "High Inflation",
		Description: "6% operating cost inflation and 2% TBC rate inflation",
		build: func(p *finance.ScenarioParameters) {
			p.Exogenous.FixedOpExInflation = finance.MustParseDecimal("0.06")
			p.Exogenous.VariableOpExInflation = finance.MustParseDecimal("0.06")
			p.Exogenous.TBCRateInflation = finance.MustParseDecimal("0.02")
		},
	},
	{
		ID:          "managed-rate",
		Name:        "Managed Rate",
		Description: "Uniform rate held at last year's value; Rate Stabilization absorbs the gap",
		build: func(p *finance.ScenarioParameters) {
			p.KeepUniformRateStable = true
		},
	},
	{
		ID:          "bounded-rate",
		Name:        "Bounded Rate",
		Description: "Uniform rate may change between 0% and +3% per year",
		build: func(p *finance.ScenarioParameters) {
			p.KeepUniformRateStable = true
			p.Decisions.RateIncreaseHighBound = finance.MustParseDecimal("0.03")
			p.Decisions.RateIncreaseLowBound = finance.MustParseDecimal("0.0")
		},
	},
	{
		ID:          "schedule-driven",
		Name:        "Schedule Driven",
		Description: "Debt, CIP transfers and reserve deposits follow the published schedules",
		build: func(p *finance.ScenarioParameters) {
			p.Exogenous.FollowCIPSchedule = true
		},
	},
	{
		ID:          "flexible-cip",
		Name:        "Flexible CIP",
		Description: "Trigger-driven CIP; capital deposits are cut when other funds fall short",
		build: func(p *finance.ScenarioParameters) {
			p.Exogenous.FlexibleCIPSpending = true
		},
	},
}

// Preset returns the parameters of the named preset.
func Preset(id string) (finance.ScenarioParameters, error) {
	for _, p := range presets {
		if p.ID == id {
			params := finance.DefaultScenarioParameters()
			p.build(&params)
			return params, nil
		}
	}
	return finance.ScenarioParameters{}, fmt.Errorf("unknown preset %q", id)
}

// Presets lists every preset with its resolved parameters.
func Presets() []PresetDTO {
	out := make([]PresetDTO, 0, len(presets))
	for _, p := range presets {
		params, _ := Preset(p.ID)
		out = append(out, PresetDTO{ID: p.ID, Name: p.Name, Description: p.Description, Params: params})
	}
	return out
}

// ResolveParams starts from base, or from the named preset when preset is
// set, and merges the JSON object overrides over it field by field.
func ResolveParams(base finance.ScenarioParameters, preset string, overrides json.RawMessage) (finance.ScenarioParameters, error) {
	params := base
	if preset != "" {
		p, err := Preset(preset)
		if err != nil {
			return finance.ScenarioParameters{}, err
		}
		params = p
	}
	if len(overrides) > 0 && string(overrides) != "null" {
		if err := json.Unmarshal(overrides, &params); err != nil {
			return finance.ScenarioParameters{}, fmt.Errorf("params: %w", err)
		}
	}
	if err := params.Validate(); err != nil {
		return finance.ScenarioParameters{}, err
	}
	return params, nil
}
