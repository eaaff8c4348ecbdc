package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/finance"
)

func TestPresetsAreValid(t *testing.T) {
	for _, p := range Presets() {
		t.Run(p.ID, func(t *testing.T) {
			require.NoError(t, p.Params.Validate())
			_, err := p.Params.RatePolicy()
			require.NoError(t, err)
		})
	}
}

func TestPresetRatePolicies(t *testing.T) {
	tests := []struct {
		preset string
		want   string
	}{
		{"baseline", "unmanaged"},
		{"managed-rate", "flat"},
		{"bounded-rate", "bounded"},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			params, err := Preset(tt.preset)
			require.NoError(t, err)
			policy, err := params.RatePolicy()
			require.NoError(t, err)
			assert.Contains(t, policy.String(), tt.want)
		})
	}
}

func TestResolveParams(t *testing.T) {
	base := finance.DefaultScenarioParameters()

	t.Run("no preset keeps base", func(t *testing.T) {
		base := base
		base.Exogenous.FlexibleCIPSpending = true
		got, err := ResolveParams(base, "", nil)
		require.NoError(t, err)
		assert.True(t, got.Exogenous.FlexibleCIPSpending)
	})

	t.Run("null overrides are ignored", func(t *testing.T) {
		got, err := ResolveParams(base, "high-inflation", json.RawMessage("null"))
		require.NoError(t, err)
		assert.Equal(t, "0.06", got.Exogenous.FixedOpExInflation.String())
	})

	t.Run("numeric overrides", func(t *testing.T) {
		got, err := ResolveParams(base, "", json.RawMessage(`{"exogenous": {"demand_growth_rate": 0.01, "new_debt_term_years": 20}}`))
		require.NoError(t, err)
		assert.Equal(t, "0.01", got.Exogenous.DemandGrowthRate.String())
		assert.Equal(t, 20, got.Exogenous.NewDebtTermYears)
		assert.Equal(t, base.Exogenous.NewDebtDeferralYears, got.Exogenous.NewDebtDeferralYears)
	})

	t.Run("invalid parameter", func(t *testing.T) {
		_, err := ResolveParams(base, "", json.RawMessage(`{"exogenous": {"unaccounted_fraction": "1"}}`))
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
	})
}
