package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

func TestBoundingBoxBoundariesAreInclusive(t *testing.T) {
	box := domain.BoundingBox{LatMin: 36.0, LatMax: 44.5, LonMin: -10.0, LonMax: 5.0}

	assert.True(t, box.Contains(36.0, -10.0))
	assert.True(t, box.Contains(44.5, 5.0))
	assert.True(t, box.Contains(40.0, -3.7))
	assert.False(t, box.Contains(35.9999, -3.7))
	assert.False(t, box.Contains(40.0, 5.0001))
}

func TestExclusionRuleRequiresAllConditions(t *testing.T) {
	lat37, lonMinus1 := 37.0, -1.0
	rule := domain.ExclusionRule{Name: "foreign-landmass", LatBelow: &lat37, LonAbove: &lonMinus1}

	// Both conditions hold.
	assert.True(t, rule.Matches(36.5, 2.0))
	// Only one condition holds.
	assert.False(t, rule.Matches(36.5, -5.0))
	assert.False(t, rule.Matches(40.0, 2.0))
}

func TestExclusionRuleWithoutThresholdsMatchesNothing(t *testing.T) {
	assert.False(t, domain.ExclusionRule{Name: "empty"}.Matches(40.0, -3.7))
}

func TestPresetPolicies(t *testing.T) {
	tests := []struct {
		name     string
		preset   string
		lat, lon float64
		want     bool
	}{
		{"v1 keeps south-east corner", "v1", 36.5, 2.0, true},
		{"v2 cuts foreign landmass", "v2", 36.5, 2.0, false},
		{"v2 keeps mainland south", "v2", 36.5, -5.0, true},
		{"v2 keeps far north", "v2", 44.0, -1.0, true},
		{"v3 cuts beyond northern border", "v3", 44.0, -1.0, false},
		{"v3 keeps interior", "v3", 40.4, -3.7, true},
		{"v3 rejects outside rectangle", "v3", 48.0, 2.0, false},
		{"default is v3", "", 44.0, -1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := domain.PresetPolicy(tt.preset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, policy.Contains(tt.lat, tt.lon))
		})
	}
}

func TestPresetPolicyRejectsUnknownVersion(t *testing.T) {
	_, err := domain.PresetPolicy("v99")
	assert.ErrorContains(t, err, "v99")
}

func TestParseExclusionRules(t *testing.T) {
	rules, err := domain.ParseExclusionRules("foreign-landmass:lat<37&lon>-1;beyond-northern-border:lat>43.8")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "foreign-landmass", rules[0].Name)
	require.NotNil(t, rules[0].LatBelow)
	require.NotNil(t, rules[0].LonAbove)
	assert.Equal(t, 37.0, *rules[0].LatBelow)
	assert.Equal(t, -1.0, *rules[0].LonAbove)

	assert.Equal(t, "beyond-northern-border", rules[1].Name)
	require.NotNil(t, rules[1].LatAbove)
	assert.Equal(t, 43.8, *rules[1].LatAbove)
}

func TestParseExclusionRulesEmptyInput(t *testing.T) {
	rules, err := domain.ParseExclusionRules("  ")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestParseExclusionRulesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing name separator", "lat<37"},
		{"unsupported axis", "bad:alt<100"},
		{"unparsable threshold", "bad:lat<abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.ParseExclusionRules(tt.input)
			assert.Error(t, err)
		})
	}
}
