package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BoundingBox is the coarse rectangular cut of the target region.
type BoundingBox struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Contains reports whether the coordinate lies within the rectangle,
// boundaries inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// ExclusionRule carves an irregular zone out of the bounding rectangle.
// Every set threshold must match for the rule to fire (AND semantics), so
// "lat<37 AND lon>-1" cuts the foreign landmass in the rectangle's south-east
// corner without touching the mainland.
type ExclusionRule struct {
	Name     string
	LatBelow *float64 // matches when lat < *LatBelow
	LatAbove *float64 // matches when lat > *LatAbove
	LonBelow *float64 // matches when lon < *LonBelow
	LonAbove *float64 // matches when lon > *LonAbove
}

// Matches reports whether the coordinate falls inside the excluded zone.
// A rule with no thresholds set matches nothing.
func (r ExclusionRule) Matches(lat, lon float64) bool {
	set := false
	if r.LatBelow != nil {
		if lat >= *r.LatBelow {
			return false
		}
		set = true
	}
	if r.LatAbove != nil {
		if lat <= *r.LatAbove {
			return false
		}
		set = true
	}
	if r.LonBelow != nil {
		if lon >= *r.LonBelow {
			return false
		}
		set = true
	}
	if r.LonAbove != nil {
		if lon <= *r.LonAbove {
			return false
		}
		set = true
	}
	return set
}

// GeofencePolicy is a versioned inside/outside membership policy. Different
// feed generations require different exclusion sets, so the policy is supplied
// by configuration and threaded through the pipeline, never hardcoded.
type GeofencePolicy struct {
	Version    string
	Box        BoundingBox
	Exclusions []ExclusionRule
}

// Contains classifies a coordinate: inside the rectangle and matching no
// exclusion rule.
func (p GeofencePolicy) Contains(lat, lon float64) bool {
	if !p.Box.Contains(lat, lon) {
		return false
	}
	for _, rule := range p.Exclusions {
		if rule.Matches(lat, lon) {
			return false
		}
	}
	return true
}

// Iberian mainland rectangle shared by all policy generations.
var iberiaBox = BoundingBox{LatMin: 36.0, LatMax: 44.5, LonMin: -10.0, LonMax: 5.0}

// PresetPolicy returns one of the known policy generations:
//
//	v1: bounding rectangle only
//	v2: v1 plus the foreign-landmass cut (lat<37 AND lon>-1)
//	v3: v2 plus the beyond-northern-border cut (lat>43.8)
//
// The newest generation is the default for fresh deployments.
func PresetPolicy(version string) (GeofencePolicy, error) {
	switch version {
	case "v1":
		return GeofencePolicy{Version: "v1", Box: iberiaBox}, nil
	case "v2":
		return GeofencePolicy{Version: "v2", Box: iberiaBox, Exclusions: []ExclusionRule{
			{Name: "foreign-landmass", LatBelow: ptr(37.0), LonAbove: ptr(-1.0)},
		}}, nil
	case "v3", "":
		return GeofencePolicy{Version: "v3", Box: iberiaBox, Exclusions: []ExclusionRule{
			{Name: "foreign-landmass", LatBelow: ptr(37.0), LonAbove: ptr(-1.0)},
			{Name: "beyond-northern-border", LatAbove: ptr(43.8)},
		}}, nil
	default:
		return GeofencePolicy{}, fmt.Errorf("unknown geofence preset %q", version)
	}
}

// ParseExclusionRules parses the compact configuration syntax
// "name:lat<37&lon>-1;other:lat>43.8" into exclusion rules.
func ParseExclusionRules(s string) ([]ExclusionRule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var rules []ExclusionRule
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, conds, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("exclusion rule %q: missing name separator", part)
		}
		rule := ExclusionRule{Name: strings.TrimSpace(name)}
		for _, cond := range strings.Split(conds, "&") {
			if err := applyCondition(&rule, strings.TrimSpace(cond)); err != nil {
				return nil, fmt.Errorf("exclusion rule %q: %w", rule.Name, err)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func applyCondition(rule *ExclusionRule, cond string) error {
	var axis string
	var op byte
	switch {
	case strings.HasPrefix(cond, "lat<"):
		axis, op = "lat", '<'
	case strings.HasPrefix(cond, "lat>"):
		axis, op = "lat", '>'
	case strings.HasPrefix(cond, "lon<"):
		axis, op = "lon", '<'
	case strings.HasPrefix(cond, "lon>"):
		axis, op = "lon", '>'
	default:
		return fmt.Errorf("unsupported condition %q", cond)
	}

	v, err := strconv.ParseFloat(cond[4:], 64)
	if err != nil {
		return fmt.Errorf("threshold in %q: %w", cond, err)
	}

	switch {
	case axis == "lat" && op == '<':
		rule.LatBelow = &v
	case axis == "lat" && op == '>':
		rule.LatAbove = &v
	case axis == "lon" && op == '<':
		rule.LonBelow = &v
	case axis == "lon" && op == '>':
		rule.LonAbove = &v
	}
	return nil
}

func ptr(v float64) *float64 { return &v }
