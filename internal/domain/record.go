package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Detection is one satellite-observed thermal anomaly inside the target
// region. Records are immutable once stored; only the pruner removes them.
type Detection struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"` // UTC, never zero
	Intensity  float64   `json:"intensity"`   // fire radiative power (MW)
	Confidence string    `json:"confidence,omitempty"`
	Instrument string    `json:"instrument"`
	Source     string    `json:"source"` // feed that produced the record, e.g. "firms-24h"
	Region     string    `json:"region"` // assigned on geofence acceptance
}

// Key returns the natural deduplication key of the detection. Coordinates are
// fixed to four decimals (~11 m), matching the precision of the source feed.
func (d Detection) Key() string {
	return fmt.Sprintf("%.4f|%.4f|%s", d.Latitude, d.Longitude, d.ObservedAt.UTC().Format(time.RFC3339))
}

// ID produces a deterministic short identifier from the dedup key. Stable IDs
// keep downstream consumers (Kafka keys, log correlation) replay-safe without
// coordination.
func (d Detection) ID() string {
	hash := sha256.Sum256([]byte(d.Key()))
	return "det-" + hex.EncodeToString(hash[:8])
}

// Forecast is one province's daily weather forecast. The whole scope for a
// province is replaced on each ingestion run; DownloadedAt drives retention,
// distinct from ForecastDate.
type Forecast struct {
	RegionCode    string    `json:"region_code"`
	RegionName    string    `json:"region_name"`
	ForecastDate  time.Time `json:"forecast_date"` // date only, midnight UTC
	TempMax       float64   `json:"temp_max"`
	TempMin       float64   `json:"temp_min"`
	HumidityMax   float64   `json:"humidity_max"`
	HumidityMin   float64   `json:"humidity_min"`
	WindMax       float64   `json:"wind_max"`
	PrecipProbMax float64   `json:"precip_prob_max"`
	DownloadedAt  time.Time `json:"downloaded_at"`

	// RiskProbability is a derived field written back by the inference
	// collaborator, never ingested from the feed.
	RiskProbability *float64 `json:"risk_probability,omitempty"`
}

// Key returns the natural key of the forecast.
func (f Forecast) Key() string {
	return f.RegionCode + "|" + f.ForecastDate.UTC().Format("2006-01-02")
}

// RetentionPolicy bounds what a feed keeps in the store. It is supplied per
// run, not persisted.
type RetentionPolicy struct {
	MaxAge   time.Duration
	Geofence GeofencePolicy
}
