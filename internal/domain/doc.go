// Package domain models satellite hotspot detections and provincial weather
// forecasts for the ingestion pipeline.
//
// # Data Sources
//
// Hotspot detections originate from FIRMS-style active fire CSV exports
// (https://firms.modaps.eosdis.nasa.gov/). Each row is one satellite-observed
// thermal anomaly with WGS-84 coordinates, an acquisition date, an acquisition
// time, and a fire radiative power (FRP) reading. Two feed horizons exist,
// 24-hour and 7-day, sharing the same schema.
//
// Forecasts originate from AEMET-style OpenData municipal daily forecasts
// (https://opendata.aemet.es/), one fetch per province. The API answers with
// an indirection envelope whose "datos" field is a temporary result URL; the
// second request returns the actual forecast array.
//
// # Acquisition Time Format
//
//	HHMM in 24-hour notation, e.g. "1345" = 13:45 UTC.
//	Three-digit values are zero-padded: "930" → "0930".
//	The acquisition date ("2006-01-02" layout) and time are combined into one
//	UTC instant. A row whose combination cannot be parsed is dropped and
//	counted; a detection is never stored with a zero timestamp.
//
// # Geofencing
//
// A detection is accepted when its coordinate lies inside the configured
// bounding rectangle and matches none of the policy's exclusion rules. The
// exclusion set has changed between feed generations (a foreign-landmass cut
// south-east of the rectangle, a beyond-northern-border cut), so the policy is
// versioned configuration rather than code. Pruning re-applies the current
// policy to already-stored rows, because a stricter rule must retroactively
// remove detections an older policy accepted.
//
// # Deduplication
//
// The natural key of a detection is (latitude, longitude, observed_at); the
// store carries a unique index on it and inserts with ON CONFLICT DO NOTHING,
// so re-ingesting the same raw batch is a counted no-op. Forecasts key on
// (region_code, forecast_date) with latest-wins replacement, since providers
// reissue the same dates daily.
package domain
