package pipeline

import "time"

// Report aggregates the user-visible counts of one feed run. Every operation
// behind these numbers is idempotent or transaction-scoped, so a partial run
// never leaves the store needing manual repair.
type Report struct {
	Feed                string        `json:"feed"`
	Fetched             int           `json:"fetched"`
	Normalized          int           `json:"normalized"`
	NormalizationFailed int           `json:"normalization_failed"`
	RejectedByGeofence  int           `json:"rejected_by_geofence"`
	Inserted            int64         `json:"inserted"`
	SkippedDuplicate    int64         `json:"skipped_duplicate"`
	PrunedByAge         int64         `json:"pruned_by_age"`
	PrunedByGeofence    int64         `json:"pruned_by_geofence"`
	FailedSubUnits      int           `json:"failed_sub_units"`
	Duration            time.Duration `json:"duration"`
}
