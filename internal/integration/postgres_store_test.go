//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch/hotspot-ingest/internal/domain"
	"github.com/firewatch/hotspot-ingest/internal/store/postgres"
)

func detection(lat, lon float64, observedAt time.Time, source string) domain.Detection {
	return domain.Detection{
		Latitude:   lat,
		Longitude:  lon,
		ObservedAt: observedAt,
		Intensity:  12.3,
		Confidence: "85",
		Instrument: "MODIS",
		Source:     source,
		Region:     "Spain",
	}
}

func TestInsertDetectionsIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	observed := time.Date(2024, 7, 1, 13, 45, 0, 0, time.UTC)
	batch := []domain.Detection{
		detection(40.1, -3.5, observed, "firms-7d"),
		detection(38.2, -0.5, observed, "firms-7d"),
	}

	inserted, skipped, err := store.InsertDetections(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)
	assert.Equal(t, int64(0), skipped)

	// Replaying the same batch must not duplicate anything.
	inserted, skipped, err = store.InsertDetections(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)
	assert.Equal(t, int64(2), skipped)

	stored, err := store.ListDetections(ctx, postgres.DetectionFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestInsertDetectionsDistinguishesByTimestamp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	observed := time.Date(2024, 7, 1, 13, 45, 0, 0, time.UTC)
	first := detection(40.1, -3.5, observed, "firms-7d")
	later := detection(40.1, -3.5, observed.Add(3*time.Hour), "firms-7d")

	inserted, _, err := store.InsertDetections(ctx, []domain.Detection{first, later})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted, "same coordinates at different instants are distinct detections")
}

func TestReplaceDetectionsScopedToSource(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	observed := time.Date(2024, 7, 1, 13, 45, 0, 0, time.UTC)
	_, _, err := store.InsertDetections(ctx, []domain.Detection{
		detection(40.1, -3.5, observed, "firms-24h"),
		detection(38.2, -0.5, observed, "firms-7d"),
	})
	require.NoError(t, err)

	inserted, err := store.ReplaceDetections(ctx, "firms-24h", []domain.Detection{
		detection(41.0, -4.0, observed.Add(time.Hour), "firms-24h"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	// The other feed's records are untouched.
	other, err := store.ListDetections(ctx, postgres.DetectionFilter{Source: "firms-7d"})
	require.NoError(t, err)
	assert.Len(t, other, 1)

	replaced, err := store.ListDetections(ctx, postgres.DetectionFilter{Source: "firms-24h"})
	require.NoError(t, err)
	require.Len(t, replaced, 1)
	assert.Equal(t, 41.0, replaced[0].Latitude)
}

func TestPruneDetections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	now := time.Now().UTC().Truncate(time.Second)
	expired := detection(40.1, -3.5, now.Add(-10*24*time.Hour), "firms-7d")
	fresh := detection(40.2, -3.6, now.Add(-time.Hour), "firms-7d")
	foreignLandmass := detection(36.5, 2.0, now.Add(-time.Hour), "firms-7d")
	// Old by the caller's cutoff, but owned by another feed.
	otherFeed := detection(40.3, -3.7, now.Add(-10*24*time.Hour), "firms-24h")
	_, _, err := store.InsertDetections(ctx, []domain.Detection{expired, fresh, foreignLandmass, otherFeed})
	require.NoError(t, err)

	pruned, err := store.PruneDetectionsByAge(ctx, "firms-7d", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned, "the delete stays inside the named feed")

	survivors, err := store.ListDetections(ctx, postgres.DetectionFilter{Source: "firms-24h"})
	require.NoError(t, err)
	assert.Len(t, survivors, 1)

	policy, err := domain.PresetPolicy("v3")
	require.NoError(t, err)
	pruned, err = store.PruneDetectionsOutsideGeofence(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned, "records outside the current policy are re-evaluated and removed")

	stored, err := store.ListDetections(ctx, postgres.DetectionFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func forecast(code, name string, day time.Time, downloadedAt time.Time) domain.Forecast {
	return domain.Forecast{
		RegionCode:    code,
		RegionName:    name,
		ForecastDate:  day,
		TempMax:       38,
		TempMin:       21,
		HumidityMax:   60,
		HumidityMin:   15,
		WindMax:       35,
		PrecipProbMax: 5,
		DownloadedAt:  downloadedAt,
	}
}

func TestReplaceForecastsLatestWins(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	day := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Second)

	_, err := store.ReplaceForecasts(ctx, []string{"28079"}, []domain.Forecast{
		forecast("28079", "Madrid", day, now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	// A re-download of the same (region, date) supersedes the earlier row.
	updated := forecast("28079", "Madrid", day, now)
	updated.TempMax = 41
	_, err = store.ReplaceForecasts(ctx, []string{"28079"}, []domain.Forecast{updated})
	require.NoError(t, err)

	stored, err := store.ListForecasts(ctx, "28079")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 41.0, stored[0].TempMax)
}

func TestReplaceForecastsScopeIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	day := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Second)

	_, err := store.ReplaceForecasts(ctx, []string{"28079", "41091"}, []domain.Forecast{
		forecast("28079", "Madrid", day, now),
		forecast("41091", "Sevilla", day, now),
	})
	require.NoError(t, err)

	// A later run in which Sevilla's fetch failed only replaces Madrid;
	// Sevilla's previous forecasts must survive.
	_, err = store.ReplaceForecasts(ctx, []string{"28079"}, []domain.Forecast{
		forecast("28079", "Madrid", day.Add(24*time.Hour), now),
	})
	require.NoError(t, err)

	sevilla, err := store.ListForecasts(ctx, "41091")
	require.NoError(t, err)
	assert.Len(t, sevilla, 1)

	madrid, err := store.ListForecasts(ctx, "28079")
	require.NoError(t, err)
	require.Len(t, madrid, 1)
	assert.Equal(t, day.Add(24*time.Hour), madrid[0].ForecastDate.UTC())
}

func TestForecastRiskRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	day := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Second)

	_, err := store.ReplaceForecasts(ctx, []string{"28079"}, []domain.Forecast{
		forecast("28079", "Madrid", day, now),
	})
	require.NoError(t, err)

	unscored, err := store.ForecastsMissingRisk(ctx)
	require.NoError(t, err)
	require.Len(t, unscored, 1)

	require.NoError(t, store.UpdateForecastRisk(ctx, "28079", day, 0.73))

	unscored, err = store.ForecastsMissingRisk(ctx)
	require.NoError(t, err)
	assert.Empty(t, unscored)

	stored, err := store.ListForecasts(ctx, "28079")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].RiskProbability)
	assert.Equal(t, 0.73, *stored[0].RiskProbability)

	// Updating a row that does not exist is an error, not a silent no-op.
	err = store.UpdateForecastRisk(ctx, "99999", day, 0.5)
	assert.Error(t, err)
}

func TestPruneForecastsByAge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startPostgres(ctx, t)

	day := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Second)

	_, err := store.ReplaceForecasts(ctx, []string{"28079", "41091"}, []domain.Forecast{
		forecast("28079", "Madrid", day, now.Add(-72*time.Hour)),
		forecast("41091", "Sevilla", day, now),
	})
	require.NoError(t, err)

	pruned, err := store.PruneForecastsByAge(ctx, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := store.ListForecasts(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "41091", remaining[0].RegionCode)
}
