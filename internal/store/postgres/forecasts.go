package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

const insertForecastSQL = `
	INSERT INTO forecasts (region_code, region_name, forecast_date, temp_max, temp_min,
		humidity_max, humidity_min, wind_max, precip_prob_max, downloaded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT ON CONSTRAINT forecasts_natural_key DO UPDATE SET
		region_name = EXCLUDED.region_name,
		temp_max = EXCLUDED.temp_max,
		temp_min = EXCLUDED.temp_min,
		humidity_max = EXCLUDED.humidity_max,
		humidity_min = EXCLUDED.humidity_min,
		wind_max = EXCLUDED.wind_max,
		precip_prob_max = EXCLUDED.precip_prob_max,
		downloaded_at = EXCLUDED.downloaded_at`

// ReplaceForecasts performs delete-then-insert for the given region scope in
// one transaction, so a reader never sees a mix of two forecast runs for the
// same province and stale dates absent from the new batch are removed.
// Regions outside the scope are untouched.
func (s *Store) ReplaceForecasts(ctx context.Context, regionCodes []string, recs []domain.Forecast) (int64, error) {
	if len(regionCodes) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace forecasts: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM forecasts WHERE region_code = ANY($1)`, regionCodes); err != nil {
		return 0, fmt.Errorf("clear forecast scope: %w", err)
	}

	var inserted int64
	for _, f := range recs {
		tag, err := tx.Exec(ctx, insertForecastSQL,
			f.RegionCode, f.RegionName, f.ForecastDate, f.TempMax, f.TempMin,
			f.HumidityMax, f.HumidityMin, f.WindMax, f.PrecipProbMax, f.DownloadedAt)
		if err != nil {
			return 0, fmt.Errorf("insert forecast %s: %w", f.Key(), err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace forecasts: %w", err)
	}
	return inserted, nil
}

// PruneForecastsByAge deletes forecasts downloaded before the cutoff.
// Retention keys on ingestion time, not the forecast date: tomorrow's
// forecast from a week-old run is stale even though its date is future.
func (s *Store) PruneForecastsByAge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM forecasts WHERE downloaded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune forecasts by age: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListForecasts returns a region's stored forecasts ordered by date, or all
// regions when regionCode is empty.
func (s *Store) ListForecasts(ctx context.Context, regionCode string) ([]domain.Forecast, error) {
	query := `SELECT region_code, region_name, forecast_date, temp_max, temp_min,
			humidity_max, humidity_min, wind_max, precip_prob_max, downloaded_at, risk_probability
		FROM forecasts`
	args := []any{}
	if regionCode != "" {
		query += ` WHERE region_code = $1`
		args = append(args, regionCode)
	}
	query += ` ORDER BY region_code, forecast_date`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Forecast
	for rows.Next() {
		var f domain.Forecast
		if err := rows.Scan(&f.RegionCode, &f.RegionName, &f.ForecastDate, &f.TempMax, &f.TempMin,
			&f.HumidityMax, &f.HumidityMin, &f.WindMax, &f.PrecipProbMax, &f.DownloadedAt,
			&f.RiskProbability); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecasts: %w", err)
	}
	return out, nil
}

// ForecastsMissingRisk returns forecasts not yet scored by the inference
// collaborator.
func (s *Store) ForecastsMissingRisk(ctx context.Context) ([]domain.Forecast, error) {
	rows, err := s.pool.Query(ctx, `SELECT region_code, region_name, forecast_date, temp_max, temp_min,
			humidity_max, humidity_min, wind_max, precip_prob_max, downloaded_at, risk_probability
		FROM forecasts WHERE risk_probability IS NULL
		ORDER BY region_code, forecast_date`)
	if err != nil {
		return nil, fmt.Errorf("list unscored forecasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Forecast
	for rows.Next() {
		var f domain.Forecast
		if err := rows.Scan(&f.RegionCode, &f.RegionName, &f.ForecastDate, &f.TempMax, &f.TempMin,
			&f.HumidityMax, &f.HumidityMin, &f.WindMax, &f.PrecipProbMax, &f.DownloadedAt,
			&f.RiskProbability); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecasts: %w", err)
	}
	return out, nil
}

// UpdateForecastRisk writes the derived probability back onto one forecast.
func (s *Store) UpdateForecastRisk(ctx context.Context, regionCode string, date time.Time, probability float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE forecasts SET risk_probability = $1 WHERE region_code = $2 AND forecast_date = $3`,
		probability, regionCode, date)
	if err != nil {
		return fmt.Errorf("update forecast risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("forecast %s/%s not found", regionCode, date.Format("2006-01-02"))
	}
	return nil
}
