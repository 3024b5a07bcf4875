// Package risk bridges the store and the external fire-risk inference
// collaborator. The model itself is opaque: a pre-trained function from a
// forecast feature vector to a probability in [0,1], consumed over an
// injected Scorer.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

// FeatureVector is the model input for one (region, date).
type FeatureVector struct {
	TempMax       float64 `json:"temp_max"`
	TempMin       float64 `json:"temp_min"`
	PrecipProbMax float64 `json:"precip_prob_max"`
	WindMax       float64 `json:"wind_max"`
	HumidityMax   float64 `json:"humidity_max"`
	HumidityMin   float64 `json:"humidity_min"`
}

// Scorer is the inference collaborator: feature vector in, probability out.
type Scorer interface {
	Score(ctx context.Context, features FeatureVector) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, features FeatureVector) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, features FeatureVector) (float64, error) {
	return f(ctx, features)
}

// ForecastStore is the slice of the store the runner needs: unscored
// forecasts out, derived probabilities back in.
type ForecastStore interface {
	ForecastsMissingRisk(ctx context.Context) ([]domain.Forecast, error)
	UpdateForecastRisk(ctx context.Context, regionCode string, date time.Time, probability float64) error
}

// Runner scores stored forecasts that have no risk probability yet. Scoring
// failures are forecast-scoped: logged, counted, and skipped.
type Runner struct {
	store  ForecastStore
	scorer Scorer
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(store ForecastStore, scorer Scorer, logger *slog.Logger) *Runner {
	return &Runner{store: store, scorer: scorer, logger: logger}
}

// Run scores every unscored forecast and writes the probabilities back.
// Returns the number scored and the number of forecast-scoped failures.
func (r *Runner) Run(ctx context.Context) (scored, failed int, err error) {
	forecasts, err := r.store.ForecastsMissingRisk(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load unscored forecasts: %w", err)
	}

	for _, fc := range forecasts {
		if ctx.Err() != nil {
			return scored, failed, ctx.Err()
		}

		prob, err := r.scorer.Score(ctx, FeatureVector{
			TempMax:       fc.TempMax,
			TempMin:       fc.TempMin,
			PrecipProbMax: fc.PrecipProbMax,
			WindMax:       fc.WindMax,
			HumidityMax:   fc.HumidityMax,
			HumidityMin:   fc.HumidityMin,
		})
		if err != nil {
			failed++
			r.logger.Warn("risk scoring failed, skipping forecast",
				"region", fc.RegionCode, "date", fc.ForecastDate.Format("2006-01-02"), "error", err)
			continue
		}
		if prob < 0 || prob > 1 {
			failed++
			r.logger.Warn("scorer returned out-of-range probability, skipping forecast",
				"region", fc.RegionCode, "probability", prob)
			continue
		}

		if err := r.store.UpdateForecastRisk(ctx, fc.RegionCode, fc.ForecastDate, prob); err != nil {
			return scored, failed, err
		}
		scored++
	}
	return scored, failed, nil
}
