// Package pipeline orchestrates the ingestion runs: fetch a feed, normalize
// its rows, geofence-filter them, prune the store, and merge the survivors
// under the feed's deduplication strategy.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/firewatch/hotspot-ingest/internal/domain"
	"github.com/firewatch/hotspot-ingest/internal/observability"
)

// DetectionFetcher retrieves one raw tabular batch from a detection feed.
type DetectionFetcher interface {
	FetchDetections(ctx context.Context) ([]domain.RawRow, error)
}

// ForecastFetcher retrieves one province's forecast days.
type ForecastFetcher interface {
	FetchProvince(ctx context.Context, code string) ([]domain.RawForecastDay, error)
}

// DetectionStore is the persistence surface for detection runs.
type DetectionStore interface {
	InsertDetections(ctx context.Context, recs []domain.Detection) (inserted, skipped int64, err error)
	ReplaceDetections(ctx context.Context, source string, recs []domain.Detection) (int64, error)
	PruneDetectionsByAge(ctx context.Context, source string, cutoff time.Time) (int64, error)
	PruneDetectionsOutsideGeofence(ctx context.Context, policy domain.GeofencePolicy) (int64, error)
}

// ForecastStore is the persistence surface for forecast runs.
type ForecastStore interface {
	ReplaceForecasts(ctx context.Context, regionCodes []string, recs []domain.Forecast) (int64, error)
	PruneForecastsByAge(ctx context.Context, cutoff time.Time) (int64, error)
}

// DetectionPublisher pushes accepted detections to a downstream topic.
// Publishing is best-effort: a failure is logged, never fails the run.
type DetectionPublisher interface {
	PublishDetections(ctx context.Context, recs []domain.Detection) error
}

// Strategy selects how a detection feed merges into the store.
type Strategy string

const (
	// StrategyUpsert inserts if absent under the dedup key; duplicates are
	// counted as skipped. Used for the long-horizon feed.
	StrategyUpsert Strategy = "upsert"

	// StrategyReplace swaps the feed's whole scope in one transaction. Used
	// for the short-horizon feed, whose batch supersedes everything the feed
	// wrote before.
	StrategyReplace Strategy = "replace"
)

// DetectionFeed describes one detection feed run.
type DetectionFeed struct {
	Name      string // scope key in the store, e.g. "firms-24h"
	Schema    domain.DetectionSchema
	Strategy  Strategy
	Retention domain.RetentionPolicy
	Region    string // region label stamped onto accepted records
	Fetcher   DetectionFetcher
}

// Province is one administrative sub-unit of the forecast feed.
type Province struct {
	Code string
	Name string
}

// ForecastFeed describes one forecast feed run across its provinces.
type ForecastFeed struct {
	Name      string
	Provinces []Province
	MaxAge    time.Duration
	Fetcher   ForecastFetcher
}

// Pacing spaces out sub-unit calls so a full batch stays under provider-side
// rate limits: a short delay after most calls, a longer pause after every
// Nth call.
type Pacing struct {
	InterCallDelay  time.Duration
	BatchPause      time.Duration
	BatchPauseEvery int
}

// Pipeline runs ingestion for the configured feeds against one store handle.
type Pipeline struct {
	detections DetectionStore
	forecasts  ForecastStore
	publisher  DetectionPublisher // nil disables publishing
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	pacing     Pacing
	ready      atomic.Bool

	mu      sync.Mutex
	reports map[string]Report
}

// New creates a Pipeline. publisher may be nil.
func New(detections DetectionStore, forecasts ForecastStore, publisher DetectionPublisher,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, pacing Pacing) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		detections: detections,
		forecasts:  forecasts,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		pacing:     pacing,
		reports:    make(map[string]Report),
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// Snapshot returns the most recent report per feed.
func (p *Pipeline) Snapshot() map[string]Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Report, len(p.reports))
	for k, v := range p.reports {
		out[k] = v
	}
	return out
}

// RunDetections executes one detection feed run:
// fetch → normalize → geofilter → prune → dedup-merge.
func (p *Pipeline) RunDetections(ctx context.Context, feed DetectionFeed) (Report, error) {
	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report := Report{Feed: feed.Name}
	logger := p.logger.With("feed", feed.Name, "run_id", uuid.NewString())

	rows, err := feed.Fetcher.FetchDetections(ctx)
	if err != nil {
		p.metrics.SubUnitFailures.WithLabelValues(feed.Name).Inc()
		report.FailedSubUnits++
		return report, err
	}
	report.Fetched = len(rows)
	p.metrics.RecordsFetched.WithLabelValues(feed.Name).Add(float64(len(rows)))

	cutoff := p.clock.Now().Add(-feed.Retention.MaxAge)
	accepted := p.normalizeAndFilter(rows, feed, cutoff, &report, logger)

	if err := p.pruneDetections(ctx, feed, cutoff, &report); err != nil {
		return report, err
	}

	switch feed.Strategy {
	case StrategyReplace:
		inserted, err := p.detections.ReplaceDetections(ctx, feed.Name, accepted)
		if err != nil {
			return report, err
		}
		report.Inserted = inserted
	default:
		inserted, skipped, err := p.detections.InsertDetections(ctx, accepted)
		if err != nil {
			return report, err
		}
		report.Inserted = inserted
		report.SkippedDuplicate = skipped
	}
	p.metrics.RecordsInserted.WithLabelValues(feed.Name).Add(float64(report.Inserted))
	p.metrics.DuplicatesSkipped.WithLabelValues(feed.Name).Add(float64(report.SkippedDuplicate))

	p.publish(ctx, accepted, logger)

	report.Duration = p.clock.Now().Sub(start)
	p.metrics.RunDuration.WithLabelValues(feed.Name).Observe(report.Duration.Seconds())
	p.finishRun(feed.Name, report, logger)
	return report, nil
}

// normalizeAndFilter coerces raw rows into detections and applies the
// geofence and the retention cutoff to the incoming batch. Rows already older
// than the retention window are dropped up front; they would be pruned on the
// next pass anyway, so they count as pruned-by-age.
func (p *Pipeline) normalizeAndFilter(rows []domain.RawRow, feed DetectionFeed, cutoff time.Time,
	report *Report, logger *slog.Logger) []domain.Detection {
	accepted := make([]domain.Detection, 0, len(rows))
	for _, row := range rows {
		det, err := domain.NormalizeDetection(row, feed.Schema, feed.Name)
		if err != nil {
			var nerr *domain.NormalizationError
			reason := "unknown"
			if errors.As(err, &nerr) {
				reason = string(nerr.Reason)
			}
			p.metrics.NormalizationErrors.WithLabelValues(feed.Name, reason).Inc()
			report.NormalizationFailed++
			logger.Debug("dropped row", "error", err)
			continue
		}
		report.Normalized++
		p.metrics.RecordsNormalized.WithLabelValues(feed.Name).Inc()

		if !feed.Retention.Geofence.Contains(det.Latitude, det.Longitude) {
			report.RejectedByGeofence++
			p.metrics.RejectedByGeofence.WithLabelValues(feed.Name).Inc()
			continue
		}
		if det.ObservedAt.Before(cutoff) {
			report.PrunedByAge++
			continue
		}
		det.Region = feed.Region
		accepted = append(accepted, det)
	}
	return accepted
}

func (p *Pipeline) pruneDetections(ctx context.Context, feed DetectionFeed, cutoff time.Time, report *Report) error {
	byAge, err := p.detections.PruneDetectionsByAge(ctx, feed.Name, cutoff)
	if err != nil {
		return err
	}
	byFence, err := p.detections.PruneDetectionsOutsideGeofence(ctx, feed.Retention.Geofence)
	if err != nil {
		return err
	}
	report.PrunedByAge += byAge
	report.PrunedByGeofence += byFence
	p.metrics.PrunedByAge.WithLabelValues(feed.Name).Add(float64(byAge))
	p.metrics.PrunedByGeofence.WithLabelValues(feed.Name).Add(float64(byFence))
	return nil
}

func (p *Pipeline) publish(ctx context.Context, recs []domain.Detection, logger *slog.Logger) {
	if p.publisher == nil || len(recs) == 0 {
		return
	}
	if err := p.publisher.PublishDetections(ctx, recs); err != nil {
		logger.Warn("publish detections failed", "count", len(recs), "error", err)
		return
	}
	p.metrics.DetectionsPublished.Add(float64(len(recs)))
}

// RunForecasts fetches every province sequentially, pacing between calls, and
// replaces the forecast scope of the provinces that succeeded. A failed
// province is logged and skipped; the run proceeds to the next one.
func (p *Pipeline) RunForecasts(ctx context.Context, feed ForecastFeed) (Report, error) {
	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report := Report{Feed: feed.Name}
	logger := p.logger.With("feed", feed.Name, "run_id", uuid.NewString())

	var recs []domain.Forecast
	var okCodes []string

	for i, prov := range feed.Provinces {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		days, err := feed.Fetcher.FetchProvince(ctx, prov.Code)
		if err != nil {
			report.FailedSubUnits++
			p.metrics.SubUnitFailures.WithLabelValues(feed.Name).Inc()
			logger.Warn("province fetch failed, skipping",
				"province", prov.Name, "code", prov.Code, "error", err)
		} else {
			report.Fetched += len(days)
			p.metrics.RecordsFetched.WithLabelValues(feed.Name).Add(float64(len(days)))

			kept := 0
			for _, day := range days {
				fc, err := domain.NormalizeForecast(day, prov.Code, prov.Name)
				if err != nil {
					var nerr *domain.NormalizationError
					reason := "unknown"
					if errors.As(err, &nerr) {
						reason = string(nerr.Reason)
					}
					p.metrics.NormalizationErrors.WithLabelValues(feed.Name, reason).Inc()
					report.NormalizationFailed++
					continue
				}
				recs = append(recs, fc)
				kept++
			}
			report.Normalized += kept
			p.metrics.RecordsNormalized.WithLabelValues(feed.Name).Add(float64(kept))
			if kept > 0 {
				okCodes = append(okCodes, prov.Code)
			}
		}

		if i < len(feed.Provinces)-1 {
			if !p.pace(ctx, i+1) {
				return report, ctx.Err()
			}
		}
	}

	byAge, err := p.forecasts.PruneForecastsByAge(ctx, p.clock.Now().Add(-feed.MaxAge))
	if err != nil {
		return report, err
	}
	report.PrunedByAge = byAge
	p.metrics.PrunedByAge.WithLabelValues(feed.Name).Add(float64(byAge))

	inserted, err := p.forecasts.ReplaceForecasts(ctx, okCodes, recs)
	if err != nil {
		return report, err
	}
	report.Inserted = inserted
	p.metrics.RecordsInserted.WithLabelValues(feed.Name).Add(float64(inserted))

	report.Duration = p.clock.Now().Sub(start)
	p.metrics.RunDuration.WithLabelValues(feed.Name).Observe(report.Duration.Seconds())
	p.finishRun(feed.Name, report, logger)
	return report, nil
}

// pace sleeps between sub-unit calls; callIndex is 1-based. Returns false
// when the context is cancelled during the wait.
func (p *Pipeline) pace(ctx context.Context, callIndex int) bool {
	delay := p.pacing.InterCallDelay
	if p.pacing.BatchPauseEvery > 0 && callIndex%p.pacing.BatchPauseEvery == 0 {
		delay = p.pacing.BatchPause
	}
	if delay <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(delay):
		return true
	}
}

func (p *Pipeline) finishRun(feedName string, report Report, logger *slog.Logger) {
	p.ready.Store(true)
	p.mu.Lock()
	p.reports[feedName] = report
	p.mu.Unlock()

	logger.Info("run complete",
		"fetched", report.Fetched,
		"normalized", report.Normalized,
		"normalization_failed", report.NormalizationFailed,
		"rejected_by_geofence", report.RejectedByGeofence,
		"inserted", report.Inserted,
		"skipped_duplicate", report.SkippedDuplicate,
		"pruned_by_age", report.PrunedByAge,
		"pruned_by_geofence", report.PrunedByGeofence,
		"failed_sub_units", report.FailedSubUnits,
		"duration", report.Duration,
	)
}
