package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/firewatch/hotspot-ingest/internal/adapter/http"
	kafkaadapter "github.com/firewatch/hotspot-ingest/internal/adapter/kafka"
	"github.com/firewatch/hotspot-ingest/internal/config"
	"github.com/firewatch/hotspot-ingest/internal/domain"
	"github.com/firewatch/hotspot-ingest/internal/feed"
	"github.com/firewatch/hotspot-ingest/internal/feed/aemet"
	"github.com/firewatch/hotspot-ingest/internal/feed/firms"
	"github.com/firewatch/hotspot-ingest/internal/observability"
	"github.com/firewatch/hotspot-ingest/internal/pipeline"
	"github.com/firewatch/hotspot-ingest/internal/risk"
	"github.com/firewatch/hotspot-ingest/internal/store/postgres"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion cycle and exit, regardless of RUN_INTERVAL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *once {
		cfg.RunInterval = 0
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Downstream publisher (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var publisher pipeline.DetectionPublisher
	var kafkaPub *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = kafkaPub
		metrics.PublisherEnabled.Set(1)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	clock := clockwork.NewRealClock()
	fetcher := feed.NewFetcher(feed.Config{
		MaxAttempts:    cfg.FetchMaxAttempts,
		RateLimitStep:  cfg.FetchRateLimitStep,
		TransientDelay: cfg.FetchTransientDelay,
		Timeout:        cfg.FetchTimeout,
	}, clock, logger)

	feeds, err := buildDetectionFeeds(cfg, fetcher, logger)
	if err != nil {
		logger.Error("invalid feed configuration", "error", err)
		os.Exit(1)
	}
	forecastFeed := buildForecastFeed(cfg, fetcher, logger)

	var riskRunner *risk.Runner
	if cfg.RiskScorerURL != "" {
		scorer := risk.NewHTTPScorer(cfg.RiskScorerURL, cfg.RiskTimeout)
		riskRunner = risk.NewRunner(store, scorer, logger)
		logger.Info("risk scoring enabled", "url", cfg.RiskScorerURL)
	} else {
		logger.Info("risk scoring disabled")
	}

	p := pipeline.New(store, store, publisher, clock, logger, metrics, pipeline.Pacing{
		InterCallDelay:  cfg.InterCallDelay,
		BatchPause:      cfg.BatchPause,
		BatchPauseEvery: cfg.BatchPauseEvery,
	})

	// The ops HTTP surface only exists in interval mode; one-shot cron runs
	// have nothing to probe.
	var srv *httpadapter.Server
	if cfg.RunInterval > 0 {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	// runAll reports whether any run failed in a way the scheduler must hear
	// about. Exhausted fetches are already counted in the run report; store
	// and scoring failures mean the cycle left work undone.
	runAll := func(ctx context.Context) bool {
		runCtx := ctx
		if cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
			defer cancel()
		}
		fatal := false
		for _, f := range feeds {
			if _, err := p.RunDetections(runCtx, f); err != nil {
				logger.Error("detection run failed", "feed", f.Name, "error", err)
				fatal = fatal || isFatalRunError(err)
			}
		}
		if forecastFeed != nil {
			if _, err := p.RunForecasts(runCtx, *forecastFeed); err != nil {
				logger.Error("forecast run failed", "feed", forecastFeed.Name, "error", err)
				fatal = fatal || isFatalRunError(err)
			}
		}
		if riskRunner != nil {
			if scored, failed, err := riskRunner.Run(runCtx); err != nil {
				logger.Error("risk scoring failed", "error", err)
				fatal = fatal || isFatalRunError(err)
			} else {
				logger.Info("risk scoring complete", "scored", scored, "failed", failed)
			}
		}
		return fatal
	}

	var fatalRun bool
	if cfg.RunInterval == 0 {
		// One-shot mode: an external scheduler owns the cadence and watches
		// the exit code.
		fatalRun = runAll(ctx)
	} else {
		go runLoop(ctx, cfg.RunInterval, runAll, logger)
		<-ctx.Done()
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if fatalRun {
		store.Close()
		os.Exit(1)
	}
}

// isFatalRunError distinguishes failures the run report already accounts for
// from ones that must surface through the exit code. An exhausted or
// permanent fetch is sub-unit scoped; anything else, a dead database
// connection above all, means records were lost silently.
func isFatalRunError(err error) bool {
	var fetchErr *domain.FetchError
	return !errors.As(err, &fetchErr)
}

// runLoop runs one full ingestion cycle immediately, then again every
// interval until the context is canceled.
func runLoop(ctx context.Context, interval time.Duration, run func(context.Context) bool, logger *slog.Logger) {
	run(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("starting scheduled run")
			run(ctx)
		}
	}
}

func buildDetectionFeeds(cfg *config.Config, fetcher *feed.Fetcher, logger *slog.Logger) ([]pipeline.DetectionFeed, error) {
	schema, err := domain.DetectionSchemaFor(cfg.DetectionSchema)
	if err != nil {
		return nil, err
	}

	var feeds []pipeline.DetectionFeed
	if cfg.Firms24hURL != "" {
		feeds = append(feeds, pipeline.DetectionFeed{
			Name:     "firms-24h",
			Schema:   schema,
			Strategy: pipeline.Strategy(cfg.Strategy24h),
			Retention: domain.RetentionPolicy{
				MaxAge:   cfg.Retention24h,
				Geofence: cfg.Geofence,
			},
			Region:  cfg.RegionName,
			Fetcher: firms.NewClient(fetcher, cfg.Firms24hURL, logger),
		})
	}
	if cfg.Firms7dURL != "" {
		feeds = append(feeds, pipeline.DetectionFeed{
			Name:     "firms-7d",
			Schema:   schema,
			Strategy: pipeline.Strategy(cfg.Strategy7d),
			Retention: domain.RetentionPolicy{
				MaxAge:   cfg.Retention7d,
				Geofence: cfg.Geofence,
			},
			Region:  cfg.RegionName,
			Fetcher: firms.NewClient(fetcher, cfg.Firms7dURL, logger),
		})
	}
	return feeds, nil
}

func buildForecastFeed(cfg *config.Config, fetcher *feed.Fetcher, logger *slog.Logger) *pipeline.ForecastFeed {
	if cfg.AemetAPIKey == "" {
		logger.Info("forecast feed disabled, no API key configured")
		return nil
	}
	provinces := make([]pipeline.Province, 0, len(cfg.Provinces))
	for _, p := range cfg.ProvinceList() {
		provinces = append(provinces, pipeline.Province{Code: p.Code, Name: p.Name})
	}
	return &pipeline.ForecastFeed{
		Name:      "aemet-forecast",
		Provinces: provinces,
		MaxAge:    cfg.ForecastRetention,
		Fetcher:   aemet.NewClient(fetcher, cfg.AemetBaseURL, cfg.AemetAPIKey, logger),
	}
}
