// Package config populates all service settings from environment variables,
// with an optional .env file for local development. Nothing the pipeline
// needs — endpoints, credentials, geofence policy, retention, retry budgets,
// pacing — is hardcoded in pipeline logic.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

// Config holds all service settings.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// RunInterval of 0 means one-shot mode (cron owns scheduling).
	RunInterval time.Duration
	RunTimeout  time.Duration

	// Fetcher retry/backoff policy.
	FetchMaxAttempts    int
	FetchRateLimitStep  time.Duration
	FetchTransientDelay time.Duration
	FetchTimeout        time.Duration

	// Pacing between sub-unit calls.
	InterCallDelay  time.Duration
	BatchPause      time.Duration
	BatchPauseEvery int

	// Detection feeds. An empty URL disables the feed.
	Firms24hURL        string
	Firms7dURL         string
	DetectionSchema    string
	Retention24h       time.Duration
	Retention7d        time.Duration
	Strategy24h        string
	Strategy7d         string
	RegionName         string

	// Geofence policy applied to detections.
	Geofence domain.GeofencePolicy

	// Forecast feed. An empty API key disables it.
	AemetBaseURL      string
	AemetAPIKey       string
	ForecastRetention time.Duration
	Provinces         map[string]string // code → name

	// Optional downstream publisher.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Optional inference collaborator. An empty URL disables scoring.
	RiskScorerURL string
	RiskTimeout   time.Duration
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		DetectionSchema: envOrDefault("DETECTION_SCHEMA", "firms-modis"),
		Firms24hURL:     envOrDefault("FIRMS_24H_URL", "https://firms.modaps.eosdis.nasa.gov/data/active_fire/modis-c6.1/csv/MODIS_C6_1_Europe_24h.csv"),
		Firms7dURL:      os.Getenv("FIRMS_7D_URL"),
		Strategy24h:     envOrDefault("DEDUP_STRATEGY_24H", "replace"),
		Strategy7d:      envOrDefault("DEDUP_STRATEGY_7D", "upsert"),
		RegionName:      envOrDefault("REGION_NAME", "Spain"),
		AemetBaseURL:    envOrDefault("AEMET_BASE_URL", "https://opendata.aemet.es/opendata"),
		AemetAPIKey:     os.Getenv("AEMET_API_KEY"),
		KafkaTopic:      envOrDefault("KAFKA_TOPIC", "hotspot-detections"),
		RiskScorerURL:   os.Getenv("RISK_SCORER_URL"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationVar("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = durationVar("RUN_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = durationVar("RUN_TIMEOUT", 45*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchMaxAttempts, err = intVar("FETCH_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.FetchRateLimitStep, err = durationVar("FETCH_RATE_LIMIT_STEP", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTransientDelay, err = durationVar("FETCH_TRANSIENT_DELAY", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationVar("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.InterCallDelay, err = durationVar("INTER_CALL_DELAY", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchPause, err = durationVar("BATCH_PAUSE", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchPauseEvery, err = intVar("BATCH_PAUSE_EVERY", 10); err != nil {
		return nil, err
	}
	if cfg.Retention24h, err = durationVar("DETECTION_RETENTION_24H", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Retention7d, err = durationVar("DETECTION_RETENTION_7D", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ForecastRetention, err = durationVar("FORECAST_RETENTION", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RiskTimeout, err = durationVar("RISK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if cfg.Geofence, err = loadGeofence(); err != nil {
		return nil, err
	}
	if cfg.Provinces, err = loadProvinces(); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if err := validateStrategy(cfg.Strategy24h, "DEDUP_STRATEGY_24H"); err != nil {
		return nil, err
	}
	if err := validateStrategy(cfg.Strategy7d, "DEDUP_STRATEGY_7D"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ProvinceList returns the configured provinces in deterministic code order,
// the fixed sub-unit ordering the orchestrator relies on.
func (c *Config) ProvinceList() []struct{ Code, Name string } {
	codes := make([]string, 0, len(c.Provinces))
	for code := range c.Provinces {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]struct{ Code, Name string }, 0, len(codes))
	for _, code := range codes {
		out = append(out, struct{ Code, Name string }{Code: code, Name: c.Provinces[code]})
	}
	return out
}

// loadGeofence builds the geofence policy: a preset generation, optionally
// overridden by an explicit bounding box and exclusion rule set.
func loadGeofence() (domain.GeofencePolicy, error) {
	policy, err := domain.PresetPolicy(os.Getenv("GEOFENCE_PRESET"))
	if err != nil {
		return domain.GeofencePolicy{}, fmt.Errorf("GEOFENCE_PRESET: %w", err)
	}

	if bbox := os.Getenv("GEOFENCE_BBOX"); bbox != "" {
		parts := splitAndTrim(bbox)
		if len(parts) != 4 {
			return domain.GeofencePolicy{}, errors.New("GEOFENCE_BBOX: want \"latMin,latMax,lonMin,lonMax\"")
		}
		vals := make([]float64, 4)
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return domain.GeofencePolicy{}, fmt.Errorf("GEOFENCE_BBOX: %w", err)
			}
			vals[i] = v
		}
		policy.Box = domain.BoundingBox{LatMin: vals[0], LatMax: vals[1], LonMin: vals[2], LonMax: vals[3]}
		policy.Version = "custom"
	}

	if rules := os.Getenv("GEOFENCE_EXCLUSIONS"); rules != "" {
		parsed, err := domain.ParseExclusionRules(rules)
		if err != nil {
			return domain.GeofencePolicy{}, fmt.Errorf("GEOFENCE_EXCLUSIONS: %w", err)
		}
		policy.Exclusions = parsed
		policy.Version = "custom"
	}

	return policy, nil
}

// loadProvinces returns the forecast sub-units: the built-in table of the 50
// provincial capitals, or the PROVINCES override ("code:name,code:name").
func loadProvinces() (map[string]string, error) {
	raw := os.Getenv("PROVINCES")
	if raw == "" {
		out := make(map[string]string, len(defaultProvinces))
		for code, name := range defaultProvinces {
			out[code] = name
		}
		return out, nil
	}

	out := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		code, name, ok := strings.Cut(pair, ":")
		if !ok || code == "" || name == "" {
			return nil, fmt.Errorf("PROVINCES: malformed entry %q", pair)
		}
		out[strings.TrimSpace(code)] = strings.TrimSpace(name)
	}
	return out, nil
}

func validateStrategy(s, name string) error {
	if s != "replace" && s != "upsert" {
		return fmt.Errorf("%s: want \"replace\" or \"upsert\", got %q", name, s)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func intVar(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
